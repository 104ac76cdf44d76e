package loom

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
)

// DisplayConfig controls how Lists are formatted when printed.
type DisplayConfig struct {
	// MaxRows is the maximum number of rows to display.
	// If the List has more rows, it shows head and tail rows with "…" in between.
	// Default: 10 (5 head + 5 tail)
	MaxRows int

	// MaxColWidth is the maximum width for cell content.
	// Values longer than this are truncated with "...".
	// Default: 25
	MaxColWidth int

	// FloatPrecision is the number of decimal places for float values.
	// Default: 4
	FloatPrecision int

	// ShowType controls whether to display the logical type above the table.
	// Default: true
	ShowType bool

	// ShowTags controls whether row tags get their own column.
	// Default: false
	ShowTags bool

	// TableStyle controls the table border style.
	// Options: "ascii", "markdown", "minimal"
	// Default: "ascii"
	TableStyle string
}

var tableStyles = map[string]bool{"ascii": true, "markdown": true, "minimal": true}

// DefaultDisplayConfig returns the default display configuration.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		MaxRows:        10,
		MaxColWidth:    25,
		FloatPrecision: 4,
		ShowType:       true,
		TableStyle:     "ascii",
	}
}

// Global display configuration with mutex for thread safety
var (
	globalDisplayConfig = DefaultDisplayConfig()
	displayConfigMu     sync.RWMutex
)

// SetDisplayConfig sets the global display configuration.
func SetDisplayConfig(cfg DisplayConfig) {
	displayConfigMu.Lock()
	defer displayConfigMu.Unlock()
	globalDisplayConfig = cfg
}

// GetDisplayConfig returns the current global display configuration.
func GetDisplayConfig() DisplayConfig {
	displayConfigMu.RLock()
	defer displayConfigMu.RUnlock()
	return globalDisplayConfig
}

// SetMaxDisplayRows sets the maximum number of rows to display.
func SetMaxDisplayRows(n int) {
	displayConfigMu.Lock()
	defer displayConfigMu.Unlock()
	globalDisplayConfig.MaxRows = n
}

// SetTableStyle sets the table border style.
// Options: "ascii", "markdown", "minimal"
func SetTableStyle(style string) {
	displayConfigMu.Lock()
	defer displayConfigMu.Unlock()
	if tableStyles[style] {
		globalDisplayConfig.TableStyle = style
	}
}

// formatDisplayValue formats a value for display with the given configuration.
func formatDisplayValue(val any, cfg DisplayConfig) string {
	var s string
	switch v := val.(type) {
	case nil:
		s = "null"
	case float64:
		s = fmt.Sprintf("%.*f", cfg.FloatPrecision, v)
	case string:
		s = v
	case bool:
		if v {
			s = "true"
		} else {
			s = "false"
		}
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	default:
		s = fmt.Sprintf("%v", v)
	}

	// Truncate if too long
	if cfg.MaxColWidth > 3 && utf8.RuneCountInString(s) > cfg.MaxColWidth {
		s = string([]rune(s)[:cfg.MaxColWidth-3]) + "..."
	}
	return s
}

// displayRows picks the row indices to show; -1 marks the elided middle.
func displayRows(n, maxRows int) []int {
	if maxRows <= 0 || n <= maxRows {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	head := maxRows / 2
	tail := maxRows - head
	rows := make([]int, 0, maxRows+1)
	for i := 0; i < head; i++ {
		rows = append(rows, i)
	}
	rows = append(rows, -1)
	for i := n - tail; i < n; i++ {
		rows = append(rows, i)
	}
	return rows
}

// String formats the List using the global display configuration.
func (l *List) String() string {
	return l.StringWithConfig(GetDisplayConfig())
}

// StringWithConfig formats the List using the provided configuration.
func (l *List) StringWithConfig(cfg DisplayConfig) string {
	var sb strings.Builder
	l.FormatWithConfig(&sb, cfg)
	return sb.String()
}

// Format writes the List as a table using the global display configuration.
func (l *List) Format(w io.Writer) {
	l.FormatWithConfig(w, GetDisplayConfig())
}

// FormatWithConfig writes the List as a table. A list of records gets one
// column per field; any other list gets a single "value" column.
func (l *List) FormatWithConfig(w io.Writer, cfg DisplayConfig) {
	if cfg.ShowType {
		fmt.Fprintf(w, "%s\nlength: %d\n", l.ListType(), l.Len())
	}

	var names []string
	rec := NonNone(Untagged(l.elem))
	if rec.kind == KindRecord {
		for _, f := range rec.fields {
			names = append(names, f.Name)
		}
	}

	header := append([]string{""}, names...)
	if len(names) == 0 {
		header = append(header, "value")
	}
	if cfg.ShowTags {
		header = append(header, "tags")
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	switch cfg.TableStyle {
	case "markdown":
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
	case "minimal":
		table.SetBorder(false)
		table.SetColumnSeparator(" ")
		table.SetCenterSeparator(" ")
		table.SetHeaderLine(false)
	}

	for _, i := range displayRows(l.Len(), cfg.MaxRows) {
		if i < 0 {
			row := make([]string, len(header))
			for j := range row {
				row[j] = "…"
			}
			table.Append(row)
			continue
		}

		row := []string{fmt.Sprintf("%d", i)}
		v := l.Value(i)
		if len(names) > 0 {
			fields, _ := v.(map[string]any)
			for _, name := range names {
				if fields == nil {
					row = append(row, "null")
					continue
				}
				row = append(row, formatDisplayValue(fields[name], cfg))
			}
		} else {
			row = append(row, formatDisplayValue(v, cfg))
		}
		if cfg.ShowTags {
			row = append(row, formatTags(l.RowTags(i), cfg))
		}
		table.Append(row)
	}
	table.Render()
}

func formatTags(t Tags, cfg DisplayConfig) string {
	kinds := t.Kinds()
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		v, _ := t.Get(k)
		parts[i] = fmt.Sprintf("%s=%s", k, formatDisplayValue(v, cfg))
	}
	return strings.Join(parts, " ")
}
