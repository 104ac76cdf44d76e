package loom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// Parquet files map to lists of records: every top-level leaf column becomes
// a record field. Nested parquet groups are not supported.

// ParquetReadOptions configures Parquet reading behavior
type ParquetReadOptions struct {
	Columns []string // Only read these columns (nil = all)
	MaxRows int      // Max rows to read (0 = unlimited)
	Source  string   // Provenance source (default: the file path)
}

// DefaultParquetReadOptions returns default Parquet reading options
func DefaultParquetReadOptions() ParquetReadOptions {
	return ParquetReadOptions{}
}

// ReadParquet reads a Parquet file into a list of records
func ReadParquet(path string, opts ...ParquetReadOptions) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	opt := DefaultParquetReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Source == "" {
		opt.Source = path
	}
	return ReadParquetFromReader(f, stat.Size(), opt)
}

// parquetColumn is one record field read from a leaf column
type parquetColumn struct {
	name  string
	index int
	typ   *Type
}

// ReadParquetFromReader reads Parquet data from an io.ReaderAt into a list of records
func ReadParquetFromReader(r io.ReaderAt, size int64, opts ...ParquetReadOptions) (*List, error) {
	opt := DefaultParquetReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	schema := pf.Schema()
	cols, err := parquetColumns(schema, opt.Columns)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, len(cols))
	for i, c := range cols {
		fields[i] = Field{Name: c.name, Type: c.typ}
	}
	elem := RecordOf(fields...)

	var values []any
	rowBuf := make([]parquet.Row, 1000)
	limited := func() bool { return opt.MaxRows > 0 && len(values) >= opt.MaxRows }

	for _, rg := range pf.RowGroups() {
		if limited() {
			break
		}
		rows := rg.Rows()
		for !limited() {
			n, err := rows.ReadRows(rowBuf)
			for _, row := range rowBuf[:n] {
				if limited() {
					break
				}
				values = append(values, parquetRecord(row, cols))
			}
			if err == io.EOF || (err == nil && n == 0) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to read rows: %w", err)
			}
		}
		rows.Close()
	}

	source := opt.Source
	if source == "" {
		source = "parquet"
	}
	return NewList(elem, values, NewProvenance(source))
}

// parquetColumns resolves the selected top-level leaf columns and their types
func parquetColumns(schema *parquet.Schema, only []string) ([]parquetColumn, error) {
	index := make(map[string]int)
	for i, path := range schema.Columns() {
		if len(path) == 1 {
			index[path[0]] = i
		}
	}

	var cols []parquetColumn
	for _, f := range schema.Fields() {
		if !f.Leaf() {
			if len(only) == 0 {
				return nil, fmt.Errorf("%w: parquet group column %q", ErrUnsupportedType, f.Name())
			}
			continue
		}
		t := parquetLeafType(f.Type())
		if f.Optional() {
			t = Optional(t)
		}
		cols = append(cols, parquetColumn{name: f.Name(), index: index[f.Name()], typ: t})
	}

	if len(only) == 0 {
		return cols, nil
	}
	byName := make(map[string]parquetColumn, len(cols))
	for _, c := range cols {
		byName[c.name] = c
	}
	selected := make([]parquetColumn, len(only))
	for i, name := range only {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("column '%s' not found in parquet file", name)
		}
		selected[i] = c
	}
	return selected, nil
}

func parquetLeafType(t parquet.Type) *Type {
	if t == nil {
		return String
	}
	switch t.Kind() {
	case parquet.Boolean:
		return Boolean
	case parquet.Int32, parquet.Int64:
		return Int
	case parquet.Float, parquet.Double:
		return Number
	default:
		return String
	}
}

func parquetRecord(row parquet.Row, cols []parquetColumn) map[string]any {
	byColumn := make(map[int]parquet.Value, len(row))
	for _, v := range row {
		byColumn[v.Column()] = v
	}

	rec := make(map[string]any, len(cols))
	for _, c := range cols {
		v, ok := byColumn[c.index]
		if !ok || v.IsNull() {
			rec[c.name] = nil
			continue
		}
		switch v.Kind() {
		case parquet.Boolean:
			rec[c.name] = v.Boolean()
		case parquet.Int32:
			rec[c.name] = int64(v.Int32())
		case parquet.Int64:
			rec[c.name] = v.Int64()
		case parquet.Float:
			rec[c.name] = float64(v.Float())
		case parquet.Double:
			rec[c.name] = v.Double()
		default:
			rec[c.name] = string(v.ByteArray())
		}
	}
	return rec
}

// ============================================================================
// Writing
// ============================================================================

// ParquetWriteOptions configures Parquet writing behavior
type ParquetWriteOptions struct {
	Compression string // "snappy", "gzip", "zstd", "none" (default "snappy")
	BatchSize   int    // Rows per WriteRows call (default 1000)
}

// DefaultParquetWriteOptions returns default Parquet writing options
func DefaultParquetWriteOptions() ParquetWriteOptions {
	return ParquetWriteOptions{
		Compression: "snappy",
		BatchSize:   1000,
	}
}

// WriteParquet writes a list of records to a Parquet file
func (l *List) WriteParquet(path string, opts ...ParquetWriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return l.WriteParquetToWriter(f, opts...)
}

// WriteParquetToWriter writes a list of records to an io.Writer. Every field
// must be a primitive or an Optional primitive. A null row is written with
// every column null, so it needs Optional fields.
func (l *List) WriteParquetToWriter(w io.Writer, opts ...ParquetWriteOptions) error {
	opt := DefaultParquetWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = 1000
	}

	rec := NonNone(Untagged(l.elem))
	if rec.kind != KindRecord {
		return fmt.Errorf("%w: parquet needs a list of records, have %s", ErrUnsupportedType, l.ListType())
	}
	if len(rec.fields) == 0 {
		return errors.New("parquet needs at least one field")
	}

	// parquet.Group orders its columns by name
	fields := rec.Fields()
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	group := make(parquet.Group)
	for _, f := range fields {
		node, err := parquetNode(f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		group[f.Name] = node
	}
	schema := parquet.NewSchema("list", group)

	writerOpts := []parquet.WriterOption{schema}
	switch opt.Compression {
	case "snappy":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Snappy))
	case "gzip":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Gzip))
	case "zstd":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Zstd))
	}

	pw := parquet.NewWriter(w, writerOpts...)

	rows := make([]parquet.Row, 0, opt.BatchSize)
	for i := 0; i < l.Len(); i++ {
		values, _ := l.Value(i).(map[string]any)
		row := make(parquet.Row, len(fields))
		for j, f := range fields {
			row[j] = toParquetValue(values[f.Name], f.Type, j)
		}
		rows = append(rows, row)

		if len(rows) >= opt.BatchSize {
			if _, err := pw.WriteRows(rows); err != nil {
				pw.Close()
				return fmt.Errorf("failed to write rows at %d: %w", i-len(rows)+1, err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			pw.Close()
			return fmt.Errorf("failed to write final rows: %w", err)
		}
	}

	return pw.Close()
}

func parquetNode(t *Type) (parquet.Node, error) {
	var node parquet.Node
	switch NonNone(Untagged(t)).kind {
	case KindBoolean:
		node = parquet.Leaf(parquet.BooleanType)
	case KindInt:
		node = parquet.Int(64)
	case KindNumber:
		node = parquet.Leaf(parquet.DoubleType)
	case KindString:
		node = parquet.String()
	default:
		return nil, fmt.Errorf("%w: %s has no parquet column type", ErrUnsupportedType, t)
	}
	if t.Nullable() {
		node = parquet.Optional(node)
	}
	return node, nil
}

func toParquetValue(v any, t *Type, column int) parquet.Value {
	nullable := t.Nullable()
	if v == nil {
		return parquet.NullValue().Level(0, 0, column)
	}

	var pv parquet.Value
	switch NonNone(Untagged(t)).kind {
	case KindBoolean:
		b, _ := v.(bool)
		pv = parquet.BooleanValue(b)
	case KindInt:
		i, _ := toInt64(v)
		pv = parquet.Int64Value(i)
	case KindNumber:
		f, _ := toFloat64(v)
		pv = parquet.DoubleValue(f)
	default:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprintf("%v", v)
		}
		pv = parquet.ByteArrayValue([]byte(s))
	}

	def := 0
	if nullable {
		def = 1
	}
	return pv.Level(0, def, column)
}
