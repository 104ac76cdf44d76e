package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NerdMeNot/loom"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}

// Represents the state used when processing a command.
type Action struct {
	cmd      *cobra.Command
	logger   *slog.Logger
	closeLog func()
	registry *loom.Registry
}

func newAction(cmd *cobra.Command) *Action {
	result := &Action{cmd: cmd}

	level, err := parseLevel(result.getString("log-level"))
	if err != nil {
		fatal("%s", err)
	}
	result.logger, result.closeLog = setupLogger(level, result.getString("seq-url"))

	cfg := loom.GetDisplayConfig()
	cfg.MaxRows = result.getInt("max-rows")
	loom.SetDisplayConfig(cfg)
	loom.SetTableStyle(result.getString("style"))
	return result
}

// Registry returns the standard op registry, built on first use.
func (a *Action) Registry() *loom.Registry {
	if a.registry == nil {
		r, err := loom.NewStandardRegistry(loom.Options{Logger: a.logger})
		if err != nil {
			a.exit(err)
		}
		a.registry = r
	}
	return a.registry
}

func (a *Action) Context() context.Context {
	return a.cmd.Context()
}

func (a *Action) Close() {
	a.closeLog()
}

func (a *Action) getInt(name string) int {
	result, _ := a.cmd.Flags().GetInt(name)
	return result
}

func (a *Action) getString(name string) string {
	result, _ := a.cmd.Flags().GetString(name)
	return result
}

func (a *Action) getStringArray(name string) []string {
	result, _ := a.cmd.Flags().GetStringArray(name)
	return result
}

func (a *Action) exit(err error) {
	a.logger.Error("command failed", "command", a.cmd.Name(), "err", err)
	a.closeLog()
	fatal("%s", err)
}

// ============================================================================
// Files
// ============================================================================

func fileFormat(fname string) string {
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".parquet":
		return "parquet"
	case ".jsonl", ".ndjson":
		return "jsonl"
	default:
		return "json"
	}
}

func readList(fname string) (*loom.List, error) {
	switch fileFormat(fname) {
	case "parquet":
		return loom.ReadParquet(fname)
	case "jsonl":
		opts := loom.DefaultJSONReadOptions()
		opts.Format = loom.JSONLines
		return loom.ReadJSON(fname, opts)
	default:
		return loom.ReadJSON(fname)
	}
}

func writeList(l *loom.List, fname string) error {
	switch fileFormat(fname) {
	case "parquet":
		return l.WriteParquet(fname)
	case "jsonl":
		opts := loom.DefaultJSONWriteOptions()
		opts.Format = loom.JSONLines
		return l.WriteJSON(fname, opts)
	default:
		return l.WriteJSON(fname)
	}
}

func (a *Action) readList(fname string) *loom.List {
	l, err := readList(fname)
	if err != nil {
		a.exit(fmt.Errorf("%s: %w", fname, err))
	}
	a.logger.Debug("read list", "file", fname, "rows", l.Len(), "type", l.ListType().String())
	return l
}

// parseScalar reads a command line value as JSON, falling back to the raw
// string. Integral numbers become int64.
func parseScalar(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	}
	return v
}

func splitAssign(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	return name, value, nil
}

// ============================================================================
// Output
// ============================================================================

func showJSON(v interface{}) {
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	e.Encode(v)
}

func (a *Action) showList(l *loom.List) {
	if a.getString("format") == "json" {
		opts := loom.DefaultJSONWriteOptions()
		opts.Indent = "  "
		if err := l.WriteJSONToWriter(os.Stdout, opts); err != nil {
			a.exit(err)
		}
		return
	}
	l.Format(os.Stdout)
}

func (a *Action) showGroups(groups []*loom.GroupResult) {
	if a.getString("format") == "json" {
		out := make([]map[string]any, len(groups))
		for i, g := range groups {
			out[i] = map[string]any{"key": g.Key, "members": g.Members.Values()}
		}
		showJSON(out)
		return
	}
	for i, g := range groups {
		key, _ := json.Marshal(g.Key)
		fmt.Printf("group %d: %s\n", i, key)
		g.Members.Format(os.Stdout)
	}
}

func (a *Action) showDatum(d loom.Datum) {
	switch {
	case d.Shape() == loom.ShapeColumn:
		a.showList(d.List())
	case d.Value() == nil:
		fmt.Println("null")
	default:
		if groups, ok := d.Value().([]*loom.GroupResult); ok {
			a.showGroups(groups)
			return
		}
		showJSON(d.Value())
	}
}

// ============================================================================
// Registry commands
// ============================================================================

func listOps(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	defer action.Close()

	r := action.Registry()
	for _, name := range r.Ops() {
		def, _ := r.Lookup(name)
		if action.getString("format") == "json" {
			fmt.Println(name)
			continue
		}
		fmt.Printf("%-24s %s\n", name, def.Doc)
	}
}

func describeOp(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	defer action.Close()

	def, ok := action.Registry().Lookup(args[0])
	if !ok {
		action.exit(&loom.OpError{Op: args[0], Err: loom.ErrUnknownOp})
	}

	desc := describe(def)
	if action.getString("format") == "json" {
		showJSON(desc)
		return
	}

	fmt.Printf("%s\n  %s\n\nparameters:\n", desc.Name, desc.Doc)
	for _, p := range desc.Params {
		fmt.Printf("  %-12s %s\n", p.Name, p.Constraint)
	}
	fmt.Println("\nvariants:")
	for _, v := range desc.Variants {
		fmt.Printf("  (%s)\n", v)
	}
	if desc.NullTolerant {
		fmt.Println("\nnull rows are passed to the implementation")
	}
}

type paramDescription struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

type opDescription struct {
	Name         string             `json:"name"`
	Doc          string             `json:"doc"`
	Params       []paramDescription `json:"params"`
	Variants     []string           `json:"variants"`
	NullTolerant bool               `json:"nullTolerant"`
}

// describe summarizes an op definition, variants sorted
func describe(def *loom.OpDef) opDescription {
	desc := opDescription{Name: def.Name, Doc: def.Doc, NullTolerant: def.NullTolerant}
	for _, p := range def.Params {
		desc.Params = append(desc.Params, paramDescription{Name: p.Name, Constraint: p.Constraint.String()})
	}
	for v := range def.Impls {
		desc.Variants = append(desc.Variants, string(v))
	}
	sort.Strings(desc.Variants)
	return desc
}

func invokeOp(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	defer action.Close()

	inputs := make(map[string]loom.Datum)
	for _, s := range action.getStringArray("column") {
		name, fname, err := splitAssign(s)
		if err != nil {
			action.exit(err)
		}
		inputs[name] = loom.Column(action.readList(fname))
	}
	for _, s := range action.getStringArray("arg") {
		name, value, err := splitAssign(s)
		if err != nil {
			action.exit(err)
		}
		inputs[name] = loom.Scalar(parseScalar(value))
	}

	result, err := action.Registry().InvokeContext(action.Context(), args[0], inputs)
	if err != nil {
		action.exit(err)
	}
	action.showDatum(result)
}

// ============================================================================
// Structural commands
// ============================================================================

// structural runs a single-operand list op over every file argument
func structural(op string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		action := newAction(cmd)
		defer action.Close()

		calls := make([]loom.Invocation, len(args))
		for i, fname := range args {
			calls[i] = loom.Invocation{
				Op:   op,
				Args: map[string]loom.Datum{"self": loom.Column(action.readList(fname))},
			}
		}

		results, err := action.Registry().InvokeBatch(action.Context(), calls)
		if err != nil {
			action.exit(err)
		}
		for i, d := range results {
			if len(results) > 1 {
				fmt.Printf("%s:\n", args[i])
			}
			action.showDatum(d)
		}
	}
}

// fieldKey builds a key function selecting the named fields of a record
func fieldKey(elem *loom.Type, names []string) (loom.Func, error) {
	rec := loom.NonNone(loom.Untagged(elem))
	if rec.Kind() != loom.KindRecord {
		return loom.Func{}, fmt.Errorf("groupby needs a list of records, have %s", loom.ListOf(elem))
	}
	fields := make([]loom.Field, len(names))
	for i, name := range names {
		t, ok := rec.Field(name)
		if !ok {
			return loom.Func{}, fmt.Errorf("no field %q in %s", name, rec)
		}
		fields[i] = loom.Field{Name: name, Type: t}
	}
	return loom.NewFunc(elem, loom.RecordOf(fields...), func(v any) (any, error) {
		row, _ := v.(map[string]any)
		key := make(map[string]any, len(names))
		for _, name := range names {
			key[name] = row[name]
		}
		return key, nil
	}), nil
}

func groupBy(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	defer action.Close()

	l := action.readList(args[0])
	key, err := fieldKey(l.Type(), action.getStringArray("field"))
	if err != nil {
		action.exit(err)
	}

	result, err := action.Registry().InvokeContext(action.Context(), "List-groupby", map[string]loom.Datum{
		"self": loom.Column(l),
		"by":   loom.Scalar(key),
	})
	if err != nil {
		action.exit(err)
	}
	action.showDatum(result)
}

func convert(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	defer action.Close()

	l := action.readList(args[0])
	if err := writeList(l, args[1]); err != nil {
		action.exit(fmt.Errorf("%s: %w", args[1], err))
	}
	action.logger.Info("converted", "source", args[0], "target", args[1], "rows", l.Len())
}
