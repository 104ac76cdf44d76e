package loom

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// JSONFormat specifies the JSON layout of a list
type JSONFormat int

const (
	// JSONRecords is an array with one element per row: [{"a":1}, {"a":2}]
	JSONRecords JSONFormat = iota
	// JSONLines is one JSON value per line
	JSONLines
	// JSONColumns is an object of field arrays for lists of records: {"a":[1,2]}
	JSONColumns
)

// JSONReadOptions configures JSON reading behavior
type JSONReadOptions struct {
	Format JSONFormat

	// ElemType forces the element type instead of inferring it from the rows
	ElemType *Type

	// Source names the data in the list's provenance (default: the file path)
	Source string
}

// DefaultJSONReadOptions returns default JSON reading options
func DefaultJSONReadOptions() JSONReadOptions {
	return JSONReadOptions{
		Format: JSONRecords,
	}
}

// ReadJSON reads a JSON file into a List
func ReadJSON(path string, opts ...JSONReadOptions) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	opt := DefaultJSONReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Source == "" {
		opt.Source = path
	}
	return ReadJSONFromReader(f, opt)
}

// ReadJSONFromReader reads JSON data from an io.Reader into a List. Integers
// stay Int, other numbers become Number. Without an explicit ElemType the
// element type unifies the types of all rows.
func ReadJSONFromReader(r io.Reader, opts ...JSONReadOptions) (*List, error) {
	opt := DefaultJSONReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	var rows []any
	switch opt.Format {
	case JSONRecords:
		rows, err = decodeJSONArray(data)
	case JSONLines:
		rows, err = decodeJSONLines(data)
	case JSONColumns:
		rows, err = decodeJSONColumns(data)
	default:
		return nil, fmt.Errorf("unknown JSON format: %d", opt.Format)
	}
	if err != nil {
		return nil, err
	}

	elem := opt.ElemType
	if elem == nil {
		elem = inferRowsType(rows)
	}
	prov := NewProvenance(opt.Source)
	if opt.Source == "" {
		prov = NewProvenance("json")
	}
	return NewList(elem, rows, prov)
}

func newJSONDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func decodeJSONArray(data []byte) ([]any, error) {
	var raw []any
	if err := newJSONDecoder(data).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	for i, v := range raw {
		raw[i] = normalizeJSON(v)
	}
	return raw, nil
}

func decodeJSONLines(data []byte) ([]any, error) {
	var rows []any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var v any
		if err := newJSONDecoder(b).Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line %d: %w", line, err)
		}
		rows = append(rows, normalizeJSON(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return rows, nil
}

func decodeJSONColumns(data []byte) ([]any, error) {
	var cols map[string][]any
	if err := newJSONDecoder(data).Decode(&cols); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	height := -1
	names := make([]string, 0, len(cols))
	for name, values := range cols {
		if height >= 0 && len(values) != height {
			return nil, &LengthMismatchError{Param: name, Left: height, Right: len(values)}
		}
		height = len(values)
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]any, max(height, 0))
	for i := range rows {
		row := make(map[string]any, len(names))
		for _, name := range names {
			row[name] = normalizeJSON(cols[name][i])
		}
		rows[i] = row
	}
	return rows, nil
}

// normalizeJSON turns json.Number into int64 or float64, recursively
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i, item := range x {
			x[i] = normalizeJSON(item)
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeJSON(item)
		}
		return x
	default:
		return v
	}
}

// ============================================================================
// Type inference
// ============================================================================

// inferRowsType unifies the types of every row
func inferRowsType(rows []any) *Type {
	var t *Type
	for _, row := range rows {
		t = unifyTypes(t, inferValueType(row))
	}
	return settleType(t)
}

// inferValueType is TypeOf, except that an empty list has an unknown (nil)
// element type which unification fills in from its siblings.
func inferValueType(v any) *Type {
	switch x := v.(type) {
	case []any:
		var elem *Type
		for _, item := range x {
			elem = unifyTypes(elem, inferValueType(item))
		}
		return &Type{kind: KindList, elem: elem}
	case map[string]any:
		names := make([]string, 0, len(x))
		for name := range x {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]Field, len(names))
		for i, name := range names {
			fields[i] = Field{Name: name, Type: inferValueType(x[name])}
		}
		return RecordOf(fields...)
	default:
		return TypeOf(v)
	}
}

// unifyTypes returns a type describing values of both a and b. Records merge
// their fields (fields missing on one side become Optional), lists unify
// their elements, Int and Number widen to Number and null makes the result
// Optional.
func unifyTypes(a, b *Type) *Type {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.kind == KindNone:
		return Optional(b)
	case b.kind == KindNone:
		return Optional(a)
	}

	nullable := a.kind == KindOptional || b.kind == KindOptional
	a, b = NonNone(a), NonNone(b)

	var out *Type
	switch {
	case a.kind == KindRecord && b.kind == KindRecord:
		out = unifyRecords(a, b)
	case a.kind == KindList && b.kind == KindList:
		out = &Type{kind: KindList, elem: unifyTypes(a.elem, b.elem)}
	case (a.kind == KindInt || a.kind == KindNumber) && (b.kind == KindInt || b.kind == KindNumber):
		if a.kind == KindInt && b.kind == KindInt {
			out = Int
		} else {
			out = Number
		}
	case a.Equal(b):
		out = a
	default:
		out = UnionOf(a, b)
	}
	if nullable {
		return Optional(out)
	}
	return out
}

func unifyRecords(a, b *Type) *Type {
	var fields []Field
	for _, f := range a.fields {
		if bt, ok := b.Field(f.Name); ok {
			fields = append(fields, Field{Name: f.Name, Type: unifyTypes(f.Type, bt)})
		} else {
			fields = append(fields, Field{Name: f.Name, Type: optionalOrUnknown(f.Type)})
		}
	}
	for _, f := range b.fields {
		if _, ok := a.Field(f.Name); !ok {
			fields = append(fields, Field{Name: f.Name, Type: optionalOrUnknown(f.Type)})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return RecordOf(fields...)
}

func optionalOrUnknown(t *Type) *Type {
	if t == nil {
		return nil
	}
	return Optional(t)
}

// settleType replaces unknown element types left by empty lists with None
func settleType(t *Type) *Type {
	if t == nil {
		return None
	}
	switch t.kind {
	case KindOptional:
		return Optional(settleType(t.elem))
	case KindList:
		return ListOf(settleType(t.elem))
	case KindRecord:
		fields := make([]Field, len(t.fields))
		for i, f := range t.fields {
			fields[i] = Field{Name: f.Name, Type: settleType(f.Type)}
		}
		return RecordOf(fields...)
	case KindUnion:
		members := make([]*Type, len(t.members))
		for i, m := range t.members {
			members[i] = settleType(m)
		}
		return UnionOf(members...)
	default:
		return t
	}
}

// ============================================================================
// Writing
// ============================================================================

// JSONWriteOptions configures JSON writing behavior
type JSONWriteOptions struct {
	Format JSONFormat // Output format
	Indent string     // Indent string (default "", no indent)
}

// DefaultJSONWriteOptions returns default JSON writing options
func DefaultJSONWriteOptions() JSONWriteOptions {
	return JSONWriteOptions{
		Format: JSONRecords,
		Indent: "",
	}
}

// WriteJSON writes a List to a JSON file
func (l *List) WriteJSON(path string, opts ...JSONWriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return l.WriteJSONToWriter(f, opts...)
}

// WriteJSONToWriter writes a List to an io.Writer
func (l *List) WriteJSONToWriter(w io.Writer, opts ...JSONWriteOptions) error {
	opt := DefaultJSONWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	encoder := json.NewEncoder(w)
	if opt.Indent != "" {
		encoder.SetIndent("", opt.Indent)
	}

	switch opt.Format {
	case JSONRecords:
		return encoder.Encode(l.Values())
	case JSONLines:
		for i := 0; i < l.Len(); i++ {
			if err := encoder.Encode(l.Value(i)); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	case JSONColumns:
		rec := NonNone(Untagged(l.elem))
		if rec.kind != KindRecord {
			return errors.New("JSONColumns requires a list of records")
		}
		cols := make(map[string][]any, len(rec.fields))
		for _, f := range rec.fields {
			cols[f.Name] = make([]any, l.Len())
		}
		for i := 0; i < l.Len(); i++ {
			row, _ := l.Value(i).(map[string]any)
			for _, f := range rec.fields {
				cols[f.Name][i] = row[f.Name]
			}
		}
		return encoder.Encode(cols)
	default:
		return fmt.Errorf("unknown JSON format: %d", opt.Format)
	}
}
