package loom

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
)

// ============================================================================
// Typed callables
// ============================================================================

// Func is a typed callable passed to structural operations
type Func struct {
	In  *Type
	Out *Type
	Fn  func(v any) (any, error)
}

// NewFunc returns a callable from in to out
func NewFunc(in, out *Type, fn func(v any) (any, error)) Func {
	return Func{In: in, Out: out, Fn: fn}
}

// Type returns Function(In) -> Out
func (f Func) Type() *Type {
	return FunctionOf(f.In, f.Out)
}

// call applies the function and checks its result against Out
func (f Func) call(op string, row int, v any) (any, error) {
	r, err := f.Fn(v)
	if err != nil {
		return nil, fmt.Errorf("%s: row %d: %w", op, row, err)
	}
	if !conforms(stripTags(f.Out), r) {
		return nil, &TypeMismatchError{Op: op, Expected: f.Out.String(), Actual: TypeOf(r), Row: row}
	}
	return r, nil
}

// ============================================================================
// Groups
// ============================================================================

// GroupResult is one partition produced by GroupBy. Members carries the key
// as its groupKey tag.
type GroupResult struct {
	Members *List
	Key     any
	KeyType *Type
}

// Type returns GroupResult(List(row), key)
func (g *GroupResult) Type() *Type {
	return GroupResultOf(g.Members.ListType(), g.KeyType)
}

// GroupKey reads the key back off the members' tags
func (g *GroupResult) GroupKey() (any, error) {
	return g.Members.Tag(TagGroupKey)
}

// canonicalKey encodes a value so that structurally equal values produce
// identical keys. Map keys are emitted in sorted order.
func canonicalKey(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v), nil
	}
	return string(b), nil
}

// take returns the rows at idx, in that order, keeping their row tags
func (l *List) take(mem memory.Allocator, idx []int) (*List, error) {
	values := make([]any, len(idx))
	var rowTags []Tags
	for j, i := range idx {
		values[j] = l.Value(i)
		if l.rowTags != nil {
			rowTags = append(rowTags, l.rowTags[i])
		}
	}
	arr, err := buildArray(mem, l.elem, values)
	if err != nil {
		return nil, err
	}
	return l.derive(l.elem, arr, rowTags), nil
}

// ============================================================================
// Unnest
// ============================================================================

// unnestedType replaces every list-valued field of a record by its element type
func unnestedType(rec *Type) (*Type, []bool) {
	fields := rec.Fields()
	isList := make([]bool, len(fields))
	for i, f := range fields {
		if inner := NonNone(Untagged(f.Type)); inner.kind == KindList {
			fields[i] = Field{Name: f.Name, Type: inner.elem}
			isList[i] = true
		}
	}
	return RecordOf(fields...), isList
}

// Unnest expands a list of records whose fields include lists. Each source
// row produces one output row per index up to the shortest of its list
// fields; scalar fields are repeated. Null rows and null list fields produce
// no output rows.
func Unnest(mem memory.Allocator, l *List) (*List, error) {
	rec := NonNone(Untagged(l.elem))
	if rec.kind != KindRecord {
		return nil, &TypeMismatchError{Op: "unnest", Expected: "List(Record)", Actual: l.ListType(), Row: -1}
	}
	outElem, isList := unnestedType(rec)
	hasList := false
	for _, b := range isList {
		hasList = hasList || b
	}
	if !hasList {
		return l, nil
	}

	fields := rec.fields
	var values []any
	var rowTags []Tags
	for i := 0; i < l.Len(); i++ {
		row, ok := l.Value(i).(map[string]any)
		if !ok {
			continue
		}

		n := -1
		lists := make([][]any, len(fields))
		for f, field := range fields {
			if !isList[f] {
				continue
			}
			items, _ := asSlice(row[field.Name])
			lists[f] = items
			if n < 0 || len(items) < n {
				n = len(items)
			}
		}

		for j := 0; j < n; j++ {
			out := make(map[string]any, len(fields))
			for f, field := range fields {
				if isList[f] {
					out[field.Name] = lists[f][j]
				} else {
					out[field.Name] = row[field.Name]
				}
			}
			values = append(values, out)
			rowTags = append(rowTags, l.RowTags(i))
		}
	}

	arr, err := buildArray(mem, outElem, values)
	if err != nil {
		return nil, err
	}
	return l.derive(outElem, arr, rowTags), nil
}

// ============================================================================
// GroupBy
// ============================================================================

// GroupBy partitions the rows of l by the key computed for each row. Groups
// appear in first-seen key order and keep the original row order. Keys are
// compared structurally.
func GroupBy(mem memory.Allocator, l *List, key Func) ([]*GroupResult, error) {
	type group struct {
		key  any
		rows []int
	}
	index := make(map[string]int)
	var groups []*group

	for i := 0; i < l.Len(); i++ {
		k, err := key.call("groupby", i, l.Value(i))
		if err != nil {
			return nil, err
		}
		ck, err := canonicalKey(k)
		if err != nil {
			return nil, err
		}
		g, ok := index[ck]
		if !ok {
			g = len(groups)
			index[ck] = g
			groups = append(groups, &group{key: k})
		}
		groups[g].rows = append(groups[g].rows, i)
	}

	out := make([]*GroupResult, 0, len(groups))
	for _, g := range groups {
		members, err := l.take(mem, g.rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &GroupResult{
			Members: members.WithTag(TagGroupKey, g.key),
			Key:     g.key,
			KeyType: key.Out,
		})
	}
	return out, nil
}

// MapGroups applies fn to every group, giving one row per group
func MapGroups(mem memory.Allocator, groups []*GroupResult, fn Func) (*List, error) {
	values := make([]any, len(groups))
	for i, g := range groups {
		v, err := fn.call("map", i, g)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	arr, err := buildArray(mem, fn.Out, values)
	if err != nil {
		return nil, err
	}
	out := &List{elem: fn.Out, arr: arr}
	if len(groups) > 0 {
		out.prov = groups[0].Members.prov
	}
	return out, nil
}

// ============================================================================
// Flatten / Unique
// ============================================================================

// Flatten concatenates the inner lists of a list of lists. Null rows
// contribute nothing; every element inherits its outer row's tags.
// A list whose elements are not lists is returned unchanged.
func Flatten(mem memory.Allocator, l *List) (*List, error) {
	inner := NonNone(Untagged(l.elem))
	if inner.kind != KindList {
		return l, nil
	}

	var values []any
	var rowTags []Tags
	for i := 0; i < l.Len(); i++ {
		items, ok := asSlice(l.Value(i))
		if !ok {
			continue
		}
		tags := l.RowTags(i)
		for _, item := range items {
			values = append(values, item)
			rowTags = append(rowTags, tags)
		}
	}

	arr, err := buildArray(mem, inner.elem, values)
	if err != nil {
		return nil, err
	}
	return l.derive(inner.elem, arr, rowTags), nil
}

// Unique keeps the first occurrence of every distinct value, in order.
// Equality is structural and ignores tags.
func Unique(mem memory.Allocator, l *List) (*List, error) {
	seen := make(map[string]struct{}, l.Len())
	keep := make([]int, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		k, err := canonicalKey(l.Value(i))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == l.Len() {
		return l, nil
	}
	return l.take(mem, keep)
}

// ============================================================================
// Mapping
// ============================================================================

// replaceLeaf swaps the innermost element type of a nested list type for
// leaf, keeping every level's nullability.
func replaceLeaf(t, leaf *Type) *Type {
	inner := NonNone(Untagged(t))
	var out *Type
	if inner.kind == KindList {
		out = ListOf(replaceLeaf(inner.elem, leaf))
	} else {
		out = leaf
	}
	if t.Nullable() {
		return Optional(out)
	}
	return out
}

// MapEach applies fn to every non-null innermost value, keeping the
// nesting depth. List(List(T)) becomes List(List(fn.Out)).
func MapEach(mem memory.Allocator, l *List, fn Func) (*List, error) {
	outElem := replaceLeaf(l.elem, fn.Out)

	var walk func(row int, v any) (any, error)
	walk = func(row int, v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for j, item := range items {
				r, err := walk(row, item)
				if err != nil {
					return nil, err
				}
				out[j] = r
			}
			return out, nil
		}
		return fn.call("mapEach", row, v)
	}

	values := make([]any, l.Len())
	for i := range values {
		v, err := walk(i, l.Value(i))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	arr, err := buildArray(mem, outElem, values)
	if err != nil {
		return nil, err
	}
	return l.derive(outElem, arr, l.rowTags), nil
}

// mapOutElem is the element type of Map's result for an input element type
func mapOutElem(in, out *Type) *Type {
	if in.Nullable() {
		return Optional(out)
	}
	return out
}

// Map applies fn to every non-null row. Null rows stay null and tags survive.
func Map(mem memory.Allocator, l *List, fn Func) (*List, error) {
	outElem := mapOutElem(l.elem, fn.Out)
	values := make([]any, l.Len())
	for i := range values {
		v := l.Value(i)
		if v == nil {
			continue
		}
		r, err := fn.call("map", i, v)
		if err != nil {
			return nil, err
		}
		values[i] = r
	}
	arr, err := buildArray(mem, outElem, values)
	if err != nil {
		return nil, err
	}
	return l.derive(outElem, arr, l.rowTags), nil
}

// ============================================================================
// Concat
// ============================================================================

// concatElem is the element type of a concatenation: the union of the
// non-nil inputs' element types
func concatElem(elems []*Type) *Type {
	var types []*Type
	for _, t := range elems {
		if t != nil {
			types = append(types, t)
		}
	}
	return UnionOf(types...)
}

// Concat appends lists in argument order. Nil lists contribute no rows.
// The result's element type is the union of the inputs' element types,
// which must share a physical layout.
func Concat(mem memory.Allocator, lists ...*List) (*List, error) {
	var present []*List
	elems := make([]*Type, 0, len(lists))
	for _, l := range lists {
		if l == nil {
			continue
		}
		present = append(present, l)
		elems = append(elems, l.elem)
	}
	elem := concatElem(elems)
	dt, err := elem.ArrowType()
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	if len(present) == 0 {
		return &List{elem: elem, arr: allNull(mem, dt, 0)}, nil
	}

	var rowTags []Tags
	tagged := false
	arrs := make([]arrow.Array, len(present))
	sameLayout := true
	for i, l := range present {
		arrs[i] = l.arr
		sameLayout = sameLayout && arrow.TypeEqual(dt, l.arr.DataType())
		tagged = tagged || l.rowTags != nil
	}
	if tagged {
		for _, l := range present {
			for i := 0; i < l.Len(); i++ {
				rowTags = append(rowTags, l.RowTags(i))
			}
		}
	}

	var arr arrow.Array
	if sameLayout {
		arr, err = array.Concatenate(arrs, orDefault(mem))
	} else {
		var values []any
		for _, l := range present {
			values = append(values, l.Values()...)
		}
		arr, err = buildArray(mem, elem, values)
	}
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	return present[0].derive(elem, arr, rowTags), nil
}

// ConcatRows concatenates the rows of a list of lists, treating null rows
// as empty lists.
func ConcatRows(mem memory.Allocator, l *List) (*List, error) {
	inner := NonNone(Untagged(l.elem))
	if inner.kind != KindList {
		return nil, &TypeMismatchError{Op: "concat", Expected: "List(Optional(List(Any)))", Actual: l.ListType(), Row: -1}
	}
	var parts []*List
	for i := 0; i < l.Len(); i++ {
		items, ok := asSlice(l.Value(i))
		if !ok {
			continue
		}
		part, err := NewListWithAllocator(mem, inner.elem, items, l.prov)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		elem := concatElem([]*Type{inner.elem})
		arr, err := buildArray(mem, elem, nil)
		if err != nil {
			return nil, err
		}
		return l.derive(elem, arr, nil), nil
	}
	out, err := Concat(mem, parts...)
	if err != nil {
		return nil, err
	}
	return l.derive(out.elem, out.arr, nil), nil
}
