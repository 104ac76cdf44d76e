package loom

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
)

// ============================================================================
// Provenance
// ============================================================================

// Provenance is an opaque back-reference to where a list's data originated.
// It is carried along but never dereferenced or compared by this package.
type Provenance struct {
	id     uuid.UUID
	source string
}

// NewProvenance returns a fresh provenance handle for data read from source
func NewProvenance(source string) Provenance {
	return Provenance{id: uuid.New(), source: source}
}

// ID returns the unique identifier of the handle
func (p Provenance) ID() uuid.UUID {
	return p.id
}

// Source returns the description the handle was created with
func (p Provenance) Source() string {
	return p.source
}

// IsZero returns true for the zero handle
func (p Provenance) IsZero() bool {
	return p.id == uuid.Nil
}

func (p Provenance) String() string {
	if p.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s@%s", p.source, p.id)
}

// ============================================================================
// List
// ============================================================================

// List is an immutable Columnar List: a logical element type, an Arrow array
// holding one value per row, a provenance handle and side-channel tags.
// Every transformation returns a new List; the array is shared, never mutated.
type List struct {
	elem    *Type
	arr     arrow.Array
	prov    Provenance
	tags    Tags
	rowTags []Tags // nil when no row carries tags
}

// NewList builds a List of element type elem from Go values.
// Every value must be assignable to elem; null is only accepted at nullable positions.
func NewList(elem *Type, values []any, prov Provenance) (*List, error) {
	return NewListWithAllocator(memory.DefaultAllocator, elem, values, prov)
}

// NewListWithAllocator is NewList with an explicit Arrow allocator
func NewListWithAllocator(mem memory.Allocator, elem *Type, values []any, prov Provenance) (*List, error) {
	want := stripTags(elem)
	for i, v := range values {
		if !conforms(want, v) {
			return nil, &TypeMismatchError{Expected: elem.String(), Actual: TypeOf(v), Row: i}
		}
	}

	arr, err := buildArray(mem, elem, values)
	if err != nil {
		return nil, err
	}
	return &List{elem: elem, arr: arr, prov: prov}, nil
}

// MustNewList is NewList that panics on error, for fixtures and examples
func MustNewList(elem *Type, values ...any) *List {
	l, err := NewList(elem, values, Provenance{})
	if err != nil {
		panic(err)
	}
	return l
}

// FromArrow wraps an existing Arrow array as a List of element type elem.
// When the array's physical type differs from elem's layout the values are
// copied into a new array.
func FromArrow(elem *Type, arr arrow.Array, prov Provenance) (*List, error) {
	want, err := elem.ArrowType()
	if err != nil {
		return nil, err
	}
	if arrow.TypeEqual(want, arr.DataType()) {
		arr.Retain()
		return &List{elem: elem, arr: arr, prov: prov}, nil
	}

	values := make([]any, arr.Len())
	for i := range values {
		values[i] = valueAt(arr, i)
	}
	return NewList(elem, values, prov)
}

func buildArray(mem memory.Allocator, elem *Type, values []any) (arrow.Array, error) {
	b, err := newBuilder(mem, elem)
	if err != nil {
		return nil, err
	}
	defer b.Release()

	b.Reserve(len(values))
	for i, v := range values {
		if err := appendValue(b, v); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.NewArray(), nil
}

// derive returns a list sharing l's provenance and value tags with new data
func (l *List) derive(elem *Type, arr arrow.Array, rowTags []Tags) *List {
	return &List{elem: elem, arr: arr, prov: l.prov, tags: l.tags, rowTags: compactRowTags(rowTags)}
}

// Len returns the number of rows
func (l *List) Len() int {
	return l.arr.Len()
}

// Type returns the logical element type
func (l *List) Type() *Type {
	return l.elem
}

// ListType returns the type of the list as a nested value, List(elem)
func (l *List) ListType() *Type {
	return ListOf(l.elem)
}

// ColumnType returns the type of the list as a dispatch operand, Column(elem)
func (l *List) ColumnType() *Type {
	return ColumnOf(l.elem)
}

// Array returns the underlying Arrow array. It must not be mutated.
func (l *List) Array() arrow.Array {
	return l.arr
}

// Provenance returns the handle identifying where the data came from
func (l *List) Provenance() Provenance {
	return l.prov
}

// IsNull returns true if row i is null
func (l *List) IsNull(i int) bool {
	return l.arr.IsNull(i)
}

// Value returns row i as a Go value
func (l *List) Value(i int) any {
	if i < 0 || i >= l.arr.Len() {
		return nil
	}
	return valueAt(l.arr, i)
}

// Values returns every row as Go values
func (l *List) Values() []any {
	out := make([]any, l.arr.Len())
	for i := range out {
		out[i] = valueAt(l.arr, i)
	}
	return out
}

// Slice returns rows [i, j) as a new List
func (l *List) Slice(i, j int) *List {
	var rowTags []Tags
	if l.rowTags != nil {
		rowTags = l.rowTags[i:j]
	}
	return l.derive(l.elem, array.NewSlice(l.arr, int64(i), int64(j)), rowTags)
}

// Equal reports whether two lists hold the same values in the same order.
// Types, provenance and tags are not compared.
func (l *List) Equal(o *List) bool {
	if l.Len() != o.Len() {
		return false
	}
	for i := 0; i < l.Len(); i++ {
		a, err := canonicalKey(l.Value(i))
		if err != nil {
			return false
		}
		b, err := canonicalKey(o.Value(i))
		if err != nil || a != b {
			return false
		}
	}
	return true
}
