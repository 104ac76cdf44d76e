package loom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Kind identifies the shape of a logical Type
type Kind uint8

const (
	// Top type, accepts every value
	KindAny Kind = iota
	KindNone

	// Primitive types
	KindBoolean
	KindInt
	KindNumber
	KindString

	// Composite types
	KindOptional
	KindList
	KindRecord
	KindUnion
	KindTagged

	// Dispatch-only types
	KindColumn      // a whole Columnar List, as opposed to a scalar
	KindGroupResult // one partition produced by groupby
	KindFunction    // a typed callable passed as an argument
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindAny:
		return "Any"
	case KindNone:
		return "None"
	case KindBoolean:
		return "Boolean"
	case KindInt:
		return "Int"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindOptional:
		return "Optional"
	case KindList:
		return "List"
	case KindRecord:
		return "Record"
	case KindUnion:
		return "Union"
	case KindTagged:
		return "Tagged"
	case KindColumn:
		return "Column"
	case KindGroupResult:
		return "GroupResult"
	case KindFunction:
		return "Function"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// IsPrimitive returns true for Boolean, Int, Number and String
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindBoolean, KindInt, KindNumber, KindString:
		return true
	default:
		return false
	}
}

// ============================================================================
// Type
// ============================================================================

// Field is a named member of a record type
type Field struct {
	Name string
	Type *Type
}

// Type is an immutable, recursive logical type descriptor.
// Types are built with the constructors below and compared with Equal,
// never with ==.
type Type struct {
	kind Kind

	// elem is the inner type of Optional, List, Column and Tagged, the
	// members list type of GroupResult and the output of Function.
	elem *Type

	// meta is the tag type of Tagged, the key type of GroupResult and the
	// input of Function.
	meta *Type

	fields  []Field
	members []*Type
}

// Primitive types
var (
	Any     = &Type{kind: KindAny}
	None    = &Type{kind: KindNone}
	Boolean = &Type{kind: KindBoolean}
	Int     = &Type{kind: KindInt}
	Number  = &Type{kind: KindNumber}
	String  = &Type{kind: KindString}
)

// Optional returns the type of values that are either t or null.
// Optional is idempotent, and None, Any and Optional types are returned unchanged.
func Optional(t *Type) *Type {
	switch t.kind {
	case KindNone, KindAny, KindOptional:
		return t
	}
	return &Type{kind: KindOptional, elem: t}
}

// ListOf returns the type of a list whose elements are of type elem
func ListOf(elem *Type) *Type {
	return &Type{kind: KindList, elem: elem}
}

// RecordOf returns a record type with the given fields in order
func RecordOf(fields ...Field) *Type {
	return &Type{kind: KindRecord, fields: append([]Field{}, fields...)}
}

// TaggedOf returns the type of a value of type inner carrying tags described by meta
func TaggedOf(meta, inner *Type) *Type {
	return &Type{kind: KindTagged, meta: meta, elem: inner}
}

// ColumnOf returns the type of a Columnar List with element type elem
func ColumnOf(elem *Type) *Type {
	return &Type{kind: KindColumn, elem: elem}
}

// GroupResultOf returns the type of a group whose members have list type members
// and whose key has type key
func GroupResultOf(members, key *Type) *Type {
	return &Type{kind: KindGroupResult, elem: members, meta: key}
}

// FunctionOf returns the type of a callable taking in and returning out
func FunctionOf(in, out *Type) *Type {
	return &Type{kind: KindFunction, meta: in, elem: out}
}

// UnionOf returns the union of the given types.
// Nested unions are flattened, duplicates removed, a single member collapses to
// itself and a None member turns the result into an Optional.
func UnionOf(types ...*Type) *Type {
	var members []*Type
	nullable := false

	var add func(t *Type)
	add = func(t *Type) {
		switch t.kind {
		case KindUnion:
			for _, m := range t.members {
				add(m)
			}
			return
		case KindOptional:
			nullable = true
			add(t.elem)
			return
		case KindNone:
			nullable = true
			return
		}
		for _, m := range members {
			if m.Equal(t) {
				return
			}
		}
		members = append(members, t)
	}

	for _, t := range types {
		if t == nil {
			continue
		}
		if t.kind == KindAny {
			return Any
		}
		add(t)
	}

	var result *Type
	switch len(members) {
	case 0:
		return None
	case 1:
		result = members[0]
	default:
		result = &Type{kind: KindUnion, members: members}
	}
	if nullable {
		return Optional(result)
	}
	return result
}

// Kind returns the kind of the type
func (t *Type) Kind() Kind {
	return t.kind
}

// Elem returns the inner type of Optional, List, Column and Tagged types,
// the members type of a GroupResult and the output type of a Function.
func (t *Type) Elem() *Type {
	return t.elem
}

// Meta returns the tag type of a Tagged type, the key type of a GroupResult
// and the input type of a Function.
func (t *Type) Meta() *Type {
	return t.meta
}

// Fields returns the fields of a record type
func (t *Type) Fields() []Field {
	return append([]Field{}, t.fields...)
}

// Field returns the type of a record field by name
func (t *Type) Field(name string) (*Type, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Members returns the members of a union type
func (t *Type) Members() []*Type {
	return append([]*Type{}, t.members...)
}

// Nullable returns true if null is a valid value of the type
func (t *Type) Nullable() bool {
	switch t.kind {
	case KindAny, KindNone, KindOptional:
		return true
	case KindTagged:
		return t.elem.Nullable()
	default:
		return false
	}
}

// String returns a string representation of the type
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.kind {
	case KindOptional, KindList, KindColumn:
		return fmt.Sprintf("%s(%s)", t.kind, t.elem)
	case KindTagged, KindGroupResult:
		return fmt.Sprintf("%s(%s, %s)", t.kind, t.meta, t.elem)
	case KindFunction:
		return fmt.Sprintf("Function(%s) -> %s", t.meta, t.elem)
	case KindRecord:
		parts := make([]string, len(t.fields))
		for i, f := range t.fields {
			parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
		}
		return "Record{" + strings.Join(parts, ", ") + "}"
	case KindUnion:
		parts := make([]string, len(t.members))
		for i, m := range t.members {
			parts[i] = m.String()
		}
		return "Union(" + strings.Join(parts, " | ") + ")"
	default:
		return t.kind.String()
	}
}

// Equal reports whether two types are structurally identical.
// Record fields are compared by name, union members as a set.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t == o {
		return true
	}
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindOptional, KindList, KindColumn:
		return t.elem.Equal(o.elem)
	case KindTagged, KindGroupResult, KindFunction:
		return t.meta.Equal(o.meta) && t.elem.Equal(o.elem)
	case KindRecord:
		if len(t.fields) != len(o.fields) {
			return false
		}
		for _, f := range t.fields {
			of, ok := o.Field(f.Name)
			if !ok || !f.Type.Equal(of) {
				return false
			}
		}
		return true
	case KindUnion:
		if len(t.members) != len(o.members) {
			return false
		}
		for _, m := range t.members {
			found := false
			for _, om := range o.members {
				if m.Equal(om) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// ============================================================================
// Assignability
// ============================================================================

// Assignable reports whether a value of type from may be used where type to
// is expected.
func Assignable(to, from *Type) bool {
	if to == nil || from == nil {
		return false
	}
	if to.kind == KindAny {
		return true
	}

	// Tags are invisible to untagged consumers.
	if from.kind == KindTagged && to.kind != KindTagged {
		return Assignable(to, from.elem)
	}
	if from.kind == KindUnion {
		for _, m := range from.members {
			if !Assignable(to, m) {
				return false
			}
		}
		return true
	}
	if from.kind == KindOptional && to.kind != KindOptional {
		return Assignable(to, None) && Assignable(to, from.elem)
	}

	switch to.kind {
	case KindNone, KindBoolean, KindInt, KindString:
		return from.kind == to.kind
	case KindNumber:
		return from.kind == KindNumber || from.kind == KindInt
	case KindOptional:
		switch from.kind {
		case KindNone:
			return true
		case KindOptional:
			return Assignable(to.elem, from.elem)
		default:
			return Assignable(to.elem, from)
		}
	case KindUnion:
		for _, m := range to.members {
			if Assignable(m, from) {
				return true
			}
		}
		return false
	case KindList, KindColumn:
		return from.kind == to.kind && Assignable(to.elem, from.elem)
	case KindRecord:
		if from.kind != KindRecord {
			return false
		}
		for _, f := range to.fields {
			ff, ok := from.Field(f.Name)
			if !ok {
				if f.Type.Nullable() {
					continue
				}
				return false
			}
			if !Assignable(f.Type, ff) {
				return false
			}
		}
		return true
	case KindTagged:
		return from.kind == KindTagged && Assignable(to.meta, from.meta) && Assignable(to.elem, from.elem)
	case KindGroupResult:
		return from.kind == KindGroupResult && Assignable(to.elem, from.elem) && Assignable(to.meta, from.meta)
	case KindFunction:
		// An Any input in the expected signature accepts callables of any
		// input type; the callee checks its input against the rows it receives.
		if from.kind != KindFunction {
			return false
		}
		inOK := to.meta.kind == KindAny || Assignable(from.meta, to.meta)
		return inOK && Assignable(to.elem, from.elem)
	}
	return false
}

// NonNone strips an Optional wrapper
func NonNone(t *Type) *Type {
	if t.kind == KindOptional {
		return t.elem
	}
	return t
}

// Untagged strips any Tagged wrappers
func Untagged(t *Type) *Type {
	for t.kind == KindTagged {
		t = t.elem
	}
	return t
}

// stripTags removes Tagged wrappers at every depth
func stripTags(t *Type) *Type {
	switch t.kind {
	case KindTagged:
		return stripTags(t.elem)
	case KindOptional:
		return Optional(stripTags(t.elem))
	case KindList:
		return ListOf(stripTags(t.elem))
	case KindRecord:
		fields := make([]Field, len(t.fields))
		for i, f := range t.fields {
			fields[i] = Field{Name: f.Name, Type: stripTags(f.Type)}
		}
		return RecordOf(fields...)
	case KindUnion:
		members := make([]*Type, len(t.members))
		for i, m := range t.members {
			members[i] = stripTags(m)
		}
		return UnionOf(members...)
	default:
		return t
	}
}

// ============================================================================
// Type inference
// ============================================================================

// TypeOf infers the logical type of a Go value.
// Maps become records with fields sorted by name.
func TypeOf(v any) *Type {
	switch x := v.(type) {
	case nil:
		return None
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Int
	case float32, float64:
		return Number
	case string:
		return String
	case []string:
		return ListOf(String)
	case []int64, []int:
		return ListOf(Int)
	case []bool:
		return ListOf(Boolean)
	case []float64:
		return ListOf(Number)
	case []any:
		elems := make([]*Type, len(x))
		for i, e := range x {
			elems[i] = TypeOf(e)
		}
		return ListOf(UnionOf(elems...))
	case map[string]any:
		names := make([]string, 0, len(x))
		for name := range x {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]Field, len(names))
		for i, name := range names {
			fields[i] = Field{Name: name, Type: TypeOf(x[name])}
		}
		return RecordOf(fields...)
	case *List:
		return ListOf(x.Type())
	case *GroupResult:
		return x.Type()
	case []*GroupResult:
		if len(x) == 0 {
			return ListOf(GroupResultOf(ListOf(None), None))
		}
		return ListOf(x[0].Type())
	case Func:
		return x.Type()
	default:
		return Any
	}
}

// conforms reports whether the Go value v is a valid value of type t.
// Unlike Assignable(t, TypeOf(v)) it accepts empty lists of any element type.
func conforms(t *Type, v any) bool {
	if t.kind == KindAny {
		return true
	}
	if v == nil {
		return t.Nullable()
	}
	inner := NonNone(Untagged(t))
	switch inner.kind {
	case KindList:
		if _, ok := v.(*List); !ok {
			if items, ok := asSlice(v); ok {
				for _, item := range items {
					if !conforms(inner.elem, item) {
						return false
					}
				}
				return true
			}
		}
	case KindRecord:
		if row, ok := v.(map[string]any); ok {
			for _, f := range inner.fields {
				if !conforms(f.Type, row[f.Name]) {
					return false
				}
			}
			return true
		}
	case KindUnion:
		for _, m := range inner.members {
			if conforms(m, v) {
				return true
			}
		}
		return false
	}
	return Assignable(t, TypeOf(v))
}

// ============================================================================
// Physical layout
// ============================================================================

// ArrowType returns the Arrow physical type used to store values of the type.
// Optional and Tagged wrappers are transparent; a union is only storable when
// all of its members share a layout (Int and Number widen to float64).
func (t *Type) ArrowType() (arrow.DataType, error) {
	switch t.kind {
	case KindNone:
		return arrow.Null, nil
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case KindInt:
		return arrow.PrimitiveTypes.Int64, nil
	case KindNumber:
		return arrow.PrimitiveTypes.Float64, nil
	case KindString:
		return arrow.BinaryTypes.String, nil
	case KindOptional, KindTagged:
		return t.elem.ArrowType()
	case KindList:
		elem, err := t.elem.ArrowType()
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	case KindRecord:
		fields := make([]arrow.Field, len(t.fields))
		for i, f := range t.fields {
			ft, err := f.Type.ArrowType()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			fields[i] = arrow.Field{Name: f.Name, Type: ft, Nullable: true}
		}
		return arrow.StructOf(fields...), nil
	case KindUnion:
		return t.unionArrowType()
	default:
		return nil, fmt.Errorf("%w: %s has no physical layout", ErrUnsupportedType, t)
	}
}

func (t *Type) unionArrowType() (arrow.DataType, error) {
	numeric := true
	for _, m := range t.members {
		if k := Untagged(m).kind; k != KindInt && k != KindNumber {
			numeric = false
			break
		}
	}
	if numeric {
		return arrow.PrimitiveTypes.Float64, nil
	}

	first, err := t.members[0].ArrowType()
	if err != nil {
		return nil, err
	}
	for _, m := range t.members[1:] {
		dt, err := m.ArrowType()
		if err != nil {
			return nil, err
		}
		if !arrow.TypeEqual(first, dt) {
			return nil, fmt.Errorf("%w: members of %s do not share a layout", ErrUnsupportedType, t)
		}
	}
	return first, nil
}

// typeFromArrow maps an Arrow type back to the logical type used to describe it.
// Nullable children become Optional.
func typeFromArrow(dt arrow.DataType) (*Type, error) {
	switch dt := dt.(type) {
	case *arrow.NullType:
		return None, nil
	case *arrow.BooleanType:
		return Boolean, nil
	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type, *arrow.Int64Type,
		*arrow.Uint8Type, *arrow.Uint16Type, *arrow.Uint32Type, *arrow.Uint64Type:
		return Int, nil
	case *arrow.Float32Type, *arrow.Float64Type:
		return Number, nil
	case *arrow.StringType, *arrow.LargeStringType:
		return String, nil
	case *arrow.ListType:
		elem, err := typeFromArrow(dt.Elem())
		if err != nil {
			return nil, err
		}
		if dt.ElemField().Nullable {
			elem = Optional(elem)
		}
		return ListOf(elem), nil
	case *arrow.StructType:
		fields := make([]Field, dt.NumFields())
		for i := 0; i < dt.NumFields(); i++ {
			f := dt.Field(i)
			ft, err := typeFromArrow(f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			if f.Nullable {
				ft = Optional(ft)
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		return RecordOf(fields...), nil
	default:
		return nil, fmt.Errorf("%w: arrow type %s", ErrUnsupportedType, dt)
	}
}
