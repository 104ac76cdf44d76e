package loom

import "fmt"

// Shape says whether an operand is a single scalar value or a whole Columnar List
type Shape uint8

const (
	ShapeScalar Shape = iota
	ShapeColumn
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeColumn:
		return "column"
	default:
		return fmt.Sprintf("Shape(%d)", s)
	}
}

// Datum is an operand or result of an op: either a scalar value with its
// logical type, or a Columnar List. The shape is fixed at construction and
// read once by the resolver; op bodies never inspect Go types to find it.
type Datum struct {
	shape Shape
	typ   *Type
	value any
	list  *List
	tags  Tags
}

// Scalar wraps a Go value, inferring its type
func Scalar(v any) Datum {
	return Datum{shape: ShapeScalar, typ: TypeOf(v), value: v}
}

// TypedScalar wraps a Go value with an explicit type
func TypedScalar(t *Type, v any) Datum {
	return Datum{shape: ShapeScalar, typ: t, value: v}
}

// Column wraps a Columnar List
func Column(l *List) Datum {
	return Datum{shape: ShapeColumn, list: l}
}

// Shape returns whether the datum is a scalar or a column
func (d Datum) Shape() Shape {
	return d.shape
}

// Type returns the scalar's type, or Column(elem) for a column
func (d Datum) Type() *Type {
	if d.shape == ShapeColumn {
		if d.list == nil {
			return nil
		}
		return d.list.ColumnType()
	}
	return d.typ
}

// TaggedType returns the type including tags, for constraints that require them
func (d Datum) TaggedType() *Type {
	if d.shape == ShapeColumn {
		if d.list == nil {
			return nil
		}
		return d.list.TaggedType()
	}
	if d.tags.Len() == 0 {
		return d.typ
	}
	return TaggedOf(d.tags.Type(), d.typ)
}

// Value returns the scalar value (nil for columns)
func (d Datum) Value() any {
	return d.value
}

// List returns the column (nil for scalars)
func (d Datum) List() *List {
	return d.list
}

// IsNull returns true for a null scalar
func (d Datum) IsNull() bool {
	return d.shape == ShapeScalar && d.value == nil
}

// IsZero returns true for the zero Datum, which is neither a valid scalar nor column
func (d Datum) IsZero() bool {
	return d.typ == nil && d.list == nil
}

// Tags returns the tags attached to the datum
func (d Datum) Tags() Tags {
	if d.shape == ShapeColumn && d.list != nil {
		return d.list.Tags()
	}
	return d.tags
}

func (d Datum) String() string {
	if d.shape == ShapeColumn {
		if d.list == nil {
			return "column(<nil>)"
		}
		return fmt.Sprintf("column(%s, len=%d)", d.list.Type(), d.list.Len())
	}
	return fmt.Sprintf("scalar(%s, %v)", d.typ, d.value)
}
