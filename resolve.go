package loom

import (
	"sort"
	"strings"
)

// ============================================================================
// Constraints
// ============================================================================

// Constraint is a declared parameter requirement. A non-nil Scalar side
// accepts scalars assignable to it; a non-nil Column side accepts Columnar
// Lists whose element type is assignable to it. At least one side is set.
type Constraint struct {
	Scalar *Type
	Column *Type
}

// Exactly requires a value of type t. A Column type constrains the columnar
// side, any other type the scalar side.
func Exactly(t *Type) Constraint {
	if t.kind == KindColumn {
		return Constraint{Column: t.elem}
	}
	return Constraint{Scalar: t}
}

// ScalarOf requires a scalar of type t
func ScalarOf(t *Type) Constraint {
	return Constraint{Scalar: t}
}

// Columnar requires a Columnar List of element type elem
func Columnar(elem *Type) Constraint {
	return Constraint{Column: elem}
}

// Either accepts a scalar of type scalar or a Columnar List of element type elem
func Either(scalar, elem *Type) Constraint {
	return Constraint{Scalar: scalar, Column: elem}
}

// Shapes returns the operand shapes the constraint admits, scalar first
func (c Constraint) Shapes() []Shape {
	var shapes []Shape
	if c.Scalar != nil {
		shapes = append(shapes, ShapeScalar)
	}
	if c.Column != nil {
		shapes = append(shapes, ShapeColumn)
	}
	return shapes
}

// Match returns the side of the constraint the datum satisfies
func (c Constraint) Match(d Datum) (Shape, bool) {
	switch d.shape {
	case ShapeScalar:
		if c.Scalar == nil || d.typ == nil {
			return ShapeScalar, false
		}
		actual := d.typ
		if c.Scalar.kind == KindTagged {
			actual = d.TaggedType()
		}
		return ShapeScalar, Assignable(c.Scalar, actual)
	case ShapeColumn:
		if c.Column == nil || d.list == nil {
			return ShapeColumn, false
		}
		return ShapeColumn, Assignable(c.Column, d.list.Type())
	}
	return d.shape, false
}

func (c Constraint) String() string {
	var sides []string
	if c.Scalar != nil {
		sides = append(sides, c.Scalar.String())
	}
	if c.Column != nil {
		sides = append(sides, ColumnOf(c.Column).String())
	}
	return strings.Join(sides, " | ")
}

// Param is a named, constrained op parameter
type Param struct {
	Name       string
	Constraint Constraint
}

// ============================================================================
// Variants
// ============================================================================

// Variant identifies an implementation by the shape of each parameter, in
// declaration order, e.g. "column,scalar".
type Variant string

// VariantOf builds the variant key for the given parameter shapes
func VariantOf(shapes ...Shape) Variant {
	parts := make([]string, len(shapes))
	for i, s := range shapes {
		parts[i] = s.String()
	}
	return Variant(strings.Join(parts, ","))
}

// variants enumerates every variant admitted by params
func variants(params []Param) []Variant {
	combos := [][]Shape{{}}
	for _, p := range params {
		var next [][]Shape
		for _, combo := range combos {
			for _, s := range p.Constraint.Shapes() {
				c := append(append([]Shape{}, combo...), s)
				next = append(next, c)
			}
		}
		combos = next
	}
	out := make([]Variant, len(combos))
	for i, c := range combos {
		out[i] = VariantOf(c...)
	}
	return out
}

// ============================================================================
// Resolution
// ============================================================================

// Resolution records which side of each parameter's constraint the actual
// arguments satisfied, and their types
type Resolution struct {
	Op     string
	Params []Param
	Shapes map[string]Shape
	Types  map[string]*Type
}

// Variant returns the implementation key for the resolved shapes
func (r *Resolution) Variant() Variant {
	shapes := make([]Shape, len(r.Params))
	for i, p := range r.Params {
		shapes[i] = r.Shapes[p.Name]
	}
	return VariantOf(shapes...)
}

// Resolve checks args against params and decides the shape of each argument.
// It fails with a TypeMismatchError naming the first offending parameter.
func Resolve(op string, params []Param, args map[string]Datum) (*Resolution, error) {
	res := &Resolution{
		Op:     op,
		Params: params,
		Shapes: make(map[string]Shape, len(params)),
		Types:  make(map[string]*Type, len(params)),
	}

	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true

		arg, ok := args[p.Name]
		if !ok || arg.IsZero() {
			return nil, &TypeMismatchError{Op: op, Param: p.Name, Expected: p.Constraint.String(), Row: -1}
		}
		shape, ok := p.Constraint.Match(arg)
		if !ok {
			return nil, &TypeMismatchError{Op: op, Param: p.Name, Expected: p.Constraint.String(), Actual: arg.Type(), Row: -1}
		}
		res.Shapes[p.Name] = shape
		res.Types[p.Name] = arg.Type()
	}

	var extra []string
	for name := range args {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, &TypeMismatchError{Op: op, Param: extra[0], Expected: "no such parameter", Actual: args[extra[0]].Type(), Row: -1}
	}
	return res, nil
}

// ============================================================================
// Output types
// ============================================================================

// OutputFunc computes an op's result type from its resolved input types.
// It must be pure and total over valid inputs and never look at values.
type OutputFunc func(inputs map[string]*Type) *Type

// Fixed returns an OutputFunc that always yields t
func Fixed(t *Type) OutputFunc {
	return func(map[string]*Type) *Type { return t }
}

// SameAs returns an OutputFunc yielding the type of the named input
func SameAs(param string) OutputFunc {
	return func(inputs map[string]*Type) *Type { return inputs[param] }
}
