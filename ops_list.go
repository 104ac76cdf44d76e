package loom

// List ops are registered as "List-<op>" and route to the structural
// transformations. Their output types are computed from input types alone.

const listOpPrefix = "List-"

var (
	anyFunc  = FunctionOf(Any, Any)
	anyGroup = GroupResultOf(Any, Any)

	variantScalarScalar = VariantOf(ShapeScalar, ShapeScalar)
)

// RegisterListOps adds the structural op suite to r
func RegisterListOps(r *Registry) error {
	for _, def := range listOps() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func selfColumn(elem *Type) Param {
	return Param{Name: "self", Constraint: Columnar(elem)}
}

func fnParam(name string) Param {
	return Param{Name: name, Constraint: ScalarOf(anyFunc)}
}

// structuralImpl adapts a List -> List transformation to an ImplFunc
func structuralImpl(kernel string, fn func(c *Call, self *List) (*List, error)) ImplFunc {
	return func(c *Call) (Datum, error) {
		out, err := fn(c, c.List("self"))
		if err != nil {
			return Datum{}, kernelError(c.Op, kernel, err)
		}
		return Column(out), nil
	}
}

func listOps() []OpDef {
	return []OpDef{
		{
			Name:   listOpPrefix + "unnest",
			Params: []Param{selfColumn(Optional(RecordOf()))},
			Output: func(in map[string]*Type) *Type {
				out, isList := unnestedType(NonNone(Untagged(in["self"].elem)))
				for _, l := range isList {
					if l {
						return ColumnOf(out)
					}
				}
				return in["self"]
			},
			Impls: map[Variant]ImplFunc{
				variantUnary: structuralImpl("unnest", func(c *Call, self *List) (*List, error) {
					return Unnest(c.Alloc, self)
				}),
			},
			Doc: "one row per index of the record's list fields, truncated to the shortest",
		},
		{
			Name:   listOpPrefix + "groupby",
			Params: []Param{selfColumn(Any), fnParam("by")},
			Output: func(in map[string]*Type) *Type {
				return ListOf(GroupResultOf(ListOf(in["self"].elem), in["by"].elem))
			},
			Impls: map[Variant]ImplFunc{
				variantColumnScalar: func(c *Call) (Datum, error) {
					groups, err := GroupBy(c.Alloc, c.List("self"), c.Value("by").(Func))
					if err != nil {
						return Datum{}, kernelError(c.Op, "groupby", err)
					}
					return TypedScalar(c.Out, groups), nil
				},
			},
			Doc: "rows partitioned by key in first-seen order, each group tagged with its key",
		},
		{
			Name:   listOpPrefix + "groupKey",
			Params: []Param{{Name: "self", Constraint: ScalarOf(anyGroup)}},
			Output: func(in map[string]*Type) *Type {
				return in["self"].meta
			},
			Impls: map[Variant]ImplFunc{
				VariantOf(ShapeScalar): func(c *Call) (Datum, error) {
					g, ok := c.Value("self").(*GroupResult)
					if !ok {
						return Datum{}, &TypeMismatchError{Op: c.Op, Param: "self", Expected: anyGroup.String(), Actual: c.Types["self"], Row: -1}
					}
					k, err := g.GroupKey()
					if err != nil {
						return Datum{}, err
					}
					return TypedScalar(c.Out, k), nil
				},
			},
			Doc: "the groupKey tag of a group",
		},
		{
			Name: listOpPrefix + "map",
			Params: []Param{
				{Name: "self", Constraint: Either(ListOf(anyGroup), Any)},
				fnParam("fn"),
			},
			Output: func(in map[string]*Type) *Type {
				out := in["fn"].elem
				if self := in["self"]; self.kind == KindColumn {
					return ColumnOf(mapOutElem(self.elem, out))
				}
				return ColumnOf(out)
			},
			Impls: map[Variant]ImplFunc{
				variantScalarScalar: func(c *Call) (Datum, error) {
					groups, ok := groupsOf(c.Value("self"))
					if !ok {
						return Datum{}, &TypeMismatchError{Op: c.Op, Param: "self", Expected: ListOf(anyGroup).String(), Actual: c.Types["self"], Row: -1}
					}
					out, err := MapGroups(c.Alloc, groups, c.Value("fn").(Func))
					if err != nil {
						return Datum{}, kernelError(c.Op, "map", err)
					}
					return Column(out), nil
				},
				variantColumnScalar: structuralImpl("map", func(c *Call, self *List) (*List, error) {
					return Map(c.Alloc, self, c.Value("fn").(Func))
				}),
			},
			Doc: "fn applied to every row, or to every group of a groupby result",
		},
		{
			Name:   listOpPrefix + "mapEach",
			Params: []Param{selfColumn(Any), fnParam("fn")},
			Output: func(in map[string]*Type) *Type {
				return ColumnOf(replaceLeaf(in["self"].elem, in["fn"].elem))
			},
			Impls: map[Variant]ImplFunc{
				variantColumnScalar: structuralImpl("mapEach", func(c *Call, self *List) (*List, error) {
					return MapEach(c.Alloc, self, c.Value("fn").(Func))
				}),
			},
			Doc: "fn applied to every innermost value, keeping the nesting",
		},
		{
			Name:   listOpPrefix + "flatten",
			Params: []Param{selfColumn(Any)},
			Output: func(in map[string]*Type) *Type {
				if inner := NonNone(Untagged(in["self"].elem)); inner.kind == KindList {
					return ColumnOf(inner.elem)
				}
				return in["self"]
			},
			Impls: map[Variant]ImplFunc{
				variantUnary: structuralImpl("flatten", func(c *Call, self *List) (*List, error) {
					return Flatten(c.Alloc, self)
				}),
			},
			Doc: "inner lists concatenated in order",
		},
		{
			Name:   listOpPrefix + "unique",
			Params: []Param{selfColumn(Any)},
			Output: SameAs("self"),
			Impls: map[Variant]ImplFunc{
				variantUnary: structuralImpl("unique", func(c *Call, self *List) (*List, error) {
					return Unique(c.Alloc, self)
				}),
			},
			Doc: "first occurrence of every distinct value",
		},
		{
			Name:   listOpPrefix + "concat",
			Params: []Param{selfColumn(Optional(ListOf(Any)))},
			Output: func(in map[string]*Type) *Type {
				inner := NonNone(Untagged(in["self"].elem))
				return ColumnOf(concatElem([]*Type{inner.elem}))
			},
			Impls: map[Variant]ImplFunc{
				variantUnary: structuralImpl("concat", func(c *Call, self *List) (*List, error) {
					return ConcatRows(c.Alloc, self)
				}),
			},
			Doc: "rows concatenated, null rows treated as empty",
		},
	}
}

// groupsOf accepts a groupby result either as returned or as a generic list
func groupsOf(v any) ([]*GroupResult, bool) {
	switch x := v.(type) {
	case []*GroupResult:
		return x, true
	case []any:
		groups := make([]*GroupResult, len(x))
		for i, item := range x {
			g, ok := item.(*GroupResult)
			if !ok {
				return nil, false
			}
			groups[i] = g
		}
		return groups, true
	default:
		return nil, false
	}
}
