package loom

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// String ops are registered as "StringList-<op>". Every op takes a column of
// optional strings as "self". Binary ops take their right operand either as a
// scalar, broadcast against every row, or as a column of equal length zipped
// row by row.

const stringOpPrefix = "StringList-"

var (
	variantUnary        = VariantOf(ShapeColumn)
	variantColumnScalar = VariantOf(ShapeColumn, ShapeScalar)
	variantColumnColumn = VariantOf(ShapeColumn, ShapeColumn)
)

// RegisterStringOps adds the string op suite to r
func RegisterStringOps(r *Registry) error {
	for _, def := range stringOps() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func selfStrings() Param {
	return Param{Name: "self", Constraint: Columnar(Optional(String))}
}

func otherStrings(name string) Param {
	return Param{Name: name, Constraint: Either(Optional(String), Optional(String))}
}

// ============================================================================
// Output types
// ============================================================================

func inputNullable(t *Type) bool {
	if t == nil {
		return true
	}
	if t.kind == KindColumn {
		return t.elem.Nullable()
	}
	return t.Nullable()
}

// propagateNull returns a rule giving Column(out), made Optional when any of
// the named inputs may hold nulls.
func propagateNull(out *Type, params ...string) OutputFunc {
	return func(inputs map[string]*Type) *Type {
		for _, p := range params {
			if inputNullable(inputs[p]) {
				return ColumnOf(Optional(out))
			}
		}
		return ColumnOf(out)
	}
}

// ============================================================================
// Array access
// ============================================================================

// stringArray returns the list's data as a utf8 array. An all-null column of
// type None is widened to a utf8 array of nulls.
func stringArray(c *Call, l *List) *array.String {
	if a, ok := l.arr.(*array.String); ok {
		return a
	}
	return allNull(c.Alloc, arrow.BinaryTypes.String, l.Len()).(*array.String)
}

func outArrowType(c *Call) arrow.DataType {
	dt, err := c.OutElem().ArrowType()
	if err != nil {
		return arrow.Null
	}
	return dt
}

// ============================================================================
// Op builders
// ============================================================================

// scalarKernel computes a whole result array from self and a non-null scalar
type scalarKernel func(c *Call, self *array.String, other string) (arrow.Array, error)

// strings2 lifts a function of two strings to an ElementFunc
func strings2(fn func(a, b string) (any, error)) ElementFunc {
	return func(l, r any) (any, error) {
		return fn(l.(string), r.(string))
	}
}

// binaryStringOp builds a two-variant element-wise op. A null scalar operand
// makes every row null.
func binaryStringOp(name, param string, out *Type, kernel scalarKernel, elem ElementFunc, doc string) OpDef {
	return OpDef{
		Name:   stringOpPrefix + name,
		Params: []Param{selfStrings(), otherStrings(param)},
		Output: propagateNull(out, "self", param),
		Impls: map[Variant]ImplFunc{
			variantColumnScalar: func(c *Call) (Datum, error) {
				self := c.List("self")
				other := c.Value(param)
				if other == nil {
					return c.result(self, allNull(c.Alloc, outArrowType(c), self.Len())), nil
				}
				arr, err := kernel(c, stringArray(c, self), other.(string))
				if err != nil {
					return Datum{}, kernelError(c.Op, name, err)
				}
				return c.result(self, arr), nil
			},
			variantColumnColumn: func(c *Call) (Datum, error) {
				out, err := Broadcast(c.Alloc, c.List("self"), c.Arg(param), c.OutElem(), elem, WithOp(c.Op, param))
				if err != nil {
					return Datum{}, kernelError(c.Op, name, err)
				}
				return Column(out), nil
			},
		},
		Doc: doc,
	}
}

// broadcastStringOp builds a two-variant op whose both variants go through
// Broadcast, for ops without a whole-array kernel.
func broadcastStringOp(name, param string, out *Type, elem ElementFunc, doc string) OpDef {
	impl := func(c *Call) (Datum, error) {
		res, err := Broadcast(c.Alloc, c.List("self"), c.Arg(param), c.OutElem(), elem, WithOp(c.Op, param))
		if err != nil {
			return Datum{}, kernelError(c.Op, name, err)
		}
		return Column(res), nil
	}
	return OpDef{
		Name:   stringOpPrefix + name,
		Params: []Param{selfStrings(), otherStrings(param)},
		Output: propagateNull(out, "self", param),
		Impls:  map[Variant]ImplFunc{variantColumnScalar: impl, variantColumnColumn: impl},
		Doc:    doc,
	}
}

// unaryStringOp builds a single-variant op over self
func unaryStringOp(name string, output OutputFunc, kernel func(c *Call, self *array.String) arrow.Array, doc string) OpDef {
	return OpDef{
		Name:   stringOpPrefix + name,
		Params: []Param{selfStrings()},
		Output: output,
		Impls: map[Variant]ImplFunc{
			variantUnary: func(c *Call) (Datum, error) {
				self := c.List("self")
				return c.result(self, kernel(c, stringArray(c, self))), nil
			},
		},
		Doc: doc,
	}
}

// compareOp builds equal / notEqual on the arrow compute kernels
func compareOp(name string, cmp func(c *Call, left arrow.Array, right any) (arrow.Array, error), doc string) OpDef {
	return OpDef{
		Name:   stringOpPrefix + name,
		Params: []Param{selfStrings(), otherStrings("other")},
		Output: propagateNull(Boolean, "self", "other"),
		Impls: map[Variant]ImplFunc{
			variantColumnScalar: func(c *Call) (Datum, error) {
				self := c.List("self")
				arr, err := cmp(c, stringArray(c, self), c.Value("other"))
				if err != nil {
					return Datum{}, kernelError(c.Op, name, err)
				}
				return c.result(self, arr), nil
			},
			variantColumnColumn: func(c *Call) (Datum, error) {
				self := c.List("self")
				if err := CheckAligned(c.Op, "other", self, c.Arg("other")); err != nil {
					return Datum{}, err
				}
				arr, err := cmp(c, stringArray(c, self), stringArray(c, c.List("other")))
				if err != nil {
					return Datum{}, kernelError(c.Op, name, err)
				}
				return c.result(self, arr), nil
			},
		},
		Doc: doc,
	}
}

// ============================================================================
// Op table
// ============================================================================

func stringOps() []OpDef {
	return []OpDef{
		compareOp("equal", func(c *Call, l arrow.Array, r any) (arrow.Array, error) {
			return CompareEqual(c.Ctx, c.Alloc, l, r)
		}, "row equals other"),
		compareOp("notEqual", func(c *Call, l arrow.Array, r any) (arrow.Array, error) {
			return CompareNotEqual(c.Ctx, c.Alloc, l, r)
		}, "row differs from other"),

		binaryStringOp("contains", "other", Boolean,
			func(c *Call, self *array.String, other string) (arrow.Array, error) {
				return MatchSubstring(c.Alloc, self, other), nil
			},
			strings2(func(a, b string) (any, error) { return strings.Contains(a, b), nil }),
			"row contains other as a substring"),
		inOp(),

		binaryStringOp("add", "other", String, appendKernel(false), strings2(func(a, b string) (any, error) { return a + b, nil }),
			"row followed by other"),
		binaryStringOp("append", "other", String, appendKernel(false), strings2(func(a, b string) (any, error) { return a + b, nil }),
			"row followed by other"),
		binaryStringOp("prepend", "other", String, appendKernel(true), strings2(func(a, b string) (any, error) { return b + a, nil }),
			"other followed by row"),

		binaryStringOp("startsWith", "prefix", Boolean,
			func(c *Call, self *array.String, prefix string) (arrow.Array, error) {
				return StartsWith(c.Alloc, self, prefix), nil
			},
			strings2(func(a, b string) (any, error) { return strings.HasPrefix(a, b), nil }),
			"row begins with prefix"),
		binaryStringOp("endsWith", "suffix", Boolean,
			func(c *Call, self *array.String, suffix string) (arrow.Array, error) {
				return EndsWith(c.Alloc, self, suffix), nil
			},
			strings2(func(a, b string) (any, error) { return strings.HasSuffix(a, b), nil }),
			"row ends with suffix"),

		binaryStringOp("split", "pattern", ListOf(String),
			func(c *Call, self *array.String, pattern string) (arrow.Array, error) {
				return SplitPattern(c.Alloc, self, pattern)
			},
			strings2(splitRow),
			"row split on every occurrence of pattern"),
		broadcastStringOp("partition", "sep", ListOf(String), strings2(partitionRow),
			"row split around the first occurrence of sep into [before, sep, after]"),

		unaryStringOp("len", propagateNull(Int, "self"), func(c *Call, s *array.String) arrow.Array {
			return ByteLength(c.Alloc, s)
		}, "UTF-8 byte length"),
		unaryStringOp("isAlpha", propagateNull(Boolean, "self"), func(c *Call, s *array.String) arrow.Array {
			return ASCIIIsAlpha(c.Alloc, s)
		}, "row is non-empty and all ASCII letters"),
		unaryStringOp("isNumeric", propagateNull(Boolean, "self"), func(c *Call, s *array.String) arrow.Array {
			return ASCIIIsDecimal(c.Alloc, s)
		}, "row is non-empty and all ASCII digits"),
		unaryStringOp("isAlnum", propagateNull(Boolean, "self"), func(c *Call, s *array.String) arrow.Array {
			return ASCIIIsAlnum(c.Alloc, s)
		}, "row is non-empty and all ASCII letters or digits"),
		unaryStringOp("lower", SameAs("self"), func(c *Call, s *array.String) arrow.Array {
			return ASCIILower(c.Alloc, s)
		}, "ASCII lowercase"),
		unaryStringOp("upper", SameAs("self"), func(c *Call, s *array.String) arrow.Array {
			return ASCIIUpper(c.Alloc, s)
		}, "ASCII uppercase"),
		unaryStringOp("strip", SameAs("self"), func(c *Call, s *array.String) arrow.Array {
			return TrimWhitespace(c.Alloc, s, true, true)
		}, "whitespace trimmed from both ends"),
		unaryStringOp("lStrip", SameAs("self"), func(c *Call, s *array.String) arrow.Array {
			return TrimWhitespace(c.Alloc, s, true, false)
		}, "whitespace trimmed from the start"),
		unaryStringOp("rStrip", SameAs("self"), func(c *Call, s *array.String) arrow.Array {
			return TrimWhitespace(c.Alloc, s, false, true)
		}, "whitespace trimmed from the end"),

		sliceOp(),
		replaceOp(),
		matchOp(),
		joinOp(),
	}
}

func appendKernel(prepend bool) scalarKernel {
	return func(c *Call, self *array.String, other string) (arrow.Array, error) {
		return ConcatStrings(c.Alloc, self, other, prepend), nil
	}
}

func splitRow(s, pattern string) (any, error) {
	if pattern == "" {
		return nil, errEmptyPattern
	}
	parts := strings.Split(s, pattern)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func partitionRow(s, sep string) (any, error) {
	if sep == "" {
		return nil, errEmptyPattern
	}
	before, after, found := strings.Cut(s, sep)
	if !found {
		return []any{s, "", ""}, nil
	}
	return []any{before, sep, after}, nil
}

// inOp tests whether each row occurs in other. Against a scalar container a
// null row gives null and a null container gives false; zipped with a column,
// a null on either side gives null.
func inOp() OpDef {
	return OpDef{
		Name:   stringOpPrefix + "in",
		Params: []Param{selfStrings(), otherStrings("other")},
		Output: func(inputs map[string]*Type) *Type {
			if inputs["other"].kind == KindColumn {
				return propagateNull(Boolean, "self", "other")(inputs)
			}
			return propagateNull(Boolean, "self")(inputs)
		},
		Impls: map[Variant]ImplFunc{
			variantColumnScalar: func(c *Call) (Datum, error) {
				container, _ := c.Value("other").(string)
				isNull := c.Arg("other").IsNull()
				out, err := MapRows(c.Alloc, c.List("self"), c.OutElem(), func(v any) (any, error) {
					if isNull {
						return false, nil
					}
					return strings.Contains(container, v.(string)), nil
				})
				if err != nil {
					return Datum{}, kernelError(c.Op, "in", err)
				}
				return Column(out), nil
			},
			variantColumnColumn: func(c *Call) (Datum, error) {
				out, err := Broadcast(c.Alloc, c.List("self"), c.Arg("other"), c.OutElem(),
					strings2(func(item, container string) (any, error) { return strings.Contains(container, item), nil }),
					WithOp(c.Op, "other"))
				if err != nil {
					return Datum{}, kernelError(c.Op, "in", err)
				}
				return Column(out), nil
			},
		},
		NullTolerant: true,
		Doc:          "row is a substring of other",
	}
}

func sliceOp() OpDef {
	return OpDef{
		Name: stringOpPrefix + "slice",
		Params: []Param{
			selfStrings(),
			{Name: "begin", Constraint: ScalarOf(Int)},
			{Name: "end", Constraint: ScalarOf(Int)},
		},
		Output: SameAs("self"),
		Impls: map[Variant]ImplFunc{
			VariantOf(ShapeColumn, ShapeScalar, ShapeScalar): func(c *Call) (Datum, error) {
				self := c.List("self")
				begin, _ := toInt64(c.Value("begin"))
				end, _ := toInt64(c.Value("end"))
				return c.result(self, SliceCodepoints(c.Alloc, stringArray(c, self), begin, end)), nil
			},
		},
		Doc: "codepoints [begin, end); negative bounds count from the end",
	}
}

func replaceOp() OpDef {
	return OpDef{
		Name: stringOpPrefix + "replace",
		Params: []Param{
			selfStrings(),
			{Name: "pattern", Constraint: ScalarOf(String)},
			{Name: "replacement", Constraint: ScalarOf(String)},
		},
		Output: SameAs("self"),
		Impls: map[Variant]ImplFunc{
			VariantOf(ShapeColumn, ShapeScalar, ShapeScalar): func(c *Call) (Datum, error) {
				self := c.List("self")
				arr, err := ReplaceSubstring(c.Alloc, stringArray(c, self), c.Value("pattern").(string), c.Value("replacement").(string))
				if err != nil {
					return Datum{}, kernelError(c.Op, "replace", err)
				}
				return c.result(self, arr), nil
			},
		},
		Doc: "every occurrence of pattern replaced",
	}
}

func matchOp() OpDef {
	return OpDef{
		Name: stringOpPrefix + "match",
		Params: []Param{
			selfStrings(),
			{Name: "pattern", Constraint: ScalarOf(String)},
		},
		Output: propagateNull(Boolean, "self"),
		Impls: map[Variant]ImplFunc{
			variantColumnScalar: func(c *Call) (Datum, error) {
				self := c.List("self")
				arr, err := MatchRegex(c.Alloc, stringArray(c, self), c.Value("pattern").(string))
				if err != nil {
					return Datum{}, kernelError(c.Op, "match", err)
				}
				return c.result(self, arr), nil
			},
		},
		Doc: "row matches the regular expression pattern",
	}
}

func joinOp() OpDef {
	return OpDef{
		Name: stringOpPrefix + "join",
		Params: []Param{
			{Name: "self", Constraint: Columnar(Optional(ListOf(Optional(String))))},
			{Name: "sep", Constraint: ScalarOf(String)},
		},
		Output: propagateNull(String, "self"),
		Impls: map[Variant]ImplFunc{
			variantColumnScalar: func(c *Call) (Datum, error) {
				self := c.List("self")
				lists, ok := self.arr.(*array.List)
				if !ok {
					return c.result(self, allNull(c.Alloc, arrow.BinaryTypes.String, self.Len())), nil
				}
				arr, err := JoinList(c.Alloc, lists, c.Value("sep").(string))
				if err != nil {
					return Datum{}, kernelError(c.Op, "join", err)
				}
				return c.result(self, arr), nil
			},
		},
		Doc: "list elements joined with sep",
	}
}
