package loom

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Constructors
// ============================================================================

func TestOptional_Idempotent(t *testing.T) {
	require.True(t, Optional(Optional(String)).Equal(Optional(String)))
	require.True(t, Optional(None).Equal(None))
	require.True(t, Optional(Any).Equal(Any))
}

func TestUnionOf(t *testing.T) {
	for _, tt := range []struct {
		name  string
		types []*Type
		want  *Type
	}{
		{name: "single member", types: []*Type{Int}, want: Int},
		{name: "duplicates", types: []*Type{Int, Int, String}, want: &Type{kind: KindUnion, members: []*Type{Int, String}}},
		{name: "none becomes optional", types: []*Type{Int, None}, want: Optional(Int)},
		{name: "optional members", types: []*Type{Optional(Int), String}, want: Optional(&Type{kind: KindUnion, members: []*Type{Int, String}})},
		{name: "nested unions flatten", types: []*Type{UnionOf(Int, String), Boolean}, want: &Type{kind: KindUnion, members: []*Type{Int, String, Boolean}}},
		{name: "any absorbs", types: []*Type{Int, Any}, want: Any},
		{name: "empty", types: nil, want: None},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := UnionOf(tt.types...)
			require.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestType_Equal(t *testing.T) {
	ab := RecordOf(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String})
	ba := RecordOf(Field{Name: "b", Type: String}, Field{Name: "a", Type: Int})
	require.True(t, ab.Equal(ba), "record fields compare by name")
	require.True(t, UnionOf(Int, String).Equal(UnionOf(String, Int)), "union members compare as a set")
	require.False(t, ListOf(Int).Equal(ColumnOf(Int)))
	require.False(t, ab.Equal(RecordOf(Field{Name: "a", Type: Int})))
	require.True(t, TaggedOf(RecordOf(), Int).Equal(TaggedOf(RecordOf(), Int)))
}

func TestType_String(t *testing.T) {
	for _, tt := range []struct {
		typ  *Type
		want string
	}{
		{typ: Int, want: "Int"},
		{typ: Optional(String), want: "Optional(String)"},
		{typ: ListOf(ListOf(Number)), want: "List(List(Number))"},
		{typ: ColumnOf(Boolean), want: "Column(Boolean)"},
		{typ: RecordOf(Field{Name: "a", Type: Int}), want: "Record{a: Int}"},
		{typ: FunctionOf(Int, String), want: "Function(Int) -> String"},
		{typ: GroupResultOf(ListOf(Int), String), want: "GroupResult(String, List(Int))"},
	} {
		require.Equal(t, tt.want, tt.typ.String())
	}
}

// ============================================================================
// Assignability
// ============================================================================

func TestAssignable(t *testing.T) {
	rec := RecordOf(Field{Name: "a", Type: Int}, Field{Name: "b", Type: Optional(String)})
	for _, tt := range []struct {
		name     string
		to, from *Type
		want     bool
	}{
		{name: "same primitive", to: Int, from: Int, want: true},
		{name: "different primitive", to: Int, from: String, want: false},
		{name: "int widens to number", to: Number, from: Int, want: true},
		{name: "number does not narrow", to: Int, from: Number, want: false},
		{name: "T to optional T", to: Optional(String), from: String, want: true},
		{name: "none to optional", to: Optional(String), from: None, want: true},
		{name: "optional T to T", to: String, from: Optional(String), want: false},
		{name: "T to union", to: UnionOf(Int, String), from: String, want: true},
		{name: "union to member", to: String, from: UnionOf(Int, String), want: false},
		{name: "union to wider union", to: UnionOf(Int, String, Boolean), from: UnionOf(Int, String), want: true},
		{name: "list covariance", to: ListOf(Optional(Int)), from: ListOf(Int), want: true},
		{name: "list vs column", to: ListOf(Int), from: ColumnOf(Int), want: false},
		{name: "anything to any", to: Any, from: ListOf(RecordOf()), want: true},
		{name: "record width", to: RecordOf(Field{Name: "a", Type: Int}), from: rec, want: true},
		{name: "record missing optional field", to: rec, from: RecordOf(Field{Name: "a", Type: Int}), want: true},
		{name: "record missing required field", to: rec, from: RecordOf(Field{Name: "b", Type: String}), want: false},
		{name: "tags invisible", to: Int, from: TaggedOf(RecordOf(), Int), want: true},
		{name: "tags required", to: TaggedOf(RecordOf(), Int), from: Int, want: false},
		{name: "function any input", to: FunctionOf(Any, Any), from: FunctionOf(Int, String), want: true},
		{name: "function output", to: FunctionOf(Any, Int), from: FunctionOf(Int, String), want: false},
		{name: "group result", to: GroupResultOf(Any, Any), from: GroupResultOf(ListOf(Int), String), want: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Assignable(tt.to, tt.from))
		})
	}
}

func TestConforms(t *testing.T) {
	require.True(t, conforms(ListOf(String), []any{}), "empty lists conform to any list type")
	require.True(t, conforms(Optional(Int), nil))
	require.False(t, conforms(Int, nil))
	require.True(t, conforms(ListOf(Optional(Int)), []any{int64(1), nil}))
	require.False(t, conforms(ListOf(Int), []any{int64(1), "x"}))
	require.True(t, conforms(RecordOf(Field{Name: "a", Type: ListOf(Int)}), map[string]any{"a": []any{}}))
	require.True(t, conforms(UnionOf(Int, String), "x"))
	require.True(t, conforms(Number, int64(3)))
}

func TestTypeOf(t *testing.T) {
	for _, tt := range []struct {
		value any
		want  *Type
	}{
		{value: nil, want: None},
		{value: true, want: Boolean},
		{value: 3, want: Int},
		{value: 2.5, want: Number},
		{value: "s", want: String},
		{value: []any{int64(1), nil}, want: ListOf(Optional(Int))},
		{value: map[string]any{"b": "x", "a": int64(1)}, want: RecordOf(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String})},
	} {
		got := TypeOf(tt.value)
		require.True(t, got.Equal(tt.want), "TypeOf(%v) = %s, want %s", tt.value, got, tt.want)
	}
}

// ============================================================================
// Physical layout
// ============================================================================

func TestArrowType(t *testing.T) {
	for _, tt := range []struct {
		typ  *Type
		want arrow.DataType
	}{
		{typ: Int, want: arrow.PrimitiveTypes.Int64},
		{typ: Optional(String), want: arrow.BinaryTypes.String},
		{typ: TaggedOf(RecordOf(), Boolean), want: arrow.FixedWidthTypes.Boolean},
		{typ: UnionOf(Int, Number), want: arrow.PrimitiveTypes.Float64},
		{typ: ListOf(Int), want: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		{typ: None, want: arrow.Null},
	} {
		got, err := tt.typ.ArrowType()
		require.NoError(t, err)
		require.True(t, arrow.TypeEqual(tt.want, got), "%s: got %s, want %s", tt.typ, got, tt.want)
	}

	_, err := UnionOf(Int, String).ArrowType()
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = FunctionOf(Int, Int).ArrowType()
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTypeFromArrow(t *testing.T) {
	dt := arrow.StructOf(
		arrow.Field{Name: "a", Type: arrow.PrimitiveTypes.Int32},
		arrow.Field{Name: "b", Type: arrow.BinaryTypes.String, Nullable: true},
	)
	got, err := typeFromArrow(dt)
	require.NoError(t, err)
	want := RecordOf(Field{Name: "a", Type: Int}, Field{Name: "b", Type: Optional(String)})
	require.True(t, got.Equal(want), "got %s", got)

	_, err = typeFromArrow(arrow.FixedWidthTypes.Date32)
	require.ErrorIs(t, err, ErrUnsupportedType)
}
