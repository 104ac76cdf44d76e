package loom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Unnest
// ============================================================================

func unnestFixture() *List {
	row := RecordOf(
		Field{Name: "a", Type: ListOf(Int)},
		Field{Name: "b", Type: String},
		Field{Name: "c", Type: ListOf(Int)},
	)
	return MustNewList(row,
		map[string]any{"a": []any{1, 2}, "b": "x", "c": []any{5, 6}},
		map[string]any{"a": []any{3, 4}, "b": "j", "c": []any{9, 10}},
	)
}

func TestUnnest(t *testing.T) {
	out, err := Unnest(nil, unnestFixture())
	require.NoError(t, err)

	require.Equal(t, []any{
		map[string]any{"a": int64(1), "b": "x", "c": int64(5)},
		map[string]any{"a": int64(2), "b": "x", "c": int64(6)},
		map[string]any{"a": int64(3), "b": "j", "c": int64(9)},
		map[string]any{"a": int64(4), "b": "j", "c": int64(10)},
	}, out.Values())

	want := RecordOf(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String}, Field{Name: "c", Type: Int})
	require.True(t, out.Type().Equal(want), "got %s", out.Type())
}

func TestUnnest_TruncatesToShortest(t *testing.T) {
	row := RecordOf(Field{Name: "a", Type: ListOf(Int)}, Field{Name: "c", Type: ListOf(String)})
	l := MustNewList(row, map[string]any{"a": []any{1, 2, 3}, "c": []any{"p", "q"}})

	out, err := Unnest(nil, l)
	require.NoError(t, err)
	require.Equal(t, []any{
		map[string]any{"a": int64(1), "c": "p"},
		map[string]any{"a": int64(2), "c": "q"},
	}, out.Values())
}

func TestUnnest_EdgeCases(t *testing.T) {
	row := RecordOf(Field{Name: "a", Type: Optional(ListOf(Int))}, Field{Name: "b", Type: String})
	l := MustNewList(Optional(row),
		map[string]any{"a": []any{1}, "b": "kept"},
		nil,
		map[string]any{"a": nil, "b": "null list"},
		map[string]any{"a": []any{}, "b": "empty list"},
	)

	out, err := Unnest(nil, l)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"a": int64(1), "b": "kept"}}, out.Values())

	empty, err := Unnest(nil, MustNewList(row))
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())

	flat := MustNewList(RecordOf(Field{Name: "b", Type: String}), map[string]any{"b": "x"})
	same, err := Unnest(nil, flat)
	require.NoError(t, err)
	require.Same(t, flat, same, "records without list fields are returned as is")

	_, err = Unnest(nil, MustNewList(Int, 1))
	require.ErrorIs(t, err, ErrTypeMismatch)
}

// ============================================================================
// GroupBy
// ============================================================================

func sequenceFixture() *List {
	row := RecordOf(
		Field{Name: "a", Type: Int},
		Field{Name: "b", Type: Int},
		Field{Name: "y", Type: String},
	)
	return MustNewList(row,
		map[string]any{"a": 0, "b": 0, "y": "x"},
		map[string]any{"a": 0, "b": 0, "y": "y"},
		map[string]any{"a": 0, "b": 1, "y": "x"},
		map[string]any{"a": 0, "b": 1, "y": "y"},
		map[string]any{"a": 0, "b": 1, "y": "y"},
		map[string]any{"a": 1, "b": 1, "y": "y"},
		map[string]any{"a": 2, "b": 1, "y": "y"},
	)
}

func fieldsKey(in *Type, names ...string) Func {
	fields := make([]Field, len(names))
	rec := NonNone(Untagged(in))
	for i, name := range names {
		ft, _ := rec.Field(name)
		fields[i] = Field{Name: name, Type: ft}
	}
	return NewFunc(in, RecordOf(fields...), func(v any) (any, error) {
		row := v.(map[string]any)
		key := make(map[string]any, len(names))
		for _, name := range names {
			key[name] = row[name]
		}
		return key, nil
	})
}

func TestGroupBy(t *testing.T) {
	l := sequenceFixture()
	groups, err := GroupBy(nil, l, fieldsKey(l.Type(), "a", "b"))
	require.NoError(t, err)
	require.Len(t, groups, 4)

	wantKeys := []any{
		map[string]any{"a": int64(0), "b": int64(0)},
		map[string]any{"a": int64(0), "b": int64(1)},
		map[string]any{"a": int64(1), "b": int64(1)},
		map[string]any{"a": int64(2), "b": int64(1)},
	}
	wantSizes := []int{2, 3, 1, 1}

	total := 0
	for i, g := range groups {
		require.Equal(t, wantKeys[i], g.Key)
		require.Equal(t, wantSizes[i], g.Members.Len())

		tag, err := g.GroupKey()
		require.NoError(t, err)
		require.Equal(t, g.Key, tag)
		total += g.Members.Len()
	}
	require.Equal(t, l.Len(), total, "no row lost or duplicated")

	require.Equal(t, []any{"x", "y", "y"}, yValues(groups[1].Members))
}

func yValues(l *List) []any {
	out := make([]any, l.Len())
	for i, v := range l.Values() {
		out[i] = v.(map[string]any)["y"]
	}
	return out
}

func TestGroupBy_Empty(t *testing.T) {
	l := MustNewList(Int)
	groups, err := GroupBy(nil, l, NewFunc(Int, Int, func(v any) (any, error) { return v, nil }))
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestGroupBy_KeyErrors(t *testing.T) {
	l := MustNewList(Int, 1, 2)
	boom := errors.New("boom")

	_, err := GroupBy(nil, l, NewFunc(Int, Int, func(v any) (any, error) { return nil, boom }))
	require.ErrorIs(t, err, boom)

	_, err = GroupBy(nil, l, NewFunc(Int, Int, func(v any) (any, error) { return "not an int", nil }))
	require.ErrorIs(t, err, ErrTypeMismatch)
}

// The key fixture: group by {a, b}, regroup every group by {y}, map each
// inner group to its key, then flatten and dedupe.
func TestGroupBy_RegroupFlattenUnique(t *testing.T) {
	l := sequenceFixture()
	outer, err := GroupBy(nil, l, fieldsKey(l.Type(), "a", "b"))
	require.NoError(t, err)

	byY := fieldsKey(l.Type(), "y")
	innerKeys := NewFunc(outer[0].Type(), ListOf(String), func(v any) (any, error) {
		inner, err := GroupBy(nil, v.(*GroupResult).Members, byY)
		if err != nil {
			return nil, err
		}
		keys := make([]any, len(inner))
		for i, g := range inner {
			k, err := g.GroupKey()
			if err != nil {
				return nil, err
			}
			keys[i] = k.(map[string]any)["y"]
		}
		return keys, nil
	})

	perGroup, err := MapGroups(nil, outer, innerKeys)
	require.NoError(t, err)
	require.Equal(t, []any{
		[]any{"x", "y"},
		[]any{"x", "y"},
		[]any{"y"},
		[]any{"y"},
	}, perGroup.Values())

	flat, err := Flatten(nil, perGroup)
	require.NoError(t, err)
	distinct, err := Unique(nil, flat)
	require.NoError(t, err)
	require.Equal(t, []any{"x", "y"}, distinct.Values())
}

// ============================================================================
// Flatten / Unique
// ============================================================================

func TestFlatten(t *testing.T) {
	l := MustNewList(Optional(ListOf(Int)), []any{1, 2}, nil, []any{}, []any{3})
	tagged, err := l.WithRowTags([]Tags{Tags{}.With("src", "first"), {}, {}, Tags{}.With("src", "last")})
	require.NoError(t, err)

	out, err := Flatten(nil, tagged)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), int64(2), int64(3)}, out.Values())
	require.True(t, out.Type().Equal(Int))

	for i, want := range []string{"first", "first", "last"} {
		v, ok := out.RowTags(i).Get("src")
		require.True(t, ok)
		require.Equal(t, want, v)
	}

	notNested := MustNewList(Int, 1)
	same, err := Flatten(nil, notNested)
	require.NoError(t, err)
	require.Same(t, notNested, same)
}

func TestUnique(t *testing.T) {
	for _, tt := range []struct {
		name string
		list *List
		want []any
	}{
		{name: "strings", list: MustNewList(String, "b", "a", "b", "c", "a"), want: []any{"b", "a", "c"}},
		{name: "nulls", list: MustNewList(Optional(Int), nil, 1, nil), want: []any{nil, int64(1)}},
		{name: "records", list: MustNewList(RecordOf(Field{Name: "k", Type: Int}),
			map[string]any{"k": 1}, map[string]any{"k": 1}, map[string]any{"k": 2}),
			want: []any{map[string]any{"k": int64(1)}, map[string]any{"k": int64(2)}}},
		{name: "nested lists", list: MustNewList(ListOf(Int), []any{1, 2}, []any{2, 1}, []any{1, 2}),
			want: []any{[]any{int64(1), int64(2)}, []any{int64(2), int64(1)}}},
		{name: "empty", list: MustNewList(Int), want: []any{}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			once, err := Unique(nil, tt.list)
			require.NoError(t, err)
			require.Equal(t, tt.want, once.Values())

			twice, err := Unique(nil, once)
			require.NoError(t, err)
			require.True(t, twice.Equal(once), "unique is idempotent")
		})
	}
}

func TestUnique_IgnoresTags(t *testing.T) {
	l := MustNewList(String, "a", "a")
	tagged, err := l.WithRowTags([]Tags{Tags{}.With("k", 1), Tags{}.With("k", 2)})
	require.NoError(t, err)

	out, err := Unique(nil, tagged)
	require.NoError(t, err)
	require.Equal(t, []any{"a"}, out.Values())

	v, _ := out.RowTags(0).Get("k")
	require.Equal(t, 1, v, "the first occurrence keeps its tags")
}

// ============================================================================
// Mapping
// ============================================================================

func TestMapEach(t *testing.T) {
	l := MustNewList(ListOf(Number),
		[]any{1.0, 2.0, 3.0},
		[]any{1.0, 2.0, 3.0},
		[]any{1.0, 2.0, 3.0},
	)
	plusOne := NewFunc(Number, Number, func(v any) (any, error) { return v.(float64) + 1, nil })

	out, err := MapEach(nil, l, plusOne)
	require.NoError(t, err)
	require.Equal(t, []any{
		[]any{2.0, 3.0, 4.0},
		[]any{2.0, 3.0, 4.0},
		[]any{2.0, 3.0, 4.0},
	}, out.Values())
	require.True(t, out.ListType().Equal(ListOf(ListOf(Number))), "got %s", out.ListType())
}

func TestMapEach_KeepsNullsAndDepth(t *testing.T) {
	l := MustNewList(Optional(ListOf(Optional(ListOf(Int)))),
		[]any{[]any{1}, nil},
		nil,
	)
	toString := NewFunc(Int, String, func(v any) (any, error) { return "n", nil })

	out, err := MapEach(nil, l, toString)
	require.NoError(t, err)
	require.Equal(t, []any{[]any{[]any{"n"}, nil}, nil}, out.Values())
	require.True(t, out.Type().Equal(Optional(ListOf(Optional(ListOf(String))))), "got %s", out.Type())
}

func TestMap(t *testing.T) {
	l := MustNewList(Optional(String), "a", nil, "bcd").WithTag("k", "v")
	length := NewFunc(String, Int, func(v any) (any, error) { return len(v.(string)), nil })

	out, err := Map(nil, l, length)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), nil, int64(3)}, out.Values())
	require.True(t, out.Type().Equal(Optional(Int)))

	v, err := out.Tag("k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	bad := NewFunc(String, Int, func(v any) (any, error) { return "x", nil })
	_, err = Map(nil, l, bad)
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	require.Equal(t, 0, tm.Row)
}

// ============================================================================
// Concat
// ============================================================================

func TestConcat(t *testing.T) {
	a := MustNewList(Int, 1, 2, 3)
	b := MustNewList(Int, 10, 20, 30)

	out, err := Concat(nil, a, b, nil)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), int64(2), int64(3), int64(10), int64(20), int64(30)}, out.Values())
	require.True(t, out.Type().Equal(Int))

	empty, err := Concat(nil)
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())
}

func TestConcat_WidensElementType(t *testing.T) {
	out, err := Concat(nil, MustNewList(Int, 1), MustNewList(Optional(Number), 2.5, nil))
	require.NoError(t, err)
	require.Equal(t, []any{1.0, 2.5, nil}, out.Values())
	require.True(t, out.Type().Nullable())

	_, err = Concat(nil, MustNewList(Int, 1), MustNewList(String, "x"))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestConcatRows(t *testing.T) {
	l := MustNewList(Optional(ListOf(Int)), []any{1, 2, 3}, []any{10, 20, 30}, nil)
	out, err := ConcatRows(nil, l)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), int64(2), int64(3), int64(10), int64(20), int64(30)}, out.Values())

	allNull := MustNewList(Optional(ListOf(String)), nil, nil)
	out, err = ConcatRows(nil, allNull)
	require.NoError(t, err)
	require.Equal(t, 0, out.Len())
	require.True(t, out.Type().Equal(String))
}
