package loom

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Reading
// ============================================================================

func TestReadJSON_Records(t *testing.T) {
	data := `[
		{"a": [1, 2], "b": "x", "c": [5, 6]},
		{"a": [3, 4], "b": "j", "c": [9, 10]}
	]`
	l, err := ReadJSONFromReader(strings.NewReader(data))
	require.NoError(t, err)

	want := RecordOf(
		Field{Name: "a", Type: ListOf(Int)},
		Field{Name: "b", Type: String},
		Field{Name: "c", Type: ListOf(Int)},
	)
	require.True(t, l.Type().Equal(want), "got %s", l.Type())
	require.True(t, l.Equal(unnestFixture()))
	require.Equal(t, "json", l.Provenance().Source())
}

func TestReadJSON_Inference(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
		want *Type
	}{
		{name: "ints", data: `[1, 2]`, want: Int},
		{name: "int and float widen", data: `[1, 2.5]`, want: Number},
		{name: "null makes optional", data: `["a", null]`, want: Optional(String)},
		{name: "all null", data: `[null, null]`, want: None},
		{name: "empty", data: `[]`, want: None},
		{name: "missing fields", data: `[{"a": 1}, {"b": true}]`, want: RecordOf(
			Field{Name: "a", Type: Optional(Int)},
			Field{Name: "b", Type: Optional(Boolean)},
		)},
		{name: "empty list unifies", data: `[[], ["x"]]`, want: ListOf(String)},
		{name: "only empty lists", data: `[[], []]`, want: ListOf(None)},
		{name: "mixed", data: `["a", 1]`, want: UnionOf(String, Int)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ReadJSONFromReader(strings.NewReader(tt.data))
			if tt.want.Kind() == KindUnion {
				// Strings and ints share no physical layout.
				require.ErrorIs(t, err, ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			require.True(t, l.Type().Equal(tt.want), "got %s, want %s", l.Type(), tt.want)
		})
	}
}

func TestReadJSON_ElemType(t *testing.T) {
	opts := DefaultJSONReadOptions()
	opts.ElemType = Optional(Number)
	l, err := ReadJSONFromReader(strings.NewReader(`[1, null, 3]`), opts)
	require.NoError(t, err)
	require.Equal(t, []any{1.0, nil, 3.0}, l.Values())

	opts.ElemType = String
	_, err = ReadJSONFromReader(strings.NewReader(`[1]`), opts)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestReadJSON_Lines(t *testing.T) {
	opts := DefaultJSONReadOptions()
	opts.Format = JSONLines
	l, err := ReadJSONFromReader(strings.NewReader("{\"y\":\"x\"}\n\n{\"y\":\"y\"}\n"), opts)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"y": "x"}, map[string]any{"y": "y"}}, l.Values())

	_, err = ReadJSONFromReader(strings.NewReader("{\"y\":\"x\"}\n{broken\n"), opts)
	require.ErrorContains(t, err, "line 2")
}

func TestReadJSON_Columns(t *testing.T) {
	opts := DefaultJSONReadOptions()
	opts.Format = JSONColumns
	l, err := ReadJSONFromReader(strings.NewReader(`{"a": [1, 2], "b": ["x", "y"]}`), opts)
	require.NoError(t, err)
	require.Equal(t, []any{
		map[string]any{"a": int64(1), "b": "x"},
		map[string]any{"a": int64(2), "b": "y"},
	}, l.Values())

	_, err = ReadJSONFromReader(strings.NewReader(`{"a": [1, 2], "b": ["x"]}`), opts)
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestReadJSON_Invalid(t *testing.T) {
	_, err := ReadJSONFromReader(strings.NewReader(`{"not": "an array"}`))
	require.Error(t, err)

	_, err = ReadJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

// ============================================================================
// Writing
// ============================================================================

func TestWriteJSON_Formats(t *testing.T) {
	l := MustNewList(RecordOf(Field{Name: "a", Type: Int}, Field{Name: "b", Type: Optional(String)}),
		map[string]any{"a": 1, "b": "x"},
		map[string]any{"a": 2, "b": nil},
	)

	for _, tt := range []struct {
		name   string
		format JSONFormat
		want   string
	}{
		{name: "records", format: JSONRecords, want: `[{"a":1,"b":"x"},{"a":2,"b":null}]` + "\n"},
		{name: "lines", format: JSONLines, want: `{"a":1,"b":"x"}` + "\n" + `{"a":2,"b":null}` + "\n"},
		{name: "columns", format: JSONColumns, want: `{"a":[1,2],"b":["x",null]}` + "\n"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			opts := DefaultJSONWriteOptions()
			opts.Format = tt.format
			require.NoError(t, l.WriteJSONToWriter(&buf, opts))
			require.Equal(t, tt.want, buf.String())

			read := DefaultJSONReadOptions()
			read.Format = tt.format
			back, err := ReadJSONFromReader(&buf, read)
			require.NoError(t, err)
			require.True(t, back.Equal(l))
		})
	}

	var buf bytes.Buffer
	opts := DefaultJSONWriteOptions()
	opts.Format = JSONColumns
	require.Error(t, MustNewList(Int, 1).WriteJSONToWriter(&buf, opts))
}

func TestWriteJSON_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.json")
	l := MustNewList(ListOf(Number), []any{1.5}, []any{})
	require.NoError(t, l.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[[1.5],[]]\n", string(data))

	back, err := ReadJSON(path)
	require.NoError(t, err)
	require.True(t, back.Equal(l))
	require.Equal(t, path, back.Provenance().Source())
}
