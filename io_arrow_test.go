package loom

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func arrowFixture() *List {
	row := RecordOf(
		Field{Name: "name", Type: String},
		Field{Name: "score", Type: Optional(Number)},
		Field{Name: "tags", Type: ListOf(String)},
	)
	return MustNewList(row,
		map[string]any{"name": "a", "score": 1.5, "tags": []any{"x"}},
		map[string]any{"name": "b", "score": nil, "tags": []any{}},
		map[string]any{"name": "c", "score": 3.0, "tags": []any{"y", "z"}},
	)
}

func TestArrow_RecordRoundTrip(t *testing.T) {
	l := arrowFixture()

	record, err := l.ToRecord(memory.DefaultAllocator)
	require.NoError(t, err)
	defer record.Release()

	require.EqualValues(t, 3, record.NumRows())
	require.EqualValues(t, 3, record.NumCols())
	require.Equal(t, "score", record.Schema().Field(1).Name)

	back, err := FromRecord(record, NewProvenance("arrow"))
	require.NoError(t, err)
	require.True(t, back.Equal(l))
	require.Equal(t, "arrow", back.Provenance().Source())

	// Arrow columns are nullable, so every field comes back Optional.
	score, ok := back.Type().Field("score")
	require.True(t, ok)
	require.True(t, score.Equal(Optional(Number)))
	name, ok := back.Type().Field("name")
	require.True(t, ok)
	require.True(t, name.Equal(Optional(String)))
}

func TestArrow_TableRoundTrip(t *testing.T) {
	l := arrowFixture()

	table, err := l.ToTable(memory.DefaultAllocator)
	require.NoError(t, err)
	defer table.Release()
	require.EqualValues(t, 3, table.NumRows())

	back, err := FromTable(table, Provenance{})
	require.NoError(t, err)
	require.True(t, back.Equal(l))
}

func TestArrow_EmptyTable(t *testing.T) {
	l := MustNewList(RecordOf(Field{Name: "a", Type: Int}))

	table, err := l.ToTable(memory.DefaultAllocator)
	require.NoError(t, err)
	defer table.Release()

	back, err := FromTable(table, Provenance{})
	require.NoError(t, err)
	require.Equal(t, 0, back.Len())
	require.Equal(t, KindRecord, back.Type().Kind())
}

func TestArrow_Errors(t *testing.T) {
	_, err := MustNewList(Int, 1, 2).ToRecord(memory.DefaultAllocator)
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = MustNewList(String, "a").ToTable(memory.DefaultAllocator)
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = FromRecord(nil, Provenance{})
	require.Error(t, err)

	_, err = FromTable(nil, Provenance{})
	require.Error(t, err)
}
