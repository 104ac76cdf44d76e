package loom

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func parquetFixture() *List {
	row := RecordOf(
		Field{Name: "name", Type: String},
		Field{Name: "n", Type: Int},
		Field{Name: "ok", Type: Boolean},
		Field{Name: "score", Type: Optional(Number)},
	)
	return MustNewList(row,
		map[string]any{"name": "a", "n": 1, "ok": true, "score": 0.5},
		map[string]any{"name": "b", "n": 2, "ok": false, "score": nil},
		map[string]any{"name": "c", "n": 3, "ok": true, "score": 2.25},
	)
}

func writeParquet(t *testing.T, l *List, opts ...ParquetWriteOptions) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, l.WriteParquetToWriter(&buf, opts...))
	return bytes.NewReader(buf.Bytes())
}

func TestParquet_RoundTrip(t *testing.T) {
	for _, compression := range []string{"snappy", "gzip", "zstd", "none"} {
		t.Run(compression, func(t *testing.T) {
			l := parquetFixture()
			opts := DefaultParquetWriteOptions()
			opts.Compression = compression
			opts.BatchSize = 2
			r := writeParquet(t, l, opts)

			back, err := ReadParquetFromReader(r, r.Size())
			require.NoError(t, err)
			require.True(t, back.Equal(l))
			require.Equal(t, "parquet", back.Provenance().Source())

			score, ok := back.Type().Field("score")
			require.True(t, ok)
			require.True(t, score.Equal(Optional(Number)))
			n, ok := back.Type().Field("n")
			require.True(t, ok)
			require.True(t, n.Equal(Int))
		})
	}
}

func TestParquet_ReadOptions(t *testing.T) {
	r := writeParquet(t, parquetFixture())

	opts := DefaultParquetReadOptions()
	opts.Columns = []string{"score", "name"}
	opts.MaxRows = 2
	back, err := ReadParquetFromReader(r, r.Size(), opts)
	require.NoError(t, err)
	require.Equal(t, []any{
		map[string]any{"score": 0.5, "name": "a"},
		map[string]any{"score": nil, "name": "b"},
	}, back.Values())

	opts = DefaultParquetReadOptions()
	opts.Columns = []string{"missing"}
	_, err = ReadParquetFromReader(r, r.Size(), opts)
	require.ErrorContains(t, err, "missing")
}

func TestParquet_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.parquet")
	l := parquetFixture()
	require.NoError(t, l.WriteParquet(path))

	back, err := ReadParquet(path)
	require.NoError(t, err)
	require.True(t, back.Equal(l))
	require.Equal(t, path, back.Provenance().Source())
}

func TestParquet_Errors(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, MustNewList(Int, 1).WriteParquetToWriter(&buf), ErrUnsupportedType)

	nested := MustNewList(RecordOf(Field{Name: "xs", Type: ListOf(Int)}), map[string]any{"xs": []any{1}})
	require.ErrorIs(t, nested.WriteParquetToWriter(&buf), ErrUnsupportedType)

	require.Error(t, MustNewList(RecordOf()).WriteParquetToWriter(&buf))

	_, err := ReadParquetFromReader(bytes.NewReader([]byte("not parquet")), 11)
	require.Error(t, err)
}
