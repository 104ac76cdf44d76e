package loom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/grafana/regexp"
)

// String kernels operate on whole Arrow string arrays and return an array of
// the same length. Null input rows give null output rows. A kernel that
// rejects its input returns a plain error; callers wrap it as a KernelError.

var errEmptyPattern = errors.New("empty pattern")

// ============================================================================
// Comparison (arrow compute)
// ============================================================================

// CompareEqual runs the arrow compute "equal" kernel. right is a string, nil
// (a null scalar) or an arrow.Array of the same length as left.
func CompareEqual(ctx context.Context, mem memory.Allocator, left arrow.Array, right any) (arrow.Array, error) {
	return compare(ctx, mem, "equal", left, right)
}

// CompareNotEqual runs the arrow compute "not_equal" kernel
func CompareNotEqual(ctx context.Context, mem memory.Allocator, left arrow.Array, right any) (arrow.Array, error) {
	return compare(ctx, mem, "not_equal", left, right)
}

func compare(ctx context.Context, mem memory.Allocator, fn string, left arrow.Array, right any) (arrow.Array, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	ctx = compute.WithAllocator(ctx, mem)

	var rhs compute.Datum
	switch r := right.(type) {
	case nil:
		rhs = compute.NewDatum(scalar.MakeNullScalar(left.DataType()))
	case string:
		rhs = compute.NewDatum(scalar.NewStringScalar(r))
	case arrow.Array:
		rhs = compute.NewDatum(r)
	default:
		return nil, fmt.Errorf("%s: unsupported operand %T", fn, right)
	}
	lhs := compute.NewDatum(left)
	defer lhs.Release()
	defer rhs.Release()

	out, err := compute.CallFunction(ctx, fn, nil, lhs, rhs)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	ad, ok := out.(*compute.ArrayDatum)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result kind %s", fn, out.Kind())
	}
	return ad.MakeArray(), nil
}

// ============================================================================
// Row helpers
// ============================================================================

func mapStrings(mem memory.Allocator, arr *array.String, fn func(string) (string, error)) (arrow.Array, error) {
	b := array.NewStringBuilder(orDefault(mem))
	defer b.Release()
	b.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		s, err := fn(arr.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		b.Append(s)
	}
	return b.NewStringArray(), nil
}

func mapBools(mem memory.Allocator, arr *array.String, fn func(string) bool) arrow.Array {
	b := array.NewBooleanBuilder(orDefault(mem))
	defer b.Release()
	b.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(fn(arr.Value(i)))
	}
	return b.NewBooleanArray()
}

func allNull(mem memory.Allocator, dt arrow.DataType, n int) arrow.Array {
	return array.MakeArrayOfNull(orDefault(mem), dt, n)
}

func orDefault(mem memory.Allocator) memory.Allocator {
	if mem == nil {
		return memory.DefaultAllocator
	}
	return mem
}

// ============================================================================
// Length, case and predicates
// ============================================================================

// ByteLength returns the UTF-8 byte length of every row
func ByteLength(mem memory.Allocator, arr *array.String) arrow.Array {
	b := array.NewInt64Builder(orDefault(mem))
	defer b.Release()
	b.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(int64(len(arr.Value(i))))
	}
	return b.NewInt64Array()
}

// ASCIILower lowercases ASCII letters, leaving other bytes untouched
func ASCIILower(mem memory.Allocator, arr *array.String) arrow.Array {
	out, _ := mapStrings(mem, arr, func(s string) (string, error) {
		return asciiFold(s, 'A', 'Z', 'a'-'A'), nil
	})
	return out
}

// ASCIIUpper uppercases ASCII letters, leaving other bytes untouched
func ASCIIUpper(mem memory.Allocator, arr *array.String) arrow.Array {
	out, _ := mapStrings(mem, arr, func(s string) (string, error) {
		return asciiFold(s, 'a', 'z', 'A'-'a'), nil
	})
	return out
}

func asciiFold(s string, lo, hi byte, delta int) string {
	buf := []byte(s)
	for i, c := range buf {
		if c >= lo && c <= hi {
			buf[i] = byte(int(c) + delta)
		}
	}
	return string(buf)
}

// ASCIIIsAlpha is true for non-empty rows made only of ASCII letters
func ASCIIIsAlpha(mem memory.Allocator, arr *array.String) arrow.Array {
	return mapBools(mem, arr, asciiAll(isASCIIAlpha))
}

// ASCIIIsDecimal is true for non-empty rows made only of ASCII digits
func ASCIIIsDecimal(mem memory.Allocator, arr *array.String) arrow.Array {
	return mapBools(mem, arr, asciiAll(isASCIIDigit))
}

// ASCIIIsAlnum is true for non-empty rows made only of ASCII letters and digits
func ASCIIIsAlnum(mem memory.Allocator, arr *array.String) arrow.Array {
	return mapBools(mem, arr, asciiAll(func(c byte) bool { return isASCIIAlpha(c) || isASCIIDigit(c) }))
}

func asciiAll(pred func(byte) bool) func(string) bool {
	return func(s string) bool {
		if s == "" {
			return false
		}
		for i := 0; i < len(s); i++ {
			if !pred(s[i]) {
				return false
			}
		}
		return true
	}
}

func isASCIIAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }

// ============================================================================
// Substrings
// ============================================================================

// MatchSubstring is true for rows containing pattern
func MatchSubstring(mem memory.Allocator, arr *array.String, pattern string) arrow.Array {
	return mapBools(mem, arr, func(s string) bool { return strings.Contains(s, pattern) })
}

// StartsWith is true for rows beginning with prefix
func StartsWith(mem memory.Allocator, arr *array.String, prefix string) arrow.Array {
	return mapBools(mem, arr, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// EndsWith is true for rows ending with suffix
func EndsWith(mem memory.Allocator, arr *array.String, suffix string) arrow.Array {
	return mapBools(mem, arr, func(s string) bool { return strings.HasSuffix(s, suffix) })
}

// ReplaceSubstring replaces every non-overlapping occurrence of pattern
func ReplaceSubstring(mem memory.Allocator, arr *array.String, pattern, replacement string) (arrow.Array, error) {
	if pattern == "" {
		return nil, errEmptyPattern
	}
	return mapStrings(mem, arr, func(s string) (string, error) {
		return strings.ReplaceAll(s, pattern, replacement), nil
	})
}

// TrimWhitespace strips Unicode whitespace from the left and/or right end of every row
func TrimWhitespace(mem memory.Allocator, arr *array.String, left, right bool) arrow.Array {
	out, _ := mapStrings(mem, arr, func(s string) (string, error) {
		if left {
			s = strings.TrimLeftFunc(s, unicode.IsSpace)
		}
		if right {
			s = strings.TrimRightFunc(s, unicode.IsSpace)
		}
		return s, nil
	})
	return out
}

// SliceCodepoints returns codepoints [start, stop) of every row. Negative
// bounds count from the end of the row; out-of-range bounds are clamped.
func SliceCodepoints(mem memory.Allocator, arr *array.String, start, stop int64) arrow.Array {
	out, _ := mapStrings(mem, arr, func(s string) (string, error) {
		return sliceRunes(s, start, stop), nil
	})
	return out
}

func sliceRunes(s string, start, stop int64) string {
	n := int64(utf8.RuneCountInString(s))
	clamp := func(i int64) int64 {
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	start, stop = clamp(start), clamp(stop)
	if stop <= start {
		return ""
	}
	runes := []rune(s)
	return string(runes[start:stop])
}

// ConcatStrings appends (or, with prepend set, prepends) s to every row
func ConcatStrings(mem memory.Allocator, arr *array.String, s string, prepend bool) arrow.Array {
	out, _ := mapStrings(mem, arr, func(v string) (string, error) {
		if prepend {
			return s + v, nil
		}
		return v + s, nil
	})
	return out
}

// ============================================================================
// Splitting, joining and patterns
// ============================================================================

// SplitPattern splits every row on the literal pattern, giving a list<string> array
func SplitPattern(mem memory.Allocator, arr *array.String, pattern string) (arrow.Array, error) {
	if pattern == "" {
		return nil, errEmptyPattern
	}
	b := array.NewListBuilder(orDefault(mem), arrow.BinaryTypes.String)
	defer b.Release()
	vb := b.ValueBuilder().(*array.StringBuilder)

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(true)
		for _, part := range strings.Split(arr.Value(i), pattern) {
			vb.Append(part)
		}
	}
	return b.NewListArray(), nil
}

// JoinList joins the string elements of every list row with sep. Null
// elements are skipped.
func JoinList(mem memory.Allocator, arr *array.List, sep string) (arrow.Array, error) {
	values, ok := arr.ListValues().(*array.String)
	if !ok {
		return nil, fmt.Errorf("join: list values are %s, not utf8", arr.ListValues().DataType())
	}
	b := array.NewStringBuilder(orDefault(mem))
	defer b.Release()

	var parts []string
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		start, end := arr.ValueOffsets(i)
		parts = parts[:0]
		for j := start; j < end; j++ {
			if values.IsValid(int(j)) {
				parts = append(parts, values.Value(int(j)))
			}
		}
		b.Append(strings.Join(parts, sep))
	}
	return b.NewStringArray(), nil
}

// MatchRegex is true for rows in which the regular expression finds a match
func MatchRegex(mem memory.Allocator, arr *array.String, pattern string) (arrow.Array, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return mapBools(mem, arr, re.MatchString), nil
}
