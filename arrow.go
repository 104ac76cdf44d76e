package loom

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ============================================================================
// Builders
// ============================================================================

// newBuilder returns an Arrow builder for values of logical type t
func newBuilder(mem memory.Allocator, t *Type) (array.Builder, error) {
	dt, err := t.ArrowType()
	if err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return array.NewBuilder(mem, dt), nil
}

// appendValue appends a Go value to b, following the builder's physical type.
// Logical validation happens before this point; appendValue only fails when
// the value cannot be represented at all.
func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.NullBuilder:
		b.AppendNull()
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("cannot store %T as boolean", v)
		}
		b.Append(bv)
	case *array.Int64Builder:
		i, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("cannot store %T as int64", v)
		}
		b.Append(i)
	case *array.Float64Builder:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("cannot store %T as float64", v)
		}
		b.Append(f)
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cannot store %T as string", v)
		}
		b.Append(s)
	case *array.ListBuilder:
		items, ok := asSlice(v)
		if !ok {
			return fmt.Errorf("cannot store %T as list", v)
		}
		b.Append(true)
		vb := b.ValueBuilder()
		for _, item := range items {
			if err := appendValue(vb, item); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		row, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot store %T as record", v)
		}
		st := b.Type().(*arrow.StructType)
		b.Append(true)
		for i := 0; i < st.NumFields(); i++ {
			if err := appendValue(b.FieldBuilder(i), row[st.Field(i).Name]); err != nil {
				return fmt.Errorf("field %s: %w", st.Field(i).Name, err)
			}
		}
	default:
		return fmt.Errorf("%w: builder %T", ErrUnsupportedType, b)
	}
	return nil
}

// ============================================================================
// Readers
// ============================================================================

// valueAt returns row i of arr as a Go value: nil, bool, int64, float64,
// string, []any or map[string]any.
func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Null:
		return nil
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, valueAt(values, int(j)))
		}
		return out
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		row := make(map[string]any, a.NumField())
		for f := 0; f < a.NumField(); f++ {
			row[st.Field(f).Name] = valueAt(a.Field(f), i)
		}
		return row
	default:
		return nil
	}
}

// ============================================================================
// Value conversion
// ============================================================================

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	default:
		i, ok := toInt64(v)
		return float64(i), ok
	}
}

// asSlice normalizes the Go representations of a list value to []any
func asSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []bool:
		out := make([]any, len(x))
		for i, b := range x {
			out[i] = b
		}
		return out, true
	case *List:
		return x.Values(), true
	default:
		return nil, false
	}
}
