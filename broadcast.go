package loom

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ElementFunc computes one result row from one row of each operand
type ElementFunc func(left, right any) (any, error)

type broadcastConfig struct {
	nullTolerant bool
	op           string
	param        string
}

// BroadcastOption configures Broadcast
type BroadcastOption func(*broadcastConfig)

// NullTolerant hands null rows to the element function instead of
// producing a null result row.
func NullTolerant() BroadcastOption {
	return func(c *broadcastConfig) { c.nullTolerant = true }
}

// WithOp names the op and right-hand parameter in errors
func WithOp(op, param string) BroadcastOption {
	return func(c *broadcastConfig) {
		c.op = op
		c.param = param
	}
}

// CheckAligned fails with a LengthMismatchError when right is a column whose
// row count differs from left's.
func CheckAligned(op, param string, left *List, right Datum) error {
	if right.Shape() != ShapeColumn {
		return nil
	}
	if n := right.List().Len(); n != left.Len() {
		return &LengthMismatchError{Op: op, Param: param, Left: left.Len(), Right: n}
	}
	return nil
}

// Broadcast applies fn row by row to left and right, producing a list of
// element type out with left's row count. A scalar right operand is reused
// for every row; a column right operand is zipped with left and must have the
// same length. Unless NullTolerant is given, a null on either side yields a
// null row without calling fn. The result keeps left's provenance and tags.
func Broadcast(mem memory.Allocator, left *List, right Datum, out *Type, fn ElementFunc, opts ...BroadcastOption) (*List, error) {
	var cfg broadcastConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := CheckAligned(cfg.op, cfg.param, left, right); err != nil {
		return nil, err
	}

	rightAt := func(int) any { return right.Value() }
	if right.Shape() == ShapeColumn {
		rl := right.List()
		rightAt = rl.Value
	}

	b, err := newBuilder(mem, out)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	b.Reserve(left.Len())

	for i := 0; i < left.Len(); i++ {
		lv, rv := left.Value(i), rightAt(i)
		if !cfg.nullTolerant && (lv == nil || rv == nil) {
			b.AppendNull()
			continue
		}
		v, err := fn(lv, rv)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := appendValue(b, v); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return left.derive(out, b.NewArray(), left.rowTags), nil
}

// MapRows applies fn to every non-null row of left; null rows stay null
func MapRows(mem memory.Allocator, left *List, out *Type, fn func(v any) (any, error)) (*List, error) {
	b, err := newBuilder(mem, out)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	b.Reserve(left.Len())

	for i := 0; i < left.Len(); i++ {
		v := left.Value(i)
		if v == nil {
			b.AppendNull()
			continue
		}
		r, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := appendValue(b, r); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return left.derive(out, b.NewArray(), left.rowTags), nil
}
