package loom

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every error returned by this package matches one of
// these through errors.Is.
var (
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrDuplicateOp     = errors.New("duplicate op")
	ErrLengthMismatch  = errors.New("length mismatch")
	ErrTagNotFound     = errors.New("tag not found")
	ErrKernel          = errors.New("kernel error")
	ErrUnknownOp       = errors.New("unknown op")
	ErrIncompleteOp    = errors.New("incomplete op")
	ErrOutputType      = errors.New("output type mismatch")
	ErrUnsupportedType = errors.New("unsupported type")
)

// TypeMismatchError reports an argument or value whose type does not satisfy
// what was expected.
type TypeMismatchError struct {
	Op       string // op name (empty outside dispatch)
	Param    string // parameter name (empty if not parameter-specific)
	Expected string // expected type or constraint
	Actual   *Type  // actual type (nil if the argument was missing)
	Row      int    // offending row (-1 if unknown)
}

func (e *TypeMismatchError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op %s", e.Op))
	}
	if e.Param != "" {
		parts = append(parts, fmt.Sprintf("parameter %q", e.Param))
	}
	if e.Row >= 0 {
		parts = append(parts, fmt.Sprintf("row %d", e.Row))
	}
	actual := "missing argument"
	if e.Actual != nil {
		actual = e.Actual.String()
	}
	parts = append(parts, fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, actual))
	return strings.Join(parts, ": ")
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// LengthMismatchError reports two columnar operands zipped with different row counts.
type LengthMismatchError struct {
	Op    string
	Param string
	Left  int
	Right int
}

func (e *LengthMismatchError) Error() string {
	msg := fmt.Sprintf("length mismatch: %d rows vs %d rows", e.Left, e.Right)
	if e.Param != "" {
		msg = fmt.Sprintf("parameter %q: %s", e.Param, msg)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("op %s: %s", e.Op, msg)
	}
	return msg
}

func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }

// TagNotFoundError reports a read of a tag that was never attached.
type TagNotFoundError struct {
	Kind TagKind
}

func (e *TagNotFoundError) Error() string {
	return fmt.Sprintf("tag %q not found", e.Kind)
}

func (e *TagNotFoundError) Unwrap() error { return ErrTagNotFound }

// KernelError wraps a failure of a compute kernel. Both ErrKernel and the
// kernel's own error are reachable through errors.Is and errors.As.
type KernelError struct {
	Op     string
	Kernel string
	Err    error
}

func (e *KernelError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("op %s: kernel %s: %v", e.Op, e.Kernel, e.Err)
	}
	return fmt.Sprintf("kernel %s: %v", e.Kernel, e.Err)
}

func (e *KernelError) Unwrap() []error { return []error{ErrKernel, e.Err} }

// OpError reports a registry level failure for a named op.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// kernelError wraps err as a KernelError unless it already carries a
// dispatch-level meaning.
func kernelError(op, kernel string, err error) error {
	if err == nil {
		return nil
	}
	var ke *KernelError
	if errors.As(err, &ke) || errors.Is(err, ErrLengthMismatch) || errors.Is(err, ErrTypeMismatch) {
		return err
	}
	return &KernelError{Op: op, Kernel: kernel, Err: err}
}
