package loom

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvokeBatch(t *testing.T) {
	r := standardRegistry(t)

	var calls []Invocation
	for i := 0; i < 20; i++ {
		calls = append(calls, Invocation{
			Op: "StringList-add",
			Args: map[string]Datum{
				"self":  Column(MustNewList(String, "row")),
				"other": Scalar(fmt.Sprintf("-%d", i)),
			},
		})
	}

	for _, cfg := range []BatchConfig{
		DefaultBatchConfig(),
		{MinCallsForParallel: 2, MaxWorkers: 3, Enabled: true},
		{Enabled: false},
	} {
		t.Run(fmt.Sprintf("%+v", cfg), func(t *testing.T) {
			results, err := r.InvokeBatch(context.Background(), calls, cfg)
			require.NoError(t, err)
			require.Len(t, results, len(calls))
			for i, d := range results {
				require.Equal(t, []any{fmt.Sprintf("row-%d", i)}, d.List().Values(), "results keep call order")
			}
		})
	}
}

func TestInvokeBatch_Error(t *testing.T) {
	r := standardRegistry(t)
	calls := []Invocation{
		{Op: "StringList-len", Args: map[string]Datum{"self": Column(MustNewList(String, "a"))}},
		{Op: "StringList-nope", Args: nil},
	}

	for _, cfg := range []BatchConfig{DefaultBatchConfig(), {Enabled: false}} {
		_, err := r.InvokeBatch(context.Background(), calls, cfg)
		require.ErrorIs(t, err, ErrUnknownOp)
		require.Contains(t, err.Error(), "call 1")
	}
}

func TestInvokeBatch_Cancelled(t *testing.T) {
	r := standardRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := []Invocation{
		{Op: "StringList-len", Args: map[string]Datum{"self": Column(MustNewList(String, "a"))}},
	}
	_, err := r.InvokeBatch(ctx, calls, BatchConfig{Enabled: false})
	require.ErrorIs(t, err, context.Canceled)
}
