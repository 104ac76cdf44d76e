package main

import (
	"testing"

	"github.com/NerdMeNot/loom"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	r, err := loom.NewStandardRegistry()
	require.NoError(t, err)

	for _, tt := range []struct {
		op           string
		params       []string
		variants     []string
		nullTolerant bool
	}{
		{op: "StringList-in", params: []string{"self", "other"}, variants: []string{"column,column", "column,scalar"}, nullTolerant: true},
		{op: "StringList-contains", params: []string{"self", "other"}, variants: []string{"column,column", "column,scalar"}},
		{op: "StringList-len", params: []string{"self"}, variants: []string{"column"}},
	} {
		t.Run(tt.op, func(t *testing.T) {
			def, ok := r.Lookup(tt.op)
			require.True(t, ok)

			desc := describe(def)
			require.Equal(t, tt.op, desc.Name)
			require.Equal(t, tt.variants, desc.Variants)
			require.Equal(t, tt.nullTolerant, desc.NullTolerant)

			var names []string
			for _, p := range desc.Params {
				names = append(names, p.Name)
				require.NotEmpty(t, p.Constraint)
			}
			require.Equal(t, tt.params, names)
		})
	}
}
