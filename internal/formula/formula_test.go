package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars map[string]float64
		want float64
	}{
		{name: "variable times literal", expr: "[level] * 2", vars: map[string]float64{"level": 10}, want: 20},
		{name: "precedence", expr: "2 + 3 * 4", want: 14},
		{name: "parentheses", expr: "(2 + 3) * 4", want: 20},
		{name: "unary minus", expr: "-[level] + 1", vars: map[string]float64{"level": 4}, want: -3},
		{name: "floor", expr: "floor([life] / 200)", vars: map[string]float64{"life": 850}, want: 4},
		{name: "ceil", expr: "ceil(1.2)", want: 2},
		{name: "round", expr: "round(2.5)", want: 3},
		{name: "min", expr: "min([a], [b], 3)", vars: map[string]float64{"a": 7, "b": 5}, want: 3},
		{name: "max", expr: "max(1, [a])", vars: map[string]float64{"a": 9}, want: 9},
		{name: "undefined variable is zero", expr: "[missing] + 2", want: 2},
		{name: "nested calls", expr: "max(floor(7/2), min(10, 4))", want: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Evaluate(tc.expr, tc.vars)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.InDelta(t, tc.want, *got, 1e-9)
		})
	}
}

func TestEvaluateEmpty(t *testing.T) {
	got, err := Evaluate("", map[string]float64{"level": 3})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = Evaluate("   ", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "division by zero", expr: "1 / 0"},
		{name: "injection attempt", expr: `[level]; system("id");`},
		{name: "unknown function", expr: "sqrt(4)"},
		{name: "bare identifier", expr: "level + 1"},
		{name: "unterminated variable", expr: "[level"},
		{name: "trailing operator", expr: "2 +"},
		{name: "unbalanced paren", expr: "(1 + 2"},
		{name: "wrong arity", expr: "min(1)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Evaluate(tc.expr, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEvaluate))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate("[level] * 2 + floor([vitality]/10)"))
	assert.Empty(t, Validate(""))
	assert.Empty(t, Validate(`{"characteristic":"level","1":0,"7":2}`))

	assert.NotEmpty(t, Validate(`[level]; system("id");`))
	assert.NotEmpty(t, Validate("import os"))
	assert.NotEmpty(t, Validate("2 ** 3"))
}

func TestEvaluateRangeOrderInvariant(t *testing.T) {
	want := map[int]float64{1: 1, 2: 2, 3: 3, 4: 4, 5: 5}

	asc, err := EvaluateRange("[level]", "level", 1, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, want, asc)

	desc, err := EvaluateRange("[level]", "level", 5, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, want, desc)
}

func TestEvaluateRangeBaseVariables(t *testing.T) {
	base := map[string]float64{"bonus": 10}
	got, err := EvaluateRange("[level] + [bonus]", "level", 2, 3, base)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{2: 12, 3: 13}, got)

	// Base map is not mutated by the sweep.
	assert.Equal(t, map[string]float64{"bonus": 10}, base)
}

func TestParseTable(t *testing.T) {
	tbl, ok := ParseTable(`{"characteristic":"level","1":0,"7":2,"14":4}`)
	require.True(t, ok)
	assert.Equal(t, "level", tbl.Characteristic)

	tests := []struct {
		x    float64
		want float64
	}{
		{x: 10, want: 2},  // largest threshold <= 10 is 7
		{x: 20, want: 4},  // above the top threshold
		{x: 0, want: 0},   // below the lowest threshold: lowest entry
		{x: 7, want: 2},   // exact threshold
		{x: 1, want: 0},   // exact lowest threshold
		{x: 13.9, want: 2},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, tbl.Lookup(tc.x), 1e-9, "lookup at %v", tc.x)
	}
}

func TestParseTableRejects(t *testing.T) {
	_, ok := ParseTable("[level] * 2")
	assert.False(t, ok)

	// Valid JSON without a characteristic key is not a table.
	_, ok = ParseTable(`{"1": 0, "7": 2}`)
	assert.False(t, ok)

	_, ok = ParseTable(`{"characteristic": "level"}`)
	assert.False(t, ok)

	_, ok = ParseTable(`{"characteristic": "level",`)
	assert.False(t, ok)
}

func TestEvaluateStored(t *testing.T) {
	got, err := EvaluateStored(`{"characteristic":"level","1":0,"7":2,"14":4}`, map[string]float64{"level": 10})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 2, *got, 1e-9)

	got, err = EvaluateStored("[level] * 2", map[string]float64{"level": 10})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 20, *got, 1e-9)

	// Malformed table JSON without a characteristic key falls back to
	// arithmetic parsing, which fails loudly.
	_, err = EvaluateStored(`{"1": 0}`, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEvaluate))
}
