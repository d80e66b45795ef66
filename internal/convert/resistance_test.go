package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resistanceRecord(neutral, earth, fire, water, air float64) map[string]any {
	return map[string]any{
		"grades": []any{
			map[string]any{
				"neutralResistance": neutral,
				"earthResistance":   earth,
				"fireResistance":    fire,
				"waterResistance":   water,
				"airResistance":     air,
			},
		},
	}
}

func TestConvertResistancesTiers(t *testing.T) {
	got := ConvertResistances("monster", resistanceRecord(95, 50, -60, -95, 10), nil)

	assert.Equal(t, "100", got["res_neutral"])
	assert.Equal(t, "50", got["res_earth"])
	assert.Equal(t, "-50", got["res_fire"])
	assert.Equal(t, "-100", got["res_water"])
	assert.Equal(t, "0", got["res_air"])

	// Fixed-remainder companions are a reserved extension point: always 0.
	for _, el := range Elements {
		assert.Equal(t, "0", got["res_"+el+"_fixed"], el)
	}
}

func TestConvertResistancesInvulnerableCap(t *testing.T) {
	// Three elements qualify for tier 100 with equal magnitude; the default
	// cap is 1, so only the first in evaluation order keeps it.
	got := ConvertResistances("monster", resistanceRecord(0, 95, 95, 95, 0), nil)

	assert.Equal(t, "100", got["res_earth"])
	assert.Equal(t, "0", got["res_fire"])
	assert.Equal(t, "0", got["res_water"])
	assert.Equal(t, "0", got["res_neutral"])
	assert.Equal(t, "0", got["res_air"])
}

func TestConvertResistancesCapPrefersHigherMagnitude(t *testing.T) {
	// water (98) outranks earth (92) for the single invulnerable slot even
	// though earth is evaluated first.
	got := ConvertResistances("monster", resistanceRecord(0, 92, 0, 98, 0), nil)

	assert.Equal(t, "100", got["res_water"])
	assert.Equal(t, "0", got["res_earth"])
}

func TestConvertResistancesTopLevelFields(t *testing.T) {
	raw := map[string]any{
		"neutralResistance": float64(45),
		"fireResistance":    float64(-45),
	}
	got := ConvertResistances("monster", raw, nil)

	assert.Equal(t, "50", got["res_neutral"])
	assert.Equal(t, "-50", got["res_fire"])
	// Missing inputs default to 0.
	assert.Equal(t, "0", got["res_earth"])
	assert.Equal(t, "0", got["res_water"])
	assert.Equal(t, "0", got["res_air"])
}

func TestConvertResistancesOverrides(t *testing.T) {
	params := &ResistanceParams{
		Thresholds: []TierRange{{Tier: 100, Min: 10, Max: 101}},
		Caps:       map[int]int{100: 2},
	}
	got := ConvertResistances("monster", resistanceRecord(20, 30, 40, 0, 0), params)

	// Custom threshold admits all three, custom cap keeps two: fire (40)
	// and earth (30) by magnitude, neutral demoted.
	assert.Equal(t, "100", got["res_fire"])
	assert.Equal(t, "100", got["res_earth"])
	assert.Equal(t, "0", got["res_neutral"])
}

func TestConvertResistancesBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{pct: 90, want: "100"},
		{pct: 89.9, want: "50"},
		{pct: 40, want: "50"},
		{pct: 39.9, want: "0"},
		{pct: -40, want: "-50"},
		{pct: -90, want: "-50"},
		{pct: -90.1, want: "-100"},
		{pct: 0, want: "0"},
	}
	for _, tc := range tests {
		got := ConvertResistances("monster", resistanceRecord(tc.pct, 0, 0, 0, 0), nil)
		assert.Equal(t, tc.want, got["res_neutral"], "pct %v", tc.pct)
	}
}
