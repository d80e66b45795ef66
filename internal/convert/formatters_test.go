package convert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFormulas serves conversion expressions keyed "entity/characteristic".
type stubFormulas struct {
	exprs map[string]string
	err   error
}

func (s *stubFormulas) Expression(characteristic, entity string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.exprs[entity+"/"+characteristic], nil
}

func monsterFormulas() *stubFormulas {
	return &stubFormulas{exprs: map[string]string{
		"monster/level":      "floor([level] / 10)",
		"monster/life":       "floor([life] / 200) + [level] * 5",
		"monster/initiative": "[initiative] + [level]",
		"monster/strength":   `{"characteristic":"value","0":1,"100":2,"300":3}`,
	}}
}

func monsterRaw() map[string]any {
	return map[string]any{
		"id":     float64(31),
		"name":   map[string]any{"fr": "Bouftou", "en": "Gobball"},
		"raceId": float64(1),
		"grades": []any{
			map[string]any{"level": float64(50), "lifePoints": float64(800)},
		},
	}
}

func TestRegistrySupports(t *testing.T) {
	r := NewRegistry(monsterFormulas())

	for _, name := range []string{"lang", "int", "float", "string", "clamp", "truncate", "size", "level", "life", "initiative", "attribute", "resistances"} {
		assert.True(t, r.Supports(name), name)
	}
	assert.False(t, r.Supports("eval"))
	assert.False(t, r.Supports(""))
}

func TestApplyUnsupported(t *testing.T) {
	r := NewRegistry(monsterFormulas())

	_, err := r.Apply("eval", 1, nil, nil, Context{Entity: "monster"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestApplyLang(t *testing.T) {
	r := NewRegistry(monsterFormulas())
	value := map[string]any{"fr": "Bouftou", "en": "Gobball"}

	got, err := r.Apply("lang", value, map[string]any{"lang": "en"}, nil, Context{})
	require.NoError(t, err)
	assert.Equal(t, "Gobball", got)

	got, err = r.Apply("lang", value, nil, nil, Context{Language: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "Bouftou", got)

	// Unknown language falls back to fr.
	got, err = r.Apply("lang", value, map[string]any{"lang": "de"}, nil, Context{})
	require.NoError(t, err)
	assert.Equal(t, "Bouftou", got)

	// Non-map input passes through.
	got, err = r.Apply("lang", "plain", nil, nil, Context{})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestApplyScalars(t *testing.T) {
	r := NewRegistry(monsterFormulas())
	ctx := Context{Entity: "monster"}

	got, err := r.Apply("int", "42", nil, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = r.Apply("int", "not a number", nil, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = r.Apply("float", "2.5", nil, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	got, err = r.Apply("string", 31, nil, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "31", got)

	got, err = r.Apply("clamp", 150, map[string]any{"min": 1, "max": 100}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	got, err = r.Apply("clamp", -5, map[string]any{"min": 1, "max": 100}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = r.Apply("truncate", "Bouftou royal", map[string]any{"length": 7}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bouftou", got)

	// Accented names cut on rune boundaries, never mid-character.
	got, err = r.Apply("truncate", "Chafer Lancier Élité", map[string]any{"length": 17}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chafer Lancier Él", got)

	got, err = r.Apply("truncate", "Wabbit Cawotte", map[string]any{"length": 50}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Wabbit Cawotte", got)

	got, err = r.Apply("size", 2, map[string]any{
		"values":  map[string]any{"1": "tiny", "2": "small", "3": "medium"},
		"default": "medium",
	}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "small", got)

	got, err = r.Apply("size", 9, map[string]any{
		"values":  map[string]any{"1": "tiny"},
		"default": "medium",
	}, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "medium", got)
}

func TestApplyFormulaChain(t *testing.T) {
	r := NewRegistry(monsterFormulas())
	raw := monsterRaw()
	ctx := Context{Entity: "monster"}

	level, err := r.Apply("level", float64(50), nil, raw, ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, level)

	// life derives the level first, then feeds it into its own formula:
	// floor(800/200) + 5*5 = 29.
	life, err := r.Apply("life", float64(800), nil, raw, ctx)
	require.NoError(t, err)
	assert.Equal(t, 29, life)

	init, err := r.Apply("initiative", float64(12), nil, raw, ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, init)
}

func TestApplyAttributeTableMode(t *testing.T) {
	r := NewRegistry(monsterFormulas())
	raw := monsterRaw()

	got, err := r.Apply("attribute", float64(150), map[string]any{"characteristic": "strength"}, raw, Context{Entity: "monster"})
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = r.Apply("attribute", float64(150), nil, raw, Context{Entity: "monster"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestApplyFormulaNoExpression(t *testing.T) {
	// No configured expression: the input value passes through as an int.
	r := NewRegistry(&stubFormulas{exprs: map[string]string{}})

	got, err := r.Apply("level", float64(7), nil, map[string]any{}, Context{Entity: "monster"})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestApplyFormulaSourceError(t *testing.T) {
	r := NewRegistry(&stubFormulas{err: errors.New("backend down")})

	_, err := r.Apply("level", float64(7), nil, map[string]any{}, Context{Entity: "monster"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestApplyResistances(t *testing.T) {
	r := NewRegistry(monsterFormulas())
	raw := resistanceRecord(95, 0, 0, 0, 0)

	got, err := r.Apply("resistances", nil, nil, raw, Context{Entity: "monster"})
	require.NoError(t, err)

	fanout, ok := got.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "100", fanout["res_neutral"])
	assert.Equal(t, "0", fanout["res_neutral_fixed"])
}
