package convert

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/formula"
)

// ErrConversion marks a formatter or formula failure during conversion.
var ErrConversion = eris.New("conversion failed")

// FormulaSource provides the stored conversion expression for a
// characteristic of an entity type, or "" when none is configured.
// Expressions are either arithmetic strings or piecewise lookup tables
// (see the formula package).
type FormulaSource interface {
	Expression(characteristic, entity string) (string, error)
}

// Context carries per-invocation conversion state into formatters.
type Context struct {
	Entity   string
	Language string
}

// Registry dispatches the closed set of named formatters. Unsupported names
// fail fast and are enumerable through Supports.
type Registry struct {
	formulas FormulaSource
}

// NewRegistry creates a formatter registry around a conversion-formula
// source.
func NewRegistry(formulas FormulaSource) *Registry {
	return &Registry{formulas: formulas}
}

var formatterNames = map[string]bool{
	"lang":        true,
	"int":         true,
	"float":       true,
	"string":      true,
	"clamp":       true,
	"truncate":    true,
	"size":        true,
	"level":       true,
	"life":        true,
	"initiative":  true,
	"attribute":   true,
	"resistances": true,
}

// Supports reports whether name is a known formatter.
func (r *Registry) Supports(name string) bool {
	return formatterNames[name]
}

// Apply runs the named formatter over a value. Formatters are pure except
// the formula-backed ones (level, life, initiative, attribute), which read
// auxiliary fields from the raw record when the configured formula needs
// them. The resistances formatter returns a map[string]string fan-out.
func (r *Registry) Apply(name string, value any, args map[string]any, raw map[string]any, mctx Context) (any, error) {
	switch name {
	case "lang":
		return r.formatLang(value, args, mctx), nil
	case "int":
		return cast.ToInt(value), nil
	case "float":
		return cast.ToFloat64(value), nil
	case "string":
		return cast.ToString(value), nil
	case "clamp":
		return formatClamp(value, args), nil
	case "truncate":
		return formatTruncate(value, args), nil
	case "size":
		return formatSize(value, args), nil
	case "level":
		return r.formatFormula("level", value, nil, mctx)
	case "life":
		return r.formatDerived("life", value, raw, mctx)
	case "initiative":
		return r.formatDerived("initiative", value, raw, mctx)
	case "attribute":
		return r.formatAttribute(value, args, raw, mctx)
	case "resistances":
		return ConvertResistances(mctx.Entity, raw, resistanceParams(args)), nil
	default:
		return nil, eris.Wrapf(ErrConversion, "convert: unsupported formatter %q", name)
	}
}

func (r *Registry) formatLang(value any, args map[string]any, mctx Context) any {
	translations, ok := value.(map[string]any)
	if !ok {
		return value
	}
	lang := cast.ToString(args["lang"])
	if lang == "" {
		lang = mctx.Language
	}
	if v, ok := translations[lang]; ok {
		return v
	}
	if v, ok := translations["fr"]; ok {
		return v
	}
	return nil
}

func formatClamp(value any, args map[string]any) int {
	v := cast.ToInt(value)
	if raw, ok := args["min"]; ok {
		if min := cast.ToInt(raw); v < min {
			v = min
		}
	}
	if raw, ok := args["max"]; ok {
		if max := cast.ToInt(raw); v > max {
			v = max
		}
	}
	return v
}

// formatTruncate cuts on rune boundaries so multi-byte text is never split
// mid-character.
func formatTruncate(value any, args map[string]any) string {
	s := cast.ToString(value)
	length := cast.ToInt(args["length"])
	if length <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return strings.TrimSpace(string(runes[:length]))
}

// formatSize maps a source size category code to a named category, e.g.
// {"1": "tiny", "2": "small"}. An unmapped code yields args["default"].
func formatSize(value any, args map[string]any) any {
	values, ok := args["values"].(map[string]any)
	if !ok {
		return value
	}
	if v, ok := values[cast.ToString(value)]; ok {
		return v
	}
	return args["default"]
}

// formatFormula evaluates the stored expression for one characteristic with
// the input value bound to the characteristic's own variable name.
func (r *Registry) formatFormula(characteristic string, value any, extra map[string]float64, mctx Context) (any, error) {
	expr, err := r.formulas.Expression(characteristic, mctx.Entity)
	if err != nil {
		return nil, eris.Wrapf(ErrConversion, "convert: %s formula for %s: %v", characteristic, mctx.Entity, err)
	}

	vars := map[string]float64{characteristic: cast.ToFloat64(value)}
	for k, v := range extra {
		vars[k] = v
	}

	result, err := formula.EvaluateStored(expr, vars)
	if err != nil {
		return nil, eris.Wrapf(ErrConversion, "convert: %s for %s: %v", characteristic, mctx.Entity, err)
	}
	if result == nil {
		return cast.ToInt(value), nil
	}
	return int(*result), nil
}

// formatDerived evaluates a characteristic whose formula may also reference
// the converted level, which is derived first from the raw record's grade.
func (r *Registry) formatDerived(characteristic string, value any, raw map[string]any, mctx Context) (any, error) {
	level, err := r.convertedLevel(raw, mctx)
	if err != nil {
		return nil, err
	}
	return r.formatFormula(characteristic, value, map[string]float64{"level": level}, mctx)
}

func (r *Registry) formatAttribute(value any, args map[string]any, raw map[string]any, mctx Context) (any, error) {
	characteristic := cast.ToString(args["characteristic"])
	if characteristic == "" {
		return nil, eris.Wrap(ErrConversion, "convert: attribute formatter requires a characteristic arg")
	}

	level, err := r.convertedLevel(raw, mctx)
	if err != nil {
		return nil, err
	}
	return r.formatFormula(characteristic, value, map[string]float64{"level": level, "value": cast.ToFloat64(value)}, mctx)
}

// convertedLevel derives the target-model level from the raw record, reading
// the grade level when present. Derived characteristics (life, initiative,
// attributes) feed on it.
func (r *Registry) convertedLevel(raw map[string]any, mctx Context) (float64, error) {
	rawLevel, ok := Resolve(raw, "grades.0.level")
	if !ok {
		rawLevel, _ = Resolve(raw, "level")
	}

	converted, err := r.formatFormula("level", rawLevel, nil, mctx)
	if err != nil {
		return 0, err
	}
	return cast.ToFloat64(converted), nil
}

func resistanceParams(args map[string]any) *ResistanceParams {
	if len(args) == 0 {
		return nil
	}

	params := &ResistanceParams{}
	if raw, ok := args["thresholds"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			params.Thresholds = append(params.Thresholds, TierRange{
				Tier: cast.ToInt(m["tier"]),
				Min:  cast.ToFloat64(m["min"]),
				Max:  cast.ToFloat64(m["max"]),
			})
		}
	}
	if raw, ok := args["caps"].(map[string]any); ok {
		params.Caps = make(map[int]int, len(raw))
		for k, v := range raw {
			params.Caps[cast.ToInt(k)] = cast.ToInt(v)
		}
	}
	if len(params.Thresholds) == 0 && len(params.Caps) == 0 {
		return nil
	}
	return params
}
