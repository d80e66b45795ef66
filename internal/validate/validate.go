// Package validate checks converted records against the per-entity
// characteristic constraints: required fields, numeric ranges and enum
// membership. Violations are accumulated as data, never raised, so one pass
// surfaces every problem at once.
package validate

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/characteristics"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/convert"
)

// FieldError is one constraint violation.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result reports all violations of one record. Valid is true exactly when
// Errors is empty.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

const (
	msgRequired     = "required field missing"
	msgOutOfRange   = "value must be between :min and :max"
	msgNotInAllowed = "value is not in the allowed set"
)

// entityAliases maps entities without their own ruleset onto the entity
// whose constraint set they inherit.
var entityAliases = map[string]string{
	"player": "class",
	"npc":    "class",
}

// Engine validates converted records against an injected read-only
// characteristic repository.
type Engine struct {
	repo characteristics.Repository
}

// New creates a validation engine.
func New(repo characteristics.Repository) *Engine {
	return &Engine{repo: repo}
}

// Validate checks one converted record for the given entity type. The
// returned error reports repository failures only; constraint violations
// live in the Result.
func (e *Engine) Validate(ctx context.Context, rec convert.Record, entity string) (*Result, error) {
	if alias, ok := entityAliases[entity]; ok {
		entity = alias
	}

	defs, err := e.repo.Characteristics(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "validate: load characteristics")
	}

	merged := mergeGroups(rec)

	var errs []FieldError
	errs = append(errs, checkRequired(defs, merged, entity)...)
	errs = append(errs, checkRanges(defs, merged, entity)...)
	errs = append(errs, checkEnums(defs, rec, entity)...)

	return &Result{Valid: len(errs) == 0, Errors: errs}, nil
}

// mergeGroups flattens all model groups into one field map. Groups are
// visited in sorted name order; later groups overwrite earlier ones on key
// collision.
func mergeGroups(rec convert.Record) map[string]any {
	groups := make([]string, 0, len(rec))
	for g := range rec {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	merged := make(map[string]any)
	for _, g := range groups {
		for k, v := range rec[g] {
			merged[k] = v
		}
	}
	return merged
}

func sortedIDs(defs map[string]characteristics.Definition) []string {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func checkRequired(defs map[string]characteristics.Definition, merged map[string]any, entity string) []FieldError {
	var errs []FieldError
	for _, id := range sortedIDs(defs) {
		d := defs[id]
		c, ok := d.PerEntity[entity]
		if !ok || !c.Required {
			continue
		}

		if _, ok := merged[d.ID]; ok {
			continue
		}
		if d.DBColumn != "" {
			if _, ok := merged[d.DBColumn]; ok {
				continue
			}
		}
		// Historical shim: the life characteristic tolerates records that
		// carry the legacy life_dice key instead. Do not generalize.
		if d.ID == "life" {
			if _, ok := merged["life_dice"]; ok {
				continue
			}
		}
		errs = append(errs, FieldError{Path: d.ID, Message: msgRequired})
	}
	return errs
}

func checkRanges(defs map[string]characteristics.Definition, merged map[string]any, entity string) []FieldError {
	byKey := make(map[string]characteristics.Definition, len(defs)*2)
	for _, d := range defs {
		byKey[d.ID] = d
		if d.DBColumn != "" {
			byKey[d.DBColumn] = d
		}
	}

	fields := make([]string, 0, len(merged))
	for f := range merged {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var errs []FieldError
	for _, f := range fields {
		d, ok := byKey[f]
		if !ok || d.Type != characteristics.TypeInt {
			continue
		}
		c, ok := d.PerEntity[entity]
		if !ok || (c.Min == nil && c.Max == nil) {
			continue
		}

		// Non-numeric values coerce to 0 before comparison.
		v := cast.ToInt(merged[f])
		if (c.Min != nil && v < *c.Min) || (c.Max != nil && v > *c.Max) {
			errs = append(errs, FieldError{Path: d.ID, Message: rangeMessage(c)})
		}
	}
	return errs
}

func rangeMessage(c characteristics.Constraint) string {
	msg := c.ValidationMessage
	if msg == "" {
		msg = msgOutOfRange
	}
	msg = strings.ReplaceAll(msg, ":min", boundString(c.Min))
	return strings.ReplaceAll(msg, ":max", boundString(c.Max))
}

func boundString(b *int) string {
	if b == nil {
		return "-"
	}
	return strconv.Itoa(*b)
}

func checkEnums(defs map[string]characteristics.Definition, rec convert.Record, entity string) []FieldError {
	groups := make([]string, 0, len(rec))
	for g := range rec {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var errs []FieldError
	for _, id := range sortedIDs(defs) {
		d := defs[id]
		if d.Type != characteristics.TypeArray || !d.AppliesToEntity(entity) {
			continue
		}
		c, ok := d.PerEntity[entity]
		if !ok || len(c.ValueAvailable) == 0 {
			continue
		}

		allowed := make(map[string]bool, len(c.ValueAvailable))
		for _, v := range c.ValueAvailable {
			allowed[v] = true
		}

		keys := []string{d.ID}
		if d.DBColumn != "" && d.DBColumn != d.ID {
			keys = append(keys, d.DBColumn)
		}

		for _, g := range groups {
			for _, key := range keys {
				v, ok := rec[g][key]
				if !ok {
					continue
				}
				for _, item := range occurrences(v) {
					if !allowed[cast.ToString(item)] {
						errs = append(errs, FieldError{Path: g + "." + key, Message: msgNotInAllowed})
					}
				}
			}
		}
	}
	return errs
}

// occurrences flattens a field value into the list of values to check:
// arrays element-wise, scalars as themselves.
func occurrences(v any) []any {
	switch vv := v.(type) {
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}
