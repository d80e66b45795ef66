package convert

import (
	"github.com/rotisserie/eris"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
)

// GroupResolver reports which target model groups a field belongs to. The
// characteristic definitions are the source of truth; fields unknown to them
// land in the entity's default group.
type GroupResolver interface {
	GroupsFor(entity, field string) []string
}

// Mapper applies an entity's declared field mappings to a raw record. It is
// the extension point for new source entities: adding one is a configuration
// change, not a code change.
type Mapper struct {
	formatters *Registry
	groups     GroupResolver
}

// NewMapper creates a Mapper.
func NewMapper(formatters *Registry, groups GroupResolver) *Mapper {
	return &Mapper{formatters: formatters, groups: groups}
}

// Map converts a raw record per the entity's mapping declarations. A missing
// source path maps to nil. Multiple mappings may target the same field;
// last-write-wins in declaration order. On formatter failure the partially
// converted record is returned alongside the error so callers can inspect
// what was produced.
func (m *Mapper) Map(raw map[string]any, ent *sourceconfig.Entity, mctx Context) (Record, error) {
	rec := make(Record)

	for _, mapping := range ent.Mapping {
		value, _ := Resolve(raw, mapping.From.Path)

		for _, target := range mapping.To {
			out := value
			if target.Formatter != "" {
				if !m.formatters.Supports(target.Formatter) {
					return rec, eris.Wrapf(ErrConversion, "convert: %s: unsupported formatter %q",
						ent.EntityID, target.Formatter)
				}
				formatted, err := m.formatters.Apply(target.Formatter, value, target.FormatterArgs, raw, mctx)
				if err != nil {
					return rec, eris.Wrapf(err, "convert: %s: field %s", ent.EntityID, target.Field)
				}
				out = formatted
			}

			// A formatter may fan out into several fields (the
			// resistance converter does).
			if fanout, ok := out.(map[string]string); ok {
				for field, v := range fanout {
					m.write(rec, ent, field, v)
				}
				continue
			}
			m.write(rec, ent, target.Field, out)
		}
	}

	return rec, nil
}

func (m *Mapper) write(rec Record, ent *sourceconfig.Entity, field string, value any) {
	groups := m.groups.GroupsFor(ent.EntityID, field)
	if len(groups) == 0 {
		groups = []string{m.defaultGroup(ent)}
	}
	for _, g := range groups {
		if rec[g] == nil {
			rec[g] = make(map[string]any)
		}
		rec[g][field] = value
	}
}

func (m *Mapper) defaultGroup(ent *sourceconfig.Entity) string {
	if ent.Meta.DefaultGroup != "" {
		return ent.Meta.DefaultGroup
	}
	return ent.EntityID + "s"
}
