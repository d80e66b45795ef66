// Package characteristics exposes the read-only characteristic definitions
// that drive validation and model-group routing. The definitions are owned
// by the Krosmoz JDR characteristic configuration; the import pipeline never
// writes them.
package characteristics

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// Type is a characteristic's value type.
type Type string

const (
	TypeInt    Type = "int"
	TypeArray  Type = "array"
	TypeString Type = "string"
)

// Constraint holds the per-entity numeric and enum constraints of one
// characteristic.
type Constraint struct {
	Min               *int     `json:"min,omitempty"`
	Max               *int     `json:"max,omitempty"`
	Required          bool     `json:"required,omitempty"`
	ValidationMessage string   `json:"validation_message,omitempty"`
	ValueAvailable    []string `json:"value_available,omitempty"`
}

// Definition describes one characteristic of the target ruleset.
type Definition struct {
	ID        string                `json:"id"`
	DBColumn  string                `json:"db_column"`
	Type      Type                  `json:"type"`
	Models    []string              `json:"models"`
	AppliesTo []string              `json:"applies_to"`
	PerEntity map[string]Constraint `json:"per_entity"`
}

// AppliesToEntity reports whether the definition is declared for the entity.
func (d *Definition) AppliesToEntity(entity string) bool {
	for _, e := range d.AppliesTo {
		if e == entity {
			return true
		}
	}
	return false
}

// Repository is the read-only characteristic-definition lookup injected into
// the validation engine and the field mapper. Cache invalidation, if any, is
// the repository's concern.
type Repository interface {
	// Characteristics returns all definitions keyed by characteristic id.
	Characteristics(ctx context.Context) (map[string]Definition, error)
	// LimitsFor returns the per-entity constraint of the characteristic
	// stored under the given column name.
	LimitsFor(ctx context.Context, entity, column string) (*Constraint, error)
}

// FileRepository reads definitions from a JSON file once and serves them
// from memory.
type FileRepository struct {
	defs map[string]Definition
}

// NewFileRepository loads the definition file.
func NewFileRepository(path string) (*FileRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "characteristics: read %s", path)
	}

	var defs map[string]Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, eris.Wrapf(err, "characteristics: parse %s", path)
	}
	for id, d := range defs {
		if d.ID == "" {
			d.ID = id
			defs[id] = d
		}
	}
	return &FileRepository{defs: defs}, nil
}

// Characteristics returns all loaded definitions.
func (r *FileRepository) Characteristics(_ context.Context) (map[string]Definition, error) {
	return r.defs, nil
}

// LimitsFor returns the per-entity constraint of the characteristic stored
// under column, or nil when no definition or constraint exists.
func (r *FileRepository) LimitsFor(_ context.Context, entity, column string) (*Constraint, error) {
	for _, d := range r.defs {
		if d.DBColumn != column {
			continue
		}
		if c, ok := d.PerEntity[entity]; ok {
			return &c, nil
		}
		return nil, nil
	}
	return nil, nil
}

// GroupIndex answers which model groups a field belongs to, from the
// definitions' declared models. It satisfies the field mapper's
// GroupResolver.
type GroupIndex struct {
	byField map[string][]string
}

// NewGroupIndex builds a GroupIndex over the given definitions, indexing
// both the characteristic id and its storage column.
func NewGroupIndex(defs map[string]Definition) *GroupIndex {
	idx := &GroupIndex{byField: make(map[string][]string, len(defs)*2)}
	for id, d := range defs {
		if len(d.Models) == 0 {
			continue
		}
		idx.byField[id] = d.Models
		if d.DBColumn != "" && d.DBColumn != id {
			idx.byField[d.DBColumn] = d.Models
		}
	}
	return idx
}

// GroupsFor returns the model groups the field belongs to, or nil when the
// field is unknown.
func (g *GroupIndex) GroupsFor(_, field string) []string {
	return g.byField[field]
}
