// Package sourceconfig loads the declarative per-source and per-entity
// import configuration: endpoints, field mappings and supported filters.
package sourceconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// ErrConfig marks any failure to load or validate declarative configuration.
// Callers test with errors.Is.
var ErrConfig = eris.New("invalid source configuration")

// Source describes one external data source.
type Source struct {
	SourceID        string `json:"source" validate:"required"`
	BaseURL         string `json:"base_url" validate:"required,url"`
	DefaultLanguage string `json:"default_language"`
}

// Endpoint describes a single API endpoint with default query parameters.
// Values in QueryDefaults may contain a {lang} placeholder resolved against
// the source's default language.
type Endpoint struct {
	Path          string            `json:"path"`
	PathTemplate  string            `json:"path_template"`
	QueryDefaults map[string]string `json:"query_defaults"`
}

// Endpoints groups the declared endpoints of an entity. FetchMany is
// mandatory; FetchOne is optional and its PathTemplate must carry an {id}
// placeholder.
type Endpoints struct {
	FetchOne  *Endpoint `json:"fetch_one"`
	FetchMany *Endpoint `json:"fetch_many" validate:"required"`
}

// Filters declares which filter keys callers may pass to the collector.
type Filters struct {
	Supported []string `json:"supported"`
}

// FieldTarget is one destination of a mapped source value.
type FieldTarget struct {
	Field         string         `json:"field" validate:"required"`
	Formatter     string         `json:"formatter"`
	FormatterArgs map[string]any `json:"formatter_args"`
}

// FieldMapping maps one source path onto one or more target fields.
type FieldMapping struct {
	From struct {
		Path string `json:"path" validate:"required"`
	} `json:"from"`
	To []FieldTarget `json:"to" validate:"required,min=1,dive"`
}

// Meta carries per-entity collection behavior.
type Meta struct {
	// CollectStrategy "catalog" marks a taxonomy listing: grouped, never
	// persisted through the integration stage.
	CollectStrategy    string `json:"collect_strategy"`
	GroupBy            string `json:"group_by"`
	ValueKey           string `json:"value_key"`
	DefaultGroup       string `json:"default_group"`
	ClassificationPath string `json:"classification_path"`
	DiscoveryTable     string `json:"discovery_table"`
}

// Entity describes how one entity type is collected and mapped.
type Entity struct {
	SourceID  string         `json:"source" validate:"required"`
	EntityID  string         `json:"entity" validate:"required"`
	Endpoints Endpoints      `json:"endpoints"`
	Filters   Filters        `json:"filters"`
	Mapping   []FieldMapping `json:"mapping" validate:"dive"`
	Meta      Meta           `json:"meta"`
}

// CatalogOnly reports whether the entity is a taxonomy that must never be
// persisted through the integration stage.
func (e *Entity) CatalogOnly() bool {
	return e.Meta.CollectStrategy == "catalog"
}

// SupportsFilter reports whether the given filter key is declared.
func (e *Entity) SupportsFilter(key string) bool {
	for _, k := range e.Filters.Supported {
		if k == key {
			return true
		}
	}
	return false
}

// Registry reads source and entity configuration files from a directory
// tree: <dir>/<source>/source.json, <dir>/<source>/entities/<entity>.json.
// It performs no caching; callers may cache externally.
type Registry struct {
	dir      string
	validate *validator.Validate
}

// NewRegistry creates a Registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:      dir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadSource reads and validates the configuration of one source.
func (r *Registry) LoadSource(sourceID string) (*Source, error) {
	path := filepath.Join(r.dir, sourceID, "source.json")

	var src Source
	if err := r.readJSON(path, &src); err != nil {
		return nil, err
	}
	if err := r.validate.Struct(&src); err != nil {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s: %v", path, err)
	}
	if src.SourceID != sourceID {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s declares source %q, want %q", path, src.SourceID, sourceID)
	}
	return &src, nil
}

// LoadEntity reads and validates the configuration of one entity of a source.
func (r *Registry) LoadEntity(sourceID, entityID string) (*Entity, error) {
	path := filepath.Join(r.dir, sourceID, "entities", entityID+".json")

	var ent Entity
	if err := r.readJSON(path, &ent); err != nil {
		return nil, err
	}
	if err := r.validate.Struct(&ent); err != nil {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s: %v", path, err)
	}
	if ent.SourceID != sourceID || ent.EntityID != entityID {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s declares %s/%s, want %s/%s",
			path, ent.SourceID, ent.EntityID, sourceID, entityID)
	}
	if ent.Endpoints.FetchMany.Path == "" {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s: endpoints.fetch_many.path is mandatory", path)
	}
	if one := ent.Endpoints.FetchOne; one != nil && !strings.Contains(one.PathTemplate, "{id}") {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s: fetch_one.path_template lacks {id} placeholder", path)
	}
	if ent.Mapping == nil {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: %s: mapping must be a list", path)
	}
	return &ent, nil
}

// ListEntities returns the entity ids declared under a source, sorted.
func (r *Registry) ListEntities(sourceID string) ([]string, error) {
	dir := filepath.Join(r.dir, sourceID, "entities")
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(ErrConfig, "sourceconfig: read %s: %v", dir, err)
	}

	var ids []string
	for _, it := range items {
		name := it.Name()
		if it.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Registry) readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(ErrConfig, "sourceconfig: read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(ErrConfig, "sourceconfig: parse %s: %v", path, err)
	}
	return nil
}

// ResolveQueryDefaults substitutes {lang} placeholders in an endpoint's
// default query parameters with the source's default language.
func ResolveQueryDefaults(ep *Endpoint, src *Source) map[string]string {
	if ep == nil || len(ep.QueryDefaults) == 0 {
		return nil
	}
	out := make(map[string]string, len(ep.QueryDefaults))
	for k, v := range ep.QueryDefaults {
		out[k] = strings.ReplaceAll(v, "{lang}", src.DefaultLanguage)
	}
	return out
}
