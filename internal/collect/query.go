// Package collect retrieves raw entity records from the external game-data
// API: declared-filter translation, skip/limit pagination, a rate-limited
// HTTP client with retry, and an optional fetch cache.
package collect

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
)

// ErrUnsupportedFilter is returned when a filter key is not declared in the
// entity's configuration.
var ErrUnsupportedFilter = eris.New("unsupported filter")

// Filter translates one declared filter value into the source's
// query-parameter syntax.
type Filter interface {
	encode(key string, q url.Values)
}

// Filters maps declared filter keys to their values.
type Filters map[string]Filter

// Eq filters on exact equality.
type Eq struct{ Value any }

func (f Eq) encode(key string, q url.Values) {
	q.Set(key, cast.ToString(f.Value))
}

// Range filters on a numeric interval; unset bounds are omitted.
type Range struct {
	GTE, LTE, GT, LT *float64
}

func (f Range) encode(key string, q url.Values) {
	if f.GTE != nil {
		q.Set(key+"[$gte]", cast.ToString(*f.GTE))
	}
	if f.LTE != nil {
		q.Set(key+"[$lte]", cast.ToString(*f.LTE))
	}
	if f.GT != nil {
		q.Set(key+"[$gt]", cast.ToString(*f.GT))
	}
	if f.LT != nil {
		q.Set(key+"[$lt]", cast.ToString(*f.LT))
	}
}

// In filters on set membership.
type In struct{ Values []any }

func (f In) encode(key string, q url.Values) {
	for _, v := range f.Values {
		q.Add(key+"[$in][]", cast.ToString(v))
	}
}

// Search filters on substring search.
type Search struct{ Term string }

func (f Search) encode(key string, q url.Values) {
	q.Set(key+"[$search]", f.Term)
}

// buildQuery assembles the query parameters for one request: the endpoint's
// resolved defaults, the translated filters, and the skip/limit pagination
// parameters. Filter keys not declared by the entity are rejected.
func buildQuery(src *sourceconfig.Source, ep *sourceconfig.Endpoint, ent *sourceconfig.Entity, filters Filters, skip, limit int) (url.Values, error) {
	q := url.Values{}
	for k, v := range sourceconfig.ResolveQueryDefaults(ep, src) {
		q.Set(k, v)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !ent.SupportsFilter(k) {
			return nil, eris.Wrapf(ErrUnsupportedFilter, "collect: %s does not declare filter %q", ent.EntityID, k)
		}
		filters[k].encode(k, q)
	}

	if skip > 0 {
		q.Set("$skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("$limit", strconv.Itoa(limit))
	}
	return q, nil
}
