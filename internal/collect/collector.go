package collect

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/config"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
)

// Options controls one collection call.
type Options struct {
	// Limit caps the number of records collected; 0 collects everything
	// the source reports.
	Limit int
	// Offset skips that many records before collecting.
	Offset int
	// PageSize overrides the configured per-request page size.
	PageSize int
	// SkipCache bypasses the fetch cache for this call.
	SkipCache bool
}

// Page is the result of a multi-record fetch.
type Page struct {
	Items     []map[string]any
	Total     int
	Limit     int
	Offset    int
	Collected int
}

// CatalogEntry is one entry of a grouped taxonomy catalog.
type CatalogEntry struct {
	Key   string
	Value any
}

// listResponse is the source's paginated list envelope.
type listResponse struct {
	Data  []map[string]any `json:"data"`
	Total int              `json:"total"`
	Limit int              `json:"limit"`
	Skip  int              `json:"skip"`
}

// Collector fetches raw records from a configured source.
type Collector struct {
	client   *client
	pageSize int
}

// New creates a Collector. cache may be nil to disable caching entirely.
func New(cfg config.CollectConfig, cache Cache) *Collector {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Collector{client: newClient(cfg, cache), pageSize: pageSize}
}

// FetchMany collects records matching the declared filters, paginating with
// the source's skip/limit protocol until the requested limit is reached, a
// short page signals exhaustion, or (limit 0) everything has been collected.
func (c *Collector) FetchMany(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, filters Filters, opts Options) (*Page, error) {
	ep := ent.Endpoints.FetchMany

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	page := &Page{Limit: opts.Limit, Offset: opts.Offset}
	skip := opts.Offset
	for {
		reqLimit := pageSize
		if opts.Limit > 0 {
			if remaining := opts.Limit - len(page.Items); remaining < reqLimit {
				reqLimit = remaining
			}
		}

		q, err := buildQuery(src, ep, ent, filters, skip, reqLimit)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		reqURL := src.BaseURL + ep.Path + "?" + q.Encode()
		if err := c.client.getJSON(ctx, reqURL, opts.SkipCache, &resp); err != nil {
			return nil, err
		}

		page.Total = resp.Total
		page.Items = append(page.Items, resp.Data...)
		skip += len(resp.Data)

		zap.L().Debug("collected page",
			zap.String("entity", ent.EntityID),
			zap.Int("items", len(resp.Data)),
			zap.Int("skip", skip),
			zap.Int("total", resp.Total),
		)

		if opts.Limit > 0 && len(page.Items) >= opts.Limit {
			// A server ignoring $limit may over-deliver; never hand back
			// more than the caller asked for.
			page.Items = page.Items[:opts.Limit]
			break
		}
		if len(resp.Data) < reqLimit || len(resp.Data) == 0 {
			break
		}
		if resp.Total > 0 && skip >= resp.Total {
			break
		}
	}

	page.Collected = len(page.Items)
	return page, nil
}

// FetchOne collects a single record by id. When the entity declares no
// single-item endpoint, it falls back to FetchMany with an identity filter
// and limit 1.
func (c *Collector) FetchOne(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, id int, opts Options) (map[string]any, error) {
	ep := ent.Endpoints.FetchOne
	if ep == nil {
		return c.fetchOneFallback(ctx, src, ent, id, opts)
	}

	path := strings.ReplaceAll(ep.PathTemplate, "{id}", strconv.Itoa(id))
	q, err := buildQuery(src, ep, ent, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	reqURL := src.BaseURL + path
	if encoded := q.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	var record map[string]any
	if err := c.client.getJSON(ctx, reqURL, opts.SkipCache, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func (c *Collector) fetchOneFallback(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, id int, opts Options) (map[string]any, error) {
	page, err := c.FetchMany(ctx, src, ent, Filters{"id": Eq{Value: id}},
		Options{Limit: 1, SkipCache: opts.SkipCache})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, &FetchError{
			Status: http.StatusNotFound,
			URL:    src.BaseURL + ent.Endpoints.FetchMany.Path,
		}
	}
	return page.Items[0], nil
}

// CollectCatalog fetches a full listing and reduces it to a compact
// taxonomy: records grouped by the declared key, first distinct value kept.
func (c *Collector) CollectCatalog(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, opts Options) ([]CatalogEntry, error) {
	page, err := c.FetchMany(ctx, src, ent, nil, opts)
	if err != nil {
		return nil, err
	}
	return BuildCatalog(page.Items, ent.Meta.GroupBy, ent.Meta.ValueKey), nil
}

// resolvePath walks a dot-separated path through a raw record; numeric
// segments index into arrays.
func resolvePath(record map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = record
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// BuildCatalog groups items by the value at groupBy, keeping the first
// distinct value found at valueKey per group, sorted by key (numerically
// when every key is numeric).
func BuildCatalog(items []map[string]any, groupBy, valueKey string) []CatalogEntry {
	seen := make(map[string]bool, len(items))
	var entries []CatalogEntry
	for _, item := range items {
		rawKey, ok := resolvePath(item, groupBy)
		if !ok {
			continue
		}
		key := cast.ToString(rawKey)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		value, _ := resolvePath(item, valueKey)
		entries = append(entries, CatalogEntry{Key: key, Value: value})
	}

	sort.Slice(entries, func(a, b int) bool {
		na, errA := strconv.Atoi(entries[a].Key)
		nb, errB := strconv.Atoi(entries[b].Key)
		if errA == nil && errB == nil {
			return na < nb
		}
		return entries[a].Key < entries[b].Key
	})
	return entries
}
