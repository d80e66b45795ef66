// Package pipeline orchestrates one import: collect a raw record from the
// source, convert it through the declared mapping, validate the result and
// integrate it into the game database.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/collect"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/convert"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/discovery"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/store"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/validate"
)

// Stage identifies how far a run progressed.
type Stage string

const (
	StageCollecting  Stage = "collecting"
	StageConverting  Stage = "converting"
	StageValidating  Stage = "validating"
	StageIntegrating Stage = "integrating"
	StageDone        Stage = "done"
)

// Options controls which stages run.
type Options struct {
	// Convert maps the raw record through the declared field mapping.
	Convert bool
	// Validate checks the converted record against the characteristic
	// definitions. Implies Convert.
	Validate bool
	// Integrate persists the converted record. Skipped when validation
	// fails and always skipped for catalog-only entities.
	Integrate bool

	SkipCache bool
	Limit     int
	Offset    int
}

// Report is the outcome of a single-record run.
type Report struct {
	Stage      Stage
	DofusID    int64
	Raw        map[string]any
	Converted  convert.Record
	Validation *validate.Result
	Integrated []string
	Err        error
}

// ItemError records one failed item of a batch.
type ItemError struct {
	DofusID int64
	Stage   Stage
	Err     error
}

// BatchReport summarizes a multi-record run. Per-item failures accumulate
// here, they never abort the batch.
type BatchReport struct {
	// RunID identifies this batch in the logs.
	RunID     string
	Requested int
	Updated   int
	Invalid   int
	Errors    []ItemError
}

// Collector is the collection collaborator.
type Collector interface {
	FetchOne(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, id int, opts collect.Options) (map[string]any, error)
	FetchMany(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, filters collect.Filters, opts collect.Options) (*collect.Page, error)
}

// Toucher records classification-code sightings in a discovery registry.
type Toucher interface {
	TouchMany(ctx context.Context, table discovery.Table, codes []int64) (*discovery.TouchResult, error)
}

// Orchestrator wires the pipeline collaborators together.
type Orchestrator struct {
	collector Collector
	mapper    *convert.Mapper
	validator *validate.Engine
	store     store.Store
	registry  Toucher
}

// New creates an Orchestrator. store and registry may be nil when the
// caller never integrates (dry runs, previews).
func New(collector Collector, mapper *convert.Mapper, validator *validate.Engine, st store.Store, registry Toucher) *Orchestrator {
	return &Orchestrator{
		collector: collector,
		mapper:    mapper,
		validator: validator,
		store:     st,
		registry:  registry,
	}
}

// RunOne imports a single record by source id.
func (o *Orchestrator) RunOne(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, id int, opts Options) *Report {
	raw, err := o.collector.FetchOne(ctx, src, ent, id, collect.Options{SkipCache: opts.SkipCache})
	if err != nil {
		return &Report{Stage: StageCollecting, DofusID: int64(id), Err: err}
	}

	report := o.RunOneRaw(ctx, src, ent, raw, opts)
	if report.Err == nil && len(report.Integrated) > 0 {
		o.touchDiscovery(ctx, ent, []map[string]any{raw})
	}
	return report
}

// RunOneRaw runs the conversion stages over an already-collected record.
// Collection is skipped, so this is the dry-run and preview entry point.
// Discovery is not touched here; the caller owns that side effect.
func (o *Orchestrator) RunOneRaw(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, raw map[string]any, opts Options) *Report {
	report := &Report{Stage: StageCollecting, Raw: raw}
	if id, ok := rawID(raw); ok {
		report.DofusID = id
	}

	if !opts.Convert && !opts.Validate {
		report.Stage = StageDone
		return report
	}

	report.Stage = StageConverting
	converted, err := o.mapper.Map(raw, ent, convert.Context{
		Entity:   ent.EntityID,
		Language: src.DefaultLanguage,
	})
	report.Converted = converted
	if err != nil {
		report.Err = err
		return report
	}

	if opts.Validate {
		report.Stage = StageValidating
		result, err := o.validator.Validate(ctx, converted, ent.EntityID)
		if err != nil {
			report.Err = err
			return report
		}
		report.Validation = result
	}

	integrate := opts.Integrate && !ent.CatalogOnly()
	if integrate && (report.Validation == nil || report.Validation.Valid) {
		report.Stage = StageIntegrating
		id, ok := rawID(raw)
		if !ok {
			report.Err = eris.Errorf("pipeline: %s record has no usable id", ent.EntityID)
			return report
		}

		saved, err := o.store.SaveRecord(ctx, ent.EntityID, id, converted)
		if saved != nil {
			report.Integrated = saved.Tables
		}
		if err != nil {
			report.Err = err
			return report
		}
	}

	report.Stage = StageDone
	return report
}

// RunMany imports every record matching the filters. Item failures are
// collected per item; the discovery registry is touched once for the whole
// batch after integration.
func (o *Orchestrator) RunMany(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, filters collect.Filters, opts Options) (*BatchReport, error) {
	page, err := o.collector.FetchMany(ctx, src, ent, filters, collect.Options{
		Limit:     opts.Limit,
		Offset:    opts.Offset,
		SkipCache: opts.SkipCache,
	})
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := zap.L().With(zap.String("entity", ent.EntityID), zap.String("run_id", runID))
	log.Info("batch collected", zap.Int("items", page.Collected), zap.Int("total", page.Total))

	batch := &BatchReport{RunID: runID, Requested: page.Collected}
	var integrated []map[string]any

	for _, raw := range page.Items {
		if ctx.Err() != nil {
			return batch, eris.Wrap(ctx.Err(), "pipeline: batch interrupted")
		}

		report := o.RunOneRaw(ctx, src, ent, raw, opts)
		switch {
		case report.Err != nil:
			batch.Errors = append(batch.Errors, ItemError{DofusID: report.DofusID, Stage: report.Stage, Err: report.Err})
		case report.Validation != nil && !report.Validation.Valid:
			batch.Invalid++
		default:
			if len(report.Integrated) > 0 {
				batch.Updated++
				integrated = append(integrated, raw)
			}
		}
	}

	if len(integrated) > 0 {
		o.touchDiscovery(ctx, ent, integrated)
	}

	log.Info("batch finished",
		zap.Int("requested", batch.Requested),
		zap.Int("updated", batch.Updated),
		zap.Int("invalid", batch.Invalid),
		zap.Int("errors", len(batch.Errors)),
	)
	return batch, nil
}

// touchDiscovery records the classification codes of integrated records in
// the entity's declared discovery table. Failures are logged, not
// propagated: the import itself already succeeded.
func (o *Orchestrator) touchDiscovery(ctx context.Context, ent *sourceconfig.Entity, raws []map[string]any) {
	if o.registry == nil || ent.Meta.DiscoveryTable == "" || ent.Meta.ClassificationPath == "" {
		return
	}
	table, ok := discovery.TableByName(ent.Meta.DiscoveryTable)
	if !ok {
		zap.L().Warn("unknown discovery table", zap.String("table", ent.Meta.DiscoveryTable))
		return
	}

	var codes []int64
	for _, raw := range raws {
		v, ok := resolveClassification(raw, ent.Meta.ClassificationPath)
		if !ok {
			continue
		}
		if code, err := cast.ToInt64E(v); err == nil {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return
	}

	if _, err := o.registry.TouchMany(ctx, table, codes); err != nil {
		zap.L().Warn("discovery touch failed",
			zap.String("table", table.Name),
			zap.Int("codes", len(codes)),
			zap.Error(err),
		)
	}
}

func rawID(raw map[string]any) (int64, bool) {
	v, ok := raw["id"]
	if !ok {
		return 0, false
	}
	id, err := cast.ToInt64E(v)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// resolveClassification walks a dot-separated path through the raw record.
func resolveClassification(raw map[string]any, path string) (any, bool) {
	var cur any = raw
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Describe renders a short human-readable summary of a report for CLI
// output.
func Describe(r *Report) string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("failed at %s: %v", r.Stage, r.Err)
	case r.Validation != nil && !r.Validation.Valid:
		return fmt.Sprintf("invalid (%d violations)", len(r.Validation.Errors))
	case len(r.Integrated) > 0:
		return fmt.Sprintf("integrated into %v", r.Integrated)
	default:
		return "ok"
	}
}
