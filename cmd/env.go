package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/characteristics"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/collect"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/convert"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/discovery"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/pipeline"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/store"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/validate"
)

// env bundles the wired pipeline collaborators for one CLI invocation.
type env struct {
	Registry     *sourceconfig.Registry
	Collector    *collect.Collector
	Store        *store.PostgresStore
	Discovery    *discovery.Registry
	Orchestrator *pipeline.Orchestrator

	cache collect.Cache
}

// initEnv wires collectors, converters and validators from configuration.
// The database connection is only opened when withStore is set; dry runs
// and previews never touch it.
func initEnv(ctx context.Context, withStore bool) (*env, error) {
	registry := sourceconfig.NewRegistry(cfg.Sources.Dir)

	cache, err := newCache()
	if err != nil {
		return nil, err
	}
	collector := collect.New(cfg.Collect, cache)

	repo, err := characteristics.NewFileRepository(cfg.Characteristics.File)
	if err != nil {
		return nil, err
	}
	defs, err := repo.Characteristics(ctx)
	if err != nil {
		return nil, err
	}
	formulas, err := characteristics.NewFileFormulas(cfg.Characteristics.Formulas)
	if err != nil {
		return nil, err
	}

	mapper := convert.NewMapper(convert.NewRegistry(formulas), characteristics.NewGroupIndex(defs))
	validator := validate.New(repo)

	e := &env{
		Registry:  registry,
		Collector: collector,
		cache:     cache,
	}

	var st store.Store
	var toucher pipeline.Toucher
	if withStore {
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store database URL is required (KROSMOZ_STORE_DATABASE_URL)")
		}
		pg, err := store.NewPostgres(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		e.Store = pg
		e.Discovery = discovery.NewRegistry(pg.Pool())
		st = pg
		toucher = e.Discovery
	}

	e.Orchestrator = pipeline.New(collector, mapper, validator, st, toucher)
	return e, nil
}

func newCache() (collect.Cache, error) {
	switch cfg.Cache.Driver {
	case "off", "":
		return nil, nil
	case "memory":
		return collect.NewMemoryCache(time.Duration(cfg.Cache.TTLHours) * time.Hour), nil
	case "sqlite":
		return collect.NewSQLiteCache(cfg.Cache.Path, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	default:
		return nil, eris.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// Close releases the env's resources.
func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			zap.L().Warn("cache close failed", zap.Error(err))
		}
	}
}

// loadEntity resolves the source and entity configuration for a command.
func (e *env) loadEntity(entityID string) (*sourceconfig.Source, *sourceconfig.Entity, error) {
	src, err := e.Registry.LoadSource(cfg.Sources.DefaultSource)
	if err != nil {
		return nil, nil, err
	}
	ent, err := e.Registry.LoadEntity(cfg.Sources.DefaultSource, entityID)
	if err != nil {
		return nil, nil, err
	}
	return src, ent, nil
}
