package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/characteristics"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/collect"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/convert"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/discovery"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/store"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/validate"
)

type stubCollector struct {
	one     map[string]any
	oneErr  error
	page    *collect.Page
	pageErr error
}

func (s *stubCollector) FetchOne(context.Context, *sourceconfig.Source, *sourceconfig.Entity, int, collect.Options) (map[string]any, error) {
	return s.one, s.oneErr
}

func (s *stubCollector) FetchMany(context.Context, *sourceconfig.Source, *sourceconfig.Entity, collect.Filters, collect.Options) (*collect.Page, error) {
	return s.page, s.pageErr
}

type stubStore struct {
	saved   map[int64]convert.Record
	saveErr error
}

func (s *stubStore) SaveRecord(_ context.Context, _ string, id int64, rec convert.Record) (*store.SaveResult, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	if s.saved == nil {
		s.saved = make(map[int64]convert.Record)
	}
	s.saved[id] = rec

	tables := make([]string, 0, len(rec))
	for g := range rec {
		tables = append(tables, g)
	}
	return &store.SaveResult{Tables: tables}, nil
}

func (s *stubStore) Migrate(context.Context) error { return nil }
func (s *stubStore) Close() error                  { return nil }

type stubToucher struct {
	touched map[string][]int64
}

func (s *stubToucher) TouchMany(_ context.Context, table discovery.Table, codes []int64) (*discovery.TouchResult, error) {
	if s.touched == nil {
		s.touched = make(map[string][]int64)
	}
	s.touched[table.Name] = append(s.touched[table.Name], codes...)
	return &discovery.TouchResult{Requested: len(codes)}, nil
}

type stubFormulas map[string]string

func (s stubFormulas) Expression(characteristic, entity string) (string, error) {
	return s[entity+"/"+characteristic], nil
}

type stubRepo map[string]characteristics.Definition

func (r stubRepo) Characteristics(context.Context) (map[string]characteristics.Definition, error) {
	return r, nil
}

func (r stubRepo) LimitsFor(_ context.Context, entity, column string) (*characteristics.Constraint, error) {
	for _, d := range r {
		if d.DBColumn == column {
			if c, ok := d.PerEntity[entity]; ok {
				return &c, nil
			}
		}
	}
	return nil, nil
}

func monsterDefs() stubRepo {
	return stubRepo{
		"name": {
			ID: "name", DBColumn: "name", Type: characteristics.TypeString,
			Models: []string{"creatures"}, AppliesTo: []string{"monster"},
			PerEntity: map[string]characteristics.Constraint{
				"monster": {Required: true},
			},
		},
		"level": {
			ID: "level", DBColumn: "level", Type: characteristics.TypeInt,
			Models: []string{"creatures"}, AppliesTo: []string{"monster"},
			PerEntity: map[string]characteristics.Constraint{
				"monster": {Min: intPtr(1), Max: intPtr(20), Required: true},
			},
		},
		"life": {
			ID: "life", DBColumn: "life_dice", Type: characteristics.TypeInt,
			Models: []string{"creatures"}, AppliesTo: []string{"monster"},
			PerEntity: map[string]characteristics.Constraint{
				"monster": {Required: true},
			},
		},
	}
}

func monsterEntity() *sourceconfig.Entity {
	ent := &sourceconfig.Entity{
		SourceID: "dofusdb",
		EntityID: "monster",
		Endpoints: sourceconfig.Endpoints{
			FetchMany: &sourceconfig.Endpoint{Path: "/monsters"},
		},
		Meta: sourceconfig.Meta{
			ClassificationPath: "race",
			DiscoveryTable:     "monster_races",
		},
	}
	ent.Mapping = []sourceconfig.FieldMapping{
		mapping("name", target("name", "lang", nil)),
		mapping("grades.0.level", target("level", "level", nil)),
		mapping("grades.0.lifePoints", target("life_dice", "life", nil)),
	}
	return ent
}

func mapping(path string, targets ...sourceconfig.FieldTarget) sourceconfig.FieldMapping {
	var m sourceconfig.FieldMapping
	m.From.Path = path
	m.To = targets
	return m
}

func target(field, formatter string, args map[string]any) sourceconfig.FieldTarget {
	return sourceconfig.FieldTarget{Field: field, Formatter: formatter, FormatterArgs: args}
}

func bouftouRaw() map[string]any {
	return map[string]any{
		"id":   float64(494),
		"name": map[string]any{"fr": "Bouftou", "en": "Gobball"},
		"race": float64(31),
		"grades": []any{
			map[string]any{"level": float64(50), "lifePoints": float64(800)},
		},
	}
}

func newTestOrchestrator(c Collector, st store.Store, reg Toucher) *Orchestrator {
	defs := monsterDefs()
	formulas := stubFormulas{
		"monster/level": "floor([level] / 10)",
		"monster/life":  "floor([life] / 200) + [level] * 5",
	}
	mapper := convert.NewMapper(convert.NewRegistry(formulas), characteristics.NewGroupIndex(defs))
	return New(c, mapper, validate.New(defs), st, reg)
}

func allStages() Options {
	return Options{Convert: true, Validate: true, Integrate: true}
}

func TestRunOneFullPipeline(t *testing.T) {
	st := &stubStore{}
	reg := &stubToucher{}
	o := newTestOrchestrator(&stubCollector{one: bouftouRaw()}, st, reg)

	report := o.RunOne(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), 494, allStages())
	require.NoError(t, report.Err)
	assert.Equal(t, StageDone, report.Stage)
	assert.Equal(t, int64(494), report.DofusID)
	require.NotNil(t, report.Validation)
	assert.True(t, report.Validation.Valid)
	assert.Equal(t, []string{"creatures"}, report.Integrated)

	saved := st.saved[494]
	require.NotNil(t, saved)
	assert.Equal(t, "Bouftou", saved["creatures"]["name"])
	assert.Equal(t, 5, saved["creatures"]["level"])
	assert.Equal(t, 29, saved["creatures"]["life_dice"])

	assert.Equal(t, []int64{31}, reg.touched["monster_races"])
}

func TestRunOneRawDryRunSkipsIntegration(t *testing.T) {
	st := &stubStore{}
	reg := &stubToucher{}
	o := newTestOrchestrator(&stubCollector{}, st, reg)

	report := o.RunOneRaw(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), bouftouRaw(),
		Options{Convert: true, Validate: true})
	require.NoError(t, report.Err)
	assert.Equal(t, StageDone, report.Stage)
	assert.Empty(t, report.Integrated)
	assert.Empty(t, st.saved)
	assert.Empty(t, reg.touched)
}

func TestRunOneCollectFailureShortCircuits(t *testing.T) {
	o := newTestOrchestrator(&stubCollector{oneErr: &collect.FetchError{Status: 404, URL: "/monsters/1"}}, &stubStore{}, nil)

	report := o.RunOne(context.Background(), &sourceconfig.Source{}, monsterEntity(), 1, allStages())
	require.Error(t, report.Err)
	assert.Equal(t, StageCollecting, report.Stage)

	var fe *collect.FetchError
	assert.ErrorAs(t, report.Err, &fe)
}

func TestRunOneInvalidRecordNotIntegrated(t *testing.T) {
	raw := bouftouRaw()
	raw["grades"] = []any{map[string]any{"level": float64(999), "lifePoints": float64(800)}}

	st := &stubStore{}
	o := newTestOrchestrator(&stubCollector{one: raw}, st, nil)

	report := o.RunOne(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), 494, allStages())
	require.NoError(t, report.Err)
	require.NotNil(t, report.Validation)
	assert.False(t, report.Validation.Valid)
	assert.Empty(t, st.saved)
}

func TestRunOneCatalogOnlyNeverIntegrates(t *testing.T) {
	ent := monsterEntity()
	ent.Meta.CollectStrategy = "catalog"

	st := &stubStore{}
	o := newTestOrchestrator(&stubCollector{one: bouftouRaw()}, st, nil)

	report := o.RunOne(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, ent, 494, allStages())
	require.NoError(t, report.Err)
	assert.Empty(t, report.Integrated)
	assert.Empty(t, st.saved)
}

func TestRunManyAccumulatesItemErrors(t *testing.T) {
	good := bouftouRaw()
	noID := bouftouRaw()
	delete(noID, "id")
	invalid := bouftouRaw()
	invalid["id"] = float64(495)
	invalid["grades"] = []any{map[string]any{"level": float64(999), "lifePoints": float64(100)}}

	st := &stubStore{}
	reg := &stubToucher{}
	o := newTestOrchestrator(&stubCollector{page: &collect.Page{
		Items:     []map[string]any{good, noID, invalid},
		Collected: 3,
		Total:     3,
	}}, st, reg)

	batch, err := o.RunMany(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), nil, allStages())
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Requested)
	assert.Equal(t, 1, batch.Updated)
	assert.Equal(t, 1, batch.Invalid)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, StageIntegrating, batch.Errors[0].Stage)

	// One bulk touch for the whole batch, integrated records only.
	assert.Equal(t, []int64{31}, reg.touched["monster_races"])
}

func TestRunManyAssignsRunID(t *testing.T) {
	o := newTestOrchestrator(&stubCollector{page: &collect.Page{
		Items:     []map[string]any{bouftouRaw()},
		Collected: 1,
	}}, &stubStore{}, nil)

	first, err := o.RunMany(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), nil, allStages())
	require.NoError(t, err)
	_, err = uuid.Parse(first.RunID)
	require.NoError(t, err)

	second, err := o.RunMany(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), nil, allStages())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunManyStoreFailureIsPerItem(t *testing.T) {
	st := &stubStore{saveErr: &store.IntegrationError{Entity: "monster", Table: "creatures", Err: errors.New("down")}}
	o := newTestOrchestrator(&stubCollector{page: &collect.Page{
		Items:     []map[string]any{bouftouRaw()},
		Collected: 1,
	}}, st, nil)

	batch, err := o.RunMany(context.Background(), &sourceconfig.Source{DefaultLanguage: "fr"}, monsterEntity(), nil, allStages())
	require.NoError(t, err)
	assert.Zero(t, batch.Updated)
	require.Len(t, batch.Errors, 1)

	var ie *store.IntegrationError
	assert.ErrorAs(t, batch.Errors[0].Err, &ie)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "ok", Describe(&Report{Stage: StageDone}))
	assert.Contains(t, Describe(&Report{Stage: StageConverting, Err: errors.New("boom")}), "failed at converting")
	assert.Contains(t, Describe(&Report{Integrated: []string{"creatures"}}), "integrated")
}

func intPtr(v int) *int { return &v }
