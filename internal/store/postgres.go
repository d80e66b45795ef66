package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/config"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/convert"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/db"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/discovery"
)

// PostgresStore implements Store against the game database. The entity
// tables themselves belong to the main application's schema; the importer
// only writes rows into them.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to the database named by cfg.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns, cfg.MinConns)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying pool for collaborators sharing the
// connection, such as the discovery registry.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

// SaveRecord upserts one row per model group, keyed by dofus_id. Groups are
// written in name order so repeated imports touch tables deterministically.
func (s *PostgresStore) SaveRecord(ctx context.Context, entity string, dofusID int64, record convert.Record) (*SaveResult, error) {
	groups := make([]string, 0, len(record))
	for g := range record {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	result := &SaveResult{}
	for _, group := range groups {
		fields := record[group]
		if len(fields) == 0 {
			continue
		}

		columns := make([]string, 0, len(fields)+1)
		columns = append(columns, "dofus_id")
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		columns = append(columns, names...)

		values := make([]any, 0, len(columns))
		values = append(values, dofusID)
		for _, name := range names {
			values = append(values, fields[name])
		}

		err := db.Upsert(ctx, s.pool, db.UpsertConfig{
			Table:        group,
			Columns:      columns,
			ConflictKeys: []string{"dofus_id"},
		}, values)
		if err != nil {
			return result, &IntegrationError{Entity: entity, Table: group, Err: err}
		}
		result.Tables = append(result.Tables, group)
	}

	zap.L().Debug("record integrated",
		zap.String("entity", entity),
		zap.Int64("dofus_id", dofusID),
		zap.Strings("tables", result.Tables),
	)
	return result, nil
}

// Migrate creates the discovery registry tables. Entity tables are owned by
// the main application and expected to exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, name := range discovery.TableNames() {
		table, _ := discovery.TableByName(name)

		extra := ""
		switch name {
		case "monster_races":
			extra = ",\n\tsuper_race_id BIGINT"
		case "item_types":
			extra = ",\n\tis_equipment BOOLEAN NOT NULL DEFAULT false"
		}

		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGINT PRIMARY KEY,
	decision TEXT NOT NULL DEFAULT 'pending',
	seen_count INTEGER NOT NULL DEFAULT 0,
	name TEXT,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()%s
)`,
			pgx.Identifier{table.Name}.Sanitize(),
			pgx.Identifier{table.CodeColumn}.Sanitize(),
			extra,
		)
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return eris.Wrapf(err, "store: migrate %s", table.Name)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
