package discovery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/db"
)

// Registry persists discovery records.
type Registry struct {
	pool db.Pool
}

// NewRegistry creates a Registry backed by pool.
func NewRegistry(pool db.Pool) *Registry {
	return &Registry{pool: pool}
}

// TouchResult summarizes one TouchMany call.
type TouchResult struct {
	// Requested is the number of distinct valid codes touched.
	Requested int
	// Created is the number of placeholder rows inserted for codes never
	// seen before.
	Created int64
}

// TouchMany records one sighting of each code in the named table. Absent
// codes get a pending placeholder row first; every requested code then has
// its seen counter incremented in a single statement. Codes are
// deduplicated and non-positive codes dropped, so repeated touches within
// one call count once. Moderation decisions are never modified here.
func (r *Registry) TouchMany(ctx context.Context, table Table, codes []int64) (*TouchResult, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return &TouchResult{}, nil
	}

	columns, baseRow := placeholderColumns(table)

	rows := make([][]any, len(codes))
	for i, code := range codes {
		row := make([]any, len(baseRow))
		copy(row, baseRow)
		row[0] = code
		rows[i] = row
	}

	created, err := db.InsertAbsent(ctx, r.pool, db.UpsertConfig{
		Table:        table.Name,
		Columns:      columns,
		ConflictKeys: []string{table.CodeColumn},
	}, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: insert placeholders into %s", table.Name)
	}

	touchSQL := fmt.Sprintf(
		`UPDATE %s SET seen_count = seen_count + 1, last_seen_at = now() WHERE %s = ANY($1)`,
		pgx.Identifier{table.Name}.Sanitize(),
		pgx.Identifier{table.CodeColumn}.Sanitize(),
	)
	if _, err := r.pool.Exec(ctx, touchSQL, codes); err != nil {
		return nil, eris.Wrapf(err, "discovery: touch %s", table.Name)
	}

	zap.L().Debug("touched discovery codes",
		zap.String("table", table.Name),
		zap.Int("requested", len(codes)),
		zap.Int64("created", created),
	)
	return &TouchResult{Requested: len(codes), Created: created}, nil
}

// ListPending returns up to limit pending records, oldest first sighting
// first.
func (r *Registry) ListPending(ctx context.Context, table Table, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := fmt.Sprintf(
		`SELECT %s, decision, seen_count, name, created_by, created_at, last_seen_at
		 FROM %s WHERE decision = 'pending'
		 ORDER BY created_at ASC LIMIT $1`,
		pgx.Identifier{table.CodeColumn}.Sanitize(),
		pgx.Identifier{table.Name}.Sanitize(),
	)
	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: list pending in %s", table.Name)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var decision string
		if err := rows.Scan(&rec.Code, &decision, &rec.SeenCount, &rec.Name, &rec.CreatedBy, &rec.FirstSeen, &rec.LastSeenAt); err != nil {
			return nil, eris.Wrapf(err, "discovery: scan pending row in %s", table.Name)
		}
		rec.Decision = Decision(decision)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "discovery: iterate pending rows in %s", table.Name)
	}
	return records, nil
}

// DecisionError reports a failed moderation decision for one code.
type DecisionError struct {
	Code int64
	Err  error
}

// DecideMany applies a moderation decision to each code, accumulating
// per-code failures instead of aborting. Unknown codes fail individually.
func (r *Registry) DecideMany(ctx context.Context, table Table, codes []int64, decision Decision) (int, []DecisionError) {
	if !decision.Valid() {
		errs := make([]DecisionError, len(codes))
		for i, c := range codes {
			errs[i] = DecisionError{Code: c, Err: eris.Errorf("discovery: unknown decision %q", decision)}
		}
		return 0, errs
	}

	sql := fmt.Sprintf(
		`UPDATE %s SET decision = $1 WHERE %s = $2`,
		pgx.Identifier{table.Name}.Sanitize(),
		pgx.Identifier{table.CodeColumn}.Sanitize(),
	)

	updated := 0
	var errs []DecisionError
	for _, code := range normalizeCodes(codes) {
		tag, err := r.pool.Exec(ctx, sql, string(decision), code)
		if err != nil {
			errs = append(errs, DecisionError{Code: code, Err: eris.Wrapf(err, "discovery: decide %d in %s", code, table.Name)})
			continue
		}
		if tag.RowsAffected() == 0 {
			errs = append(errs, DecisionError{Code: code, Err: eris.Errorf("discovery: code %d not found in %s", code, table.Name)})
			continue
		}
		updated++
	}
	return updated, errs
}
