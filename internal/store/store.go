// Package store persists converted records into the game database, one
// table per model group.
package store

import (
	"context"
	"fmt"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/convert"
)

// IntegrationError reports a failed write of one model group.
type IntegrationError struct {
	Entity string
	Table  string
	Err    error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("store: integrate %s into %s: %v", e.Entity, e.Table, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// SaveResult summarizes one integration.
type SaveResult struct {
	// Tables lists the model-group tables written, in write order.
	Tables []string
}

// Store defines the persistence interface for the import pipeline.
type Store interface {
	// SaveRecord upserts a converted record, one row per model group,
	// keyed by the source identifier.
	SaveRecord(ctx context.Context, entity string, dofusID int64, record convert.Record) (*SaveResult, error)

	// Migrate creates missing tables.
	Migrate(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
