// Package discovery maintains the three-state moderation registries that
// track classification codes observed while importing: each code is first
// seen as pending, then allowed or blocked by a moderator.
package discovery

import (
	"sort"
	"time"
)

// Decision is the moderation state of a discovered code.
type Decision string

const (
	DecisionPending Decision = "pending"
	DecisionAllowed Decision = "allowed"
	DecisionBlocked Decision = "blocked"
)

// Valid reports whether d is one of the three known states.
func (d Decision) Valid() bool {
	switch d {
	case DecisionPending, DecisionAllowed, DecisionBlocked:
		return true
	}
	return false
}

// Table describes one discovery registry table.
type Table struct {
	// Name is the database table.
	Name string
	// CodeColumn holds the source classification code, unique per table.
	CodeColumn string
	// Defaults are extra columns set when a placeholder row is created,
	// beyond the code, decision and seen counter.
	Defaults map[string]any
}

// Registered discovery tables. Entity configuration refers to these by name.
var tables = []Table{
	{
		Name:       "monster_races",
		CodeColumn: "dofus_id",
		Defaults:   map[string]any{"super_race_id": nil},
	},
	{
		Name:       "item_types",
		CodeColumn: "dofus_id",
		Defaults:   map[string]any{"is_equipment": false},
	},
	{
		Name:       "consumable_types",
		CodeColumn: "dofus_id",
		Defaults:   map[string]any{},
	},
}

// TableByName returns the registered table descriptor, if any.
func TableByName(name string) (Table, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames lists the registered discovery tables.
func TableNames() []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Record is one row of a discovery registry. Name and CreatedBy stay nil
// for codes discovered automatically; moderators fill them in later.
type Record struct {
	Code       int64
	Decision   Decision
	SeenCount  int
	Name       *string
	CreatedBy  *string
	FirstSeen  time.Time
	LastSeenAt time.Time
}

// placeholderColumns is the column list of a placeholder insert: the code,
// the shared record columns, then the table-specific defaults.
func placeholderColumns(table Table) ([]string, []any) {
	columns := []string{table.CodeColumn, "decision", "seen_count", "name", "created_by"}
	baseRow := []any{nil, string(DecisionPending), 0, nil, nil}

	defCols, defVals := defaultColumns(table.Defaults)
	return append(columns, defCols...), append(baseRow, defVals...)
}

// defaultColumns flattens a table's default columns in a stable order.
func defaultColumns(defaults map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(defaults))
	for col := range defaults {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = defaults[col]
	}
	return cols, vals
}

// normalizeCodes deduplicates and sorts codes, dropping non-positive values.
func normalizeCodes(codes []int64) []int64 {
	seen := make(map[int64]bool, len(codes))
	out := make([]int64, 0, len(codes))
	for _, c := range codes {
		if c <= 0 || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
