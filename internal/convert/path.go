// Package convert turns raw source records into the target characteristic
// model: dot-path extraction, a closed registry of named formatters, the
// field mapper, and the resistance tier converter.
package convert

import (
	"strconv"
)

// Record is a converted record grouped by target model group, e.g.
// {"creatures": {"level": 5}, "monsters": {...}}.
type Record map[string]map[string]any

// Resolve extracts the value at a dot-separated path from a decoded JSON
// record. Numeric segments index arrays. It is total: an absent segment
// yields (nil, false), never an error.
func Resolve(record map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var cur any = record
	start := 0
	for start <= len(path) {
		end := start
		for end < len(path) && path[end] != '.' {
			end++
		}
		seg := path[start:end]
		start = end + 1

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

		if start > len(path) {
			return cur, true
		}
	}
	return cur, true
}
