package formula

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Table is a piecewise conversion: given the named characteristic's value X,
// Lookup returns the entry with the largest threshold <= X, falling back to
// the lowest-defined entry when none qualifies. Thresholds are sorted once
// at parse time.
type Table struct {
	Characteristic string

	thresholds []int
	values     map[int]float64
}

// ParseTable attempts to read a stored expression as a lookup table of the
// shape {"characteristic": name, "<threshold>": value, ...}. It reports
// false when the input is not such an object, including valid JSON with no
// "characteristic" key, which callers treat as an arithmetic expression.
func ParseTable(raw string) (*Table, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}

	name, ok := obj["characteristic"].(string)
	if !ok || name == "" {
		return nil, false
	}

	tbl := &Table{
		Characteristic: name,
		values:         make(map[int]float64, len(obj)-1),
	}
	for k, v := range obj {
		if k == "characteristic" {
			continue
		}
		threshold, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		val, err := cast.ToFloat64E(v)
		if err != nil {
			continue
		}
		tbl.values[threshold] = val
		tbl.thresholds = append(tbl.thresholds, threshold)
	}
	if len(tbl.thresholds) == 0 {
		return nil, false
	}
	sort.Ints(tbl.thresholds)
	return tbl, true
}

// Lookup returns the table value for x.
func (t *Table) Lookup(x float64) float64 {
	selected := t.thresholds[0]
	for _, threshold := range t.thresholds {
		if float64(threshold) > x {
			break
		}
		selected = threshold
	}
	return t.values[selected]
}
