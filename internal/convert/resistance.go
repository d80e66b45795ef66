package convert

import (
	"math"
	"sort"
	"strconv"

	"github.com/spf13/cast"
)

// Elements lists the five elements in evaluation order. The order decides
// ties when more elements qualify for a capped tier than the cap allows.
var Elements = []string{"neutral", "earth", "fire", "water", "air"}

// TierRange maps a source percentage interval (both bounds inclusive) to a
// discrete resistance tier.
type TierRange struct {
	Tier int
	Min  float64
	Max  float64
}

// ResistanceParams overrides the default thresholds and per-tier caps.
type ResistanceParams struct {
	Thresholds []TierRange
	Caps       map[int]int
}

// DefaultTierRanges returns the ordered default percentage-to-tier ranges.
func DefaultTierRanges() []TierRange {
	return []TierRange{
		{Tier: 100, Min: 90, Max: 101},
		{Tier: 50, Min: 40, Max: 90},
		{Tier: -50, Min: -90, Max: -40},
		{Tier: -100, Min: -101, Max: -90},
	}
}

// DefaultTierCaps returns the default per-tier caps: 1 invulnerable,
// 3 resistant, 3 weak, 2 vulnerable.
func DefaultTierCaps() map[int]int {
	return map[int]int{100: 1, 50: 3, -50: 3, -100: 2}
}

// ConvertResistances converts the five elemental percentage values of a raw
// record into discrete tiers with per-tier caps. Source percentages are read
// from "<element>Resistance" fields, nested one level under the first
// "grades" entry when present. Missing values count as 0. The companion
// "_fixed" fields are a reserved extension point and always emit "0".
//
// Pure: no side effects, no failure mode.
func ConvertResistances(entity string, raw map[string]any, params *ResistanceParams) map[string]string {
	ranges := DefaultTierRanges()
	caps := DefaultTierCaps()
	if params != nil {
		if len(params.Thresholds) > 0 {
			ranges = params.Thresholds
		}
		if len(params.Caps) > 0 {
			caps = mergeCaps(caps, params.Caps)
		}
	}

	base := raw
	if grades, ok := raw["grades"].([]any); ok && len(grades) > 0 {
		if first, ok := grades[0].(map[string]any); ok {
			base = first
		}
	}

	type assignment struct {
		element string
		pct     float64
		tier    int
	}
	assigned := make([]assignment, 0, len(Elements))
	for _, el := range Elements {
		pct := cast.ToFloat64(base[el+"Resistance"])
		assigned = append(assigned, assignment{element: el, pct: pct, tier: tierFor(pct, ranges)})
	}

	// Cap enforcement: highest-magnitude percentages claim their tier
	// first; a stable sort keeps element evaluation order on equal
	// magnitudes, so the outcome is deterministic.
	order := make([]int, len(assigned))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(assigned[order[a]].pct) > math.Abs(assigned[order[b]].pct)
	})

	used := make(map[int]int, len(caps))
	for _, i := range order {
		tier := assigned[i].tier
		if tier == 0 {
			continue
		}
		if used[tier] >= caps[tier] {
			assigned[i].tier = 0
			continue
		}
		used[tier]++
	}

	out := make(map[string]string, len(assigned)*2)
	for _, a := range assigned {
		out["res_"+a.element] = strconv.Itoa(a.tier)
		out["res_"+a.element+"_fixed"] = "0"
	}
	return out
}

func tierFor(pct float64, ranges []TierRange) int {
	for _, r := range ranges {
		if pct >= r.Min && pct <= r.Max {
			return r.Tier
		}
	}
	return 0
}

func mergeCaps(defaults, overrides map[int]int) map[int]int {
	out := make(map[int]int, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
