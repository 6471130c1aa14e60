// Package ownership reduces ownership paths to effective percentages.
package ownership

import (
	"math"
	"sort"

	"github.com/offshore-atlas/backend/pkg/graph"
)

// Result is the per-path ownership record: who owns what, through how many
// layers, and at what compounded percentage. Results are ephemeral and
// never persisted.
type Result struct {
	Owner  graph.Node `json:"owner"`
	Target graph.Node `json:"target"`
	Depth  int        `json:"depth"`

	// PercentageChain lists each hop's ownership_percentage; nil marks a
	// hop where the percentage was not recorded.
	PercentageChain []*float64 `json:"percentage_chain"`

	// EffectiveOwnership is 100 * Π(pct/100) across the hops, rounded
	// half-up to 2 decimals.
	EffectiveOwnership float64 `json:"effective_ownership"`

	Path graph.Path `json:"path"`
}

// EffectiveOwnership compounds the ownership percentages along a path.
// A hop without a recorded percentage counts as 100%, full attribution.
// That carries over the COALESCE(p, 100.0) behavior of the seed queries
// and overstates ownership when the data is incomplete; it is kept
// deliberately rather than silently corrected. Percentages are clamped
// to [0,100] per hop; the CSV loader already drops out-of-range cells,
// so the clamp only guards stores seeded through other paths.
func EffectiveOwnership(p graph.Path) float64 {
	effective := 100.0
	for _, e := range p.Edges {
		pct, ok := e.OwnershipPercentage()
		if !ok {
			continue
		}
		effective = effective * clampPct(pct) / 100.0
	}
	return round2(effective)
}

func clampPct(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 100:
		return 100
	}
	return v
}

// FromPath builds the per-path Result. The owner is the path's start node
// and the target its end node.
func FromPath(p graph.Path) Result {
	chain := make([]*float64, 0, len(p.Edges))
	for _, e := range p.Edges {
		if pct, ok := e.OwnershipPercentage(); ok {
			v := pct
			chain = append(chain, &v)
		} else {
			chain = append(chain, nil)
		}
	}
	return Result{
		Owner:              p.Start(),
		Target:             p.End(),
		Depth:              p.Depth(),
		PercentageChain:    chain,
		EffectiveOwnership: EffectiveOwnership(p),
		Path:               p,
	}
}

// Aggregate converts each path to a Result and orders the set for
// presentation: effective ownership descending, ties broken by ascending
// depth so the more direct chain ranks first. Paths between the same
// (owner, target) pair are reported separately, never merged or summed;
// callers decide whether to take the max, sum, or list.
func Aggregate(paths []graph.Path) []Result {
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		if p.Depth() == 0 {
			continue
		}
		results = append(results, FromPath(p))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].EffectiveOwnership != results[j].EffectiveOwnership {
			return results[i].EffectiveOwnership > results[j].EffectiveOwnership
		}
		return results[i].Depth < results[j].Depth
	})
	return results
}

// round2 rounds half-up to two decimal places.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
