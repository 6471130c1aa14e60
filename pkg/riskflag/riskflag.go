// Package riskflag evaluates ownership structures against a fixed set of
// red-flag rules and rolls the matches up into a risk score.
package riskflag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/offshore-atlas/backend/pkg/graph"
)

// Severity classifies how serious a flag or an overall assessment is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities for comparisons. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Weight is the severity's contribution to the overall score.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 10
	case SeverityMedium:
		return 25
	case SeverityHigh:
		return 40
	case SeverityCritical:
		return 60
	}
	return 0
}

// FlagType names a red-flag rule.
type FlagType string

const (
	FlagDeepLayering            FlagType = "DEEP_LAYERING"
	FlagCircularOwnership       FlagType = "CIRCULAR_OWNERSHIP"
	FlagJurisdictionShopping    FlagType = "JURISDICTION_SHOPPING"
	FlagMassRegistrationAddress FlagType = "MASS_REGISTRATION_ADDRESS"
	FlagPEPConnection           FlagType = "PEP_CONNECTION"
	FlagBulkFormation           FlagType = "BULK_FORMATION"
)

// Flag is a single rule match. Each rule yields at most one flag per
// assessment; Evidence holds rule-specific details (cycle_length,
// entity_count, ...).
type Flag struct {
	Type        FlagType       `json:"flag_type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// Config tunes the rule thresholds. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// MassAddressThreshold is the minimum number of distinct entities
	// attached to one address before the mass-registration rule fires.
	MassAddressThreshold int

	// PEPHopRadius bounds how far out the PEP-connection scan looks.
	PEPHopRadius int

	// BulkFormationCount is the minimum number of entities one
	// intermediary must create within a single calendar week.
	BulkFormationCount int

	// TaxHavens is the set of jurisdiction codes counted by the
	// jurisdiction-shopping rule.
	TaxHavens map[string]struct{}
}

// DefaultTaxHavens lists the jurisdiction codes treated as tax havens.
func DefaultTaxHavens() map[string]struct{} {
	codes := []string{"BVI", "PAN", "CYM", "JEY", "GGY", "IMN", "BMU", "VGB", "LIE", "MCO"}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MassAddressThreshold: 10,
		PEPHopRadius:         3,
		BulkFormationCount:   5,
		TaxHavens:            DefaultTaxHavens(),
	}
}

// PEPHit is a politically exposed person found near the assessed entity.
type PEPHit struct {
	Node     graph.Node
	Distance int
}

// DeepLayering fires when any ownership chain is at least four hops deep.
// Severity escalates with depth and with how many jurisdictions the chain
// crosses.
func (c Config) DeepLayering(paths []graph.Path) (Flag, bool) {
	var worst Severity
	maxDepth := 0
	maxJur := 0
	for _, p := range paths {
		depth := p.Depth()
		if depth < 4 {
			continue
		}
		jur := len(p.Jurisdictions())
		sev := SeverityMedium
		if depth >= 5 || jur >= 3 {
			sev = SeverityHigh
		}
		if depth >= 6 && jur >= 4 {
			sev = SeverityCritical
		}
		if sev.Rank() > worst.Rank() {
			worst = sev
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		if jur > maxJur {
			maxJur = jur
		}
	}
	if worst == "" {
		return Flag{}, false
	}
	return Flag{
		Type:        FlagDeepLayering,
		Severity:    worst,
		Description: fmt.Sprintf("Ownership chain depth of %d hops (threshold: 4)", maxDepth),
		Evidence: map[string]any{
			"max_depth":          maxDepth,
			"jurisdiction_count": maxJur,
		},
	}, true
}

// CircularOwnership fires when the entity sits on an ownership cycle of
// two to six hops. The cycle length reported is the shortest one found.
func (c Config) CircularOwnership(cycles []graph.Path) (Flag, bool) {
	shortest := 0
	for _, p := range cycles {
		depth := p.Depth()
		if !p.IsCycle() || depth < 2 || depth > 6 {
			continue
		}
		if shortest == 0 || depth < shortest {
			shortest = depth
		}
	}
	if shortest == 0 {
		return Flag{}, false
	}
	return Flag{
		Type:        FlagCircularOwnership,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("Entity participates in a circular ownership structure of %d hops", shortest),
		Evidence:    map[string]any{"cycle_length": shortest},
	}, true
}

// JurisdictionShopping fires when an ownership chain touches three or
// more distinct tax-haven jurisdictions.
func (c Config) JurisdictionShopping(paths []graph.Path) (Flag, bool) {
	best := 0
	var havens []string
	for _, p := range paths {
		var onPath []string
		for _, code := range p.Jurisdictions() {
			if _, ok := c.TaxHavens[code]; ok {
				onPath = append(onPath, code)
			}
		}
		if len(onPath) > best {
			best = len(onPath)
			havens = onPath
		}
	}
	if best < 3 {
		return Flag{}, false
	}
	return Flag{
		Type:        FlagJurisdictionShopping,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("Ownership chain routed through %d tax-haven jurisdictions: %s", best, strings.Join(havens, ", ")),
		Evidence:    map[string]any{"tax_havens": havens},
	}, true
}

// MassRegistration fires when an address has at least the configured
// number of distinct entities attached. Severity scales with the count.
func (c Config) MassRegistration(addressID string, entityCount int) (Flag, bool) {
	if entityCount < c.MassAddressThreshold {
		return Flag{}, false
	}
	sev := SeverityMedium
	switch {
	case entityCount >= 100:
		sev = SeverityCritical
	case entityCount >= 50:
		sev = SeverityHigh
	}
	return Flag{
		Type:        FlagMassRegistrationAddress,
		Severity:    sev,
		Description: fmt.Sprintf("Registered address shared with %d entities", entityCount),
		Evidence: map[string]any{
			"address_id":   addressID,
			"entity_count": entityCount,
		},
	}, true
}

// PEPConnection fires when any politically exposed person appears within
// the configured hop radius.
func (c Config) PEPConnection(hits []PEPHit) (Flag, bool) {
	within := make([]PEPHit, 0, len(hits))
	for _, h := range hits {
		if h.Distance <= c.PEPHopRadius {
			within = append(within, h)
		}
	}
	if len(within) == 0 {
		return Flag{}, false
	}
	names := make([]string, 0, len(within))
	for _, h := range within {
		if n := h.Node.Name(); n != "" {
			names = append(names, n)
		}
	}
	return Flag{
		Type:        FlagPEPConnection,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("Connected to %d Politically Exposed Person(s) within %d hops", len(within), c.PEPHopRadius),
		Evidence: map[string]any{
			"pep_count": len(within),
			"pep_names": names,
		},
	}, true
}

// BulkFormation fires when an intermediary incorporated at least the
// configured number of entities inside one calendar week. weekCounts is
// keyed by ISO week ("2015-W23"); entities lacking an incorporation date
// must be left out by the caller, which makes the rule skip rather than
// match when the data is absent.
func (c Config) BulkFormation(intermediaryID string, weekCounts map[string]int) (Flag, bool) {
	var week string
	best := 0
	for w, n := range weekCounts {
		if n > best || (n == best && w < week) {
			best = n
			week = w
		}
	}
	if best < c.BulkFormationCount {
		return Flag{}, false
	}
	return Flag{
		Type:        FlagBulkFormation,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("Intermediary formed %d entities during week %s", best, week),
		Evidence: map[string]any{
			"intermediary_id": intermediaryID,
			"entity_count":    best,
			"week":            week,
		},
	}, true
}

// Assessment is the rolled-up result of a risk classification.
type Assessment struct {
	EntityID string   `json:"entity_id"`
	Flags    []Flag   `json:"red_flags"`
	Score    int      `json:"overall_risk_score"`
	Level    Severity `json:"overall_risk_level"`
}

// Score sums the severity weights of all flags, capped at 100. The sum is
// monotonic: adding a flag, or raising one's severity, never lowers it.
func Score(flags []Flag) int {
	total := 0
	for _, f := range flags {
		total += f.Severity.Weight()
	}
	if total > 100 {
		total = 100
	}
	return total
}

// LevelForScore maps a score onto an overall risk level.
func LevelForScore(score int) Severity {
	switch {
	case score >= 70:
		return SeverityCritical
	case score >= 50:
		return SeverityHigh
	case score >= 25:
		return SeverityMedium
	}
	return SeverityLow
}

// NewAssessment orders the flags (worst first, then by type for a stable
// presentation) and computes the overall score and level.
func NewAssessment(entityID string, flags []Flag) Assessment {
	sorted := make([]Flag, len(flags))
	copy(sorted, flags)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity.Rank() != sorted[j].Severity.Rank() {
			return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
		}
		return sorted[i].Type < sorted[j].Type
	})
	score := Score(sorted)
	return Assessment{
		EntityID: entityID,
		Flags:    sorted,
		Score:    score,
		Level:    LevelForScore(score),
	}
}
