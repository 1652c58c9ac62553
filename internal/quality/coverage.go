package quality

import (
	"github.com/metalagman/socratic/internal/model"
)

// Coverage defaults.
const (
	DefaultMinSpecsPerCategory = 3
	DefaultCoverageThreshold   = 0.7
)

// CoverageGap is one category below its minimum count.
type CoverageGap struct {
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
	Required int            `json:"required"`
}

// CoverageResult is the fraction of categories meeting the minimum count.
type CoverageResult struct {
	Score   float64       `json:"score"`
	Gaps    []CoverageGap `json:"gaps"`
	Blocked bool          `json:"blocked"`
}

// CoverageChecker counts specifications per category of the canonical table.
// It is advisory and independent of the weighted maturity score.
type CoverageChecker struct {
	taxonomy  model.Taxonomy
	minimum   int
	threshold float64
}

// NewCoverageChecker creates a checker; zero values select the defaults.
func NewCoverageChecker(taxonomy model.Taxonomy, minimum int, threshold float64) *CoverageChecker {
	if taxonomy == nil {
		taxonomy = model.DefaultTaxonomy()
	}
	if minimum <= 0 {
		minimum = DefaultMinSpecsPerCategory
	}
	if threshold <= 0 {
		threshold = DefaultCoverageThreshold
	}
	return &CoverageChecker{taxonomy: taxonomy, minimum: minimum, threshold: threshold}
}

// Score evaluates the current accepted specifications.
func (c *CoverageChecker) Score(specs []model.Specification) CoverageResult {
	counts := map[model.Category]int{}
	for _, s := range specs {
		counts[s.Category]++
	}

	res := CoverageResult{Gaps: []CoverageGap{}}
	met := 0
	for _, cat := range c.taxonomy.Categories() {
		if counts[cat] >= c.minimum {
			met++
			continue
		}
		res.Gaps = append(res.Gaps, CoverageGap{Category: cat, Count: counts[cat], Required: c.minimum})
	}
	if n := len(c.taxonomy); n > 0 {
		res.Score = float64(met) / float64(n)
	}
	res.Blocked = res.Score < c.threshold
	return res
}
