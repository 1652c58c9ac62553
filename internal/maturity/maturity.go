// Package maturity computes the weighted coverage score of a project and the
// generation gate derived from it.
package maturity

import (
	"math"

	"github.com/metalagman/socratic/internal/model"
)

// Complete is the score at which generation may proceed.
const Complete = 100

// CategoryScore is one row of a score breakdown.
type CategoryScore struct {
	Category model.Category `json:"category"`
	Target   float64        `json:"target"`
	Sum      float64        `json:"sum"`
	Capped   float64        `json:"capped"`
	Count    int            `json:"count"`
}

// Breakdown explains a score.
type Breakdown struct {
	Score      int             `json:"score"`
	Categories []CategoryScore `json:"categories"`
}

// Scorer is a pure function of the accepted specification set.
type Scorer struct {
	taxonomy model.Taxonomy
}

// NewScorer creates a scorer over taxonomy. A nil taxonomy selects model.DefaultTaxonomy.
func NewScorer(taxonomy model.Taxonomy) *Scorer {
	if taxonomy == nil {
		taxonomy = model.DefaultTaxonomy()
	}
	return &Scorer{taxonomy: taxonomy}
}

// Taxonomy returns the category table in use.
func (s *Scorer) Taxonomy() model.Taxonomy {
	return s.taxonomy
}

// Score returns the maturity percentage for specs.
func (s *Scorer) Score(specs []model.Specification) int {
	return s.Breakdown(specs).Score
}

// Breakdown computes per-category sums, each capped at its target. Categories
// outside the table are ignored.
func (s *Scorer) Breakdown(specs []model.Specification) Breakdown {
	sums := make(map[model.Category]float64, len(s.taxonomy))
	counts := make(map[model.Category]int, len(s.taxonomy))
	for _, spec := range specs {
		if s.taxonomy.Target(spec.Category) == 0 {
			continue
		}
		sums[spec.Category] += spec.Confidence
		counts[spec.Category]++
	}

	out := Breakdown{Categories: make([]CategoryScore, 0, len(s.taxonomy))}
	var covered float64
	for _, ct := range s.taxonomy {
		sum := sums[ct.Category]
		capped := math.Min(sum, ct.Target)
		covered += capped
		out.Categories = append(out.Categories, CategoryScore{
			Category: ct.Category,
			Target:   ct.Target,
			Sum:      sum,
			Capped:   capped,
			Count:    counts[ct.Category],
		})
	}

	total := s.taxonomy.Total()
	if total > 0 {
		out.Score = int(math.Round(100 * covered / total))
	}
	return out
}
