package maturity

import (
	"fmt"
	"math"

	"github.com/metalagman/socratic/internal/model"
)

// Gap is one category that keeps a project below full maturity.
type Gap struct {
	Category model.Category `json:"category"`
	Current  int            `json:"current"`
	Required int            `json:"required"`
	Gap      int            `json:"gap"`
}

// Decision is the gate outcome.
type Decision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason,omitempty"`
	MaturityScore     int    `json:"maturity_score"`
	OpenConflicts     int    `json:"open_conflicts"`
	MissingCategories []Gap  `json:"missing_categories,omitempty"`
}

// Gate decides whether generation may proceed. It has no side effects.
type Gate struct {
	scorer *Scorer
}

// NewGate creates a gate sharing scorer's category table.
func NewGate(scorer *Scorer) *Gate {
	return &Gate{scorer: scorer}
}

// CanGenerate allows generation only when the stored maturity is complete and
// no conflicts are open. specs are the current accepted specifications.
func (g *Gate) CanGenerate(maturityScore, openConflicts int, specs []model.Specification) Decision {
	d := Decision{MaturityScore: maturityScore, OpenConflicts: openConflicts}

	if maturityScore < Complete {
		d.MissingCategories = g.Gaps(specs)
		d.Reason = fmt.Sprintf("maturity score is %d%%, %d%% required", maturityScore, Complete)
	}
	if openConflicts > 0 {
		msg := fmt.Sprintf("%d open conflict(s) must be resolved", openConflicts)
		if d.Reason != "" {
			d.Reason += "; " + msg
		} else {
			d.Reason = msg
		}
	}
	d.Allowed = d.Reason == ""
	return d
}

// Gaps lists the categories whose confidence sum is below target. Current is
// the number of specifications; Required is the target rounded up.
func (g *Gate) Gaps(specs []model.Specification) []Gap {
	var gaps []Gap
	for _, cs := range g.scorer.Breakdown(specs).Categories {
		if cs.Sum >= cs.Target {
			continue
		}
		required := int(math.Ceil(cs.Target))
		gap := required - cs.Count
		if gap < 1 {
			gap = 1
		}
		gaps = append(gaps, Gap{
			Category: cs.Category,
			Current:  cs.Count,
			Required: required,
			Gap:      gap,
		})
	}
	return gaps
}
