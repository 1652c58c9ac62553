package model

import "strings"

// CategoryTarget is the target weight of one category in the maturity table.
type CategoryTarget struct {
	Category Category `json:"category"`
	Target   float64  `json:"target"`
}

// Taxonomy is the canonical category table used by every coverage computation.
type Taxonomy []CategoryTarget

// DefaultTaxonomy returns the canonical ten weighted categories.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		{Category: CategoryGoals, Target: 10},
		{Category: CategoryRequirements, Target: 15},
		{Category: CategoryTechStack, Target: 12},
		{Category: CategoryScalability, Target: 8},
		{Category: CategorySecurity, Target: 10},
		{Category: CategoryPerformance, Target: 8},
		{Category: CategoryTesting, Target: 8},
		{Category: CategoryMonitoring, Target: 6},
		{Category: CategoryDataRetention, Target: 5},
		{Category: CategoryDisasterRecovery, Target: 8},
	}
}

// Target returns the target weight of c, or zero for categories outside the table.
func (t Taxonomy) Target(c Category) float64 {
	for _, ct := range t {
		if ct.Category == c {
			return ct.Target
		}
	}
	return 0
}

// Total returns the sum of all targets.
func (t Taxonomy) Total() float64 {
	var total float64
	for _, ct := range t {
		total += ct.Target
	}
	return total
}

// Categories returns the categories in table order.
func (t Taxonomy) Categories() []Category {
	out := make([]Category, 0, len(t))
	for _, ct := range t {
		out = append(out, ct.Category)
	}
	return out
}

// NormalizeCategory lower-cases and snake-cases a category label.
func NormalizeCategory(raw string) Category {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Category(s)
}
