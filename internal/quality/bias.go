// Package quality holds the advisory question-bias and coverage heuristics.
package quality

import (
	"math"
	"regexp"
	"strings"

	"github.com/metalagman/socratic/internal/model"
)

// BiasType names a family of biased phrasing.
type BiasType string

// Bias families.
const (
	BiasSolution   BiasType = "solution_bias"
	BiasTechnology BiasType = "technology_bias"
	BiasLeading    BiasType = "leading_question"
)

// DefaultBiasThreshold rejects questions scoring above it.
const DefaultBiasThreshold = 0.5

const weightPerMatch = 0.3

type biasPattern struct {
	typ BiasType
	re  *regexp.Regexp
}

var biasPatterns = []biasPattern{
	{BiasSolution, regexp.MustCompile(`\bshould (?:we|you|i) (?:use|build|implement|go with|choose)\b`)},
	{BiasSolution, regexp.MustCompile(`\bwouldn'?t it be (?:better|easier)\b`)},
	{BiasSolution, regexp.MustCompile(`\bwhy not (?:use|just)\b`)},
	{BiasSolution, regexp.MustCompile(`\bthe (?:right|correct) (?:solution|approach) is\b`)},
	{BiasTechnology, regexp.MustCompile(`\bbest (?:framework|language|database|tool|library|stack)\b`)},
	{BiasTechnology, regexp.MustCompile(`\b(?:react|angular|vue|django|rails|spring|kubernetes|mongodb|postgres(?:ql)?)\b.*\b(?:right|best|obvious)\b`)},
	{BiasTechnology, regexp.MustCompile(`\beveryone uses\b`)},
	{BiasTechnology, regexp.MustCompile(`\bindustry standard\b`)},
	{BiasLeading, regexp.MustCompile(`\bobviously\b`)},
	{BiasLeading, regexp.MustCompile(`\bclearly\b`)},
	{BiasLeading, regexp.MustCompile(`\bsurely\b`)},
	{BiasLeading, regexp.MustCompile(`\bdon'?t you (?:think|agree)\b`)},
	{BiasLeading, regexp.MustCompile(`\bisn'?t it true\b`)},
	{BiasLeading, regexp.MustCompile(`\bof course\b`)},
}

// BiasResult scores one question.
type BiasResult struct {
	Score       float64    `json:"score"`
	Types       []BiasType `json:"types"`
	Matches     int        `json:"matches"`
	Blocked     bool       `json:"blocked"`
	Suggestions []string   `json:"suggestions,omitempty"`
}

// BiasChecker scores questions for biased phrasing.
type BiasChecker struct {
	threshold float64
}

// NewBiasChecker creates a checker. threshold <= 0 selects DefaultBiasThreshold.
func NewBiasChecker(threshold float64) *BiasChecker {
	if threshold <= 0 {
		threshold = DefaultBiasThreshold
	}
	return &BiasChecker{threshold: threshold}
}

// Score counts pattern matches; every match adds 0.3, capped at 1.
func (c *BiasChecker) Score(question string, category model.Category) BiasResult {
	text := strings.ToLower(question)
	seen := map[BiasType]bool{}
	res := BiasResult{Types: []BiasType{}}
	for _, p := range biasPatterns {
		n := len(p.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		res.Matches += n
		if !seen[p.typ] {
			seen[p.typ] = true
			res.Types = append(res.Types, p.typ)
		}
	}
	res.Score = math.Min(1, weightPerMatch*float64(res.Matches))
	res.Blocked = res.Score > c.threshold
	if res.Blocked {
		res.Suggestions = Suggestions(category)
	}
	return res
}

var neutralQuestions = map[model.Category][]string{
	model.CategoryGoals: {
		"What problem should this project solve for its users?",
		"How will you know the project has succeeded?",
	},
	model.CategoryRequirements: {
		"What must the system be able to do on day one?",
		"Which user actions are essential, and which are nice to have?",
	},
	model.CategoryTechStack: {
		"What constraints exist on languages, platforms or infrastructure?",
		"Which technologies does your team already operate in production?",
	},
	model.CategoryScalability: {
		"How many users or requests do you expect at launch and in a year?",
		"Which parts of the workload are likely to grow fastest?",
	},
	model.CategorySecurity: {
		"What data does the system handle, and who may access it?",
		"How should users prove who they are?",
	},
	model.CategoryPerformance: {
		"What response times would users consider acceptable?",
		"Which operations are the most latency-sensitive?",
	},
	model.CategoryTesting: {
		"How do you want to verify that changes do not break existing behaviour?",
		"Which failures would be the most costly to miss before release?",
	},
	model.CategoryMonitoring: {
		"How will you find out that the system is unhealthy?",
		"Which metrics or events matter to the people operating it?",
	},
	model.CategoryDataRetention: {
		"How long must data be kept, and what happens to it afterwards?",
		"Are there legal or contractual rules about deleting data?",
	},
	model.CategoryDisasterRecovery: {
		"How much data loss and downtime could the business tolerate?",
		"What should happen if the primary environment becomes unavailable?",
	},
}

// Suggestions returns templated neutral questions for category.
func Suggestions(category model.Category) []string {
	if qs, ok := neutralQuestions[category]; ok {
		return append([]string(nil), qs...)
	}
	return []string{
		"Can you describe what you need here in your own words?",
		"What options have you considered, and what matters most when choosing?",
	}
}

// NeutralQuestion returns the first templated question for category.
func NeutralQuestion(category model.Category) string {
	return Suggestions(category)[0]
}
