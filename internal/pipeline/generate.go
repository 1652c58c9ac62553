package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/rs/zerolog/log"
)

// Generator produces the downstream artifact from accepted specifications.
type Generator struct {
	oracle oracle.Oracle
}

// NewGenerator creates a generator.
func NewGenerator(o oracle.Oracle) *Generator {
	return &Generator{oracle: o}
}

// Generate asks the oracle for a project scaffold plan in markdown.
func (g *Generator) Generate(ctx context.Context, project model.Project, specs []model.Specification) (string, error) {
	byCategory := map[model.Category][]model.Specification{}
	for _, s := range specs {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}
	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", project.Name)
	if project.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", project.Description)
	}
	b.WriteString("\nAccepted specifications:\n")
	for _, c := range cats {
		fmt.Fprintf(&b, "\n## %s\n", c)
		for _, s := range byCategory[model.Category(c)] {
			fmt.Fprintf(&b, "- %s: %s\n", s.Key, s.Value)
		}
	}
	b.WriteString("\nWrite a markdown implementation plan for this project: architecture, modules, ")
	b.WriteString("data model, key interfaces and a test strategy. Follow every specification above.\n")

	out, err := oracle.Call(ctx, g.oracle, "generate", b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GenerationResult is a stored generation with the gate decision that allowed it.
type GenerationResult struct {
	Generation model.Generation  `json:"generation"`
	Decision   maturity.Decision `json:"decision"`
}

// CanGenerate evaluates the generation gate for a project. It performs no writes.
func (p *Pipeline) CanGenerate(ctx context.Context, projectID string) (maturity.Decision, error) {
	d, _, _, err := p.evaluateGate(ctx, projectID)
	return d, err
}

func (p *Pipeline) evaluateGate(ctx context.Context, projectID string) (maturity.Decision, model.Project, []model.Specification, error) {
	if err := p.check(ProjectInput{ProjectID: projectID}); err != nil {
		return maturity.Decision{}, model.Project{}, nil, err
	}
	project, err := p.store.Project(ctx, projectID)
	if err != nil {
		return maturity.Decision{}, model.Project{}, nil, err
	}
	open, err := p.store.CountOpenConflicts(ctx, projectID)
	if err != nil {
		return maturity.Decision{}, model.Project{}, nil, err
	}
	specs, err := p.store.Specifications(ctx, projectID, model.CurrentOnly())
	if err != nil {
		return maturity.Decision{}, model.Project{}, nil, err
	}
	return p.gate.CanGenerate(project.MaturityScore, open, specs), project, specs, nil
}

// RequestGeneration runs the gate and, only when it allows, the generator.
// A denial is returned as *GateDeniedError.
func (p *Pipeline) RequestGeneration(ctx context.Context, projectID string) (GenerationResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	decision, project, specs, err := p.evaluateGate(ctx, projectID)
	if err != nil {
		return GenerationResult{}, err
	}
	if !decision.Allowed {
		log.Info().Str("project_id", projectID).Str("reason", decision.Reason).Msg("generation denied")
		return GenerationResult{}, &GateDeniedError{Decision: decision}
	}
	if p.opts.EnforceCoverage && p.coverage != nil {
		cov := p.coverage.Score(specs)
		if cov.Blocked {
			decision.Allowed = false
			decision.Reason = fmt.Sprintf("coverage %.0f%% is below the required threshold", cov.Score*100)
			log.Info().Str("project_id", projectID).Str("reason", decision.Reason).Msg("generation denied")
			return GenerationResult{}, &GateDeniedError{Decision: decision, Coverage: &cov}
		}
	}
	if p.generator == nil {
		return GenerationResult{}, fmt.Errorf("no generator configured")
	}

	content, err := p.generator.Generate(ctx, project, specs)
	if err != nil {
		span.RecordError(err)
		return GenerationResult{}, err
	}
	gen, err := p.store.InsertGeneration(ctx, projectID, content)
	if err != nil {
		return GenerationResult{}, err
	}
	log.Info().Str("project_id", projectID).Str("generation_id", gen.ID).Msg("generation stored")
	return GenerationResult{Generation: gen, Decision: decision}, nil
}
