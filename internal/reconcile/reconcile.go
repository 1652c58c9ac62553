// Package reconcile recomputes stored maturity scores from the accepted
// specifications, fixing drift left by manual database edits or crashed runs.
package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/metalagman/socratic/internal/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds the number of projects rescored at once.
const DefaultParallelism = 4

// Lister enumerates projects.
type Lister interface {
	Projects(ctx context.Context) ([]model.Project, error)
}

// Rescorer recomputes and stores one project's maturity score under its lock.
type Rescorer interface {
	Rescore(ctx context.Context, projectID string) (int, error)
}

// Change is one project whose stored score was corrected.
type Change struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

// Report summarizes a reconcile pass.
type Report struct {
	Checked int      `json:"checked"`
	Changed []Change `json:"changed"`
}

// Run rescores every project. Projects are independent, so they are processed in
// parallel; the first failure cancels the rest.
func Run(ctx context.Context, projects Lister, rescorer Rescorer, parallelism int) (Report, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	list, err := projects.Projects(ctx)
	if err != nil {
		return Report{}, err
	}

	var (
		mu      sync.Mutex
		changed []Change
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, p := range list {
		g.Go(func() error {
			after, err := rescorer.Rescore(gctx, p.ID)
			if err != nil {
				return err
			}
			if after == p.MaturityScore {
				return nil
			}
			log.Info().Str("project_id", p.ID).Int("before", p.MaturityScore).Int("after", after).
				Msg("maturity score corrected")
			mu.Lock()
			changed = append(changed, Change{ProjectID: p.ID, Name: p.Name, Before: p.MaturityScore, After: after})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	sortChanges(changed, list)
	return Report{Checked: len(list), Changed: changed}, nil
}

// sortChanges orders changes like the project listing.
func sortChanges(changes []Change, list []model.Project) {
	pos := make(map[string]int, len(list))
	for i, p := range list {
		pos[p.ID] = i
	}
	sort.Slice(changes, func(i, j int) bool {
		return pos[changes[i].ProjectID] < pos[changes[j].ProjectID]
	})
}
