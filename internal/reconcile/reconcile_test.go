package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	dbpkg "github.com/metalagman/socratic/internal/db"
	"github.com/metalagman/socratic/internal/lock"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
)

func TestRunCorrectsDriftedScores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := dbpkg.Open(filepath.Join(t.TempDir(), "socratic.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := dbpkg.NewStore(db)

	drifted, err := store.CreateProject(ctx, "drifted", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	clean, err := store.CreateProject(ctx, "clean", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := store.InsertSpecifications(ctx, []model.Specification{
		{ProjectID: drifted.ID, Category: model.CategorySecurity, Key: "auth", Value: "OAuth2", Confidence: 1, Source: model.SourceUserInput},
		{ProjectID: drifted.ID, Category: model.CategoryGoals, Key: "mission", Value: "sell", Confidence: 1, Source: model.SourceUserInput},
	}, nil); err != nil {
		t.Fatalf("insert specifications: %v", err)
	}
	if err := store.UpdateProjectMaturity(ctx, drifted.ID, 55); err != nil {
		t.Fatalf("update maturity: %v", err)
	}

	p := pipeline.New(pipeline.Deps{Store: store, Locks: lock.New(t.TempDir())}, pipeline.Options{})
	report, err := Run(ctx, store, p, 2)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Checked != 2 {
		t.Fatalf("checked = %d, want 2", report.Checked)
	}
	if len(report.Changed) != 1 {
		t.Fatalf("changed = %+v, want one change", report.Changed)
	}
	got := report.Changed[0]
	if got.ProjectID != drifted.ID || got.Before != 55 || got.After != 2 {
		t.Fatalf("change = %+v, want %s 55 -> 2", got, drifted.ID)
	}

	stored, err := store.Project(ctx, drifted.ID)
	if err != nil {
		t.Fatalf("read project: %v", err)
	}
	if stored.MaturityScore != 2 {
		t.Fatalf("stored maturity = %d, want 2", stored.MaturityScore)
	}
	untouched, err := store.Project(ctx, clean.ID)
	if err != nil {
		t.Fatalf("read project: %v", err)
	}
	if untouched.MaturityScore != 0 {
		t.Fatalf("clean maturity = %d, want 0", untouched.MaturityScore)
	}
}

type staticProjects []model.Project

func (s staticProjects) Projects(context.Context) ([]model.Project, error) { return s, nil }

type failingRescorer struct{ fail string }

func (f failingRescorer) Rescore(_ context.Context, id string) (int, error) {
	if id == f.fail {
		return 0, errors.New("disk full")
	}
	return 0, nil
}

func TestRunStopsOnFirstError(t *testing.T) {
	t.Parallel()

	projects := staticProjects{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	_, err := Run(context.Background(), projects, failingRescorer{fail: "b"}, 0)
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("err = %v, want disk full", err)
	}
}

func TestSortChangesFollowsListing(t *testing.T) {
	t.Parallel()

	list := []model.Project{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	changes := []Change{{ProjectID: "c"}, {ProjectID: "a"}, {ProjectID: "b"}}
	sortChanges(changes, list)
	for i, want := range []string{"a", "b", "c"} {
		if changes[i].ProjectID != want {
			t.Fatalf("changes[%d] = %s, want %s", i, changes[i].ProjectID, want)
		}
	}
}
