// Package web serves a read-mostly dashboard over projects, their maturity and
// their open conflicts.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// Store is the read side of the dashboard.
type Store interface {
	Projects(ctx context.Context) ([]model.Project, error)
	Project(ctx context.Context, id string) (model.Project, error)
	CountOpenConflicts(ctx context.Context, projectID string) (int, error)
	Specifications(ctx context.Context, projectID string, filter model.SpecFilter) ([]model.Specification, error)
}

// Resolver lists and resolves conflicts.
type Resolver interface {
	Conflicts(ctx context.Context, projectID string, status *model.ConflictStatus) ([]model.Conflict, error)
	ResolveConflict(ctx context.Context, in pipeline.ResolveConflictInput) (model.Conflict, int, error)
}

// Server provides the web UI handlers and state.
type Server struct {
	store    Store
	resolver Resolver
	gate     *maturity.Gate
	scorer   *maturity.Scorer
	tmpl     *template.Template
}

//go:embed templates/*.html
var templatesFS embed.FS

// NewServer creates a new web server.
func NewServer(store Store, resolver Resolver, scorer *maturity.Scorer) (*Server, error) {
	if scorer == nil {
		scorer = maturity.NewScorer(nil)
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"pct": func(v float64) int { return int(v * 100) },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{store: store, resolver: resolver, gate: maturity.NewGate(scorer), scorer: scorer, tmpl: tmpl}, nil
}

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /projects/{id}", s.handleProject)
	mux.HandleFunc("POST /conflicts/{id}/resolve", s.handleResolve)
	return mux
}

type projectRow struct {
	Project       model.Project
	OpenConflicts int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.Projects(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]projectRow, 0, len(projects))
	for _, p := range projects {
		open, err := s.store.CountOpenConflicts(r.Context(), p.ID)
		if err != nil {
			s.fail(w, err)
			return
		}
		rows = append(rows, projectRow{Project: p, OpenConflicts: open})
	}
	s.render(w, "index.html", rows)
}

type projectPage struct {
	Project   model.Project
	Decision  maturity.Decision
	Breakdown maturity.Breakdown
	Specs     []model.Specification
	Conflicts []model.Conflict
	Kinds     []model.ResolutionKind
	Error     string
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	project, err := s.store.Project(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	specs, err := s.store.Specifications(ctx, id, model.CurrentOnly())
	if err != nil {
		s.fail(w, err)
		return
	}
	open := model.ConflictOpen
	conflicts, err := s.resolver.Conflicts(ctx, id, &open)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.render(w, "project.html", projectPage{
		Project:   project,
		Decision:  s.gate.CanGenerate(project.MaturityScore, len(conflicts), specs),
		Breakdown: s.scorer.Breakdown(specs),
		Specs:     specs,
		Conflicts: conflicts,
		Kinds:     []model.ResolutionKind{model.ResolutionKeepOld, model.ResolutionReplace, model.ResolutionMerge, model.ResolutionIgnore},
		Error:     r.URL.Query().Get("error"),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := pipeline.ResolveConflictInput{
		ConflictID: r.PathValue("id"),
		Kind:       model.ResolutionKind(r.PostFormValue("kind")),
		Notes:      r.PostFormValue("notes"),
	}
	resolved, _, err := s.resolver.ResolveConflict(r.Context(), in)
	if err != nil {
		projectID := r.PostFormValue("project_id")
		if projectID == "" || !(model.IsValidation(err) || errors.Is(err, model.ErrConflictNotOpen)) {
			s.fail(w, err)
			return
		}
		http.Redirect(w, r, "/projects/"+url.PathEscape(projectID)+"?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/projects/"+url.PathEscape(resolved.ProjectID), http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render page")
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case model.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrConflictNotOpen):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("dashboard request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
