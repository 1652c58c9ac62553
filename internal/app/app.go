// Package app wires configuration, storage, the oracle and the services into
// one dependency graph shared by every command.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/metalagman/socratic/internal/config"
	"github.com/metalagman/socratic/internal/conflict"
	"github.com/metalagman/socratic/internal/counselor"
	"github.com/metalagman/socratic/internal/db"
	"github.com/metalagman/socratic/internal/extract"
	"github.com/metalagman/socratic/internal/lock"
	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/metalagman/socratic/internal/quality"
	"github.com/metalagman/socratic/internal/templates"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
)

// Module provides every service from a supplied config.Config.
var Module = fx.Module("socratic",
	fx.Provide(
		openDB,
		db.NewStore,
		newOracle,
		func() *maturity.Scorer { return maturity.NewScorer(nil) },
		func(cfg config.Config) *quality.BiasChecker {
			return quality.NewBiasChecker(cfg.Quality.BiasThreshold)
		},
		func(cfg config.Config) *quality.CoverageChecker {
			return quality.NewCoverageChecker(nil, cfg.Quality.MinSpecsPerCategory, cfg.Quality.CoverageThreshold)
		},
		func(cfg config.Config, o oracle.Oracle) *extract.Extractor {
			return extract.New(o, cfg.Pipeline.ExistingSampleSize)
		},
		func(o oracle.Oracle, store *db.Store) *conflict.Detector {
			return conflict.NewDetector(o, store)
		},
		pipeline.NewGenerator,
		loadTemplates,
		func(cfg config.Config) *lock.Locker { return lock.New(cfg.Storage.LocksDir) },
		newPipeline,
		func(store *db.Store, o oracle.Oracle, bias *quality.BiasChecker, scorer *maturity.Scorer) *counselor.Counselor {
			return counselor.New(store, o, bias, scorer)
		},
	),
)

// App is the assembled service graph.
type App struct {
	Config    config.Config
	Store     *db.Store
	Counselor *counselor.Counselor
	Pipeline  *pipeline.Pipeline
	Templates *templates.Registry
	Scorer    *maturity.Scorer
	Bias      *quality.BiasChecker
	Coverage  *quality.CoverageChecker

	fx *fx.App
}

type services struct {
	fx.In

	Store     *db.Store
	Counselor *counselor.Counselor
	Pipeline  *pipeline.Pipeline
	Templates *templates.Registry
	Scorer    *maturity.Scorer
	Bias      *quality.BiasChecker
	Coverage  *quality.CoverageChecker
}

// New builds and starts the graph. extra options replace providers in tests,
// e.g. fx.Decorate over oracle.Oracle.
func New(ctx context.Context, cfg config.Config, extra ...fx.Option) (*App, error) {
	a := &App{Config: cfg}
	opts := []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg),
		Module,
		fx.Invoke(func(s services) {
			a.Store = s.Store
			a.Counselor = s.Counselor
			a.Pipeline = s.Pipeline
			a.Templates = s.Templates
			a.Scorer = s.Scorer
			a.Bias = s.Bias
			a.Coverage = s.Coverage
		}),
	}
	a.fx = fx.New(append(opts, extra...)...)
	if err := a.fx.Err(); err != nil {
		return nil, err
	}
	if err := a.fx.Start(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Close stops the graph and closes the database.
func (a *App) Close(ctx context.Context) error {
	return a.fx.Stop(ctx)
}

func openDB(lc fx.Lifecycle, cfg config.Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	conn, err := db.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return conn.Close() },
	})
	return conn, nil
}

func newOracle(cfg config.Config) oracle.Oracle {
	return oracle.Lazy(func() (oracle.Oracle, error) {
		o, err := oracle.New(context.Background(), cfg.Oracle)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("type", cfg.Oracle.Type).Str("model", cfg.Oracle.Model).Msg("oracle ready")
		return o, nil
	})
}

// TemplatesDir is where project-local templates live, next to the database.
func TemplatesDir(cfg config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Storage.Path), "templates")
}

func loadTemplates(cfg config.Config) (*templates.Registry, error) {
	reg, err := templates.Builtin()
	if err != nil {
		return nil, err
	}
	if err := reg.LoadDir(TemplatesDir(cfg)); err != nil {
		return nil, err
	}
	return reg, nil
}

func newPipeline(
	cfg config.Config,
	store *db.Store,
	extractor *extract.Extractor,
	detector *conflict.Detector,
	scorer *maturity.Scorer,
	coverage *quality.CoverageChecker,
	generator *pipeline.Generator,
	reg *templates.Registry,
	locks *lock.Locker,
) *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Store:     store,
		Extractor: extractor,
		Detector:  detector,
		Scorer:    scorer,
		Coverage:  coverage,
		Generator: generator,
		Templates: reg,
		Locks:     locks,
	}, pipeline.Options{
		ConflictCheckPolicy: cfg.Pipeline.ConflictCheckPolicy,
		ExistingSampleSize:  cfg.Pipeline.ExistingSampleSize,
		EnforceCoverage:     cfg.Quality.EnforceCoverageOnGenerate,
	})
}
