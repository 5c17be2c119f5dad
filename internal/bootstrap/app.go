package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/llm/gemini"
	"resume-pipeline/internal/llm/openai"
	"resume-pipeline/internal/pipeline"
	"resume-pipeline/internal/runs"
	"resume-pipeline/internal/services/health"
	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/server"
	"resume-pipeline/internal/shared/server/middleware"
	"resume-pipeline/internal/shared/storage/db"
	"resume-pipeline/internal/shared/storage/object"
	localstore "resume-pipeline/internal/shared/storage/object/local"
	s3store "resume-pipeline/internal/shared/storage/object/s3"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/workflows"
)

// App holds the wired dependency graph.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	DB           *sql.DB
	Registry     runs.Registry
	Store        object.Store
	Catalog      *catalog.Cache
	Completer    llm.Completer
	Orchestrator *pipeline.Orchestrator
	Dispatcher   *workflows.Dispatcher
	Workflows    *workflows.Service
	Handler      *workflows.Handler
	Health       *health.Service
	Router       *gin.Engine
}

// Build prepares every dependency and the HTTP router.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = telemetry.L()
	}
	app := &App{Config: cfg, Logger: logger}

	sqlDB, err := buildDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.Registry = &runs.PGRegistry{DB: sqlDB}
	} else {
		app.Registry = runs.NewMemoryRegistry()
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	completer, err := buildCompleter(ctx, cfg)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("bootstrap.llm_not_configured", zap.String("provider", cfg.LLMProvider))
	case err != nil:
		return nil, err
	default:
		app.Completer = llm.WithRetry(completer, telemetry.Named(logger, "llm"))
	}

	app.Catalog = catalog.NewCache(CatalogOptions(cfg.Catalog, logger))

	deps := pipeline.Dependencies{Catalog: app.Catalog}
	if app.Completer != nil {
		deps.Extractor = llm.NewResumeExtractor(app.Completer, cfg.LLMProvider, cfg.LLMMaxTokens, logger)
		deps.Matcher = llm.NewTitleMatcher(app.Completer, logger)
	}
	app.Orchestrator = pipeline.NewOrchestrator(app.Registry, logger, pipeline.DefaultStages(deps)...)

	app.Dispatcher = workflows.NewDispatcher(cfg.WorkerConcurrency, logger)
	app.Workflows = &workflows.Service{
		Registry:       app.Registry,
		Runner:         app.Orchestrator,
		Results:        workflows.NewResultStore(app.Store),
		Dispatcher:     app.Dispatcher,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         telemetry.Named(logger, "workflows"),
	}

	limit := middleware.RateLimit(middleware.RateLimitRule{
		Rate:  cfg.RunRatePerSecond,
		Burst: cfg.RunRateBurst,
	}, nil)
	app.Handler = workflows.NewHandler(app.Workflows, app.Catalog, limit)
	app.Health = buildHealth(app)
	app.Router = server.NewRouter(cfg, app.Handler, app.Health)
	return app, nil
}

// Close drains background runs and releases the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain runs: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CatalogOptions maps catalog configuration onto cache options.
func CatalogOptions(cfg config.CatalogConfig, logger *zap.Logger) catalog.Options {
	return catalog.Options{
		Path: cfg.Path,
		TTL:  cfg.TTL,
		Columns: catalog.Columns{
			Code:       cfg.CodeColumn,
			Label:      cfg.LabelColumn,
			Definition: cfg.DefinitionColumn,
			Aliases:    cfg.AliasesColumn,
		},
		Delimiter: cfg.Delimiter,
		Logger:    logger,
	}
}

func buildHealth(app *App) *health.Service {
	svc := health.NewService()
	if app.DB != nil {
		svc.Register("database", app.DB.PingContext, true)
	}
	svc.Register("catalog", func(ctx context.Context) error {
		_, err := app.Catalog.Entries(ctx)
		return err
	}, true)
	svc.Register("llm", func(context.Context) error {
		if app.Completer == nil {
			return llm.ErrNotConfigured
		}
		return nil
	}, false)
	return svc
}

func buildDB(ctx context.Context, cfg config.Config, logger *zap.Logger) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.DevLike() {
			logger.Info("bootstrap.memory_registry", zap.String("reason", "DATABASE_URL empty"))
			return nil, nil
		}
		return nil, db.ErrNoDatabaseURL
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions(), logger)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts, logger)
	if err == nil {
		if err = db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		if cfg.DevLike() {
			logger.Warn("bootstrap.memory_registry", zap.String("reason", "database unavailable"), zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildCompleter(ctx context.Context, cfg config.Config) (llm.Completer, error) {
	switch cfg.LLMProvider {
	case "gemini":
		return gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.LLMModel, cfg.LLMTemperature)
	default:
		return openai.NewClient(openai.Options{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.OpenAITimeout,
		})
	}
}
