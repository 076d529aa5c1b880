package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"SignalScanner/internal/config"
	"SignalScanner/internal/infrastructure/insight"
	"SignalScanner/internal/infrastructure/scheduler"
	"SignalScanner/internal/infrastructure/sources"
	"SignalScanner/internal/infrastructure/storage"
	"SignalScanner/internal/infrastructure/telegram"
	"SignalScanner/internal/infrastructure/trends"
	"SignalScanner/internal/logging"
	"SignalScanner/internal/ports"
	"SignalScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	db        *sql.DB
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	logger    *slog.Logger
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repository := storage.NewPostgresRepository(db)
	engine := insight.NewEngine(cfg.Insight, baseLogger.With("component", "insight"))

	var signalSources []ports.SignalSource
	if len(cfg.Sources.Reddit.Communities) > 0 {
		signalSources = append(signalSources,
			sources.NewRedditSource(cfg.Sources.Reddit, nil, baseLogger.With("component", "source.reddit")))
	}
	if len(cfg.Sources.RSS.Feeds) > 0 {
		signalSources = append(signalSources,
			sources.NewRSSSource(cfg.Sources.RSS, baseLogger.With("component", "source.rss")))
	}
	if len(cfg.Sources.AppStore.Keywords) > 0 {
		signalSources = append(signalSources,
			sources.NewAppStoreSource(cfg.Sources.AppStore, nil, baseLogger.With("component", "source.appstore")))
	}
	if len(cfg.Sources.PlayStore.Keywords) > 0 {
		signalSources = append(signalSources,
			sources.NewPlayStoreSource(cfg.Sources.PlayStore, nil, baseLogger.With("component", "source.playstore")))
	}
	if cfg.Sources.ProductHunt.Token != "" {
		signalSources = append(signalSources,
			sources.NewProductHuntSource(cfg.Sources.ProductHunt, nil, baseLogger.With("component", "source.producthunt")))
	}

	var trendProvider ports.TrendProvider
	if cfg.Trends.URL != "" {
		trendProvider = trends.NewClient(cfg.Trends)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:          signalSources,
		Repository:       repository,
		Engine:           engine,
		Trends:           trendProvider,
		Notifier:         notifier,
		Logger:           baseLogger.With("component", "pipeline"),
		TagBatchSize:     cfg.Insight.TagBatchSize,
		TagCooldown:      cfg.Insight.TagCooldown,
		PendingLimit:     cfg.Insight.PendingLimit,
		ClusterBatchSize: cfg.Insight.ClusterBatchSize,
	})

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.RunOnStart)

	return &Application{
		cfg:       cfg,
		db:        db,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline),
		logger:    baseLogger,
	}, nil
}

// RunOnce executes a single pipeline pass and reports whether it was fully
// successful.
func (a *Application) RunOnce(ctx context.Context) error {
	result := a.pipeline.Run(ctx)
	for _, msg := range result.Errors {
		a.logger.Warn("pipeline error", "error", msg)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("run completed with %d errors", len(result.Errors))
	}
	return nil
}

// Run starts the recurring scheduler and blocks until the context is done.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	if err := a.scheduler.Stop(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return a.Close()
}

// Close releases the database pool.
func (a *Application) Close() error {
	return a.db.Close()
}
