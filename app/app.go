package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"curiosity-intelligence/analysis"
	"curiosity-intelligence/cache"
	"curiosity-intelligence/config"
	"curiosity-intelligence/database"
	"curiosity-intelligence/ingestion"
	"curiosity-intelligence/notifications"
	"curiosity-intelligence/processing"
)

// App wires the pipeline components together and owns their lifecycle.
// Collaborators are constructed here and injected; no package holds global
// client state.
type App struct {
	config *config.Config

	db             *database.Database
	redis          *cache.RedisClient
	repo           *database.RunRepository
	webhookManager *notifications.WebhookManager

	normalizer *processing.Normalizer
	embedder   *processing.Embedder
	clusterer  *processing.Clusterer
	detector   *analysis.SignalDetector
	correlator *analysis.NewsCorrelator
	ingesters  []ingestion.Ingester

	scheduler *cron.Cron
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	timeout := time.Duration(cfg.Ingestion.RequestTimeoutSecs) * time.Second

	return &App{
		config:     cfg,
		normalizer: processing.NewNormalizer(),
		clusterer: processing.NewClusterer(
			cfg.Pipeline.MinClusterSize,
			cfg.Pipeline.MinSamples,
			cfg.Pipeline.Epsilon,
		),
		detector: analysis.NewSignalDetector(cfg.Pipeline.SignalThreshold),
		correlator: analysis.NewNewsCorrelator(
			cfg.News.Endpoint,
			cfg.News.APIKey,
			cfg.News.LookbackDays,
		),
		ingesters: []ingestion.Ingester{
			ingestion.NewRedditIngester(
				cfg.Ingestion.RedditUserAgent,
				cfg.Ingestion.PostsPerSubreddit,
				cfg.Ingestion.MinQuestionLength,
				timeout,
			),
			ingestion.NewStackExchangeIngester(
				cfg.Ingestion.StackExchangeKey,
				cfg.Ingestion.QuestionsPerSite,
				timeout,
			),
		},
	}
}

// Start starts the application. With RUN_SCHEDULE set it schedules weekly
// pipeline runs and blocks until a shutdown signal; otherwise it executes a
// single run and exits.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database connection (skipped entirely in dry-run mode)
	if !a.config.Pipeline.DryRun {
		fmt.Println("🗄️  Connecting to database...")
		db, err := a.connectDatabase()
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		a.db = db

		a.repo = database.NewRunRepository(db)
		if err := a.repo.InitSchema(); err != nil {
			return fmt.Errorf("schema initialization failed: %w", err)
		}
	} else {
		fmt.Println("🧪 Dry run: skipping database connection")
	}

	// 2. Redis connection (optional, caching degrades gracefully)
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	// 3. Embedder, with redis-backed cache when available
	a.embedder = processing.NewEmbedder(
		a.config.Embedding.Endpoint,
		a.config.Embedding.APIKey,
		a.config.Embedding.Model,
		a.config.Embedding.BatchSize,
		cache.NewEmbeddingCache(a.redis),
	)

	// 4. Digest webhooks need persistence to exist
	if a.repo != nil {
		a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis)
	}

	if a.config.RunSchedule == "" {
		defer a.shutdown()
		_, err := a.RunPipeline(ctx)
		return err
	}

	return a.runScheduled(ctx, cancel)
}

// connectDatabase opens the configured database driver
func (a *App) connectDatabase() (*database.Database, error) {
	if a.config.DatabaseDriver == "sqlite" {
		return database.ConnectSQLite(a.config.SQLitePath)
	}

	port, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return nil, fmt.Errorf("invalid database port: %w", err)
	}

	return database.Connect(
		a.config.DatabaseHost,
		port,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
}

// runScheduled runs the pipeline on the configured cron schedule until a
// shutdown signal arrives
func (a *App) runScheduled(ctx context.Context, cancel context.CancelFunc) error {
	a.scheduler = cron.New()

	_, err := a.scheduler.AddFunc(a.config.RunSchedule, func() {
		if _, err := a.RunPipeline(ctx); err != nil {
			log.Printf("❌ Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid run schedule %q: %w", a.config.RunSchedule, err)
	}

	a.scheduler.Start()
	log.Printf("⏰ Scheduler started with schedule %q", a.config.RunSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("📡 Shutdown signal received")
	cancel()

	stopCtx := a.scheduler.Stop()
	<-stopCtx.Done()

	a.shutdown()
	return nil
}

// shutdown releases connections
func (a *App) shutdown() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}
}
