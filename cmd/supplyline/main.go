package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/courier"
	"github.com/ternarybob/supplyline/internal/handlers"
	"github.com/ternarybob/supplyline/internal/jobs"
	"github.com/ternarybob/supplyline/internal/queue"
	"github.com/ternarybob/supplyline/internal/server"
	"github.com/ternarybob/supplyline/internal/services/aggregation"
	"github.com/ternarybob/supplyline/internal/services/categories"
	"github.com/ternarybob/supplyline/internal/services/embeddings"
	"github.com/ternarybob/supplyline/internal/services/etl"
	"github.com/ternarybob/supplyline/internal/services/llm"
	"github.com/ternarybob/supplyline/internal/services/matching"
	"github.com/ternarybob/supplyline/internal/services/review"
	syncsvc "github.com/ternarybob/supplyline/internal/services/sync"
	"github.com/ternarybob/supplyline/internal/storage/postgres"
	"github.com/ternarybob/supplyline/internal/workers"
)

var (
	configPath  = flag.String("config", "", "Configuration file path")
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Supplyline version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	config, err := common.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *serverPort != 0 {
		config.Server.Port = *serverPort
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Fatal().Err(err).Msg("Service failed")
	}
}

func run(ctx context.Context, config *common.Config, logger arbor.ILogger) error {
	// Storage
	db, err := postgres.Connect(ctx, &config.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx, config.Ollama.Dimensions); err != nil {
		return err
	}

	redisClient, err := newRedisClient(&config.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	// Repositories
	suppliers := postgres.NewSupplierRepository(db, logger)
	categoryRepo := postgres.NewCategoryRepository(db, logger)
	products := postgres.NewProductRepository(db, logger)
	items := postgres.NewSupplierItemRepository(db, logger)
	reviews := postgres.NewReviewRepository(db, logger)
	parsingLogs := postgres.NewParsingLogRepository(db, logger)
	vectors := postgres.NewVectorRepository(db, config.Ollama.EmbeddingModel, logger)

	// LLM and embeddings
	llmService, err := llm.NewLLMService(config, logger)
	if err != nil {
		return err
	}
	defer llmService.Close()
	embedder := embeddings.NewService(llmService, vectors, config, logger)

	// Job registry and queue
	registry := jobs.NewRegistry(redisClient, logger)
	workQueue := queue.NewRedisQueue(redisClient, &config.Queue, logger)

	// Extraction pipeline
	renderer := etl.NewRenderer(config.Extraction.ChunkSize, config.Extraction.ChunkOverlap, config.Extraction.MaxCellLength, logger)
	pdfRenderer := etl.NewPDFRenderer(logger)
	selector := etl.NewSelector(llmService, config.Extraction.UseLLMSheetSelect, config.Extraction.MinSheetRows, logger)
	extractor := etl.NewExtractor(llmService, config.LLM.Temperature, logger)
	dedup := etl.NewDeduplicator(config.Extraction.DedupPriceTolerance, logger)
	normalizer := categories.NewNormalizer(categoryRepo, config.Extraction.CategoryThreshold, logger)
	orchestrator := etl.NewOrchestrator(renderer, pdfRenderer, selector, extractor, dedup,
		normalizer, embedder, items, parsingLogs, registry, logger)

	// Matching and aggregation
	var reranker *matching.Reranker
	if config.Matching.UseLLMRerank {
		reranker = matching.NewReranker(llmService, logger)
	}
	matcher := matching.NewMatcher(products, items, reviews, embedder, vectors, reranker, &config.Matching, logger)
	aggregates := aggregation.NewService(products, logger)
	reviewService := review.NewService(reviews, items, products, aggregates, workQueue, logger)

	// Courier and master sync
	resolver := courier.NewFileResolver(&config.Uploads, logger)
	etlClient := courier.NewETLClient(&config.Courier, logger)
	courierService := courier.NewCourier(resolver, etlClient, registry, workQueue, &config.Courier, logger)
	coordinator := syncsvc.NewCoordinator(redisClient, &config.Sync, logger)
	runner := syncsvc.NewRunner(coordinator, suppliers, courierService, logger)
	cleanup := courier.NewCleanupTask(&config.Uploads, courierService.IsInFlight, logger)
	triggers := queue.NewTriggerPoller(redisClient, registry, workQueue, logger)

	// Worker pool
	pool := queue.NewWorkerPool(workQueue, &config.Queue, logger)
	workers.NewHandlers(registry, orchestrator, matcher, items, resolver, config.Matching.BatchSize, logger).Register(pool)
	pool.Start()

	// Scheduler
	scheduler, err := setupScheduler(ctx, config, logger, workQueue, reviewService, aggregates, parsingLogs, cleanup, triggers, coordinator, runner)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	// HTTP server
	analyzeHandler := handlers.NewAnalyzeHandler(registry, workQueue, items, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"ollama":   llmService.HealthCheck,
		"database": db.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}, logger)
	srv := server.New(&config.Server, analyzeHandler, healthHandler, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	scheduler.Stop()
	pool.Shutdown()
	logger.Info().Msg("Shutdown complete")
	return nil
}

// setupScheduler registers all recurring jobs on 6-field cron schedules
func setupScheduler(
	ctx context.Context,
	config *common.Config,
	logger arbor.ILogger,
	workQueue *queue.RedisQueue,
	reviewService *review.Service,
	aggregates *aggregation.Service,
	parsingLogs *postgres.ParsingLogRepository,
	cleanup *courier.CleanupTask,
	triggers *queue.TriggerPoller,
	coordinator *syncsvc.Coordinator,
	runner *syncsvc.Runner,
) (*queue.Scheduler, error) {
	scheduler := queue.NewScheduler(logger)

	syncHours := config.Sync.IntervalHours
	if syncHours <= 0 {
		syncHours = 8
	}

	registrations := []struct {
		name     string
		schedule string
		handler  func() error
	}{
		{"queue-depth-monitor", "0 */5 * * * *", func() error {
			depth, err := workQueue.Depth(ctx)
			if err != nil {
				return err
			}
			dlqDepth, err := workQueue.DeadLetterDepth(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int64("depth", depth).Int64("dlq_depth", dlqDepth).Msg("Queue depth")
			return nil
		}},
		{"review-expiry", "0 0 3 * * *", func() error {
			_, err := reviewService.ExpireStale(ctx)
			return err
		}},
		{"aggregate-sweep", "0 15 2 * * *", func() error {
			_, err := aggregates.SweepAll(ctx)
			return err
		}},
		{"parsing-log-retention", "0 30 3 * * *", func() error {
			_, err := parsingLogs.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -30))
			return err
		}},
		{"file-cleanup", "0 0 */6 * * *", func() error {
			_, err := cleanup.Run()
			return err
		}},
		{"parse-triggers", "*/10 * * * * *", func() error {
			return triggers.PollParseTriggers(ctx)
		}},
		{"retry-triggers", "*/10 * * * * *", func() error {
			return triggers.PollRetryTriggers(ctx)
		}},
		{"manual-sync", "0 * * * * *", func() error {
			requested, err := coordinator.PopManualTrigger(ctx)
			if err != nil || !requested {
				return err
			}
			return runner.Run(ctx)
		}},
		{"master-sync", fmt.Sprintf("0 0 */%d * * *", syncHours), func() error {
			return runner.Run(ctx)
		}},
	}

	for _, reg := range registrations {
		if err := scheduler.RegisterJob(reg.name, reg.schedule, reg.handler); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}

// newRedisClient builds the client from a redis:// URL when configured,
// otherwise from host/port settings.
func newRedisClient(config *common.RedisConfig) (*redis.Client, error) {
	if config.URL != "" {
		opts, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr(),
		Password: config.Password,
		DB:       config.DB,
	}), nil
}
