package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/productsearch/internal/analytics"
	"github.com/utafrali/productsearch/internal/cache"
	"github.com/utafrali/productsearch/internal/config"
	"github.com/utafrali/productsearch/internal/engine"
	esengine "github.com/utafrali/productsearch/internal/engine/elasticsearch"
	"github.com/utafrali/productsearch/internal/engine/memory"
	"github.com/utafrali/productsearch/internal/engine/postgres"
	"github.com/utafrali/productsearch/internal/engine/postgres/migrations"
	"github.com/utafrali/productsearch/internal/event"
	handler "github.com/utafrali/productsearch/internal/handler/http"
	"github.com/utafrali/productsearch/internal/search"
	"github.com/utafrali/productsearch/internal/service"
	"github.com/utafrali/productsearch/internal/vector"
	"github.com/utafrali/productsearch/internal/vector/chroma"
	vecmem "github.com/utafrali/productsearch/internal/vector/memory"
	"github.com/utafrali/productsearch/pkg/database"
	"github.com/utafrali/productsearch/pkg/health"
	pkgkafka "github.com/utafrali/productsearch/pkg/kafka"
	"github.com/utafrali/productsearch/pkg/middleware"
	"github.com/utafrali/productsearch/pkg/tracing"
)

const (
	serviceName = "search-service"

	productConsumerGroup   = "search-service"
	analyticsConsumerGroup = "search-service-analytics"
	idempotencyPrefix      = "search:idem:"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	redisUp        bool
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	tracker        *analytics.Tracker
	cache          *cache.Cache
	searchService  *service.SearchService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "search",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	// Text engine.
	text, indexer, err := a.initTextEngine(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Vector store. A locally owned store mirrors every catalog write.
	var vectors vector.Store
	switch cfg.VectorStore {
	case config.VectorMemory:
		store := vecmem.New()
		vectors = store
		if indexer != nil {
			indexer = &mirrorIndexer{text: indexer, vectors: store}
		}
		logger.Info("in-memory vector store initialized")
	default:
		vectors = chroma.New(chroma.Config{
			BaseURL:    cfg.ChromaURL,
			Collection: cfg.ChromaCollection,
			Timeout:    time.Duration(cfg.VectorTimeoutMs) * time.Millisecond,
			MaxRetries: cfg.VectorMaxRetries,
		}, logger)
		logger.Info("chroma vector store initialized",
			slog.String("url", cfg.ChromaURL),
			slog.String("collection", cfg.ChromaCollection),
		)
	}
	healthHandler.RegisterNonCritical("vector_store", vectors.Ping)

	// Redis backs the cache, analytics counters and event deduplication.
	a.redis, a.redisUp = newRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}, logger)
	a.cache = cache.New(a.redis, logger)
	healthHandler.RegisterNonCritical("cache_store", a.cache.Ping)

	// Kafka producer for analytics events and dead letters.
	needKafka := cfg.AnalyticsTransport == config.AnalyticsKafka || (cfg.KafkaConsumeProducts && indexer != nil)
	if needKafka {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := retryPing(ctx, "kafka", a.producer.Ping, kafkaPingAttempts, time.Second, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// Analytics pipeline.
	store := analytics.NewStore(a.redis, logger)
	var recorder analytics.Recorder = store
	if cfg.AnalyticsTransport == config.AnalyticsKafka {
		recorder = analytics.NewPublisher(a.producer)
	}
	a.tracker, err = analytics.NewTracker(recorder, analytics.TrackerConfig{
		QueueSize: cfg.AnalyticsQueueSize,
		Workers:   cfg.AnalyticsWorkers,
	}, logger)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("init analytics tracker: %w", err)
	}
	reporter := analytics.NewReporter(a.redis, logger, analytics.WithCache(a.cache))
	logger.Info("analytics pipeline initialized",
		slog.String("transport", cfg.AnalyticsTransport),
		slog.Int("queue_size", cfg.AnalyticsQueueSize),
	)

	// Build the service layer.
	orchestrator := search.New(text, vectors, search.Config{
		Weights: search.Weights{
			Text:     cfg.TextWeight,
			Semantic: cfg.SemanticWeight,
		},
		SubqueryTimeout: time.Duration(cfg.SubqueryTimeoutMs) * time.Millisecond,
		MaxCandidates:   cfg.MaxCandidates,
	}, logger)

	a.searchService = service.NewSearchService(service.Deps{
		Searcher:  orchestrator,
		Cache:     a.cache,
		Analytics: a.tracker,
		Reports:   reporter,
		Catalog:   text,
		Indexer:   indexer,
		Logger:    logger,
	})

	a.initConsumers(store, indexer != nil)

	// HTTP router.
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.AllowedHeaders = append(cors.AllowedHeaders, "X-User-Type", "X-Search-Source")

	router := handler.NewRouter(a.searchService, healthHandler, handler.RouterConfig{
		ServiceName:    serviceName,
		CORS:           cors,
		AdminToken:     cfg.AdminToken,
		AdminJWTSecret: cfg.AdminJWTSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		RequestTimeout: cfg.RequestTimeout(),
		CacheMaxAge:    cfg.CacheMaxAgeSecs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initTextEngine builds the configured text engine. The returned indexer is
// nil when the engine's index is owned by the catalog.
func (a *App) initTextEngine(ctx context.Context, h *health.Handler) (engine.TextEngine, engine.Indexer, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		es, err := esengine.New(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		h.RegisterCritical("catalog", es.Ping)
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return es, es, nil

	case config.EngineMemory:
		mem := memory.New()
		h.RegisterCritical("catalog", mem.Ping)
		logger.Info("in-memory search engine initialized")
		return mem, mem, nil

	default:
		pgCfg := database.PostgresConfig{
			Host:            cfg.PostgresHost,
			Port:            cfg.PostgresPort,
			User:            cfg.PostgresUser,
			Password:        cfg.PostgresPass,
			DBName:          cfg.PostgresDB,
			SSLMode:         cfg.PostgresSSL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
		}
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		database.RegisterPoolMetrics(pool, "search")

		if cfg.RunMigrations {
			if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrations completed")
		}
		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		pg := postgres.New(pool)
		h.RegisterCritical("catalog", pg.Ping)
		return pg, nil, nil
	}
}

// initConsumers subscribes to product events when this replica owns a
// writable index, and to analytics events when they travel over Kafka.
func (a *App) initConsumers(store *analytics.Store, writable bool) {
	cfg := a.cfg
	if a.producer == nil {
		return
	}

	idempotency := a.idempotencyStore()

	if writable && cfg.KafkaConsumeProducts {
		products := event.NewConsumer(a.searchService, a.logger)
		h := pkgkafka.IdempotentHandler(idempotency, products.Handle, a.logger)
		for _, topic := range event.ProductTopics() {
			a.consumers = append(a.consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  productConsumerGroup,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6,
				DLQ:      a.dlq,
			}, h, a.logger))
		}
	}

	if cfg.AnalyticsTransport == config.AnalyticsKafka && cfg.AnalyticsConsume {
		tracked := event.NewAnalyticsConsumer(store, a.logger)
		a.consumers = append(a.consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  analyticsConsumerGroup,
			Topic:    analytics.QueryTrackedTopic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(idempotency, tracked.Handle, a.logger), a.logger))
	}

	if len(a.consumers) > 0 {
		a.logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(a.consumers)),
		)
	}
}

// Run starts the HTTP server, Kafka consumers, and background jobs, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumers.
	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer %s: %w", c.Topic(), err)
			}
		}()
	}

	// Start background cache maintenance.
	if interval := a.cfg.WarmInterval(); interval > 0 {
		go a.runCacheMaintenance(ctx, interval)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// runCacheMaintenance periodically warms the cache with popular queries and
// sweeps entries that lost their TTL.
func (a *App) runCacheMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.maintainCache(ctx)
		}
	}
}

// maintainCache runs one warm and sweep cycle.
func (a *App) maintainCache(ctx context.Context) {
	popular, err := a.searchService.Popular(ctx, a.cfg.CacheWarmQueries)
	if err != nil {
		a.logger.Error("cache warm error", slog.String("error", err.Error()))
	} else if len(popular) > 0 {
		queries := make([]string, 0, len(popular))
		for _, p := range popular {
			queries = append(queries, p.Query)
		}
		if _, err := a.searchService.WarmCache(ctx, queries); err != nil {
			a.logger.Error("cache warm error", slog.String("error", err.Error()))
		}
	}

	if removed := a.cache.Sweep(ctx, a.cfg.CacheSweepMaxKeys); removed > 0 {
		a.logger.Info("cache entries without ttl removed", slog.Int("removed", removed))
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Analytics tracker (drain queued events)
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka consumers, DLQ and producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Drain analytics events queued by the drained requests (3s budget).
	if a.tracker != nil {
		trackerCtx, trackerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer trackerCancel()
		if err := a.tracker.Close(trackerCtx); err != nil {
			a.logger.Error("analytics tracker close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka consumers.
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error",
				slog.String("topic", c.Topic()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}

	// 5. Remaining connections.
	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources closes the Kafka writers, Redis and PostgreSQL.
func (a *App) closeResources() []error {
	var errs []error
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}

// idempotencyStore shares processed event IDs across replicas through
// Redis. Without Redis each replica deduplicates on its own.
func (a *App) idempotencyStore() pkgkafka.IdempotencyStore {
	ttl := time.Duration(a.cfg.IdempotencyTTLHours) * time.Hour
	if a.redisUp {
		return pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyPrefix, ttl)
	}
	a.logger.Warn("redis unavailable, deduplicating kafka events in memory")
	return pkgkafka.NewMemoryIdempotencyStore(ttl)
}

// newRedisClient connects to Redis. An unreachable server is not fatal: the
// cache degrades to misses and the client reconnects on its own. The flag
// reports whether the first ping succeeded.
func newRedisClient(ctx context.Context, cfg database.RedisConfig, logger *slog.Logger) (*redis.Client, bool) {
	client, err := database.NewRedisClient(ctx, cfg)
	if err == nil {
		logger.Info("connected to Redis", slog.String("addr", cfg.Addr()))
		return client, true
	}
	logger.Warn("redis ping failed, continuing in degraded mode",
		slog.String("addr", cfg.Addr()),
		slog.String("error", err.Error()),
	)
	return redis.NewClient(cfg.Options()), false
}

const kafkaPingAttempts = 3

// retryPing calls ping up to attempts times, doubling the wait from base
// between calls with a quarter of jitter either way.
func retryPing(ctx context.Context, name string, ping func(context.Context) error, attempts int, base time.Duration, logger *slog.Logger) error {
	var err error
	wait := base
	for attempt := 1; ; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("%s ping failed after %d attempts: %w", name, attempts, err)
		}
		jittered := wait + time.Duration(float64(wait)*0.25*(2*rand.Float64()-1)) // #nosec G404 -- retry jitter
		logger.Warn(name+" ping failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", jittered),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s ping: %w", name, ctx.Err())
		case <-time.After(jittered):
		}
		wait *= 2
	}
}
