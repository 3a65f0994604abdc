package config

import (
	"fmt"
	"math"
	"time"

	pkgconfig "github.com/utafrali/productsearch/pkg/config"
)

// Text engine and vector store backends.
const (
	EnginePostgres      = "postgres"
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"

	VectorChroma = "chroma"
	VectorMemory = "memory"

	AnalyticsRedis = "redis"
	AnalyticsKafka = "kafka"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeoutSecs int      `env:"SEARCH_REQUEST_TIMEOUT_SECONDS" envDefault:"10"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	AdminToken         string   `env:"SEARCH_ADMIN_TOKEN" envDefault:""`
	AdminJWTSecret     string   `env:"SEARCH_ADMIN_JWT_SECRET" envDefault:""`
	RateLimitRPS       float64  `env:"SEARCH_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst     int      `env:"SEARCH_RATE_LIMIT_BURST" envDefault:"100"`
	CacheMaxAgeSecs    int      `env:"SEARCH_CACHE_MAX_AGE_SECONDS" envDefault:"60"`

	// Search engine selection (postgres, elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"PRODUCT_DB_NAME" envDefault:"product_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	// Trigram indexes on the catalog tables; off when the catalog owner manages the schema.
	RunMigrations bool `env:"SEARCH_RUN_MIGRATIONS" envDefault:"false"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Elasticsearch
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"ecommerce_products"`

	// Vector store (chroma or memory)
	VectorStore      string `env:"VECTOR_STORE" envDefault:"chroma"`
	ChromaURL        string `env:"CHROMA_URL" envDefault:"http://localhost:8000"`
	ChromaCollection string `env:"CHROMA_COLLECTION" envDefault:"products"`
	VectorTimeoutMs  int    `env:"VECTOR_TIMEOUT_MS" envDefault:"800"`
	VectorMaxRetries int    `env:"VECTOR_MAX_RETRIES" envDefault:"1"`

	// Hybrid fusion
	TextWeight        float64 `env:"SEARCH_TEXT_WEIGHT" envDefault:"0.5"`
	SemanticWeight    float64 `env:"SEARCH_SEMANTIC_WEIGHT" envDefault:"0.5"`
	SubqueryTimeoutMs int     `env:"SEARCH_SUBQUERY_TIMEOUT_MS" envDefault:"800"`
	MaxCandidates     int     `env:"SEARCH_MAX_CANDIDATES" envDefault:"200"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cache maintenance
	CacheWarmIntervalMins int `env:"CACHE_WARM_INTERVAL_MINUTES" envDefault:"30"`
	CacheWarmQueries      int `env:"CACHE_WARM_QUERIES" envDefault:"20"`
	CacheSweepMaxKeys     int `env:"CACHE_SWEEP_MAX_KEYS" envDefault:"1000"`

	// Analytics
	AnalyticsTransport string `env:"ANALYTICS_TRANSPORT" envDefault:"redis"`
	AnalyticsQueueSize int    `env:"ANALYTICS_QUEUE_SIZE" envDefault:"1024"`
	AnalyticsWorkers   int    `env:"ANALYTICS_WORKERS" envDefault:"8"`
	AnalyticsConsume   bool   `env:"ANALYTICS_CONSUME" envDefault:"true"`

	// Kafka
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumeProducts bool     `env:"KAFKA_CONSUME_PRODUCTS" envDefault:"true"`
	IdempotencyTTLHours  int      `env:"KAFKA_IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EnginePostgres, EngineElasticsearch, EngineMemory:
	default:
		return fmt.Errorf("SEARCH_ENGINE must be one of postgres, elasticsearch, memory, got %q", c.SearchEngine)
	}
	switch c.VectorStore {
	case VectorChroma, VectorMemory:
	default:
		return fmt.Errorf("VECTOR_STORE must be one of chroma, memory, got %q", c.VectorStore)
	}
	switch c.AnalyticsTransport {
	case AnalyticsRedis, AnalyticsKafka:
	default:
		return fmt.Errorf("ANALYTICS_TRANSPORT must be one of redis, kafka, got %q", c.AnalyticsTransport)
	}
	if c.TextWeight < 0 || c.SemanticWeight < 0 || math.Abs(c.TextWeight+c.SemanticWeight-1) > 1e-6 {
		return fmt.Errorf("SEARCH_TEXT_WEIGHT and SEARCH_SEMANTIC_WEIGHT must be non-negative and sum to 1, got %v and %v",
			c.TextWeight, c.SemanticWeight)
	}
	if c.SearchEngine == EnginePostgres && c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.AnalyticsQueueSize < 1 {
		return fmt.Errorf("ANALYTICS_QUEUE_SIZE must be positive, got %d", c.AnalyticsQueueSize)
	}
	if c.AnalyticsTransport == AnalyticsKafka && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.CacheWarmIntervalMins < 0 {
		return fmt.Errorf("CACHE_WARM_INTERVAL_MINUTES must not be negative, got %d", c.CacheWarmIntervalMins)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("SEARCH_RATE_LIMIT_RPS must not be negative, got %v", c.RateLimitRPS)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// RequestTimeout is the per-request handler budget.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// WarmInterval is the period of the background cache warmer. Zero disables it.
func (c *Config) WarmInterval() time.Duration {
	return time.Duration(c.CacheWarmIntervalMins) * time.Minute
}
