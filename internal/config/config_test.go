package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnvs is a helper that sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, EnginePostgres, cfg.SearchEngine)
	assert.Equal(t, VectorChroma, cfg.VectorStore)
	assert.Equal(t, AnalyticsRedis, cfg.AnalyticsTransport)
	assert.Equal(t, 0.5, cfg.TextWeight)
	assert.Equal(t, 0.5, cfg.SemanticWeight)
	assert.Equal(t, 1024, cfg.AnalyticsQueueSize)
	assert.Equal(t, 20, cfg.CacheWarmQueries)
	assert.Equal(t, 30*time.Minute, cfg.WarmInterval())
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.AdminToken)
	assert.False(t, cfg.RunMigrations)
}

func TestLoad_EmptyKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()

	// caarlos0/env/v10 treats empty string as unset and falls back to
	// the envDefault.
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.KafkaBrokers)
}

func TestLoad_CustomBackends(t *testing.T) {
	setEnvs(t, map[string]string{
		"SEARCH_ENGINE":          "elasticsearch",
		"ELASTICSEARCH_URL":      "http://es.prod:9200",
		"VECTOR_STORE":           "memory",
		"ANALYTICS_TRANSPORT":    "kafka",
		"KAFKA_BROKERS":          "k1:9092,k2:9092",
		"SEARCH_TEXT_WEIGHT":     "0.7",
		"SEARCH_SEMANTIC_WEIGHT": "0.3",
		"PPROF_ALLOWED_CIDRS":    "127.0.0.0/8",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, EngineElasticsearch, cfg.SearchEngine)
	assert.Equal(t, "http://es.prod:9200", cfg.ElasticsearchURL)
	assert.Equal(t, VectorMemory, cfg.VectorStore)
	assert.Equal(t, AnalyticsKafka, cfg.AnalyticsTransport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.InDelta(t, 0.7, cfg.TextWeight, 1e-9)
	assert.Equal(t, []string{"127.0.0.0/8"}, cfg.PprofAllowedCIDRs)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{
			name:    "http port zero",
			envs:    map[string]string{"SEARCH_HTTP_PORT": "0"},
			wantErr: "invalid HTTP port",
		},
		{
			name:    "http port too large",
			envs:    map[string]string{"SEARCH_HTTP_PORT": "99999"},
			wantErr: "invalid HTTP port",
		},
		{
			name:    "unknown engine",
			envs:    map[string]string{"SEARCH_ENGINE": "solr"},
			wantErr: "SEARCH_ENGINE must be one of",
		},
		{
			name:    "unknown vector store",
			envs:    map[string]string{"VECTOR_STORE": "pinecone"},
			wantErr: "VECTOR_STORE must be one of",
		},
		{
			name:    "unknown analytics transport",
			envs:    map[string]string{"ANALYTICS_TRANSPORT": "sqs"},
			wantErr: "ANALYTICS_TRANSPORT must be one of",
		},
		{
			name:    "weights do not sum to one",
			envs:    map[string]string{"SEARCH_TEXT_WEIGHT": "0.6", "SEARCH_SEMANTIC_WEIGHT": "0.6"},
			wantErr: "sum to 1",
		},
		{
			name:    "negative weight",
			envs:    map[string]string{"SEARCH_TEXT_WEIGHT": "-0.5", "SEARCH_SEMANTIC_WEIGHT": "1.5"},
			wantErr: "non-negative",
		},
		{
			name:    "zero queue",
			envs:    map[string]string{"ANALYTICS_QUEUE_SIZE": "0"},
			wantErr: "ANALYTICS_QUEUE_SIZE must be positive",
		},
		{
			name:    "negative warm interval",
			envs:    map[string]string{"CACHE_WARM_INTERVAL_MINUTES": "-1"},
			wantErr: "CACHE_WARM_INTERVAL_MINUTES",
		},
		{
			name:    "sample rate above one",
			envs:    map[string]string{"OTEL_SAMPLE_RATE": "2.0"},
			wantErr: "OTEL_SAMPLE_RATE must be between 0.0 and 1.0",
		},
		{
			name:    "unparseable port",
			envs:    map[string]string{"SEARCH_HTTP_PORT": "eighty"},
			wantErr: "load search config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.envs)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWarmInterval_ZeroDisables(t *testing.T) {
	t.Setenv("CACHE_WARM_INTERVAL_MINUTES", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Zero(t, cfg.WarmInterval())
}
