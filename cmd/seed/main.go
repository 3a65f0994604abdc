// Command seed fills a running search service with a synthetic catalog
// through the bulk index endpoint. The service must use a writable engine.
//
// Run: SEARCH_URL=http://localhost:8010 go run ./cmd/seed
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/utafrali/productsearch/internal/domain"
	pkgconfig "github.com/utafrali/productsearch/pkg/config"
	"github.com/utafrali/productsearch/pkg/httpclient"
	"github.com/utafrali/productsearch/pkg/logger"
)

const bulkLimit = 500

type seedConfig struct {
	SearchURL  string `env:"SEARCH_URL" envDefault:"http://localhost:8010"`
	AdminToken string `env:"SEARCH_ADMIN_TOKEN" envDefault:""`
	Products   int    `env:"SEED_PRODUCTS" envDefault:"10000"`
	BatchSize  int    `env:"SEED_BATCH_SIZE" envDefault:"500"`
	Seed       uint64 `env:"SEED_RANDOM_SEED" envDefault:"42"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

// errRejected marks a batch the service refused; retrying cannot help.
var errRejected = errors.New("batch rejected")

type seeder struct {
	client  *httpclient.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

func main() {
	var cfg seedConfig
	if err := pkgconfig.Load(&cfg); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("search-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = time.Minute
	s := &seeder{
		client:  httpclient.New(httpCfg),
		baseURL: strings.TrimRight(cfg.SearchURL, "/"),
		token:   cfg.AdminToken,
		logger:  log,
	}

	products := generateProducts(cfg.Products, cfg.Seed, time.Now())
	start := time.Now()
	indexed, err := s.run(ctx, products, cfg.BatchSize)
	if err != nil {
		log.Error("seed failed",
			slog.Int("indexed", indexed),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	log.Info("seed completed",
		slog.Int("indexed", indexed),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// run posts products in batches and returns how many the service indexed.
func (s *seeder) run(ctx context.Context, products []domain.Product, batchSize int) (int, error) {
	if batchSize < 1 || batchSize > bulkLimit {
		batchSize = bulkLimit
	}

	indexed := 0
	for i := 0; i < len(products); i += batchSize {
		end := min(i+batchSize, len(products))
		n, err := s.postBatch(ctx, products[i:end])
		if err != nil {
			return indexed, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		indexed += n
		s.logger.Info("batch indexed",
			slog.Int("from", i),
			slog.Int("to", end),
			slog.Int("indexed", n),
		)
	}
	return indexed, nil
}

func (s *seeder) postBatch(ctx context.Context, batch []domain.Product) (int, error) {
	body, err := json.Marshal(map[string]any{"products": batch})
	if err != nil {
		return 0, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/products/bulk", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		status := resp.StatusCode
		err := httpclient.ParseResponseError(resp, "search-service")
		if httpclient.IsClientError(status) {
			return 0, fmt.Errorf("%w: %w", errRejected, err)
		}
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Data struct {
			Indexed int `json:"indexed"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Data.Indexed, nil
}
