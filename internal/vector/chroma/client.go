// Package chroma implements vector.Store over the Chroma HTTP API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/vector"
	"github.com/utafrali/productsearch/pkg/httpclient"
)

const serviceName = "vector-store"

// Config holds connection settings for the Chroma server.
type Config struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
	MaxRetries int
}

// Client is a Chroma-backed vector store. Every request passes through a
// circuit breaker so an unhealthy store fails fast.
type Client struct {
	baseURL    string
	collection string
	http       *httpclient.CircuitBreakerClient
	logger     *slog.Logger

	mu           sync.Mutex
	collectionID string
}

var _ vector.Store = (*Client)(nil)

// New creates a Chroma client.
func New(cfg Config, logger *slog.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.MaxRetries = cfg.MaxRetries
	httpCfg.RetryWaitMin = 50 * time.Millisecond
	httpCfg.RetryWaitMax = 200 * time.Millisecond

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		http: httpclient.NewCircuitBreakerClient(
			httpclient.New(httpCfg),
			httpclient.DefaultCircuitBreakerConfig(serviceName),
			logger,
		),
		logger: logger,
	}
}

type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings,omitempty"`
	QueryTexts      []string       `json:"query_texts,omitempty"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float64        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

type getRequest struct {
	IDs     []string `json:"ids"`
	Include []string `json:"include"`
}

type getResponse struct {
	IDs        []string    `json:"ids"`
	Embeddings [][]float32 `json:"embeddings"`
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Query returns up to q.K nearest neighbours ordered by ascending distance.
func (c *Client) Query(ctx context.Context, q vector.Query) ([]domain.SemanticHit, error) {
	if q.K <= 0 {
		return []domain.SemanticHit{}, nil
	}
	colID, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	req := queryRequest{
		NResults: q.K,
		Where:    whereClause(q.Filter),
		Include:  []string{"distances", "metadatas"},
	}
	if len(q.Embedding) > 0 {
		req.QueryEmbeddings = [][]float32{q.Embedding}
	} else {
		req.QueryTexts = []string{q.Text}
	}

	var resp queryResponse
	if err := c.post(ctx, "/api/v1/collections/"+url.PathEscape(colID)+"/query", req, &resp); err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	if len(resp.IDs) == 0 {
		return []domain.SemanticHit{}, nil
	}
	ids := resp.IDs[0]
	hits := make([]domain.SemanticHit, 0, len(ids))
	for i, id := range ids {
		hit := domain.SemanticHit{ProductID: id, Distance: 1}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hit.Distance = resp.Distances[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			hit.Product = productFromMetadata(id, resp.Metadatas[0][i])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Embedding returns the stored vector of a product.
func (c *Client) Embedding(ctx context.Context, productID string) ([]float32, error) {
	colID, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	var resp getResponse
	req := getRequest{IDs: []string{productID}, Include: []string{"embeddings"}}
	if err := c.post(ctx, "/api/v1/collections/"+url.PathEscape(colID)+"/get", req, &resp); err != nil {
		return nil, fmt.Errorf("vector embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, vector.ErrNotFound
	}
	return resp.Embeddings[0], nil
}

// Ping calls the heartbeat endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/api/v1/heartbeat")
	if err != nil {
		return fmt.Errorf("vector ping: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector ping: %w", httpclient.ParseResponseError(resp, serviceName))
	}
	_ = resp.Body.Close()
	return nil
}

// resolveCollection looks up the collection ID by name once and caches it.
func (c *Client) resolveCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	resp, err := c.http.Get(ctx, c.baseURL+"/api/v1/collections/"+url.PathEscape(c.collection))
	if err != nil {
		return "", fmt.Errorf("resolve collection %q: %w", c.collection, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve collection %q: %w", c.collection, httpclient.ParseResponseError(resp, serviceName))
	}
	defer func() { _ = resp.Body.Close() }()

	var col collectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&col); err != nil {
		return "", fmt.Errorf("resolve collection %q: decode: %w", c.collection, err)
	}
	if col.ID == "" {
		return "", fmt.Errorf("resolve collection %q: empty id", c.collection)
	}
	c.collectionID = col.ID
	c.logger.Debug("resolved vector collection", slog.String("name", c.collection), slog.String("id", col.ID))
	return col.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.http.Post(ctx, c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// whereClause translates a metadata filter into a Chroma where document.
func whereClause(f vector.Filter) map[string]any {
	var conds []map[string]any
	add := func(field string, values []string) {
		switch len(values) {
		case 0:
		case 1:
			conds = append(conds, map[string]any{field: map[string]any{"$eq": values[0]}})
		default:
			conds = append(conds, map[string]any{field: map[string]any{"$in": values}})
		}
	}
	add("category_id", f.CategoryIDs)
	add("vendor_id", f.VendorIDs)
	add("status", f.Statuses)

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		and := make([]any, len(conds))
		for i, c := range conds {
			and[i] = c
		}
		return map[string]any{"$and": and}
	}
}

// productFromMetadata rebuilds the display fields stored alongside an
// embedding. It returns nil when the metadata carries no product name.
func productFromMetadata(id string, md map[string]any) *domain.Product {
	name := str(md["name"])
	if name == "" {
		return nil
	}
	p := &domain.Product{
		ID:           id,
		Name:         name,
		SKU:          str(md["sku"]),
		Slug:         str(md["slug"]),
		Description:  str(md["description"]),
		CategoryID:   str(md["category_id"]),
		CategoryName: str(md["category_name"]),
		VendorID:     str(md["vendor_id"]),
		VendorName:   str(md["vendor_name"]),
		Price:        int64(num(md["price"])),
		Currency:     str(md["currency"]),
		Status:       str(md["status"]),
		Stock:        int(num(md["stock"])),
		ImageURL:     str(md["image_url"]),
		Popularity:   int64(num(md["popularity"])),
	}
	if tags := str(md["tags"]); tags != "" {
		p.Tags = strings.Split(tags, ",")
	}
	if ts, err := time.Parse(time.RFC3339, str(md["created_at"])); err == nil {
		p.CreatedAt = ts
	}
	return p
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
