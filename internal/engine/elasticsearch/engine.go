package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
)

// Engine serves text queries from an Elasticsearch index and keeps that
// index in step with the catalog.
type Engine struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

var (
	_ engine.TextEngine = (*Engine)(nil)
	_ engine.Indexer    = (*Engine)(nil)
)

type esHit struct {
	ID     string         `json:"_id"`
	Score  *float64       `json:"_score"`
	Source domain.Product `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations"`
}

type esMgetResponse struct {
	Docs []struct {
		ID     string         `json:"_id"`
		Found  bool           `json:"found"`
		Source domain.Product `json:"_source"`
	} `json:"docs"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string        `json:"_id"`
		Status int           `json:"status"`
		Error  *esErrorCause `json:"error"`
	} `json:"items"`
}

type esErrorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// bulkAction is the metadata line preceding each document in a bulk body.
type bulkAction struct {
	Index struct {
		ID string `json:"_id"`
	} `json:"index"`
}

// New connects to the cluster at url and creates index with the product
// mapping when it does not exist yet. An empty index means DefaultIndexName.
func New(ctx context.Context, url, index string, logger *slog.Logger) (*Engine, error) {
	if index == "" {
		index = DefaultIndexName
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	e := &Engine{client: client, index: index, logger: logger}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// do sends req and decodes a successful body into out when out is non-nil.
// With allowMissing a 404 counts as success and leaves out untouched.
func (e *Engine) do(ctx context.Context, op string, req esapi.Request, allowMissing bool, out any) error {
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound && allowMissing {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch %s: %w", op, decodeError(res))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}
	return nil
}

// statusError is a non-2xx answer from the cluster.
type statusError struct {
	Status int
	Cause  esErrorCause
}

func (s *statusError) Error() string {
	if s.Cause.Type == "" {
		return fmt.Sprintf("unexpected status %d", s.Status)
	}
	return s.Cause.Type + ": " + s.Cause.Reason
}

func decodeError(res *esapi.Response) error {
	var body struct {
		Error esErrorCause `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)
	return &statusError{Status: res.StatusCode, Cause: body.Error}
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.do(ctx, "ping", esapi.PingRequest{}, false, nil)
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("elasticsearch check index %s: %w", e.index, err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index ready", slog.String("index", e.index))
		return nil
	}

	err = e.do(ctx, "create index", esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  strings.NewReader(buildIndexMapping()),
	}, false, nil)
	var se *statusError
	if errors.As(err, &se) && se.Cause.Type == "resource_already_exists_exception" {
		return nil
	}
	if err != nil {
		return err
	}
	e.logger.Info("elasticsearch index created", slog.String("index", e.index))
	return nil
}

// Index upserts one product and refreshes so the change is searchable at once.
func (e *Engine) Index(ctx context.Context, product *domain.Product) error {
	return e.do(ctx, "index "+product.ID, esapi.IndexRequest{
		Index:      e.index,
		DocumentID: product.ID,
		Body:       esutil.NewJSONReader(product),
		Refresh:    "true",
	}, false, nil)
}

// Delete removes a product. Deleting an unknown ID succeeds.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.do(ctx, "delete "+id, esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: id,
		Refresh:    "true",
	}, true, nil)
}

// BulkIndex upserts products in one bulk request. Per-document failures are
// collected into a single error.
func (e *Engine) BulkIndex(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i := range products {
		var action bulkAction
		action.Index.ID = products[i].ID
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(&products[i]); err != nil {
			return fmt.Errorf("encode product %s: %w", products[i].ID, err)
		}
	}

	var resp esBulkResponse
	if err := e.do(ctx, "bulk index", esapi.BulkRequest{
		Index:   e.index,
		Body:    &body,
		Refresh: "true",
	}, false, &resp); err != nil {
		return err
	}
	if !resp.Errors {
		e.logger.Debug("bulk indexed products", slog.Int("count", len(products)))
		return nil
	}

	var failed []string
	for _, item := range resp.Items {
		for _, r := range item {
			if r.Error != nil {
				failed = append(failed, fmt.Sprintf("%s (%s: %s)", r.ID, r.Error.Type, r.Error.Reason))
			}
		}
	}
	return fmt.Errorf("elasticsearch bulk index: %d of %d documents failed: %s",
		len(failed), len(products), strings.Join(failed, "; "))
}

// DeleteIndex drops the whole index. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	return e.do(ctx, "delete index", esapi.IndicesDeleteRequest{Index: []string{e.index}}, true, nil)
}

// Search executes a text query and returns one window of hits.
func (e *Engine) Search(ctx context.Context, q engine.TextQuery) (*engine.TextResult, error) {
	limit := q.Limit
	if limit < 1 {
		limit = domain.DefaultPageSize
	}
	resp, err := e.search(ctx, "search", buildSearchQuery(q.Spec, max(q.Offset, 0), limit))
	if err != nil {
		return nil, err
	}

	hits := make([]domain.TextHit, len(resp.Hits.Hits))
	for i, h := range resp.Hits.Hits {
		hits[i] = domain.TextHit{Product: h.Source}
		if h.Score != nil {
			hits[i].Score = *h.Score
		}
	}
	return &engine.TextResult{Hits: hits, Total: resp.Hits.Total.Value}, nil
}

// GetByIDs loads documents through the multi-get API, in request order.
// Unknown IDs are skipped.
func (e *Engine) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	var resp esMgetResponse
	if err := e.do(ctx, "get by ids", esapi.MgetRequest{
		Index: e.index,
		Body:  esutil.NewJSONReader(map[string][]string{"ids": ids}),
	}, false, &resp); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		if d.Found {
			products = append(products, d.Source)
		}
	}
	return products, nil
}

// search runs a _search body against the index.
func (e *Engine) search(ctx context.Context, op string, body map[string]any) (*esSearchResponse, error) {
	var resp esSearchResponse
	if err := e.do(ctx, op, esapi.SearchRequest{
		Index: []string{e.index},
		Body:  esutil.NewJSONReader(body),
	}, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
