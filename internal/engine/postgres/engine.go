package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
	"github.com/utafrali/productsearch/pkg/database"
)

// Engine is a TextEngine backed by the relational catalog. Text matching
// uses ILIKE over product, category and vendor names; relevance is a
// weighted count of the fields each query term hits.
type Engine struct {
	pool database.DBTX
}

var _ engine.TextEngine = (*Engine)(nil)

// New creates a PostgreSQL-backed text engine.
func New(pool database.DBTX) *Engine {
	return &Engine{pool: pool}
}

const productColumns = `p.id, p.name, p.sku, p.slug, p.description,
			p.category_id, COALESCE(c.name, '') AS category_name,
			p.vendor_id, COALESCE(v.name, '') AS vendor_name,
			p.price, p.currency, p.status, p.stock, p.image_url, p.tags,
			p.popularity, p.created_at, p.updated_at`

const productFrom = `FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN vendors v ON v.id = p.vendor_id`

// queryBuilder accumulates positional arguments for a dynamic statement.
type queryBuilder struct {
	conditions []string
	args       []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) where() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conditions, " AND ")
}

// applySpec adds the query's filters and text terms and returns the score
// expression.
func (b *queryBuilder) applySpec(spec domain.QuerySpec) string {
	if len(spec.Categories) > 0 {
		b.conditions = append(b.conditions, "p.category_id = ANY("+b.arg(spec.Categories)+")")
	}
	if len(spec.VendorIDs) > 0 {
		b.conditions = append(b.conditions, "p.vendor_id = ANY("+b.arg(spec.VendorIDs)+")")
	}
	if len(spec.Statuses) > 0 {
		b.conditions = append(b.conditions, "p.status = ANY("+b.arg(spec.Statuses)+")")
	}
	if len(spec.Tags) > 0 {
		b.conditions = append(b.conditions, "p.tags @> "+b.arg(spec.Tags))
	}
	if spec.PriceMin != nil {
		b.conditions = append(b.conditions, "p.price >= "+b.arg(*spec.PriceMin))
	}
	if spec.PriceMax != nil {
		b.conditions = append(b.conditions, "p.price <= "+b.arg(*spec.PriceMax))
	}
	if spec.RequireStock != nil && *spec.RequireStock {
		b.conditions = append(b.conditions, "p.stock > 0")
	}

	terms := strings.Fields(strings.ToLower(spec.Text))
	if len(terms) == 0 {
		return "0::float8"
	}

	scores := make([]string, 0, len(terms))
	for _, term := range terms {
		escaped := escapeLike(term)
		contains := b.arg("%" + escaped + "%")
		prefix := b.arg(escaped + "%")
		b.conditions = append(b.conditions, fmt.Sprintf(
			"(p.name ILIKE %[1]s OR p.description ILIKE %[1]s OR c.name ILIKE %[1]s OR v.name ILIKE %[1]s OR array_to_string(p.tags, ' ') ILIKE %[1]s)",
			contains,
		))
		scores = append(scores, fmt.Sprintf(
			"(CASE WHEN p.name ILIKE %[1]s THEN 3 ELSE 0 END"+
				" + CASE WHEN p.name ILIKE %[2]s THEN 1 ELSE 0 END"+
				" + CASE WHEN p.description ILIKE %[1]s THEN 1 ELSE 0 END"+
				" + CASE WHEN c.name ILIKE %[1]s OR v.name ILIKE %[1]s THEN 1 ELSE 0 END)",
			contains, prefix,
		))
	}
	return "(" + strings.Join(scores, " + ") + ")::float8"
}

// Search executes a filtered text query and returns one window of hits.
func (e *Engine) Search(ctx context.Context, q engine.TextQuery) (result *engine.TextResult, err error) {
	var b queryBuilder
	score := b.applySpec(q.Spec)

	limit := q.Limit
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	stmt := fmt.Sprintf(`
		SELECT %s,
			%s AS score,
			count(*) OVER() AS total_count
		%s
		%s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		productColumns, score, productFrom, b.where(), orderBy(q.Spec.Sort),
		b.arg(limit), b.arg(offset),
	)

	ctx, end := database.TraceQuery(ctx, "SearchProducts", stmt)
	defer func() { end(err) }()

	rows, err := e.pool.Query(ctx, stmt, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	result = &engine.TextResult{Hits: make([]domain.TextHit, 0)}
	for rows.Next() {
		var hit domain.TextHit
		dest := append(productDest(&hit.Product), &hit.Score, &result.Total)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		result.Hits = append(result.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	// count(*) OVER() is absent when the window is past the last row.
	if len(result.Hits) == 0 && offset > 0 {
		total, err := e.count(ctx, q.Spec)
		if err != nil {
			return nil, err
		}
		result.Total = total
	}

	return result, nil
}

func (e *Engine) count(ctx context.Context, spec domain.QuerySpec) (int, error) {
	var b queryBuilder
	b.applySpec(spec)
	stmt := fmt.Sprintf(`SELECT count(*) %s %s`, productFrom, b.where())

	var total int
	if err := e.pool.QueryRow(ctx, stmt, b.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// GetByIDs loads products by ID in request order.
func (e *Engine) GetByIDs(ctx context.Context, ids []string) (products []domain.Product, err error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	stmt := fmt.Sprintf(`SELECT %s %s WHERE p.id = ANY($1)`, productColumns, productFrom)

	ctx, end := database.TraceQuery(ctx, "GetProductsByIDs", stmt)
	defer func() { end(err) }()

	rows, err := e.pool.Query(ctx, stmt, ids)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(productDest(&p)...); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	products = make([]domain.Product, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// FacetCounts runs a GROUP BY over the rows matching spec.
func (e *Engine) FacetCounts(ctx context.Context, spec domain.QuerySpec, dimension string) (values []domain.FacetValue, err error) {
	var valueExpr, labelExpr string
	switch dimension {
	case domain.FacetCategory:
		valueExpr, labelExpr = "p.category_id", "COALESCE(c.name, '')"
	case domain.FacetVendor:
		valueExpr, labelExpr = "p.vendor_id", "COALESCE(v.name, '')"
	case domain.FacetStatus:
		valueExpr, labelExpr = "p.status", "p.status"
	case domain.FacetPriceRange:
		valueExpr, labelExpr = priceBucketExpr(), "''"
	default:
		return nil, fmt.Errorf("facet counts: unknown dimension %q", dimension)
	}

	var b queryBuilder
	b.applySpec(spec)
	stmt := fmt.Sprintf(`
		SELECT %[1]s AS value, %[2]s AS label, count(*) AS cnt
		%[3]s
		%[4]s
		GROUP BY 1, 2
		ORDER BY cnt DESC, value ASC`,
		valueExpr, labelExpr, productFrom, b.where(),
	)

	ctx, end := database.TraceQuery(ctx, "FacetCounts", stmt)
	defer func() { end(err) }()

	rows, err := e.pool.Query(ctx, stmt, b.args...)
	if err != nil {
		return nil, fmt.Errorf("facet counts %s: %w", dimension, err)
	}
	defer rows.Close()

	values = make([]domain.FacetValue, 0)
	for rows.Next() {
		var fv domain.FacetValue
		if err := rows.Scan(&fv.Value, &fv.Label, &fv.Count); err != nil {
			return nil, fmt.Errorf("scan facet row: %w", err)
		}
		if fv.Value == "" {
			continue
		}
		if dimension == domain.FacetPriceRange {
			fv.Label = priceBucketLabel(fv.Value)
		}
		values = append(values, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facet rows: %w", err)
	}
	return values, nil
}

// Suggest looks up published product names and the category and vendor
// names containing the fragment.
func (e *Engine) Suggest(ctx context.Context, fragment string, limit int) (out *engine.SuggestCandidates, err error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(fragment))) + "%"

	const (
		productStmt = `SELECT DISTINCT name FROM products
			WHERE status = 'published' AND name ILIKE $1
			ORDER BY name LIMIT $2`
		categoryStmt = `SELECT name FROM categories WHERE name ILIKE $1 ORDER BY name LIMIT $2`
		vendorStmt   = `SELECT name FROM vendors WHERE name ILIKE $1 ORDER BY name LIMIT $2`
	)

	ctx, end := database.TraceQuery(ctx, "SuggestNames", productStmt)
	defer func() { end(err) }()

	out = &engine.SuggestCandidates{}
	if out.Products, err = e.names(ctx, productStmt, pattern, limit); err != nil {
		return nil, fmt.Errorf("suggest products: %w", err)
	}
	if out.Categories, err = e.names(ctx, categoryStmt, pattern, limit); err != nil {
		return nil, fmt.Errorf("suggest categories: %w", err)
	}
	if out.Vendors, err = e.names(ctx, vendorStmt, pattern, limit); err != nil {
		return nil, fmt.Errorf("suggest vendors: %w", err)
	}
	return out, nil
}

// Ping checks that the database is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (e *Engine) names(ctx context.Context, stmt, pattern string, limit int) ([]string, error) {
	rows, err := e.pool.Query(ctx, stmt, pattern, limit)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func productDest(p *domain.Product) []any {
	return []any{
		&p.ID, &p.Name, &p.SKU, &p.Slug, &p.Description,
		&p.CategoryID, &p.CategoryName,
		&p.VendorID, &p.VendorName,
		&p.Price, &p.Currency, &p.Status, &p.Stock, &p.ImageURL, &p.Tags,
		&p.Popularity, &p.CreatedAt, &p.UpdatedAt,
	}
}

func orderBy(sort domain.SortOption) string {
	switch sort {
	case domain.SortPriceAsc:
		return "p.price ASC, p.created_at DESC, p.id ASC"
	case domain.SortPriceDesc:
		return "p.price DESC, p.created_at DESC, p.id ASC"
	case domain.SortDateAsc:
		return "p.created_at ASC, p.id ASC"
	case domain.SortNameAsc:
		return "p.name ASC, p.created_at DESC, p.id ASC"
	case domain.SortNameDesc:
		return "p.name DESC, p.created_at DESC, p.id ASC"
	case domain.SortPopularity:
		return "p.popularity DESC, p.created_at DESC, p.id ASC"
	case domain.SortRelevance:
		return "score DESC, p.created_at DESC, p.id ASC"
	default:
		return "p.created_at DESC, p.id ASC"
	}
}

func priceBucketExpr() string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, bucket := range domain.PriceBuckets() {
		if bucket.Max == 0 {
			fmt.Fprintf(&sb, " ELSE '%s'", bucket.Key)
			continue
		}
		fmt.Fprintf(&sb, " WHEN p.price < %d THEN '%s'", bucket.Max, bucket.Key)
	}
	sb.WriteString(" END")
	return sb.String()
}

func priceBucketLabel(key string) string {
	for _, bucket := range domain.PriceBuckets() {
		if bucket.Key == key {
			return bucket.Label
		}
	}
	return key
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
