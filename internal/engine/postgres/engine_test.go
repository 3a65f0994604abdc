package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var productCols = []string{
	"id", "name", "sku", "slug", "description",
	"category_id", "category_name", "vendor_id", "vendor_name",
	"price", "currency", "status", "stock", "image_url", "tags",
	"popularity", "created_at", "updated_at",
}

func productRow(id, name string, price int64) []any {
	return []any{
		id, name, "SKU-" + id, "slug-" + id, "A portable computer",
		"cat-1", "Laptops", "vendor-1", "Acme",
		price, "USD", domain.StatusPublished, 5, "", []string{"portable"},
		int64(10), now, now,
	}
}

func TestEngine_Search_TextWithPriceFilter(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	cols := append(append([]string{}, productCols...), "score", "total_count")
	rows := pgxmock.NewRows(cols).
		AddRow(append(productRow("p1", "Laptop Air", 50000), 5.0, 2)...).
		AddRow(append(productRow("p2", "Laptop Pro", 90000), 5.0, 2)...)

	maxPrice := int64(100000)
	spec := domain.QuerySpec{Text: "laptop", PriceMax: &maxPrice}.Normalize()

	mock.ExpectQuery(`SELECT .+ FROM products p .+ WHERE p.price <= \$1 AND \(p.name ILIKE \$2 .+ ORDER BY score DESC`).
		WithArgs(maxPrice, "%laptop%", "laptop%", 20, 0).
		WillReturnRows(rows)

	result, err := eng.Search(context.Background(), engine.TextQuery{Spec: spec, Offset: 0, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, "p1", result.Hits[0].Product.ID)
	assert.Equal(t, "Laptops", result.Hits[0].Product.CategoryName)
	assert.Equal(t, 5.0, result.Hits[0].Score)
	assert.Equal(t, []string{"portable"}, result.Hits[1].Product.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Search_FilterOnlyOrdersNewestFirst(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	spec := domain.QuerySpec{Categories: []string{"cat-1"}}.Normalize()
	cols := append(append([]string{}, productCols...), "score", "total_count")

	mock.ExpectQuery(`WHERE p.category_id = ANY\(\$1\)\s+ORDER BY p.created_at DESC, p.id ASC\s+LIMIT \$2 OFFSET \$3`).
		WithArgs([]string{"cat-1"}, 20, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(append(productRow("p1", "Desk", 20000), 0.0, 1)...))

	result, err := eng.Search(context.Background(), engine.TextQuery{Spec: spec, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Search_PastLastPageCountsSeparately(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	spec := domain.QuerySpec{Page: 5}.Normalize()
	cols := append(append([]string{}, productCols...), "score", "total_count")

	mock.ExpectQuery(`SELECT .+ LIMIT \$1 OFFSET \$2`).
		WithArgs(20, 80).
		WillReturnRows(pgxmock.NewRows(cols))
	mock.ExpectQuery(`SELECT count\(\*\) FROM products p`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	result, err := eng.Search(context.Background(), engine.TextQuery{Spec: spec, Offset: 80, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
	assert.Equal(t, 42, result.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Search_QueryError(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	mock.ExpectQuery(`SELECT .+ FROM products p`).WillReturnError(errors.New("connection refused"))

	_, err := eng.Search(context.Background(), engine.TextQuery{Spec: domain.QuerySpec{}.Normalize(), Limit: 20})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search products")
}

func TestEngine_Search_EscapesLikeWildcards(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	cols := append(append([]string{}, productCols...), "score", "total_count")
	mock.ExpectQuery(`SELECT .+ FROM products p`).
		WithArgs(`%100\%%`, `100\%%`, 20, 0).
		WillReturnRows(pgxmock.NewRows(cols))

	_, err := eng.Search(context.Background(), engine.TextQuery{Spec: domain.QuerySpec{Text: "100%"}.Normalize(), Limit: 20})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_GetByIDs_PreservesRequestOrder(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	mock.ExpectQuery(`SELECT .+ WHERE p.id = ANY\(\$1\)`).
		WithArgs([]string{"p2", "missing", "p1"}).
		WillReturnRows(pgxmock.NewRows(productCols).
			AddRow(productRow("p1", "One", 100)...).
			AddRow(productRow("p2", "Two", 200)...))

	products, err := eng.GetByIDs(context.Background(), []string{"p2", "missing", "p1"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p2", products[0].ID)
	assert.Equal(t, "p1", products[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_GetByIDs_Empty(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	products, err := eng.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_FacetCounts_Category(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	mock.ExpectQuery(`SELECT p.category_id AS value, COALESCE\(c.name, ''\) AS label, count\(\*\) AS cnt .+ GROUP BY 1, 2`).
		WillReturnRows(pgxmock.NewRows([]string{"value", "label", "cnt"}).
			AddRow("cat-1", "Laptops", 2).
			AddRow("cat-2", "Tablets", 1))

	values, err := eng.FacetCounts(context.Background(), domain.QuerySpec{}.Normalize(), domain.FacetCategory)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, domain.FacetValue{Value: "cat-1", Label: "Laptops", Count: 2}, values[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_FacetCounts_PriceRangeLabels(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	mock.ExpectQuery(`SELECT CASE WHEN p.price < 2500 THEN '0-2500' .+ ELSE '100000\+' END AS value`).
		WillReturnRows(pgxmock.NewRows([]string{"value", "label", "cnt"}).
			AddRow("50000-100000", "", 2))

	values, err := eng.FacetCounts(context.Background(), domain.QuerySpec{}.Normalize(), domain.FacetPriceRange)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "500 to 1000", values[0].Label)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_FacetCounts_UnknownDimension(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	_, err := eng.FacetCounts(context.Background(), domain.QuerySpec{}, "color")
	require.Error(t, err)
}

func TestEngine_Suggest(t *testing.T) {
	mock := newMock(t)
	eng := New(mock)

	mock.ExpectQuery(`SELECT DISTINCT name FROM products`).
		WithArgs("%lap%", 10).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Laptop Air"))
	mock.ExpectQuery(`SELECT name FROM categories`).
		WithArgs("%lap%", 10).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Laptops"))
	mock.ExpectQuery(`SELECT name FROM vendors`).
		WithArgs("%lap%", 10).
		WillReturnRows(pgxmock.NewRows([]string{"name"}))

	got, err := eng.Suggest(context.Background(), "Lap", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laptop Air"}, got.Products)
	assert.Equal(t, []string{"Laptops"}, got.Categories)
	assert.Empty(t, got.Vendors)
	assert.NoError(t, mock.ExpectationsWereMet())
}
