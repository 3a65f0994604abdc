package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SortOption orders a result page.
type SortOption string

// Sort options for search results.
const (
	SortRelevance  SortOption = "relevance"
	SortPriceAsc   SortOption = "price_asc"
	SortPriceDesc  SortOption = "price_desc"
	SortDateAsc    SortOption = "date_asc"
	SortDateDesc   SortOption = "date_desc"
	SortNameAsc    SortOption = "name_asc"
	SortNameDesc   SortOption = "name_desc"
	SortPopularity SortOption = "popularity"
)

// ValidSortOptions returns the list of valid sort options.
func ValidSortOptions() []SortOption {
	return []SortOption{
		SortRelevance, SortPriceAsc, SortPriceDesc, SortDateAsc,
		SortDateDesc, SortNameAsc, SortNameDesc, SortPopularity,
	}
}

// ParseSort converts a raw sort value into a SortOption. An empty value is
// accepted and resolved later by Normalize. "newest" is kept as an alias of
// date_desc for older clients.
func ParseSort(raw string) (SortOption, error) {
	if raw == "" {
		return "", nil
	}
	if raw == "newest" {
		return SortDateDesc, nil
	}
	for _, s := range ValidSortOptions() {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown sort option %q", raw)
}

// SearchMode selects which retrieval engines serve a query.
type SearchMode string

// Search modes.
const (
	ModeText     SearchMode = "text"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// ParseMode converts a raw mode value into a SearchMode. Empty means hybrid.
func ParseMode(raw string) (SearchMode, error) {
	switch SearchMode(raw) {
	case "":
		return ModeHybrid, nil
	case ModeText, ModeSemantic, ModeHybrid:
		return SearchMode(raw), nil
	}
	return "", fmt.Errorf("unknown search mode %q", raw)
}

// Paging bounds. MaxPage keeps Offset well inside int range.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 10000
)

// QuerySpec holds all parameters for a search request. Build it with the
// desired fields and call Normalize before use; a normalized spec is treated
// as immutable and is the input to cache key derivation.
type QuerySpec struct {
	Text         string     `json:"text"`
	Categories   []string   `json:"categories,omitempty"`
	PriceMin     *int64     `json:"price_min,omitempty"`
	PriceMax     *int64     `json:"price_max,omitempty"`
	VendorIDs    []string   `json:"vendor_ids,omitempty"`
	RequireStock *bool      `json:"require_stock,omitempty"`
	Statuses     []string   `json:"statuses,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Sort         SortOption `json:"sort"`
	Mode         SearchMode `json:"mode"`
	Page         int        `json:"page"`
	PageSize     int        `json:"page_size"`
}

// Normalize returns a canonical copy of the query: text trimmed with inner
// whitespace collapsed, filter sets deduplicated and sorted, page and
// page_size clamped, and sort and mode defaulted.
func (q QuerySpec) Normalize() QuerySpec {
	out := q
	out.Text = strings.Join(strings.Fields(q.Text), " ")
	out.Categories = canonicalSet(q.Categories)
	out.VendorIDs = canonicalSet(q.VendorIDs)
	out.Statuses = canonicalSet(q.Statuses)
	out.Tags = canonicalSet(q.Tags)

	if q.PriceMin != nil {
		v := *q.PriceMin
		out.PriceMin = &v
	}
	if q.PriceMax != nil {
		v := *q.PriceMax
		out.PriceMax = &v
	}
	if q.RequireStock != nil {
		v := *q.RequireStock
		out.RequireStock = &v
	}

	switch {
	case out.Page < 1:
		out.Page = 1
	case out.Page > MaxPage:
		out.Page = MaxPage
	}
	switch {
	case out.PageSize == 0:
		out.PageSize = DefaultPageSize
	case out.PageSize < 1:
		out.PageSize = 1
	case out.PageSize > MaxPageSize:
		out.PageSize = MaxPageSize
	}

	if out.Sort == "" {
		if out.Text == "" {
			out.Sort = SortDateDesc
		} else {
			out.Sort = SortRelevance
		}
	}
	if out.Mode == "" {
		out.Mode = ModeHybrid
	}
	return out
}

// Offset returns the zero-based index of the first hit on the page.
func (q QuerySpec) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// HasText reports whether the query carries a free-text query.
func (q QuerySpec) HasText() bool {
	return strings.TrimSpace(q.Text) != ""
}

// Matches reports whether p satisfies every structured filter of the query.
// The free-text part is not considered.
func (q QuerySpec) Matches(p *Product) bool {
	if len(q.Categories) > 0 && !contains(q.Categories, p.CategoryID) {
		return false
	}
	if len(q.VendorIDs) > 0 && !contains(q.VendorIDs, p.VendorID) {
		return false
	}
	if len(q.Statuses) > 0 && !contains(q.Statuses, p.Status) {
		return false
	}
	if q.PriceMin != nil && p.Price < *q.PriceMin {
		return false
	}
	if q.PriceMax != nil && p.Price > *q.PriceMax {
		return false
	}
	if q.RequireStock != nil && *q.RequireStock && !p.InStock() {
		return false
	}
	for _, tag := range q.Tags {
		if !p.HasTag(tag) {
			return false
		}
	}
	return true
}

// WithoutFacet returns a copy of the query with the filter that backs the
// given facet dimension removed.
func (q QuerySpec) WithoutFacet(dimension string) QuerySpec {
	out := q
	switch dimension {
	case FacetCategory:
		out.Categories = nil
	case FacetVendor:
		out.VendorIDs = nil
	case FacetPriceRange:
		out.PriceMin = nil
		out.PriceMax = nil
	case FacetStatus:
		out.Statuses = nil
	}
	return out
}

// FilterPair is one canonical key/value pair of the query's filters.
type FilterPair struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// FilterPairs flattens the filters into pairs sorted by key then value, so
// two specs that differ only in filter ordering yield identical output.
func (q QuerySpec) FilterPairs() []FilterPair {
	var pairs []FilterPair
	for _, c := range canonicalSet(q.Categories) {
		pairs = append(pairs, FilterPair{"category", c})
	}
	for _, v := range canonicalSet(q.VendorIDs) {
		pairs = append(pairs, FilterPair{"vendor", v})
	}
	for _, s := range canonicalSet(q.Statuses) {
		pairs = append(pairs, FilterPair{"status", s})
	}
	for _, t := range canonicalSet(q.Tags) {
		pairs = append(pairs, FilterPair{"tag", t})
	}
	if q.PriceMin != nil {
		pairs = append(pairs, FilterPair{"price_min", strconv.FormatInt(*q.PriceMin, 10)})
	}
	if q.PriceMax != nil {
		pairs = append(pairs, FilterPair{"price_max", strconv.FormatInt(*q.PriceMax, 10)})
	}
	if q.RequireStock != nil {
		pairs = append(pairs, FilterPair{"require_stock", strconv.FormatBool(*q.RequireStock)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Key != pairs[j].Key {
			return pairs[i].Key < pairs[j].Key
		}
		return pairs[i].Value < pairs[j].Value
	})
	return pairs
}

// FilterMap renders the filters as a flat map for analytics events.
func (q QuerySpec) FilterMap() map[string]string {
	pairs := q.FilterPairs()
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if prev, ok := out[p.Key]; ok {
			out[p.Key] = prev + "," + p.Value
			continue
		}
		out[p.Key] = p.Value
	}
	return out
}

func canonicalSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
