package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/pkg/slug"
)

// Namespace prefixes every key written by the cache.
const Namespace = "hs"

// maxSlugLen bounds the readable query segment of a key.
const maxSlugLen = 48

// keyIdentity is the canonical form hashed into a key. Field order is fixed
// so the JSON encoding is stable.
type keyIdentity struct {
	Text     string              `json:"t"`
	Filters  []domain.FilterPair `json:"f"`
	Page     int                 `json:"p"`
	PageSize int                 `json:"s"`
	Sort     domain.SortOption   `json:"o"`
	Mode     domain.SearchMode   `json:"m"`
	Tier     string              `json:"tier"`
}

// Key derives the cache key for a query spec in a tier. It is a pure function
// of its inputs: specs that differ only in filter ordering or whitespace map to
// the same key.
//
// The EXACT tier hashes the text with its original casing; every other tier
// hashes the lowercased form so casing variants share an entry.
func Key(spec domain.QuerySpec, tier domain.CacheTier) string {
	spec = spec.Normalize()

	text := spec.Text
	if tier != domain.TierExact {
		text = domain.NormalizeQuery(text)
	}
	id := keyIdentity{
		Text:     text,
		Filters:  spec.FilterPairs(),
		Page:     spec.Page,
		PageSize: spec.PageSize,
		Sort:     spec.Sort,
		Mode:     spec.Mode,
		Tier:     tier.String(),
	}
	return tierPrefix(tier) + readableSegments(spec) + ":" + digest(id)
}

// FacetsKey derives the FACETS tier key for a spec. Paging and sort do not
// change facet counts, so every page of a result set shares one entry.
func FacetsKey(spec domain.QuerySpec) string {
	spec = spec.Normalize()
	spec.Page = 1
	spec.PageSize = domain.DefaultPageSize
	spec.Sort = domain.SortRelevance
	return Key(spec, domain.TierFacets)
}

// AutocompleteKey derives the relative key of an autocomplete result, for use
// with GetJSON and SetJSON on the AUTOCOMPLETE tier.
func AutocompleteKey(prefix string, limit int) string {
	return "q~" + slug.GenerateMax(prefix, maxSlugLen) + "~:" + digest(struct {
		Prefix string `json:"p"`
		Limit  int    `json:"l"`
	}{domain.NormalizeQuery(prefix), limit})
}

// SimilarKey derives the relative key of a similar-products result, for use
// with GetJSON and SetJSON on the PROCESSED tier.
func SimilarKey(productID string, limit int, excludeSameVendor bool) string {
	return "similar~" + sanitize(productID) + "~:" + strconv.Itoa(limit) + ":" + strconv.FormatBool(excludeSameVendor)
}

// tierPrefix returns "hs:{tier}:".
func tierPrefix(tier domain.CacheTier) string {
	return Namespace + ":" + tier.String() + ":"
}

// readableSegments renders q~{slug}~:cat~{c1}~{c2}~:ven~{v1}~ so selectors
// can be expanded into SCAN MATCH patterns.
func readableSegments(spec domain.QuerySpec) string {
	var b strings.Builder
	b.WriteString("q~")
	b.WriteString(slug.GenerateMax(spec.Text, maxSlugLen))
	b.WriteString("~:cat~")
	for _, c := range spec.Categories {
		b.WriteString(sanitize(c))
		b.WriteByte('~')
	}
	b.WriteString(":ven~")
	for _, v := range spec.VendorIDs {
		b.WriteString(sanitize(v))
		b.WriteByte('~')
	}
	return b.String()
}

// sanitize strips glob metacharacters and key separators from a tag value.
func sanitize(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '~', ':', ' ':
			return -1
		}
		return r
	}, v)
}

func digest(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only plain strings, ints and slices are hashed here.
		panic(fmt.Sprintf("cache: marshal key identity: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Glob patterns for selector expansion.

func textPattern(tier domain.CacheTier, text string) string {
	return tierPrefix(tier) + "q~*" + slug.GenerateMax(text, maxSlugLen) + "*"
}

// textMatcher confirms a SCAN match against the query segment alone. A glob
// star cannot stop at the segment end, so a text pattern would otherwise also
// hit category and vendor tags.
func textMatcher(tier domain.CacheTier, text string) func(string) bool {
	want := slug.GenerateMax(text, maxSlugLen)
	prefix := tierPrefix(tier) + "q~"
	return func(key string) bool {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			return false
		}
		segment, _, ok := strings.Cut(rest, "~")
		return ok && strings.Contains(segment, want)
	}
}

func categoryPattern(tier domain.CacheTier, categoryID string) string {
	return tierPrefix(tier) + "*:cat*~" + sanitize(categoryID) + "~*:ven~*"
}

func vendorPattern(tier domain.CacheTier, vendorID string) string {
	return tierPrefix(tier) + "*:ven*~" + sanitize(vendorID) + "~*"
}

func similarPattern(productID string) string {
	return tierPrefix(domain.TierProcessed) + "similar~" + sanitize(productID) + "~:*"
}

func tierPattern(tier domain.CacheTier) string {
	return tierPrefix(tier) + "*"
}
