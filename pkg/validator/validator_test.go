package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryRequest struct {
	Text       string   `json:"text" validate:"max=10"`
	Categories []string `json:"categories" validate:"max=2,dive,required"`
	Sort       string   `json:"sort,omitempty" validate:"omitempty,oneof=relevance price_asc"`
	Limit      int      `json:"limit" validate:"gte=0,lte=100"`
	Vendor     string   `validate:"required"`
	Internal   string   `json:"-"`
}

func valid() queryRequest {
	return queryRequest{Text: "laptop", Categories: []string{"c-laptops"}, Limit: 20, Vendor: "v-acme"}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(valid()))
}

func TestValidate_Messages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*queryRequest)
		field  string
		want   string
	}{
		{"string too long", func(r *queryRequest) { r.Text = strings.Repeat("x", 11) }, "text", "must be at most 10 characters"},
		{"too many items", func(r *queryRequest) { r.Categories = []string{"a", "b", "c"} }, "categories", "must be at most 2 items"},
		{"empty list item", func(r *queryRequest) { r.Categories = []string{"a", ""} }, "categories[1]", "is required"},
		{"unknown sort", func(r *queryRequest) { r.Sort = "random" }, "sort", "must be one of: relevance, price_asc"},
		{"number above range", func(r *queryRequest) { r.Limit = 101 }, "limit", "must be less than or equal to 100"},
		{"number below range", func(r *queryRequest) { r.Limit = -1 }, "limit", "must be greater than or equal to 0"},
		{"untagged field keeps go name", func(r *queryRequest) { r.Vendor = "" }, "Vendor", "is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			fields := fieldsOf(t, Validate(req))
			assert.Equal(t, tt.want, fields[tt.field], "fields: %v", fields)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := Validate(queryRequest{Limit: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Vendor is required")
	assert.Contains(t, err.Error(), "limit must be less than or equal to 100")
}

func TestValidate_UnknownTagFallback(t *testing.T) {
	type contact struct {
		Email string `json:"email" validate:"email"`
	}
	fields := fieldsOf(t, Validate(contact{Email: "nope"}))
	assert.Equal(t, `failed "email" check`, fields["email"])
}

func TestDecodeAndValidate(t *testing.T) {
	post := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	t.Run("valid", func(t *testing.T) {
		var req queryRequest
		require.NoError(t, DecodeAndValidate(post(`{"text":"mug","Vendor":"v-acme","limit":5}`), &req))
		assert.Equal(t, "mug", req.Text)
		assert.Equal(t, 5, req.Limit)
	})

	t.Run("empty body", func(t *testing.T) {
		var req queryRequest
		assert.ErrorIs(t, DecodeAndValidate(post(""), &req), ErrEmptyBody)
	})

	t.Run("malformed", func(t *testing.T) {
		var req queryRequest
		assert.ErrorContains(t, DecodeAndValidate(post(`{"text":`), &req), "decode request body")
	})

	t.Run("fails validation", func(t *testing.T) {
		var req queryRequest
		fields := fieldsOf(t, DecodeAndValidate(post(`{"text":"mug"}`), &req))
		assert.Contains(t, fields, "Vendor")
	})
}
