package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/service"
	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

// Request headers carrying caller identity, set by the gateway.
const (
	headerUserID   = "X-User-ID"
	headerUserType = "X-User-Type"
	headerSource   = "X-Search-Source"
)

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be a valid integer", name))
	}
	return n, nil
}

// boolParam reads an optional boolean query parameter.
func boolParam(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperrors.InvalidInput(fmt.Sprintf("%s must be true or false", name))
	}
	return b, nil
}

// int64Param reads an optional non-negative price parameter.
func int64Param(r *http.Request, name string) (*int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s must be a valid number", name))
	}
	if n < 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s must not be negative", name))
	}
	return &n, nil
}

// listParam reads a repeated or comma separated query parameter.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// requestMeta extracts who is searching from the request.
func requestMeta(r *http.Request) service.RequestMeta {
	source := r.Header.Get(headerSource)
	if source == "" {
		source = r.URL.Query().Get("source")
	}
	if source == "" {
		source = domain.SourceWeb
	}
	return service.RequestMeta{
		UserID:   r.Header.Get(headerUserID),
		UserType: r.Header.Get(headerUserType),
		Source:   source,
	}
}
