package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/productsearch/pkg/logger"
)

// HeaderUserID identifies the shopper on storefront requests.
const HeaderUserID = "X-User-ID"

// RequestLogger stores a logger carrying the request's correlation, user
// and trace IDs in the context, for logger.FromContext. Mount it after
// RequestLogging and Tracing so those IDs exist.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				userID = r.Header.Get(HeaderUserID)
			}
			if userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
