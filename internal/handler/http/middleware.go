package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/utafrali/productsearch/pkg/middleware"
)

// roleAdmin is the role granted to holders of the admin token.
const roleAdmin = "admin"

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// staticTokenValidator accepts exactly one bearer token and grants it the
// admin role.
func staticTokenValidator(token string) middleware.TokenValidator {
	return func(got string) (*middleware.Claims, error) {
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return nil, errors.New("token mismatch")
		}
		return &middleware.Claims{UserID: "admin", Role: roleAdmin}, nil
	}
}

// adminOnly guards maintenance routes with the static admin token, an
// admin-role JWT signed with jwtSecret, or both. With neither configured the
// routes stay open.
func adminOnly(token, jwtSecret string) func(http.Handler) http.Handler {
	var validators []middleware.TokenValidator
	if token != "" {
		validators = append(validators, staticTokenValidator(token))
	}
	if jwtSecret != "" {
		validators = append(validators, middleware.HMACValidator([]byte(jwtSecret)))
	}
	if len(validators) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	auth := middleware.Auth(middleware.FirstValid(validators...))
	role := middleware.RequireRole(roleAdmin)
	return func(next http.Handler) http.Handler {
		return auth(role(next))
	}
}
