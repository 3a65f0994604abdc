package middleware

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the payload issued by the auth service.
type tokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// HMACValidator accepts HS256 tokens signed with secret. The caller is the
// user_id claim, falling back to sub.
func HMACValidator(secret []byte) TokenValidator {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(raw string) (*Claims, error) {
		var tc tokenClaims
		if _, err := parser.ParseWithClaims(raw, &tc, keyFunc); err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		id := tc.UserID
		if id == "" {
			id = tc.Subject
		}
		if id == "" {
			return nil, errors.New("token names no user")
		}
		return &Claims{UserID: id, Role: tc.Role}, nil
	}
}

// FirstValid tries each validator in turn and returns the first claims
// accepted.
func FirstValid(validators ...TokenValidator) TokenValidator {
	return func(raw string) (*Claims, error) {
		errs := make([]error, 0, len(validators))
		for _, v := range validators {
			c, err := v(raw)
			if err == nil {
				return c, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}
