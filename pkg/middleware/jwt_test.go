package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("search-admin-secret")

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestHMACValidator(t *testing.T) {
	validate := HMACValidator(testSecret)
	future := time.Now().Add(time.Hour).Unix()

	t.Run("user_id and role", func(t *testing.T) {
		c, err := validate(sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"user_id": "u-1", "role": "admin", "exp": future}))
		require.NoError(t, err)
		assert.Equal(t, &Claims{UserID: "u-1", Role: "admin"}, c)
	})

	t.Run("subject fallback", func(t *testing.T) {
		c, err := validate(sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "ops-bot", "role": "admin"}))
		require.NoError(t, err)
		assert.Equal(t, "ops-bot", c.UserID)
	})

	rejected := map[string]string{
		"expired":      sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u-1"}),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"user_id": "u-1"}),
		"no user":      sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "admin"}),
		"garbage":      "not.a.jwt",
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := validate(token)
			assert.Error(t, err)
		})
	}
}

func TestFirstValid(t *testing.T) {
	reject := func(string) (*Claims, error) { return nil, errors.New("nope") }
	accept := func(tok string) (*Claims, error) { return &Claims{UserID: tok, Role: "admin"}, nil }

	c, err := FirstValid(reject, accept)("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", c.UserID)

	_, err = FirstValid(reject, reject)("abc")
	assert.ErrorContains(t, err, "nope")

	_, err = FirstValid()("abc")
	assert.Error(t, err)
}
