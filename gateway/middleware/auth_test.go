package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"usdacore/crypto"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func callerEcho(seen *[20]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if ok {
			*seen = caller
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticatorBindsSubject(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "usda"}, nil)
	caller := [20]byte{0xb0}
	var seen [20]byte
	handler := auth.Middleware()(callerEcho(&seen))

	token := signToken(t, jwt.MapClaims{
		"sub": crypto.FormatRaw(caller),
		"iss": "usda",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/borrow/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, caller, seen)
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "usda"}, nil)
	handler := auth.Middleware(ScopeAdmin)(okHandler())
	good := crypto.FormatRaw([20]byte{0xad})

	cases := map[string]struct {
		header string
		status int
	}{
		"missing token":  {"", http.StatusUnauthorized},
		"wrong issuer":   {"Bearer " + signToken(t, jwt.MapClaims{"sub": good, "iss": "other", "scope": ScopeAdmin}), http.StatusUnauthorized},
		"bad subject":    {"Bearer " + signToken(t, jwt.MapClaims{"sub": "alice", "iss": "usda", "scope": ScopeAdmin}), http.StatusUnauthorized},
		"expired":        {"Bearer " + signToken(t, jwt.MapClaims{"sub": good, "iss": "usda", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		"missing scope":  {"Bearer " + signToken(t, jwt.MapClaims{"sub": good, "iss": "usda"}), http.StatusForbidden},
		"admin accepted": {"Bearer " + signToken(t, jwt.MapClaims{"sub": good, "iss": "usda", "scope": "usda:oracle " + ScopeAdmin}), http.StatusOK},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/ltv", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.status, res.Code)
		})
	}
}

func TestAuthenticatorDisabledUsesCallerHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	caller := [20]byte{0xc0}
	var seen [20]byte
	handler := auth.Middleware(ScopeAdmin)(callerEcho(&seen))
	req := httptest.NewRequest(http.MethodPost, "/v1/cds/deposit", nil)
	req.Header.Set("X-USDA-Caller", crypto.FormatRaw(caller))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, caller, seen)
}
