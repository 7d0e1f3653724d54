package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewOperatorValidator_ShortSecret(t *testing.T) {
	_, err := NewOperatorValidator("short", "escrow-bridge")
	require.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	v, err := NewOperatorValidator(testSecret, "escrow-bridge")
	require.NoError(t, err)

	tok, err := IssueOperatorToken(testSecret, "escrow-bridge", "ops@example.com", time.Minute)
	require.NoError(t, err)
	claims, err := v.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)

	tests := []struct {
		name  string
		token func() string
	}{
		{"expired", func() string {
			s, _ := IssueOperatorToken(testSecret, "escrow-bridge", "ops", -time.Minute)
			return s
		}},
		{"wrong issuer", func() string {
			s, _ := IssueOperatorToken(testSecret, "someone-else", "ops", time.Minute)
			return s
		}},
		{"wrong secret", func() string {
			s, _ := IssueOperatorToken(testSecret+"x", "escrow-bridge", "ops", time.Minute)
			return s
		}},
		{"missing expiry", func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, OperatorClaims{
				Role:             RoleOperator,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "escrow-bridge"},
			}).SignedString([]byte(testSecret))
			return s
		}},
		{"wrong algorithm", func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, OperatorClaims{
				Role: RoleOperator,
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    "escrow-bridge",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
				},
			}).SignedString([]byte(testSecret))
			return s
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(tt.token())
			require.Error(t, err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	v, err := NewOperatorValidator(testSecret, "escrow-bridge")
	require.NoError(t, err)

	var gotSubject string
	h := Middleware(v, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	userTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, OperatorClaims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "escrow-bridge",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	tok, err := IssueOperatorToken(testSecret, "escrow-bridge", "ops", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops", gotSubject)
}
