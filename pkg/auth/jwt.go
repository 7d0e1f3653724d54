package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
	apphttp "github.com/chainsafe/escrow-bridge/pkg/app/http"
)

// RoleOperator is the only role admitted to administrative routes.
const RoleOperator = "operator"

var ErrNotOperator = errors.New("token does not carry the operator role")

// OperatorClaims are the claims of an operator bearer token.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OperatorValidator validates HS256 operator tokens
type OperatorValidator struct {
	secret []byte
	issuer string
}

// NewOperatorValidator creates a validator for tokens signed with secret.
func NewOperatorValidator(secret, issuer string) (*OperatorValidator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("operator jwt secret must be at least 32 bytes")
	}
	return &OperatorValidator{secret: []byte(secret), issuer: issuer}, nil
}

// ValidateToken validates a token and returns its claims
func (v *OperatorValidator) ValidateToken(tokenString string) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := new(OperatorClaims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != RoleOperator {
		return nil, ErrNotOperator
	}
	return claims, nil
}

// IssueOperatorToken signs an operator token for subject.
func IssueOperatorToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Middleware requires a valid operator bearer token and stores its subject in the context.
func Middleware(v *OperatorValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "bearer token required"))
				return
			}

			claims, err := v.ValidateToken(raw)
			if err != nil {
				if errors.Is(err, ErrNotOperator) {
					apphttp.DefaultErrorHandler(w, apperrors.ForbiddenError(err, "operator role required"))
					return
				}
				logger.Warn("Rejected operator token", zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), claims.Subject)))
		})
	}
}
