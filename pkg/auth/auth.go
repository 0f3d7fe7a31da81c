// Package auth guards the HTTP API with HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
)

const (
	RoleReader = "reader"
	RoleAdmin  = "admin"

	issuer = "marketgql"
)

var ErrNoSecret = errors.New("auth: empty signing secret")

// Claims represents JWT claims
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// Service signs and checks tokens with a shared secret.
type Service struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

func NewService(secret string, expiration time.Duration) (*Service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), expiration: expiration, now: time.Now}, nil
}

// GenerateToken generates a new JWT token for a user
func (s *Service) GenerateToken(userID string, roles ...string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	metrics.AuthOperations.WithLabelValues("generate_token", metrics.Status(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	metrics.AuthOperations.WithLabelValues("validate_token", metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// HasRole checks if the user has a specific role. Admins have every role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role) || slices.Contains(c.Roles, RoleAdmin)
}

// HasAnyRole checks if the user has any of the specified roles
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// AuthMiddleware rejects requests without a valid bearer token.
func (s *Service) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			metrics.AuthMiddlewareErrors.WithLabelValues("missing_header").Inc()
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_format").Inc()
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(token)
		if err != nil {
			logger.Log.Warn("token validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_token").Inc()
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
	})
}

// RoleMiddleware must run after AuthMiddleware.
func RoleMiddleware(requiredRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				metrics.AuthMiddlewareErrors.WithLabelValues("no_user_context").Inc()
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !user.HasAnyRole(requiredRoles...) {
				logger.Log.Warn("insufficient permissions",
					zap.String("user_id", user.UserID),
					zap.Strings("user_roles", user.Roles),
					zap.Strings("required_roles", requiredRoles))
				metrics.AuthMiddlewareErrors.WithLabelValues("insufficient_permissions").Inc()
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// GetUserFromContext extracts user claims from context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	user, ok := ctx.Value(contextKey{}).(*Claims)
	return user, ok
}
