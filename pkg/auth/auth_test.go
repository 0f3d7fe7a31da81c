package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)
	return s
}

func TestNewService_EmptySecret(t *testing.T) {
	_, err := NewService("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestGenerateAndValidate(t *testing.T) {
	s := newService(t)
	token, err := s.GenerateToken("u1", RoleReader)
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, []string{RoleReader}, claims.Roles)
	assert.True(t, claims.HasRole(RoleReader))
	assert.False(t, claims.HasRole(RoleAdmin))
}

func TestValidateToken_Rejects(t *testing.T) {
	s := newService(t)

	other, err := NewService("other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.GenerateToken("u1", RoleAdmin)
	require.NoError(t, err)
	_, err = s.ValidateToken(forged)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := s.GenerateToken("u1")
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.ValidateToken(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = s.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestAdminHasEveryRole(t *testing.T) {
	c := &Claims{Roles: []string{RoleAdmin}}
	assert.True(t, c.HasRole(RoleReader))
	assert.True(t, c.HasAnyRole("anything"))
	assert.False(t, (&Claims{}).HasAnyRole(RoleReader))
}

func TestMiddleware(t *testing.T) {
	s := newService(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, found := GetUserFromContext(r.Context())
		require.True(t, found)
		_, _ = w.Write([]byte(user.UserID))
	})
	h := s.AuthMiddleware(RoleMiddleware(RoleAdmin)(ok))

	reader, err := s.GenerateToken("reader-1", RoleReader)
	require.NoError(t, err)
	admin, err := s.GenerateToken("admin-1", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + reader, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "admin-1", rec.Body.String())
			}
		})
	}
}

func TestRoleMiddleware_NoUser(t *testing.T) {
	h := RoleMiddleware(RoleReader)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
