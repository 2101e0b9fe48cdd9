package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := auth.NewJWTManager([]byte("secret"), time.Hour)
	token, err := m.GenerateToken(auth.Session{UserID: "u1", PublisherID: "p1", Admin: true})
	require.NoError(t, err)

	s, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, &auth.Session{UserID: "u1", PublisherID: "p1", Admin: true}, s)
}

func TestJWTManager_RejectsForeignSignature(t *testing.T) {
	token, err := auth.NewJWTManager([]byte("other"), time.Hour).GenerateToken(auth.Session{UserID: "u1"})
	require.NoError(t, err)

	_, err = auth.NewJWTManager([]byte("secret"), time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := auth.NewJWTManager([]byte("secret"), time.Nanosecond)
	token, err := m.GenerateToken(auth.Session{UserID: "u1"})
	require.NoError(t, err)
	time.Sleep(time.Second)

	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTManager_RequiresUser(t *testing.T) {
	_, err := auth.NewJWTManager([]byte("secret"), time.Hour).GenerateToken(auth.Session{})
	assert.Error(t, err)
}

func TestSystemContext(t *testing.T) {
	_, ok := auth.AuthSessionFrom(context.Background())
	assert.False(t, ok)

	s, ok := auth.AuthSessionFrom(auth.WithSystemContext(context.Background()))
	require.True(t, ok)
	assert.True(t, s.Admin)
}

type whoamiOutput struct {
	Body struct {
		UserID string `json:"user_id"`
	}
}

func newTestAPI(m *auth.JWTManager) http.Handler {
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Test API", "1.0.0"))
	api.UseMiddleware(auth.Middleware(api, m))
	huma.Get(api, "/whoami", func(ctx context.Context, _ *struct{}) (*whoamiOutput, error) {
		out := &whoamiOutput{}
		if s, ok := auth.AuthSessionFrom(ctx); ok {
			out.Body.UserID = s.UserID
		}
		return out, nil
	})
	return mux
}

func TestMiddleware(t *testing.T) {
	m := auth.NewJWTManager([]byte("secret"), time.Hour)
	handler := newTestAPI(m)
	token, err := m.GenerateToken(auth.Session{UserID: "u1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "anonymous", wantStatus: http.StatusOK, wantBody: `"user_id":""`},
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK, wantBody: `"user_id":"u1"`},
		{name: "garbage token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}
