package auth

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Middleware verifies bearer tokens and stores the session in the request
// context. Requests without a token continue anonymously; an invalid token is
// rejected with 401.
func Middleware(api huma.API, m *JWTManager) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		header := ctx.Header("Authorization")
		if header == "" {
			next(ctx)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}
		s, err := m.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(huma.WithContext(ctx, AuthSessionTo(ctx.Context(), s)))
	}
}
