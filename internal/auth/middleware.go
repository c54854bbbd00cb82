package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware attaches the identity from a valid "Authorization: Bearer"
// header to the request context. Requests without a valid token pass
// through anonymously; operations decide whether that is enough.
func Middleware(tokens *TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := tokens.Verify(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("rejected bearer token", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
