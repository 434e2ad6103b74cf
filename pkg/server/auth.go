package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/spotwatt/spotwatt/pkg/log"
)

// requireAuth protects administrative handlers behind an OIDC bearer token.
// When no audience is configured the check is skipped entirely.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifyToken == nil {
			next(w, r)
			return
		}

		ctx := r.Context()
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		if _, err := s.verifyToken(ctx, raw); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "rejected admin token", slog.Any("error", err))
			writeJSONError(w, "invalid token", http.StatusForbidden)
			return
		}

		next(w, r)
	}
}
