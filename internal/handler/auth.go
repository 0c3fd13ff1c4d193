package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/studytool/internal/i18n"
)

const adminUser = "admin"

// requireAdmin checks HTTP basic credentials against the admin password.
// Without a configured password every request passes.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminHash == nil {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) != 1 ||
			bcrypt.CompareHashAndPassword(h.adminHash, []byte(pass)) != nil {
			slog.Warn("admin authentication failed", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="studytool"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: appI18n.T(r.Context(), "ErrUnauthorized")})
			return
		}
		next.ServeHTTP(w, r)
	})
}
