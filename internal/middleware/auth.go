package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"bitzomax/internal/logging"
	"bitzomax/internal/metrics"

	"golang.org/x/crypto/bcrypt"
)

// AdminUser is the basic-auth user name for admin routes.
const AdminUser = "admin"

// BasicAuth protects a handler with HTTP basic authentication. The
// password is checked against a bcrypt hash. An empty hash disables the
// protected routes entirely.
func BasicAuth(passwordHash, realm string) func(http.Handler) http.Handler {
	hash := []byte(passwordHash)
	challenge := fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", realm)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hash) == 0 {
				http.Error(w, "Admin access is not configured", http.StatusServiceUnavailable)
				return
			}

			user, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(AdminUser)) == 1
			passOK := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
			if !userOK || !passOK {
				logging.Warn("Failed admin login from %s", sanitizeLogField(getClientIP(r)))
				metrics.AdminAuthAttemptsTotal.WithLabelValues("failure").Inc()
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			metrics.AdminAuthAttemptsTotal.WithLabelValues("success").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
