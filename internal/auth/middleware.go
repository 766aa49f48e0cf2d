package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// Authenticate places the bearer token's principal into the request context.
// Requests without a token pass through anonymous; a bad token is rejected.
func Authenticate(v Verifier, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
				utilities.WriteError(w, http.StatusUnauthorized, "missing_token")
				return
			}
			p, err := v.Verify(strings.TrimSpace(header[7:]))
			if err != nil {
				logger.Debugw("token rejected", "err", err)
				utilities.WriteError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole allows the request through only for a principal holding one of
// roles. With no roles any authenticated principal is accepted.
func RequireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				utilities.WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if len(roles) > 0 && !p.HasAnyRole(roles...) {
				utilities.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next(w, r)
		}
	}
}
