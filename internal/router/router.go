package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account"
	accountentity "github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/setting"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const (
	prefix          = "/library-api"
	requestIDHeader = "X-Request-ID"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
// Every response carries a request id, reused from the request header when present.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = utilities.NewKSUID()
			}
			w.Header().Set(requestIDHeader, reqID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// HSTS only over TLS, 30 days
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handlers are the feature handlers mounted by RegisterRoutes.
type Handlers struct {
	Tokens    auth.Verifier
	Auth      *auth.Handler
	Accounts  *account.Handler
	Books     *book.Handler
	Borrowing *borrowing.Handler
	Settings  *setting.Handler
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, h Handlers) http.Handler {
	mux := http.NewServeMux()
	librarian := auth.RequireRole(accountentity.RoleLibrarian)
	patron := auth.RequireRole(accountentity.RolePatron)
	member := auth.RequireRole(accountentity.RolePatron, accountentity.RoleLibrarian)
	authenticated := auth.RequireRole()

	// health
	mux.HandleFunc("GET "+prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// auth
	mux.HandleFunc("POST "+prefix+"/auth/login", h.Auth.Login)
	mux.HandleFunc("GET "+prefix+"/auth/jwks.json", h.Auth.JWKS)
	mux.HandleFunc("POST "+prefix+"/auth/register", librarian(h.Accounts.Register))

	// catalogue
	mux.HandleFunc("GET "+prefix+"/books", h.Books.List)
	mux.HandleFunc("GET "+prefix+"/books/available", h.Books.ListAvailable)
	mux.HandleFunc("GET "+prefix+"/books/search", authenticated(h.Books.Search))
	mux.HandleFunc("GET "+prefix+"/books/{id}", h.Books.Get)
	mux.HandleFunc("POST "+prefix+"/books", librarian(h.Books.Create))
	mux.HandleFunc("PUT "+prefix+"/books/{id}", librarian(h.Books.Update))
	mux.HandleFunc("DELETE "+prefix+"/books/{id}", librarian(h.Books.Delete))

	// loans
	mux.HandleFunc("POST "+prefix+"/borrowings/borrow/{bookId}", patron(h.Borrowing.Borrow))
	mux.HandleFunc("POST "+prefix+"/borrowings/return/{loanId}", patron(h.Borrowing.Return))
	mux.HandleFunc("GET "+prefix+"/borrowings/history", member(h.Borrowing.History))
	mux.HandleFunc("GET "+prefix+"/borrowings/all-history", librarian(h.Borrowing.AllHistory))
	mux.HandleFunc("GET "+prefix+"/borrowings/overdue/report", librarian(h.Borrowing.OverdueReport))

	// accounts
	mux.HandleFunc("GET "+prefix+"/users", librarian(h.Accounts.List))
	mux.HandleFunc("GET "+prefix+"/users/{id}", librarian(h.Accounts.Get))
	mux.HandleFunc("PUT "+prefix+"/users/{id}", librarian(h.Accounts.Update))
	mux.HandleFunc("PUT "+prefix+"/users/{id}/role", librarian(h.Accounts.UpdateRole))
	mux.HandleFunc("DELETE "+prefix+"/users/{id}", librarian(h.Accounts.Delete))

	// settings
	mux.HandleFunc("GET "+prefix+"/settings/lending-policy", librarian(h.Settings.GetLendingPolicy))
	mux.HandleFunc("PUT "+prefix+"/settings/lending-policy", librarian(h.Settings.UpdateLendingPolicy))

	// outermost first: logging, security headers, then token authentication
	handler := auth.Authenticate(h.Tokens, logger)(mux)
	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(handler))
}
