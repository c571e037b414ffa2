package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/ports"
)

// Request headers understood by the API.
const (
	HeaderActingAs  = "X-Acting-As"
	HeaderDevUser   = "X-Dev-User"
	HeaderDevGroups = "X-Dev-Groups"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			r, rl := withRequestLog(r)
			next.ServeHTTP(ww, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			}
			if rl.actor != "" {
				attrs = append(attrs, slog.String("actor", rl.actor))
			}
			level := slog.LevelInfo
			if rl.err != nil {
				attrs = append(attrs, slog.String("error", rl.err.Error()))
				if ww.status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			logger.LogAttrs(r.Context(), level, "http", attrs...)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ActorResolver turns request credentials into the acting principal.
type ActorResolver interface {
	ResolveActor(ctx context.Context, creds ports.Credentials, actingAs string) (domainauth.Actor, error)
}

// RequireActor returns a middleware that resolves the request actor and stores it
// in the context. Requests without a usable actor are answered with 401 or 403.
func RequireActor(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolver.ResolveActor(r.Context(), credentialsFrom(r), r.Header.Get(HeaderActingAs))
			if err != nil {
				WriteAppError(w, r, err)
				return
			}
			recordActor(r, actor)
			next.ServeHTTP(w, r.WithContext(SetActorInContext(r.Context(), actor)))
		})
	}
}

func credentialsFrom(r *http.Request) ports.Credentials {
	var creds ports.Credentials
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		creds.BearerToken = strings.TrimSpace(h[7:])
	}
	creds.DevUser = strings.TrimSpace(r.Header.Get(HeaderDevUser))
	if groups := r.Header.Get(HeaderDevGroups); groups != "" {
		creds.DevGroups = splitList(groups)
	}
	return creds
}

// splitList splits a comma or semicolon separated header value.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
