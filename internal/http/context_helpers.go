package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
)

// actorKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type actorKey struct{}

// SetActorInContext returns a child context that carries the resolved actor.
func SetActorInContext(ctx context.Context, actor domainauth.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the request actor and whether one was resolved.
func ActorFromContext(ctx context.Context) (domainauth.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domainauth.Actor)
	return a, ok && a.ID != ""
}

// requestLogKey carries per-request details the logging middleware reports
// once inner handlers have filled them in.
type requestLogKey struct{}

type requestLog struct {
	actor string
	err   error
}

func withRequestLog(r *http.Request) (*http.Request, *requestLog) {
	rl := &requestLog{}
	return r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)), rl
}

func requestLogFrom(ctx context.Context) *requestLog {
	rl, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return rl
}

func recordActor(r *http.Request, actor domainauth.Actor) {
	if rl := requestLogFrom(r.Context()); rl != nil {
		rl.actor = actor.String()
	}
}

func recordError(r *http.Request, err error) {
	if r == nil {
		return
	}
	if rl := requestLogFrom(r.Context()); rl != nil {
		rl.err = err
	}
}
