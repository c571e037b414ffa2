package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	apperrors "github.com/target/engagement-ledger/internal/errors"
	mockauth "github.com/target/engagement-ledger/internal/mocks/auth"
	"github.com/target/engagement-ledger/internal/service"
)

func TestCredentialsFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer  tok-1 ")
	r.Header.Set(HeaderDevUser, " emp-1 ")
	r.Header.Set(HeaderDevGroups, "employers; workers,, ops")

	creds := credentialsFrom(r)
	assert.Equal(t, "tok-1", creds.BearerToken)
	assert.Equal(t, "emp-1", creds.DevUser)
	assert.Equal(t, []string{"employers", "workers", "ops"}, creds.DevGroups)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, credentialsFrom(r).BearerToken)
}

func newTokenAuth(t *testing.T) (*service.AuthService, *mockauth.MockAuthenticator) {
	t.Helper()
	authn := mockauth.NewMockAuthenticator(map[string]domainauth.Identity{
		"tok-emp":  {UserID: "emp-1", Groups: []string{"employers"}},
		"tok-both": {UserID: "u-2", Groups: []string{"employers", "workers"}},
	})
	svc, err := service.NewAuthService(service.AuthServiceOptions{
		Authenticator: authn,
		Roles: mockauth.StaticRoleMapper{Groups: map[string]domainauth.Role{
			"employers": domainauth.RoleEmployer,
			"workers":   domainauth.RoleWorker,
		}},
	})
	require.NoError(t, err)
	return svc, authn
}

func TestRequireActor(t *testing.T) {
	svc, authn := newTokenAuth(t)

	var seen domainauth.Actor
	h := RequireActor(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		token    string
		actingAs string
		status   int
		want     domainauth.Actor
	}{
		{name: "no credentials", status: http.StatusUnauthorized},
		{name: "unknown token", token: "nope", status: http.StatusUnauthorized},
		{name: "single role", token: "tok-emp", status: http.StatusNoContent,
			want: domainauth.Actor{ID: "emp-1", Role: domainauth.RoleEmployer}},
		{name: "ambiguous roles", token: "tok-both", status: http.StatusBadRequest},
		{name: "chosen role", token: "tok-both", actingAs: "worker", status: http.StatusNoContent,
			want: domainauth.Actor{ID: "u-2", Role: domainauth.RoleWorker}},
		{name: "role not held", token: "tok-emp", actingAs: "admin", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = domainauth.Actor{}
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.actingAs != "" {
				r.Header.Set(HeaderActingAs, tt.actingAs)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, seen)
		})
	}
	assert.Equal(t, len(tests), authn.Calls())
}

func TestLogging_ReportsActorAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recordActor(r, domainauth.Actor{ID: "emp-1", Role: domainauth.RoleEmployer})
		WriteAppError(w, r, apperrors.Internal("ledger unavailable"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/job-posts", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"actor":"employer:emp-1"`)
	assert.Contains(t, out, `"status":500`)
	assert.Contains(t, out, "ledger unavailable")
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	h := Recover(slog.New(slog.NewTextHandler(&buf, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "nil map")
}

func TestActorFromContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := ActorFromContext(r.Context())
	assert.False(t, ok)

	_, ok = ActorFromContext(SetActorInContext(r.Context(), domainauth.Actor{Role: domainauth.RoleWorker}))
	assert.False(t, ok, "an actor without an id is not resolved")

	a, ok := ActorFromContext(SetActorInContext(r.Context(), domainauth.Actor{ID: "w", Role: domainauth.RoleWorker}))
	assert.True(t, ok)
	assert.Equal(t, "w", a.ID)
}
