package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	apperrors "github.com/target/engagement-ledger/internal/errors"
	mocks "github.com/target/engagement-ledger/internal/mocks/auth"
	"github.com/target/engagement-ledger/internal/ports"
)

func newTestAuthService(t *testing.T, now time.Time) *AuthService {
	t.Helper()
	svc, err := NewAuthService(AuthServiceOptions{
		Authenticator: mocks.NewMockAuthenticator(map[string]domainauth.Identity{
			"tok-emp":     {UserID: "emp-1", Groups: []string{"employers"}},
			"tok-both":    {UserID: "both-1", Groups: []string{"employers", "workers"}},
			"tok-none":    {UserID: "nobody", Groups: []string{"marketing"}},
			"tok-expired": {UserID: "old", Groups: []string{"workers"}, ExpiresAt: now.Add(-time.Minute)},
			"tok-nosub":   {Groups: []string{"workers"}},
		}),
		Roles: mocks.StaticRoleMapper{Groups: map[string]domainauth.Role{
			"admins":    domainauth.RoleAdmin,
			"employers": domainauth.RoleEmployer,
			"workers":   domainauth.RoleWorker,
		}},
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	_, err := NewAuthService(AuthServiceOptions{Roles: mocks.StaticRoleMapper{}})
	require.Error(t, err)
	_, err = NewAuthService(AuthServiceOptions{Authenticator: mocks.NewMockAuthenticator(nil)})
	require.Error(t, err)
}

func TestAuthService_ResolveActor(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestAuthService(t, now)
	ctx := context.Background()

	tests := []struct {
		name      string
		token     string
		actingAs  string
		want      domainauth.Actor
		wantCheck func(error) bool
	}{
		{name: "single role", token: "tok-emp", want: domainauth.Actor{ID: "emp-1", Role: domainauth.RoleEmployer}},
		{name: "explicit single role", token: "tok-emp", actingAs: "Employer", want: domainauth.Actor{ID: "emp-1", Role: domainauth.RoleEmployer}},
		{name: "chooses worker", token: "tok-both", actingAs: "worker", want: domainauth.Actor{ID: "both-1", Role: domainauth.RoleWorker}},
		{name: "ambiguous", token: "tok-both", wantCheck: apperrors.IsValidation},
		{name: "role not granted", token: "tok-emp", actingAs: "admin", wantCheck: apperrors.IsForbidden},
		{name: "unknown role", token: "tok-emp", actingAs: "owner", wantCheck: apperrors.IsValidation},
		{name: "no role", token: "tok-none", wantCheck: apperrors.IsForbidden},
		{name: "unknown token", token: "nope", wantCheck: isUnauthenticated},
		{name: "expired", token: "tok-expired", wantCheck: isUnauthenticated},
		{name: "no subject", token: "tok-nosub", wantCheck: isUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ResolveActor(ctx, ports.Credentials{BearerToken: tt.token}, tt.actingAs)
			if tt.wantCheck != nil {
				require.Error(t, err)
				assert.True(t, tt.wantCheck(err), "unexpected error %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func isUnauthenticated(err error) bool { return errors.Is(err, ports.ErrUnauthenticated) }
