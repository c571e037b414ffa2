package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.Authenticator = (*MockAuthenticator)(nil)
	_ ports.RoleMapper    = (*StaticRoleMapper)(nil)
)

// MockAuthenticator resolves bearer tokens from a fixed table.
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error)

	// Tokens maps a bearer token to the identity it authenticates.
	Tokens map[string]domainauth.Identity

	mu    sync.Mutex
	calls int
}

// NewMockAuthenticator creates a MockAuthenticator with the given token table.
func NewMockAuthenticator(tokens map[string]domainauth.Identity) *MockAuthenticator {
	return &MockAuthenticator{Tokens: tokens}
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, creds)
	}
	id, ok := m.Tokens[creds.BearerToken]
	if !ok || creds.BearerToken == "" {
		return domainauth.Identity{}, ports.ErrUnauthenticated
	}
	if id.ExpiresAt.IsZero() {
		id.ExpiresAt = time.Now().Add(time.Hour)
	}
	return id, nil
}

// Calls reports how many times Authenticate ran.
func (m *MockAuthenticator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// StaticRoleMapper grants roles from an exact group table.
type StaticRoleMapper struct {
	Groups map[string]domainauth.Role
}

func (m StaticRoleMapper) Map(groups []string) []domainauth.Role {
	var roles []domainauth.Role
	for _, g := range groups {
		if r, ok := m.Groups[g]; ok {
			roles = append(roles, r)
		}
	}
	return roles
}
