package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
)

// ErrUnauthenticated is returned when a request carries no usable credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Credentials are what a request presents to authenticate.
type Credentials struct {
	BearerToken string

	// DevUser and DevGroups come from the X-Dev-* headers. Only the mock
	// authenticator reads them.
	DevUser   string
	DevGroups []string
}

// Authenticator turns request credentials into a verified identity.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (domainauth.Identity, error)
}

// RoleMapper maps provider groups to the marketplace roles they grant.
// A person may hold several roles; the caller picks one per request.
type RoleMapper interface {
	Map(groups []string) []domainauth.Role
}
