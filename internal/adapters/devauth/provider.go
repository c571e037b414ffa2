package devauth

// Package devauth provides a header-driven Authenticator for local development.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/ports"
)

// Config controls the dev authenticator. Groups may be empty.
type Config struct {
	DefaultUser   string
	DefaultGroups []string
	TTL           time.Duration // default 8h when zero
}

// Provider implements ports.Authenticator for local development. It trusts the
// X-Dev-User and X-Dev-Groups headers and falls back to the configured identity.
// Never enable it where the API is reachable by untrusted clients.
type Provider struct {
	defaultUser   string
	defaultGroups []string
	ttl           time.Duration
	now           func() time.Time
}

var _ ports.Authenticator = (*Provider)(nil)

// NewProvider constructs a dev authenticator from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.DefaultUser == "" {
		return nil, errors.New("dev auth: DefaultUser is required")
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &Provider{
		defaultUser:   cfg.DefaultUser,
		defaultGroups: append([]string(nil), cfg.DefaultGroups...),
		ttl:           ttl,
		now:           time.Now,
	}, nil
}

// Authenticate returns the header identity, or the default one when no user header is set.
// Groups from the header replace the defaults only when a user header is present.
func (p *Provider) Authenticate(_ context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	id := domainauth.Identity{
		UserID:    p.defaultUser,
		Groups:    append([]string(nil), p.defaultGroups...),
		ExpiresAt: p.now().Add(p.ttl),
	}
	if creds.DevUser != "" {
		id.UserID = creds.DevUser
		id.Groups = append([]string(nil), creds.DevGroups...)
	}
	return id, nil
}
