package oidc

// Package oidc verifies bearer tokens issued by an OpenID Connect provider.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/ports"
)

const defaultGroupsClaim = "groups"

// VerifierConfig holds configuration for the bearer token verifier.
type VerifierConfig struct {
	IssuerURL   string
	Audience    string
	GroupsClaim string       // defaults to "groups"
	HTTPClient  *http.Client // Optional, defaults to a client with a 30s timeout
}

// Verifier implements ports.Authenticator by validating signed JWTs against the
// issuer's published keys.
type Verifier struct {
	verifier    *gooidc.IDTokenVerifier
	groupsClaim string
}

var _ ports.Authenticator = (*Verifier)(nil)

// NewVerifier fetches the issuer's discovery document and builds a verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// The key set keeps this context for later JWKS refreshes, so it must not be cancelled.
	ctx := gooidc.ClientContext(context.Background(), httpClient)
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	claim := cfg.GroupsClaim
	if claim == "" {
		claim = defaultGroupsClaim
	}
	return &Verifier{
		verifier:    op.Verifier(&gooidc.Config{ClientID: cfg.Audience}),
		groupsClaim: claim,
	}, nil
}

// Authenticate verifies the bearer token and maps its claims into an identity.
func (v *Verifier) Authenticate(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	if creds.BearerToken == "" {
		return domainauth.Identity{}, ports.ErrUnauthenticated
	}

	tok, err := v.verifier.Verify(ctx, creds.BearerToken)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: verify token: %w", ports.ErrUnauthenticated, err)
	}

	var claims map[string]json.RawMessage
	if err := tok.Claims(&claims); err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: parse claims: %w", ports.ErrUnauthenticated, err)
	}

	return domainauth.Identity{
		UserID:    tok.Subject,
		Email:     stringClaim(claims["email"]),
		Groups:    groupsClaim(claims[v.groupsClaim]),
		ExpiresAt: tok.Expiry,
	}, nil
}

func stringClaim(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// groupsClaim accepts a list of strings or a single space separated string;
// issuers differ in how they emit group membership.
func groupsClaim(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return strings.Fields(stringClaim(raw))
}
