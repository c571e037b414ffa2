package config

import (
	"fmt"
	"strings"
)

// AuthMode represents how API bearer tokens are verified.
type AuthMode string

const (
	// AuthModeOIDC verifies bearer tokens against an OIDC issuer.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock trusts development headers (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oidc", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, mock)", v)
	}
}

// OIDCConfig contains OIDC token verification configuration.
type OIDCConfig struct {
	// IssuerURL is the issuer; its discovery document provides the signing keys.
	IssuerURL string `env:"ISSUER_URL"`
	// Audience is the expected aud claim (the API's client ID).
	Audience string `env:"AUDIENCE" envDefault:"engagement-ledger"`
	// GroupsClaim names the claim that carries group membership.
	GroupsClaim string `env:"GROUPS_CLAIM" envDefault:"groups"`
}

// DevAuthConfig controls mock authentication. Requests carry X-Dev-User and
// X-Dev-Groups headers; DefaultUser applies when they are absent.
type DevAuthConfig struct {
	DefaultUser   string   `env:"USER_ID" envDefault:"dev-user"`
	DefaultGroups []string `env:"GROUPS"  envDefault:"employers;workers" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oidc"`

	OIDC    OIDCConfig    `envPrefix:"OIDC_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Group names that grant each marketplace role.
	AdminGroup    string `env:"AUTH_ADMIN_GROUP"    envDefault:"ledger-admins"`
	EmployerGroup string `env:"AUTH_EMPLOYER_GROUP" envDefault:"employers"`
	WorkerGroup   string `env:"AUTH_WORKER_GROUP"   envDefault:"workers"`
}
