package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/adapters/authroles"
	"github.com/target/engagement-ledger/internal/adapters/devauth"
	"github.com/target/engagement-ledger/internal/adapters/oidc"
	"github.com/target/engagement-ledger/internal/ports"
	"github.com/target/engagement-ledger/internal/service"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildAuthService creates the actor resolver for the configured auth mode.
func BuildAuthService(cfg AuthConfig) (*service.AuthService, error) {
	roleMapper := authroles.GroupRoleMapper{
		AdminGroup:    cfg.Auth.AdminGroup,
		EmployerGroup: cfg.Auth.EmployerGroup,
		WorkerGroup:   cfg.Auth.WorkerGroup,
	}

	var (
		authn ports.Authenticator
		err   error
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		authn, err = buildDevAuthenticator(cfg)
	case config.AuthModeOIDC:
		authn, err = buildOIDCAuthenticator(cfg)
	default:
		err = fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	if err != nil {
		return nil, err
	}

	return service.NewAuthService(service.AuthServiceOptions{
		Authenticator: authn,
		Roles:         roleMapper,
	})
}

func buildDevAuthenticator(cfg AuthConfig) (ports.Authenticator, error) {
	prov, err := devauth.NewProvider(devauth.Config{
		DefaultUser:   cfg.Auth.DevAuth.DefaultUser,
		DefaultGroups: cfg.Auth.DevAuth.DefaultGroups,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Warn("mock authentication enabled; X-Dev-User headers are trusted",
			"default_user", cfg.Auth.DevAuth.DefaultUser)
	}
	return prov, nil
}

func buildOIDCAuthenticator(cfg AuthConfig) (ports.Authenticator, error) {
	o := cfg.Auth.OIDC
	if o.IssuerURL == "" {
		return nil, errors.New("AUTH_MODE=oidc requires OIDC_ISSUER_URL")
	}
	v, err := oidc.NewVerifier(oidc.VerifierConfig{
		IssuerURL:   o.IssuerURL,
		Audience:    o.Audience,
		GroupsClaim: o.GroupsClaim,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC verifier: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("OIDC bearer verification enabled", "issuer", o.IssuerURL, "audience", o.Audience)
	}
	return v, nil
}
