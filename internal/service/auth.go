package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	apperrors "github.com/target/engagement-ledger/internal/errors"
	"github.com/target/engagement-ledger/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Authenticator ports.Authenticator
	Roles         ports.RoleMapper
	Now           func() time.Time
}

// AuthService resolves request credentials into the (actor_id, role) pair the
// ledger operations trust.
type AuthService struct {
	authn ports.Authenticator
	roles ports.RoleMapper
	now   func() time.Time
}

var errIdentityExpired = errors.New("identity expired")

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.Roles == nil {
		return nil, errors.New("role mapper is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{authn: opts.Authenticator, roles: opts.Roles, now: now}, nil
}

// ResolveActor authenticates creds and picks the role the caller acts as.
// actingAs may be empty when the identity holds exactly one role.
func (s *AuthService) ResolveActor(ctx context.Context, creds ports.Credentials, actingAs string) (domainauth.Actor, error) {
	identity, err := s.authn.Authenticate(ctx, creds)
	if err != nil {
		return domainauth.Actor{}, fmt.Errorf("authenticate: %w", err)
	}
	if identity.UserID == "" {
		return domainauth.Actor{}, fmt.Errorf("%w: identity has no subject", ports.ErrUnauthenticated)
	}
	if !identity.ExpiresAt.IsZero() && s.now().After(identity.ExpiresAt) {
		return domainauth.Actor{}, fmt.Errorf("%w: %w", ports.ErrUnauthenticated, errIdentityExpired)
	}

	granted := s.roles.Map(identity.Groups)
	if len(granted) == 0 {
		return domainauth.Actor{}, apperrors.Forbidden("no marketplace role granted")
	}

	if strings.TrimSpace(actingAs) == "" {
		if len(granted) > 1 {
			return domainauth.Actor{}, apperrors.ValidationField("acting_as",
				"several roles granted; choose one with X-Acting-As")
		}
		return domainauth.Actor{ID: identity.UserID, Role: granted[0]}, nil
	}

	role, err := domainauth.ParseRole(actingAs)
	if err != nil {
		return domainauth.Actor{}, apperrors.ValidationField("acting_as", err.Error())
	}
	if !slices.Contains(granted, role) {
		return domainauth.Actor{}, apperrors.Forbidden(fmt.Sprintf("role %s not granted", role))
	}
	return domainauth.Actor{ID: identity.UserID, Role: role}, nil
}
