package auth

// Package auth contains domain-level types for the acting principal.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the marketplace role an actor holds for a call.
// Keep string form for easy persistence and logging.
type Role string

const (
	RoleEmployer Role = "employer"
	RoleWorker   Role = "worker"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background runners and gateway reconciliation.
	RoleSystem Role = "system"
	RoleGuest  Role = "guest"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployer, RoleWorker, RoleAdmin, RoleSystem, RoleGuest:
		return true
	}
	return false
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role: %q", s)
	}
	return r, nil
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable user identifier (sub claim)
	Email     string
	Groups    []string
	ExpiresAt time.Time
}

// Actor is the verified (actor_id, role) pair every ledger operation receives.
// The core trusts it and never re-derives it.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System returns the actor used by background processing.
func System(component string) Actor {
	return Actor{ID: "system:" + component, Role: RoleSystem}
}

// Is reports whether the actor holds one of roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Privileged reports whether the actor may act on any entity regardless of party membership.
func (a Actor) Privileged() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }

func (a Actor) String() string { return string(a.Role) + ":" + a.ID }
