// Package engagement holds the pure lifecycle rules for contracts, milestones and
// time entries. Functions here never touch storage: callers load the current rows
// inside a transaction, ask for the next status, and persist it.
package engagement

import (
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// Party identifies which side of a contract an actor is on.
type Party string

const (
	PartyNone     Party = ""
	PartyEmployer Party = "employer"
	PartyWorker   Party = "worker"
	// PartyOperator is an admin or system actor acting on behalf of the platform. It
	// is only admitted where a rule lists it; operators never act for a party.
	PartyOperator Party = "operator"
)

// ResolveParty maps an actor onto the contract. Role and membership must agree: an
// actor holding the worker role is only the worker if the contract names them.
func ResolveParty(c *model.Contract, actor auth.Actor) Party {
	if actor.Privileged() {
		return PartyOperator
	}
	switch {
	case actor.Role == auth.RoleEmployer && c.EmployerID == actor.ID:
		return PartyEmployer
	case actor.Role == auth.RoleWorker && c.WorkerID == actor.ID:
		return PartyWorker
	}
	return PartyNone
}

// Authorize checks the actor against the parties allowed to perform an action.
// Non-parties get NotFound so contract existence is not disclosed; parties on the
// wrong side, operators included, get Forbidden.
func Authorize(c *model.Contract, actor auth.Actor, action string, allowed ...Party) (Party, error) {
	party := ResolveParty(c, actor)
	if party == PartyNone {
		if c.HasParty(actor.ID) {
			return PartyNone, apperrors.Forbidden("role " + string(actor.Role) + " cannot " + action + " on this contract")
		}
		return PartyNone, apperrors.NotFound("contract not found")
	}
	for _, p := range allowed {
		if p == party {
			return party, nil
		}
	}
	return party, apperrors.Forbidden("the " + string(party) + " cannot " + action)
}
