package auth

import (
	"fmt"

	"pactline/internal/domain"
)

// NotPermittedError indicates the actor may not apply the requested mutation.
type NotPermittedError struct {
	ActorID string
	Action  string
}

func (e NotPermittedError) Error() string {
	return fmt.Sprintf("actor %s not permitted to %s", e.ActorID, e.Action)
}

// AdminRequiredError indicates an administrative operation by a non-admin.
type AdminRequiredError struct {
	ActorID string
}

func (e AdminRequiredError) Error() string {
	return fmt.Sprintf("actor %s is not an administrator", e.ActorID)
}

// CanActivate reports whether actor may move the contract from pending to active.
// Only the creator activates.
func CanActivate(c domain.Contract, actorID string) bool {
	return actorID != "" && actorID == c.CreatedBy
}

// CanComplete reports whether actor may mark an item completed. The item's
// responsible party and the contract creator both may.
func CanComplete(c domain.Contract, responsibleID, actorID string) bool {
	if actorID == "" {
		return false
	}
	return actorID == responsibleID || actorID == c.CreatedBy
}

// CanRespond reports whether actor may accept or reject the invitation.
func CanRespond(inv domain.Invitation, actorID string) bool {
	return actorID != "" && actorID == inv.ToUser
}
