package engine

import (
	"errors"
	"fmt"
)

// ErrItemNotFound indicates the referenced condition or counterpart id does not
// exist within the contract.
var ErrItemNotFound = errors.New("item not found")

// ValidationReason identifies why a draft contract was rejected.
type ValidationReason string

const (
	EmptyTitle                ValidationReason = "empty_title"
	NoCounterpartSelected     ValidationReason = "no_counterpart_selected"
	MissingObligations        ValidationReason = "missing_obligations"
	EmptyDescription          ValidationReason = "empty_description"
	ResponsibleNotParticipant ValidationReason = "responsible_not_participant"
)

// ValidationError rejects a draft at creation time. Nothing is persisted.
type ValidationError struct {
	Reason ValidationReason
}

func (e ValidationError) Error() string {
	switch e.Reason {
	case EmptyTitle:
		return "contract title must not be empty"
	case NoCounterpartSelected:
		return "a counterpart user distinct from the creator is required"
	case MissingObligations:
		return "at least one condition and one counterpart are required"
	case EmptyDescription:
		return "every condition and counterpart needs a description"
	case ResponsibleNotParticipant:
		return "items can only be assigned to the two contract participants"
	}
	return fmt.Sprintf("invalid draft: %s", string(e.Reason))
}

// PreconditionReason identifies why a mutation was rejected before any effect.
type PreconditionReason string

const (
	ContractNotActive    PreconditionReason = "contract_not_active"
	ContractNotPending   PreconditionReason = "contract_not_pending"
	ItemAlreadyCompleted PreconditionReason = "item_already_completed"
	ActorNotCreator      PreconditionReason = "actor_not_creator"
)

// PreconditionError rejects a mutation whose target is in the wrong state.
type PreconditionError struct {
	Reason PreconditionReason
}

func (e PreconditionError) Error() string {
	switch e.Reason {
	case ContractNotActive:
		return "contract is not active"
	case ContractNotPending:
		return "contract is not pending"
	case ItemAlreadyCompleted:
		return "item is already completed"
	case ActorNotCreator:
		return "only the contract creator may do this"
	}
	return fmt.Sprintf("precondition failed: %s", string(e.Reason))
}
