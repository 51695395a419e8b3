package engine

import (
	"time"

	"pactline/internal/domain"
	"pactline/internal/engine/auth"
)

// Draft is a contract creation request before validation.
type Draft struct {
	Title             string
	CounterpartUserID string
	Conditions        []DraftCondition
	Counterparts      []DraftCounterpart
}

type DraftCondition struct {
	Description string
	AssignedTo  string
}

type DraftCounterpart struct {
	Description string
	ProvidedBy  string
}

// ValidateDraft checks a draft against the acting user. Rules run in order and
// the first failure wins.
func ValidateDraft(actorID string, d Draft) error {
	if d.Title == "" {
		return ValidationError{Reason: EmptyTitle}
	}
	if d.CounterpartUserID == "" || d.CounterpartUserID == actorID {
		return ValidationError{Reason: NoCounterpartSelected}
	}
	if len(d.Conditions) == 0 || len(d.Counterparts) == 0 {
		return ValidationError{Reason: MissingObligations}
	}
	for _, c := range d.Conditions {
		if c.Description == "" {
			return ValidationError{Reason: EmptyDescription}
		}
	}
	for _, c := range d.Counterparts {
		if c.Description == "" {
			return ValidationError{Reason: EmptyDescription}
		}
	}
	// Responsibility never leaves the two participants: any other uid would
	// gain completion authority over the contract.
	for _, c := range d.Conditions {
		if c.AssignedTo != "" && c.AssignedTo != actorID && c.AssignedTo != d.CounterpartUserID {
			return ValidationError{Reason: ResponsibleNotParticipant}
		}
	}
	for _, c := range d.Counterparts {
		if c.ProvidedBy != "" && c.ProvidedBy != actorID && c.ProvidedBy != d.CounterpartUserID {
			return ValidationError{Reason: ResponsibleNotParticipant}
		}
	}
	return nil
}

// buildContract materialises a validated draft. This is the only way a contract
// comes into existence: status pending, both parties bound, every item pending.
func buildContract(id, actorID string, d Draft, newID func() string, now time.Time) domain.Contract {
	ts := now.UTC().Format(time.RFC3339)
	c := domain.Contract{
		ID:           id,
		Title:        d.Title,
		CreatedBy:    actorID,
		Participants: []string{actorID, d.CounterpartUserID},
		Status:       domain.ContractPending,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	for _, dc := range d.Conditions {
		assigned := dc.AssignedTo
		if assigned == "" {
			assigned = d.CounterpartUserID
		}
		c.Conditions = append(c.Conditions, domain.Condition{
			ID:          newID(),
			Description: dc.Description,
			AssignedTo:  assigned,
			Status:      domain.ItemPending,
			VerifiedBy:  []string{},
		})
	}
	for _, dp := range d.Counterparts {
		provided := dp.ProvidedBy
		if provided == "" {
			provided = actorID
		}
		c.Counterparts = append(c.Counterparts, domain.Counterpart{
			ID:               newID(),
			Description:      dp.Description,
			ProvidedBy:       provided,
			Status:           domain.ItemPending,
			VerifiedBy:       []string{},
			LinkedConditions: []string{},
		})
	}
	return c
}

// activate moves a pending contract to active. Pure: operates on the snapshot only.
func activate(c domain.Contract, actorID string, now time.Time) (domain.Contract, error) {
	if c.Status != domain.ContractPending {
		return c, PreconditionError{Reason: ContractNotPending}
	}
	if !auth.CanActivate(c, actorID) {
		return c, auth.NotPermittedError{ActorID: actorID, Action: "activate contract " + c.ID}
	}
	c.Status = domain.ContractActive
	c.UpdatedAt = now.UTC().Format(time.RFC3339)
	return c, nil
}

// ItemKind distinguishes the two obligation lists of a contract.
type ItemKind string

const (
	KindCondition   ItemKind = "condition"
	KindCounterpart ItemKind = "counterpart"
)

// completeItem marks one condition or counterpart completed and re-derives the
// contract status from the full item set. Pure: the caller persists the result.
// The returned bool reports whether the contract was promoted to completed by
// this mutation.
func completeItem(c domain.Contract, kind ItemKind, itemID, actorID string, now time.Time) (domain.Contract, bool, error) {
	if c.Status != domain.ContractActive {
		return c, false, PreconditionError{Reason: ContractNotActive}
	}
	ts := now.UTC().Format(time.RFC3339)
	switch kind {
	case KindCondition:
		idx := -1
		for i, cond := range c.Conditions {
			if cond.ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return c, false, ErrItemNotFound
		}
		cond := c.Conditions[idx]
		if cond.Status == domain.ItemCompleted {
			return c, false, PreconditionError{Reason: ItemAlreadyCompleted}
		}
		if !auth.CanComplete(c, cond.AssignedTo, actorID) {
			return c, false, auth.NotPermittedError{ActorID: actorID, Action: "complete condition " + itemID}
		}
		cond.Status = domain.ItemCompleted
		cond.CompletedAt = &ts
		cond.VerifiedBy = appendUnique(cond.VerifiedBy, actorID)
		conditions := make([]domain.Condition, len(c.Conditions))
		copy(conditions, c.Conditions)
		conditions[idx] = cond
		c.Conditions = conditions
	case KindCounterpart:
		idx := -1
		for i, cp := range c.Counterparts {
			if cp.ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return c, false, ErrItemNotFound
		}
		cp := c.Counterparts[idx]
		if cp.Status == domain.ItemCompleted {
			return c, false, PreconditionError{Reason: ItemAlreadyCompleted}
		}
		if !auth.CanComplete(c, cp.ProvidedBy, actorID) {
			return c, false, auth.NotPermittedError{ActorID: actorID, Action: "complete counterpart " + itemID}
		}
		cp.Status = domain.ItemCompleted
		cp.CompletedAt = &ts
		cp.VerifiedBy = appendUnique(cp.VerifiedBy, actorID)
		counterparts := make([]domain.Counterpart, len(c.Counterparts))
		copy(counterparts, c.Counterparts)
		counterparts[idx] = cp
		c.Counterparts = counterparts
	default:
		return c, false, ErrItemNotFound
	}

	c.UpdatedAt = ts
	promoted := false
	if allSettled(c) {
		c.Status = domain.ContractCompleted
		promoted = true
	}
	return c, promoted, nil
}

// allSettled is the derived-status aggregation: true when every condition and
// every counterpart is completed. A pure function of the full item set, so the
// order in which items were completed never matters.
func allSettled(c domain.Contract) bool {
	for _, cond := range c.Conditions {
		if cond.Status != domain.ItemCompleted {
			return false
		}
	}
	for _, cp := range c.Counterparts {
		if cp.Status != domain.ItemCompleted {
			return false
		}
	}
	return true
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, v)
}
