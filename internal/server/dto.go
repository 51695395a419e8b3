package server

import (
	"pactline/internal/domain"
	"pactline/internal/engine"
)

type RegisterUserRequest struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

type CreateContractRequest struct {
	Title             string               `json:"title"`
	CounterpartUserID string               `json:"counterpartUserId"`
	Conditions        []ConditionRequest   `json:"conditions"`
	Counterparts      []CounterpartRequest `json:"counterparts"`
}

type ConditionRequest struct {
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo,omitempty"`
}

type CounterpartRequest struct {
	Description string `json:"description"`
	ProvidedBy  string `json:"providedBy,omitempty"`
}

func (r CreateContractRequest) toDraft() engine.Draft {
	d := engine.Draft{
		Title:             r.Title,
		CounterpartUserID: r.CounterpartUserID,
	}
	for _, c := range r.Conditions {
		d.Conditions = append(d.Conditions, engine.DraftCondition{
			Description: c.Description,
			AssignedTo:  c.AssignedTo,
		})
	}
	for _, c := range r.Counterparts {
		d.Counterparts = append(d.Counterparts, engine.DraftCounterpart{
			Description: c.Description,
			ProvidedBy:  c.ProvidedBy,
		})
	}
	return d
}

type SendInvitationRequest struct {
	Email string `json:"email"`
}

type RespondInvitationRequest struct {
	Accept bool `json:"accept"`
}

type ContractResponse struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	CreatedBy    string               `json:"createdBy"`
	Participants []string             `json:"participants"`
	Status       string               `json:"status" enum:"pending,active,completed,cancelled"`
	Conditions   []ConditionResponse  `json:"conditions"`
	Counterparts []CounterpartItemResponse `json:"counterparts"`
	CreatedAt    string               `json:"createdAt" format:"date-time"`
	UpdatedAt    string               `json:"updatedAt" format:"date-time"`
}

type ConditionResponse struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	AssignedTo  string   `json:"assignedTo"`
	Status      string   `json:"status" enum:"pending,in-progress,completed"`
	CompletedAt *string  `json:"completedAt" format:"date-time"`
	VerifiedBy  []string `json:"verifiedBy"`
}

type CounterpartItemResponse struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	ProvidedBy       string   `json:"providedBy"`
	Status           string   `json:"status" enum:"pending,in-progress,completed"`
	CompletedAt      *string  `json:"completedAt" format:"date-time"`
	VerifiedBy       []string `json:"verifiedBy"`
	LinkedConditions []string `json:"linkedConditions"`
}

func contractResponse(c domain.Contract) ContractResponse {
	resp := ContractResponse{
		ID:           c.ID,
		Title:        c.Title,
		CreatedBy:    c.CreatedBy,
		Participants: c.Participants,
		Status:       string(c.Status),
		Conditions:   []ConditionResponse{},
		Counterparts: []CounterpartItemResponse{},
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, cond := range c.Conditions {
		resp.Conditions = append(resp.Conditions, ConditionResponse{
			ID:          cond.ID,
			Description: cond.Description,
			AssignedTo:  cond.AssignedTo,
			Status:      string(cond.Status),
			CompletedAt: cond.CompletedAt,
			VerifiedBy:  cond.VerifiedBy,
		})
	}
	for _, cp := range c.Counterparts {
		resp.Counterparts = append(resp.Counterparts, CounterpartItemResponse{
			ID:               cp.ID,
			Description:      cp.Description,
			ProvidedBy:       cp.ProvidedBy,
			Status:           string(cp.Status),
			CompletedAt:      cp.CompletedAt,
			VerifiedBy:       cp.VerifiedBy,
			LinkedConditions: cp.LinkedConditions,
		})
	}
	return resp
}

func mapContracts(items []domain.Contract) []ContractResponse {
	out := []ContractResponse{}
	for _, c := range items {
		out = append(out, contractResponse(c))
	}
	return out
}

type UserResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	PhotoURL    string   `json:"photoURL,omitempty"`
	IsAdmin     bool     `json:"isAdmin"`
	Contacts    []string `json:"contacts,omitempty"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
		IsAdmin:     u.IsAdmin,
		Contacts:    u.Contacts,
		CreatedAt:   u.CreatedAt,
	}
}

func mapUsers(items []domain.User) []UserResponse {
	out := []UserResponse{}
	for _, u := range items {
		out = append(out, userResponse(u))
	}
	return out
}

type InvitationResponse struct {
	ID          string  `json:"id"`
	FromUser    string  `json:"fromUser"`
	ToUser      string  `json:"toUser,omitempty"`
	ToEmail     string  `json:"toEmail,omitempty"`
	Status      string  `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt   string  `json:"createdAt" format:"date-time"`
	RespondedAt *string `json:"respondedAt,omitempty" format:"date-time"`
}

func invitationResponse(inv domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:          inv.ID,
		FromUser:    inv.FromUser,
		ToUser:      inv.ToUser,
		ToEmail:     inv.ToEmail,
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt,
		RespondedAt: inv.RespondedAt,
	}
}

func mapInvitations(items []domain.Invitation) []InvitationResponse {
	out := []InvitationResponse{}
	for _, inv := range items {
		out = append(out, invitationResponse(inv))
	}
	return out
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ContractID string `json:"contractId,omitempty"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payload"`
}

func mapEvents(items []domain.Event) []EventResponse {
	out := []EventResponse{}
	for _, e := range items {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			ContractID: e.ContractID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return out
}
