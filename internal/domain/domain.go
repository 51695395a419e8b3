package domain

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
)

// Valid reports whether s is a known contract status.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractPending, ContractActive, ContractCompleted, ContractCancelled:
		return true
	}
	return false
}

// Terminal reports whether no engine operation may mutate a contract in s.
func (s ContractStatus) Terminal() bool {
	switch s {
	case ContractCompleted, ContractCancelled:
		return true
	case ContractPending, ContractActive:
		return false
	}
	return false
}

// ItemStatus is the completion state of a condition or counterpart.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in-progress"
	ItemCompleted  ItemStatus = "completed"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemInProgress, ItemCompleted:
		return true
	}
	return false
}

type Contract struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	CreatedBy    string         `json:"createdBy"`
	Participants []string       `json:"participants"`
	Status       ContractStatus `json:"status" enum:"pending,active,completed,cancelled"`
	Conditions   []Condition    `json:"conditions"`
	Counterparts []Counterpart  `json:"counterparts"`
	CreatedAt    string         `json:"createdAt" format:"date-time"`
	UpdatedAt    string         `json:"updatedAt" format:"date-time"`
	// Rev counts persisted mutations; writes are conditioned on it.
	Rev int64 `json:"-"`
}

// Condition is an obligation owed to the contract by the participant in AssignedTo.
type Condition struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assignedTo"`
	Status      ItemStatus `json:"status" enum:"pending,in-progress,completed"`
	CompletedAt *string    `json:"completedAt" format:"date-time"`
	VerifiedBy  []string   `json:"verifiedBy"`
}

// Counterpart is an obligation owed by the participant in ProvidedBy.
type Counterpart struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	ProvidedBy  string     `json:"providedBy"`
	Status      ItemStatus `json:"status" enum:"pending,in-progress,completed"`
	CompletedAt *string    `json:"completedAt" format:"date-time"`
	VerifiedBy  []string   `json:"verifiedBy"`
	// LinkedConditions is carried for future linkage logic; no rule reads it.
	LinkedConditions []string `json:"linkedConditions"`
}

type User struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	PhotoURL    string   `json:"photoURL,omitempty"`
	IsAdmin     bool     `json:"isAdmin"`
	Contacts    []string `json:"contacts,omitempty"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
}

// InvitationStatus is the response state of a contact invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

type Invitation struct {
	ID          string           `json:"id"`
	FromUser    string           `json:"fromUser"`
	ToUser      string           `json:"toUser,omitempty"`
	ToEmail     string           `json:"toEmail,omitempty"`
	Status      InvitationStatus `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt   string           `json:"createdAt" format:"date-time"`
	RespondedAt *string          `json:"respondedAt,omitempty" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Label     string `json:"label,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ContractID string `json:"contract_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// IsParticipant reports whether uid is bound to the contract.
func (c Contract) IsParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Condition returns the condition with the given id, if any.
func (c Contract) Condition(id string) (Condition, bool) {
	for _, cond := range c.Conditions {
		if cond.ID == id {
			return cond, true
		}
	}
	return Condition{}, false
}

// Counterpart returns the counterpart with the given id, if any.
func (c Contract) Counterpart(id string) (Counterpart, bool) {
	for _, cp := range c.Counterparts {
		if cp.ID == id {
			return cp, true
		}
	}
	return Counterpart{}, false
}
