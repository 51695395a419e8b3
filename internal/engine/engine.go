// Package engine implements the contract lifecycle: creation, activation,
// per-item completion and the derived contract status, plus the user directory
// and contact invitations around it.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
	"pactline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config config.Config

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

func New(db *sql.DB, cfg config.Config) Engine {
	now := time.Now
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: now},
		Config: cfg,
		Now:    now,
		NewID:  uuid.NewString,
	}
}

type RegisterUserOpts struct {
	ID          string
	DisplayName string
	Email       string
	PhotoURL    string
	IsAdmin     bool
}

// RegisterUser adds a user to the directory. The id is generated when empty.
func (e Engine) RegisterUser(ctx context.Context, opts RegisterUserOpts) (domain.User, error) {
	if opts.Email == "" {
		return domain.User{}, errors.New("email must not be empty")
	}
	if opts.DisplayName == "" {
		opts.DisplayName = opts.Email
	}
	u := domain.User{
		ID:          opts.ID,
		DisplayName: opts.DisplayName,
		Email:       opts.Email,
		PhotoURL:    opts.PhotoURL,
		IsAdmin:     opts.IsAdmin,
		CreatedAt:   e.Now().UTC().Format(time.RFC3339),
	}
	if u.ID == "" {
		u.ID = e.NewID()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeUserRegistered, "", "user", u.ID, u.ID, map[string]string{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

// SearchUsers looks up directory users by email prefix, never returning the
// searcher themselves. Prefixes shorter than the configured minimum return an
// empty result rather than an error.
func (e Engine) SearchUsers(ctx context.Context, actorID, prefix string) ([]domain.User, error) {
	if len(prefix) < e.Config.Directory.SearchMinPrefix {
		return []domain.User{}, nil
	}
	users, err := e.Repo.SearchUsersByEmailPrefix(ctx, prefix, actorID, e.Config.Directory.SearchLimit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// CreateContract validates the draft and persists the new pending contract.
func (e Engine) CreateContract(ctx context.Context, actorID string, d Draft) (domain.Contract, error) {
	if err := ValidateDraft(actorID, d); err != nil {
		return domain.Contract{}, err
	}
	if _, err := e.Repo.GetUser(ctx, d.CounterpartUserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Contract{}, fmt.Errorf("counterpart user %s: %w", d.CounterpartUserID, err)
		}
		return domain.Contract{}, err
	}
	c := buildContract(e.NewID(), actorID, d, e.NewID, e.Now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeContractCreated, c.ID, "contract", c.ID, actorID, map[string]string{"title": c.Title}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

// GetContract returns the contract if the actor is a participant or an admin.
func (e Engine) GetContract(ctx context.Context, actorID, id string) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, id)
	if err != nil {
		return domain.Contract{}, err
	}
	if !c.IsParticipant(actorID) {
		u, err := e.Repo.GetUser(ctx, actorID)
		if err != nil || !u.IsAdmin {
			return domain.Contract{}, auth.NotPermittedError{ActorID: actorID, Action: "view contract " + id}
		}
	}
	return c, nil
}

// ListContracts returns the contracts the actor participates in.
func (e Engine) ListContracts(ctx context.Context, actorID string) ([]domain.Contract, error) {
	cs, err := e.Repo.ListContractsForParticipant(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []domain.Contract{}
	}
	return cs, nil
}

// Activate moves a pending contract to active. Only the creator may do this.
func (e Engine) Activate(ctx context.Context, actorID, contractID string) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	updated, err := activate(c, actorID, e.Now())
	if err != nil {
		return domain.Contract{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.BumpContract(ctx, tx, c.ID, c.Rev, updated.Status, updated.UpdatedAt); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeContractActivated, c.ID, "contract", c.ID, actorID, nil); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	updated.Rev = c.Rev + 1
	return updated, nil
}

// CompleteCondition marks one condition completed and re-derives the contract
// status over the full item set in the same transaction.
func (e Engine) CompleteCondition(ctx context.Context, actorID, contractID, conditionID string) (domain.Contract, error) {
	return e.complete(ctx, actorID, contractID, KindCondition, conditionID)
}

// CompleteCounterpart is the counterpart analogue of CompleteCondition.
func (e Engine) CompleteCounterpart(ctx context.Context, actorID, contractID, counterpartID string) (domain.Contract, error) {
	return e.complete(ctx, actorID, contractID, KindCounterpart, counterpartID)
}

func (e Engine) complete(ctx context.Context, actorID, contractID string, kind ItemKind, itemID string) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	updated, promoted, err := completeItem(c, kind, itemID, actorID, e.Now())
	if err != nil {
		return domain.Contract{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	evtType := events.TypeConditionCompleted
	entityKind := "condition"
	if kind == KindCondition {
		cond, _ := updated.Condition(itemID)
		if err := e.Repo.CompleteConditionTx(ctx, tx, c.ID, cond); err != nil {
			return domain.Contract{}, err
		}
	} else {
		evtType = events.TypeCounterpartCompleted
		entityKind = "counterpart"
		cp, _ := updated.Counterpart(itemID)
		if err := e.Repo.CompleteCounterpartTx(ctx, tx, c.ID, cp); err != nil {
			return domain.Contract{}, err
		}
	}
	// The status write carries the rev check; a concurrent mutation since our
	// read rolls back the whole transaction, item update included.
	if err := e.Repo.BumpContract(ctx, tx, c.ID, c.Rev, updated.Status, updated.UpdatedAt); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, c.ID, entityKind, itemID, actorID, nil); err != nil {
		return domain.Contract{}, err
	}
	if promoted {
		if err := e.Events.Append(ctx, tx, events.TypeContractCompleted, c.ID, "contract", c.ID, actorID, nil); err != nil {
			return domain.Contract{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	updated.Rev = c.Rev + 1
	return updated, nil
}

// SendInvitation creates a pending contact invitation addressed by email. When
// the email is already registered the invitation is bound to that user.
func (e Engine) SendInvitation(ctx context.Context, actorID, toEmail string) (domain.Invitation, error) {
	if toEmail == "" {
		return domain.Invitation{}, errors.New("recipient email must not be empty")
	}
	inv := domain.Invitation{
		ID:        e.NewID(),
		FromUser:  actorID,
		ToEmail:   toEmail,
		Status:    domain.InvitationPending,
		CreatedAt: e.Now().UTC().Format(time.RFC3339),
	}
	if u, err := e.Repo.GetUserByEmail(ctx, toEmail); err == nil {
		if u.ID == actorID {
			return domain.Invitation{}, errors.New("cannot invite yourself")
		}
		inv.ToUser = u.ID
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Invitation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeInvitationSent, "", "invitation", inv.ID, actorID, map[string]string{"to": toEmail}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

// RespondInvitation accepts or rejects a pending invitation. Only the
// recipient may respond; accepting links the two users as mutual contacts.
func (e Engine) RespondInvitation(ctx context.Context, actorID, invitationID string, accept bool) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if !auth.CanRespond(inv, actorID) {
		return domain.Invitation{}, auth.NotPermittedError{ActorID: actorID, Action: "respond to invitation " + invitationID}
	}
	if inv.Status != domain.InvitationPending {
		return domain.Invitation{}, repo.ErrConflict
	}
	status := domain.InvitationRejected
	if accept {
		status = domain.InvitationAccepted
	}
	ts := e.Now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.RespondInvitationTx(ctx, tx, inv.ID, status, ts); err != nil {
		return domain.Invitation{}, err
	}
	if accept {
		if err := e.Repo.AddContact(ctx, tx, inv.FromUser, inv.ToUser); err != nil {
			return domain.Invitation{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeInvitationResponded, "", "invitation", inv.ID, actorID, map[string]string{"status": string(status)}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	inv.Status = status
	inv.RespondedAt = &ts
	return inv, nil
}

// ListInvitations returns invitations sent to or by the actor.
func (e Engine) ListInvitations(ctx context.Context, actorID string) ([]domain.Invitation, error) {
	invs, err := e.Repo.ListInvitationsForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []domain.Invitation{}
	}
	return invs, nil
}

// AdminListContracts returns every contract. Admin only.
func (e Engine) AdminListContracts(ctx context.Context, actorID string) ([]domain.Contract, error) {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	cs, err := e.Repo.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []domain.Contract{}
	}
	return cs, nil
}

// AdminDeleteContract removes a contract and its items. Admin only.
func (e Engine) AdminDeleteContract(ctx context.Context, actorID, contractID string) error {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteContract(ctx, tx, contractID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeContractDeleted, contractID, "contract", contractID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) requireAdmin(ctx context.Context, actorID string) error {
	u, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.AdminRequiredError{ActorID: actorID}
		}
		return err
	}
	if !u.IsAdmin {
		return auth.AdminRequiredError{ActorID: actorID}
	}
	return nil
}

// CreateAPIKey mints a raw key for the user and stores only its hash. The raw
// key is returned once and cannot be recovered later.
func (e Engine) CreateAPIKey(ctx context.Context, userID, label string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := e.NewID() + e.NewID()
	k := domain.APIKey{
		ID:        e.NewID(),
		UserID:    userID,
		Label:     label,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.Now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return domain.APIKey{}, "", err
	}
	return k, raw, nil
}

// LatestEvents exposes the audit log, newest first. The log spans every user's
// activity, so it is admin only.
func (e Engine) LatestEvents(ctx context.Context, actorID string, limit int, contractID, evtType string) ([]domain.Event, error) {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	evts, err := e.Repo.LatestEvents(ctx, limit, contractID, evtType)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}
