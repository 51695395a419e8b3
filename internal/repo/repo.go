package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pactline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrConflict indicates a contract was mutated since the snapshot was read; the
// caller should re-read and recompute.
var ErrConflict = errors.New("contract modified since read")

// InsertContract persists a freshly built contract with all of its items.
func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO contracts(id,title,created_by,status,created_at,updated_at,rev) VALUES (?,?,?,?,?,?,0)`,
		c.ID, c.Title, c.CreatedBy, string(c.Status), c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	for i, uid := range c.Participants {
		if _, err := tx.ExecContext(ctx, `INSERT INTO contract_participants(contract_id,user_id,position) VALUES (?,?,?)`,
			c.ID, uid, i); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	for i, cond := range c.Conditions {
		verified, err := marshalStrings(cond.VerifiedBy)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO conditions(id,contract_id,description,assigned_to,status,completed_at,verified_by_json,position) VALUES (?,?,?,?,?,?,?,?)`,
			cond.ID, c.ID, cond.Description, cond.AssignedTo, string(cond.Status), nullableStringPtr(cond.CompletedAt), verified, i); err != nil {
			return fmt.Errorf("insert condition: %w", err)
		}
	}
	for i, cp := range c.Counterparts {
		verified, err := marshalStrings(cp.VerifiedBy)
		if err != nil {
			return err
		}
		linked, err := marshalStrings(cp.LinkedConditions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO counterparts(id,contract_id,description,provided_by,status,completed_at,verified_by_json,linked_conditions_json,position) VALUES (?,?,?,?,?,?,?,?,?)`,
			cp.ID, c.ID, cp.Description, cp.ProvidedBy, string(cp.Status), nullableStringPtr(cp.CompletedAt), verified, linked, i); err != nil {
			return fmt.Errorf("insert counterpart: %w", err)
		}
	}
	return nil
}

// GetContract assembles the full contract snapshot, items in insertion order.
func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	var c domain.Contract
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,created_by,status,created_at,updated_at,rev FROM contracts WHERE id=?`, id).
		Scan(&c.ID, &c.Title, &c.CreatedBy, &status, &c.CreatedAt, &c.UpdatedAt, &c.Rev)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Status = domain.ContractStatus(status)
	if c.Participants, err = r.contractParticipants(ctx, id); err != nil {
		return c, err
	}
	if c.Conditions, err = r.contractConditions(ctx, id); err != nil {
		return c, err
	}
	if c.Counterparts, err = r.contractCounterparts(ctx, id); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) contractParticipants(ctx context.Context, contractID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM contract_participants WHERE contract_id=? ORDER BY position`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (r Repo) contractConditions(ctx context.Context, contractID string) ([]domain.Condition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,description,assigned_to,status,completed_at,verified_by_json FROM conditions WHERE contract_id=? ORDER BY position`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Condition
	for rows.Next() {
		var cond domain.Condition
		var status, verified string
		var completedAt sql.NullString
		if err := rows.Scan(&cond.ID, &cond.Description, &cond.AssignedTo, &status, &completedAt, &verified); err != nil {
			return nil, err
		}
		cond.Status = domain.ItemStatus(status)
		if completedAt.Valid {
			cond.CompletedAt = &completedAt.String
		}
		if cond.VerifiedBy, err = unmarshalStrings(verified); err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, rows.Err()
}

func (r Repo) contractCounterparts(ctx context.Context, contractID string) ([]domain.Counterpart, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,description,provided_by,status,completed_at,verified_by_json,linked_conditions_json FROM counterparts WHERE contract_id=? ORDER BY position`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Counterpart
	for rows.Next() {
		var cp domain.Counterpart
		var status, verified, linked string
		var completedAt sql.NullString
		if err := rows.Scan(&cp.ID, &cp.Description, &cp.ProvidedBy, &status, &completedAt, &verified, &linked); err != nil {
			return nil, err
		}
		cp.Status = domain.ItemStatus(status)
		if completedAt.Valid {
			cp.CompletedAt = &completedAt.String
		}
		if cp.VerifiedBy, err = unmarshalStrings(verified); err != nil {
			return nil, err
		}
		if cp.LinkedConditions, err = unmarshalStrings(linked); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ListContractsForParticipant returns contracts the user is bound to, most
// recently updated first.
func (r Repo) ListContractsForParticipant(ctx context.Context, userID string) ([]domain.Contract, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.id FROM contracts c
JOIN contract_participants p ON p.contract_id=c.id
WHERE p.user_id=? ORDER BY c.updated_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return r.contractsByID(ctx, ids)
}

// ListContracts returns every contract in the store, admin view.
func (r Repo) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM contracts ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return r.contractsByID(ctx, ids)
}

func (r Repo) contractsByID(ctx context.Context, ids []string) ([]domain.Contract, error) {
	var out []domain.Contract
	for _, id := range ids {
		c, err := r.GetContract(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BumpContract advances the contract row (status/updated_at/rev) conditioned on
// the revision the snapshot was read at. Zero rows affected means a concurrent
// writer won; the caller re-reads and recomputes.
func (r Repo) BumpContract(ctx context.Context, tx *sql.Tx, id string, fromRev int64, status domain.ContractStatus, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET status=?, updated_at=?, rev=rev+1 WHERE id=? AND rev=?`,
		string(status), updatedAt, id, fromRev)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteConditionTx applies the targeted per-row item update. Only this
// condition's row is touched, so concurrent completions of different items do
// not clobber each other.
func (r Repo) CompleteConditionTx(ctx context.Context, tx *sql.Tx, contractID string, cond domain.Condition) error {
	verified, err := marshalStrings(cond.VerifiedBy)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE conditions SET status=?, completed_at=?, verified_by_json=? WHERE contract_id=? AND id=?`,
		string(cond.Status), nullableStringPtr(cond.CompletedAt), verified, contractID, cond.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteCounterpartTx is the counterpart analogue of CompleteConditionTx.
func (r Repo) CompleteCounterpartTx(ctx context.Context, tx *sql.Tx, contractID string, cp domain.Counterpart) error {
	verified, err := marshalStrings(cp.VerifiedBy)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE counterparts SET status=?, completed_at=?, verified_by_json=? WHERE contract_id=? AND id=?`,
		string(cp.Status), nullableStringPtr(cp.CompletedAt), verified, contractID, cp.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContract removes a contract and, by cascade, its items and participants.
func (r Repo) DeleteContract(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns recent events, newest first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, contractID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if contractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, contractID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(contract_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ContractID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalStrings(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
