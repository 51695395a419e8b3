package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invitations(id,from_user,to_user,to_email,status,created_at) VALUES (?,?,?,?,?,?)`,
		inv.ID, inv.FromUser, nullable(inv.ToUser), inv.ToEmail, string(inv.Status), inv.CreatedAt)
	return err
}

func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	var inv domain.Invitation
	var status string
	var toUser, respondedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,from_user,to_user,COALESCE(to_email,''),status,created_at,responded_at FROM invitations WHERE id=?`, id).
		Scan(&inv.ID, &inv.FromUser, &toUser, &inv.ToEmail, &status, &inv.CreatedAt, &respondedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	inv.ToUser = toUser.String
	inv.Status = domain.InvitationStatus(status)
	if respondedAt.Valid {
		inv.RespondedAt = &respondedAt.String
	}
	return inv, nil
}

// ListInvitationsForUser returns invitations sent to or by the user, newest
// first.
func (r Repo) ListInvitationsForUser(ctx context.Context, userID string) ([]domain.Invitation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM invitations WHERE from_user=? OR to_user=? ORDER BY created_at DESC, id DESC`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	var out []domain.Invitation
	for _, id := range ids {
		inv, err := r.GetInvitation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// RespondInvitationTx records the response. Only a pending invitation can be
// responded to; zero rows means it was already settled.
func (r Repo) RespondInvitationTx(ctx context.Context, tx *sql.Tx, id string, status domain.InvitationStatus, respondedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET status=?, responded_at=? WHERE id=? AND status=?`,
		string(status), respondedAt, id, string(domain.InvitationPending))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
