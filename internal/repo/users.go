package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pactline/internal/domain"
)

// InsertUser adds a user to the directory. Email must be unique.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,display_name,email,photo_url,is_admin,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.DisplayName, u.Email, nullable(u.PhotoURL), boolInt(u.IsAdmin), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var photo sql.NullString
	var isAdmin int
	err := r.DB.QueryRowContext(ctx, `SELECT id,display_name,email,photo_url,is_admin,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.DisplayName, &u.Email, &photo, &isAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.PhotoURL = photo.String
	u.IsAdmin = isAdmin != 0
	if u.Contacts, err = r.listContactIDs(ctx, id); err != nil {
		return u, err
	}
	return u, nil
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM users WHERE email=?`, email).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return r.GetUser(ctx, id)
}

// likeEscaper neutralises LIKE wildcards in user-supplied prefixes.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchUsersByEmailPrefix matches emails starting with the prefix, excluding
// the searcher. Prefix LIKE keeps the email index usable.
func (r Repo) SearchUsersByEmailPrefix(ctx context.Context, prefix, excludeID string, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM users WHERE email LIKE ? || '%' ESCAPE '\' AND id != ? ORDER BY email LIMIT ?`,
		likeEscaper.Replace(prefix), excludeID, limit)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return r.usersByID(ctx, ids)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return r.usersByID(ctx, ids)
}

func (r Repo) usersByID(ctx context.Context, ids []string) ([]domain.User, error) {
	var out []domain.User
	for _, id := range ids {
		u, err := r.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// AddContact links both directions so each user sees the other in contacts.
func (r Repo) AddContact(ctx context.Context, tx *sql.Tx, userID, contactID string) error {
	for _, pair := range [][2]string{{userID, contactID}, {contactID, userID}} {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_contacts(user_id,contact_id) VALUES (?,?)`,
			pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listContactIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT contact_id FROM user_contacts WHERE user_id=? ORDER BY contact_id`, userID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
