package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Upsert inserts a profile or refreshes its mutable fields.
func (r *UserRepo) Upsert(ctx context.Context, u model.User) error {
	const q = `
INSERT INTO users (id, name, avatar, status, is_online)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name=$2, avatar=$3, status=$4, is_online=$5`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Name, u.Avatar, u.Status, u.IsOnline)
	return err
}

// GetByID selects a profile by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT id, name, avatar, status, is_online FROM users WHERE id=$1`
	var u model.User
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Name, &u.Avatar, &u.Status, &u.IsOnline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListContacts returns owner's contacts ordered by name.
func (r *UserRepo) ListContacts(ctx context.Context, ownerID string) ([]model.User, error) {
	const q = `
SELECT u.id, u.name, u.avatar, u.status, u.is_online
FROM contacts c JOIN users u ON u.id = c.contact_id
WHERE c.owner_id=$1
ORDER BY u.name ASC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Avatar, &u.Status, &u.IsOnline); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// AddContact links contactID to owner.
func (r *UserRepo) AddContact(ctx context.Context, ownerID, contactID string) error {
	const q = `INSERT INTO contacts (owner_id, contact_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, ownerID, contactID)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}
