package postgres

import (
	"context"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// WalletRepo implements WalletRepository using PostgreSQL.
type WalletRepo struct{ db *DB }

// NewWalletRepo constructs a wallet repository.
func NewWalletRepo(db *DB) *WalletRepo { return &WalletRepo{db: db} }

// ListTransactions returns owner's ledger, newest first.
func (r *WalletRepo) ListTransactions(ctx context.Context, ownerID string) ([]model.Transaction, error) {
	const q = `SELECT id, type, amount, date, entity FROM transactions WHERE owner_id=$1 ORDER BY date DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Transaction{}
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.Date, &t.Entity); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTransaction appends one ledger entry.
func (r *WalletRepo) CreateTransaction(ctx context.Context, ownerID string, t model.Transaction) error {
	const q = `INSERT INTO transactions (id, owner_id, type, amount, date, entity) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, t.ID, ownerID, string(t.Type), t.Amount, t.Date, t.Entity)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}
