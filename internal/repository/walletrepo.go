package repository

import (
	"context"

	"github.com/and161185/bazaar/internal/model"
)

// WalletRepository is the append-only transaction ledger.
type WalletRepository interface {
	// ListTransactions returns owner's ledger, newest first.
	ListTransactions(ctx context.Context, ownerID string) ([]model.Transaction, error)
	// CreateTransaction appends one entry; a duplicate id yields errs.ErrAlreadyExists.
	CreateTransaction(ctx context.Context, ownerID string, tx model.Transaction) error
}
