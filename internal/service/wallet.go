package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/repository"
)

// Wallet records ledger entries for the signed-in user.
type Wallet struct {
	repo  repository.WalletRepository
	owner func() string
	now   func() time.Time
}

// NewWallet constructs a Wallet. owner returns the current user id.
func NewWallet(repo repository.WalletRepository, owner func() string) *Wallet {
	return &Wallet{repo: repo, owner: owner, now: time.Now}
}

// Record validates tx and appends it to the remote ledger.
// Validation rules:
// - a user is signed in
// - ID not empty
// - Amount > 0
// - Type is one of received/sent/withdraw/deposit
// A zero Date is stamped with the current time.
func (w *Wallet) Record(ctx context.Context, tx model.Transaction) error {
	owner := w.owner()
	if owner == "" {
		return errs.ErrUnauthorized
	}
	if tx.ID == "" {
		return errors.New("validation: empty transaction id")
	}
	if !(tx.Amount > 0) {
		return fmt.Errorf("validation: amount must be positive, got %v", tx.Amount)
	}
	switch tx.Type {
	case model.TxReceived, model.TxSent, model.TxWithdraw, model.TxDeposit:
	default:
		return fmt.Errorf("validation: unknown transaction type %q", tx.Type)
	}
	if tx.Date.IsZero() {
		tx.Date = w.now()
	}
	return w.repo.CreateTransaction(ctx, owner, tx)
}

// History returns the signed-in user's ledger, newest first.
func (w *Wallet) History(ctx context.Context) ([]model.Transaction, error) {
	owner := w.owner()
	if owner == "" {
		return nil, errs.ErrUnauthorized
	}
	return w.repo.ListTransactions(ctx, owner)
}
