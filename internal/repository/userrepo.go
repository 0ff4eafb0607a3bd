// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/bazaar/internal/model"
)

// UserRepository provides access to profiles and the contact list.
type UserRepository interface {
	// Upsert inserts or refreshes a profile.
	Upsert(ctx context.Context, u model.User) error
	// GetByID loads a profile by ID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// ListContacts returns the contacts of owner ordered by name.
	ListContacts(ctx context.Context, ownerID string) ([]model.User, error)
	// AddContact links contactID to owner; existing links are kept.
	AddContact(ctx context.Context, ownerID, contactID string) error
}
