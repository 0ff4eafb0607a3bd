package repository

import (
	"context"

	"github.com/and161185/bazaar/internal/model"
)

// CatalogRepository serves the marketplace, spaces and stories.
type CatalogRepository interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) error
	// ListSpaces marks the spaces userID has joined.
	ListSpaces(ctx context.Context, userID string) ([]model.Space, error)
	CreateSpace(ctx context.Context, s model.Space) error
	// SetMembership joins or leaves a space.
	SetMembership(ctx context.Context, spaceID, userID string, joined bool) error
	// ListStories marks the stories viewerID has seen, newest first.
	ListStories(ctx context.Context, viewerID string) ([]model.Story, error)
	CreateStory(ctx context.Context, s model.Story) error
	MarkStoryViewed(ctx context.Context, storyID, viewerID string) error
}
