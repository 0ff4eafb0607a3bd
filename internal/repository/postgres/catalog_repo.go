package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// CatalogRepo implements CatalogRepository using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ListProducts returns listings, newest first.
func (r *CatalogRepo) ListProducts(ctx context.Context) ([]model.Product, error) {
	const q = `SELECT id, title, price, image, seller, rating FROM products ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Image, &p.Seller, &p.Rating); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateProduct inserts a listing.
func (r *CatalogRepo) CreateProduct(ctx context.Context, p model.Product) error {
	const q = `INSERT INTO products (id, title, price, image, seller, rating) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.Title, p.Price, p.Image, p.Seller, p.Rating)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ListSpaces returns all spaces; Joined reflects userID's membership.
func (r *CatalogRepo) ListSpaces(ctx context.Context, userID string) ([]model.Space, error) {
	const q = `
SELECT s.id, s.name, s.members, s.image, s.description,
       EXISTS (SELECT 1 FROM space_members m WHERE m.space_id = s.id AND m.user_id = $1)
FROM spaces s
ORDER BY s.created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Space{}
	for rows.Next() {
		var s model.Space
		if err := rows.Scan(&s.ID, &s.Name, &s.Members, &s.Image, &s.Description, &s.Joined); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateSpace inserts a space.
func (r *CatalogRepo) CreateSpace(ctx context.Context, s model.Space) error {
	const q = `INSERT INTO spaces (id, name, members, image, description) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.Name, s.Members, s.Image, s.Description)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// SetMembership joins or leaves a space and keeps the member count in step.
func (r *CatalogRepo) SetMembership(ctx context.Context, spaceID, userID string, joined bool) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var (
			q     string
			delta int
		)
		if joined {
			q, delta = `INSERT INTO space_members (space_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, 1
		} else {
			q, delta = `DELETE FROM space_members WHERE space_id=$1 AND user_id=$2`, -1
		}
		tag, err := tx.Exec(ctx, q, spaceID, userID)
		if isForeignKeyViolation(err) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE spaces SET members = GREATEST(members + $2, 0) WHERE id=$1`, spaceID, delta)
		return err
	})
}

// ListStories returns stories newest first; Viewed reflects viewerID.
func (r *CatalogRepo) ListStories(ctx context.Context, viewerID string) ([]model.Story, error) {
	const q = `
SELECT s.id, s.user_id, s.user_name, s.user_avatar, s.image, s.caption, s.created_at,
       EXISTS (SELECT 1 FROM story_views v WHERE v.story_id = s.id AND v.viewer_id = $1)
FROM stories s
ORDER BY s.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Story{}
	for rows.Next() {
		var (
			s  model.Story
			at time.Time
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.UserName, &s.UserAvatar, &s.Image, &s.Caption, &at, &s.Viewed); err != nil {
			return nil, err
		}
		s.Timestamp = model.FormatTimestamp(at.UnixMilli())
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateStory inserts a story.
func (r *CatalogRepo) CreateStory(ctx context.Context, s model.Story) error {
	const q = `
INSERT INTO stories (id, user_id, user_name, user_avatar, image, caption)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.UserID, s.UserName, s.UserAvatar, s.Image, s.Caption)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// MarkStoryViewed records that viewerID has seen storyID.
func (r *CatalogRepo) MarkStoryViewed(ctx context.Context, storyID, viewerID string) error {
	const q = `INSERT INTO story_views (story_id, viewer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, storyID, viewerID)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}
