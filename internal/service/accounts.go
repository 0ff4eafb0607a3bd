package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/repository"
)

// SessionWriter persists a signed-in session locally.
type SessionWriter interface {
	SignIn(token string, u model.User) error
}

// Accounts is a development identity provider: it registers profiles in the
// user repository and issues HS256 access tokens for them.
type Accounts struct {
	users     repository.UserRepository
	sess      SessionWriter
	signKey   []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewAccounts constructs Accounts with required dependencies.
func NewAccounts(users repository.UserRepository, sess SessionWriter, signKey []byte, accessTTL time.Duration) *Accounts {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &Accounts{users: users, sess: sess, signKey: signKey, accessTTL: accessTTL, now: time.Now}
}

// SignIn loads the profile with id, creating it with name when it does not
// exist (an empty id generates one), then stores a fresh token locally.
func (a *Accounts) SignIn(ctx context.Context, id, name string) (model.User, error) {
	if len(a.signKey) == 0 {
		return model.User{}, errs.ErrNotConfigured
	}
	name = strings.TrimSpace(name)
	if id == "" && name == "" {
		return model.User{}, errors.New("validation: id or name required")
	}

	var u model.User
	existing, err := a.lookup(ctx, id)
	switch {
	case err != nil:
		return model.User{}, err
	case existing != nil:
		u = *existing
		if name != "" {
			u.Name = name
		}
	default:
		if name == "" {
			return model.User{}, errs.ErrNotFound
		}
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		u = model.User{ID: id, Name: name}
	}
	u.IsOnline = true
	if err := a.users.Upsert(ctx, u); err != nil {
		return model.User{}, err
	}

	tok, err := a.issueAccessToken(u.ID)
	if err != nil {
		return model.User{}, err
	}
	if err := a.sess.SignIn(tok, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (a *Accounts) lookup(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := a.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (a *Accounts) issueAccessToken(userID string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signKey)
}
