package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/bazaar/internal/errs"
)

func TestAccounts_SignIn_CreatesAndReuses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &fakeUsers{}
	sess := &fakeAuth{}
	key := []byte("secret")
	a := NewAccounts(users, sess, key, time.Hour)

	u, err := a.SignIn(ctx, "", "Ann")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if u.ID == "" || u.Name != "Ann" || !u.IsOnline {
		t.Fatalf("unexpected user: %+v", u)
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(sess.signedIn, &claims, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil || !tok.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Subject != u.ID {
		t.Fatalf("sub mismatch: %s != %s", claims.Subject, u.ID)
	}

	again, err := a.SignIn(ctx, u.ID, "")
	if err != nil || again.Name != "Ann" {
		t.Fatalf("existing user not reused: %+v %v", again, err)
	}
	renamed, _ := a.SignIn(ctx, u.ID, "Annie")
	if renamed.Name != "Annie" {
		t.Fatalf("rename ignored")
	}
}

func TestAccounts_SignIn_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if _, err := NewAccounts(&fakeUsers{}, &fakeAuth{}, nil, 0).SignIn(ctx, "x", "y"); !errors.Is(err, errs.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
	a := NewAccounts(&fakeUsers{}, &fakeAuth{}, []byte("k"), 0)
	if _, err := a.SignIn(ctx, "", "  "); err == nil {
		t.Fatalf("want validation error")
	}
	if _, err := a.SignIn(ctx, "ghost", ""); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	u, err := a.SignIn(ctx, "fixed-id", "Bob")
	if err != nil || u.ID != "fixed-id" {
		t.Fatalf("explicit id not kept: %+v %v", u, err)
	}
}
