// Package auth keeps the signed-in session on local disk.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/bazaar/internal/model"
)

// DefaultSessionTTL applies when the token carries no exp claim.
const DefaultSessionTTL = 24 * time.Hour

// ConfigDir returns the per-user config directory ($XDG_CONFIG_HOME/bazaar).
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "bazaar")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bazaar")
}

type sessionFile struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        model.User `json:"user"`
}

// FileAuth stores the session in <dir>/session.json. "No session" is a normal
// outcome: readers return zero values and a nil error.
type FileAuth struct {
	dir string
	now func() time.Time

	mu        sync.Mutex
	listeners map[uint64]func(*model.User)
	next      uint64
}

// NewFileAuth returns a FileAuth rooted at dir; empty dir selects ConfigDir.
func NewFileAuth(dir string) *FileAuth {
	if dir == "" {
		dir = ConfigDir()
	}
	return &FileAuth{dir: dir, now: time.Now, listeners: make(map[uint64]func(*model.User))}
}

func (a *FileAuth) path() string { return filepath.Join(a.dir, "session.json") }

// SignIn stores token and user. The expiry is read from the token's exp claim
// without verifying the signature; an empty user id is taken from sub.
func (a *FileAuth) SignIn(token string, u model.User) error {
	if token == "" {
		return errors.New("validation: empty token")
	}
	sub, exp := claims(token)
	if exp.IsZero() {
		exp = a.now().Add(DefaultSessionTTL)
	}
	if u.ID == "" {
		u.ID = sub
	}
	if u.ID == "" {
		return errors.New("validation: empty user id")
	}

	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sessionFile{AccessToken: token, ExpiresAt: exp, User: u}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.path(), b, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	a.emit(&u)
	return nil
}

// CurrentUser returns the signed-in user or nil.
func (a *FileAuth) CurrentUser() (*model.User, error) {
	sf, err := a.load()
	if err != nil || sf == nil {
		return nil, err
	}
	u := sf.User
	return &u, nil
}

// Token returns the access token or "" when there is no valid session.
func (a *FileAuth) Token() (string, error) {
	sf, err := a.load()
	if err != nil || sf == nil {
		return "", err
	}
	return sf.AccessToken, nil
}

// OnAuthStateChanged registers fn for sign-in and sign-out; fn receives nil on sign-out.
func (a *FileAuth) OnAuthStateChanged(fn func(*model.User)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.next
	a.next++
	a.listeners[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Logout removes the session file.
func (a *FileAuth) Logout() error {
	if err := os.Remove(a.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	a.emit(nil)
	return nil
}

func (a *FileAuth) load() (*sessionFile, error) {
	b, err := os.ReadFile(a.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("session file: %w", err)
	}
	if sf.AccessToken == "" || a.now().After(sf.ExpiresAt) {
		return nil, nil
	}
	return &sf, nil
}

func (a *FileAuth) emit(u *model.User) {
	a.mu.Lock()
	ls := make([]func(*model.User), 0, len(a.listeners))
	for _, fn := range a.listeners {
		ls = append(ls, fn)
	}
	a.mu.Unlock()
	for _, fn := range ls {
		fn(u)
	}
}

// claims extracts sub and exp from a JWT without validating it.
func claims(token string) (sub string, exp time.Time) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return "", time.Time{}
	}
	if rc.ExpiresAt != nil {
		exp = rc.ExpiresAt.Time
	}
	return rc.Subject, exp
}
