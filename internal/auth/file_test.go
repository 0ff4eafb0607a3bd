package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/bazaar/internal/model"
)

func signed(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: sub}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func TestConfigDir_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.Equal(t, filepath.Join(dir, "bazaar"), ConfigDir())
}

func TestFileAuth_NoSessionIsNotAnError(t *testing.T) {
	a := NewFileAuth(t.TempDir())

	u, err := a.CurrentUser()
	require.NoError(t, err)
	require.Nil(t, u)

	tok, err := a.Token()
	require.NoError(t, err)
	require.Empty(t, tok)

	require.NoError(t, a.Logout())
}

func TestFileAuth_SignInLogout(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAuth(dir)

	var events []*model.User
	unsub := a.OnAuthStateChanged(func(u *model.User) { events = append(events, u) })

	tok := signed(t, "u-1", time.Now().Add(time.Hour))
	require.NoError(t, a.SignIn(tok, model.User{Name: "Ann"}))

	u, err := a.CurrentUser()
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)
	require.Equal(t, "Ann", u.Name)

	got, err := a.Token()
	require.NoError(t, err)
	require.Equal(t, tok, got)

	info, err := os.Stat(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, a.Logout())
	u, err = a.CurrentUser()
	require.NoError(t, err)
	require.Nil(t, u)

	unsub()
	require.NoError(t, a.SignIn(tok, model.User{}))
	require.Len(t, events, 2)
	require.NotNil(t, events[0])
	require.Nil(t, events[1])
}

func TestFileAuth_ExpiredSession(t *testing.T) {
	a := NewFileAuth(t.TempDir())
	require.NoError(t, a.SignIn(signed(t, "u-1", time.Now().Add(-time.Minute)), model.User{}))

	tok, err := a.Token()
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestFileAuth_OpaqueTokenUsesDefaultTTL(t *testing.T) {
	a := NewFileAuth(t.TempDir())
	base := time.Now()
	a.now = func() time.Time { return base }

	require.Error(t, a.SignIn("opaque", model.User{}))
	require.Error(t, a.SignIn("", model.User{ID: "x"}))
	require.NoError(t, a.SignIn("opaque", model.User{ID: "u-9"}))

	a.now = func() time.Time { return base.Add(DefaultSessionTTL - time.Second) }
	tok, _ := a.Token()
	require.Equal(t, "opaque", tok)

	a.now = func() time.Time { return base.Add(DefaultSessionTTL + time.Second) }
	tok, _ = a.Token()
	require.Empty(t, tok)
}

func TestFileAuth_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte("{"), 0o600))
	_, err := NewFileAuth(dir).CurrentUser()
	require.Error(t, err)
}
