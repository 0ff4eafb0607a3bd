package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/bazaar/internal/assistant"
	"github.com/and161185/bazaar/internal/config"
	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.ConfigDir = t.TempDir()
	return cfg
}

func TestNew_OfflineDefaults(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, assistant.Disabled{}, a.AI)
	require.Nil(t, a.Chats)
	require.Nil(t, a.Wallet)
	require.Nil(t, a.Accounts)
	require.Equal(t, cfg.Timing.DisappearingTTL, a.Store.DisappearingTTL())

	err = a.Session.Login(context.Background())
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, store.ScreenLogin, a.Store.State().Screen)
}

func TestNew_ThemeSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	a.Store.Dispatch(store.SetTheme{Theme: store.ThemeDark})
	a.Close()

	b, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, store.ThemeDark, b.Store.State().Theme)
}

func TestNew_BadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Realtime.URL = "http://example.com"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Geo = config.GeoCfg{Enabled: true, Lat: 120}
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestOpenAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.ogg")
	require.NoError(t, os.WriteFile(path, []byte("opus"), 0o600))

	rc, err := openAudio(path)(context.Background())
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "opus", string(b))

	_, err = openAudio(filepath.Join(t.TempDir(), "missing"))(context.Background())
	require.Error(t, err)
}
