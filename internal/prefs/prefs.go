// Package prefs persists the preferences that outlive a session.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/and161185/bazaar/internal/store"
)

type prefsFile struct {
	Theme store.Theme `json:"theme"`
}

// Store reads and writes <dir>/prefs.json.
type Store struct{ dir string }

// New returns a preference store rooted at dir.
func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) path() string { return filepath.Join(s.dir, "prefs.json") }

// Theme returns the saved theme, or ThemeLight when nothing valid is saved.
func (s *Store) Theme() (store.Theme, error) {
	b, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return store.ThemeLight, nil
	}
	if err != nil {
		return store.ThemeLight, err
	}
	var pf prefsFile
	if err := json.Unmarshal(b, &pf); err != nil {
		return store.ThemeLight, fmt.Errorf("prefs file: %w", err)
	}
	switch pf.Theme {
	case store.ThemeLight, store.ThemeDark:
		return pf.Theme, nil
	}
	return store.ThemeLight, nil
}

// SaveTheme persists t.
func (s *Store) SaveTheme(t store.Theme) error {
	if t != store.ThemeLight && t != store.ThemeDark {
		return fmt.Errorf("validation: unknown theme %q", t)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(prefsFile{Theme: t})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(), b, 0o600)
}

// Follow saves the theme whenever it changes in st. It returns the unsubscribe func.
func (s *Store) Follow(st *store.Store) (stop func()) {
	last := st.State().Theme
	return st.Subscribe(func(next store.State) {
		if next.Theme == last {
			return
		}
		last = next.Theme
		_ = s.SaveTheme(next.Theme)
	})
}
