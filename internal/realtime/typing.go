package realtime

import (
	"sort"
	"sync"
)

// TypingTracker holds the transient per-chat "is typing" indicator. It is
// never part of the store state.
type TypingTracker struct {
	mu     sync.RWMutex
	chats  map[string]map[string]struct{}
	listen []func(chatID string, typing bool)
}

// NewTypingTracker returns an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{chats: make(map[string]map[string]struct{})}
}

// Set records whether userID is typing in chatID.
func (t *TypingTracker) Set(chatID, userID string, typing bool) {
	t.mu.Lock()
	before := len(t.chats[chatID]) > 0
	if typing {
		if t.chats[chatID] == nil {
			t.chats[chatID] = make(map[string]struct{})
		}
		t.chats[chatID][userID] = struct{}{}
	} else if users, ok := t.chats[chatID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.chats, chatID)
		}
	}
	after := len(t.chats[chatID]) > 0
	ls := make([]func(string, bool), len(t.listen))
	copy(ls, t.listen)
	t.mu.Unlock()

	if before != after {
		for _, fn := range ls {
			fn(chatID, after)
		}
	}
}

// IsTyping reports whether anyone is typing in chatID.
func (t *TypingTracker) IsTyping(chatID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.chats[chatID]) > 0
}

// Typers returns the ids typing in chatID, sorted.
func (t *TypingTracker) Typers(chatID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.chats[chatID]))
	for id := range t.chats[chatID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear drops the indicator for chatID, e.g. when its window closes.
func (t *TypingTracker) Clear(chatID string) {
	t.mu.Lock()
	_, had := t.chats[chatID]
	delete(t.chats, chatID)
	ls := make([]func(string, bool), len(t.listen))
	copy(ls, t.listen)
	t.mu.Unlock()
	if had {
		for _, fn := range ls {
			fn(chatID, false)
		}
	}
}

// OnChange registers fn for indicator flips of any chat.
func (t *TypingTracker) OnChange(fn func(chatID string, typing bool)) {
	t.mu.Lock()
	t.listen = append(t.listen, fn)
	t.mu.Unlock()
}

// Attach feeds remote typing events from b into the tracker.
func (t *TypingTracker) Attach(b *Bridge) (detach func()) {
	return b.OnTyping(func(ts TypingStatus) {
		t.Set(ts.ChatID, ts.UserID, ts.IsTyping)
	})
}
