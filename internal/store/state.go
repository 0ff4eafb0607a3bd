// Package store holds the client application state and the pure reducer that evolves it.
package store

import "github.com/and161185/bazaar/internal/model"

// Theme is the UI colour scheme; it is the only preference that survives logout.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Screen is the top-level screen.
type Screen string

const (
	ScreenSplash Screen = "splash"
	ScreenLogin  Screen = "login"
	ScreenMain   Screen = "main"
)

// Tab is a section of the main screen.
type Tab string

const (
	TabChats  Tab = "chats"
	TabStatus Tab = "status"
	TabMarket Tab = "market"
	TabSpaces Tab = "spaces"
	TabWallet Tab = "wallet"
)

// State is the whole application state. A State value is never modified in
// place by the reducer; callers must treat slices and maps as read-only.
type State struct {
	IsLoading   bool
	Theme       Theme
	Screen      Screen
	CurrentUser *model.User

	ActiveTab         Tab
	SelectedChatID    string // empty when no chat is open
	SelectedProductID string // empty when no product is open

	Chats         []model.ChatSession
	Contacts      []model.User
	Products      []model.Product
	Cart          []model.CartItem
	Spaces        []model.Space
	Transactions  []model.Transaction // newest first
	Stories       []model.Story
	Notifications []model.Notification // oldest first

	ActiveCall *model.ActiveCall
	IsOnline   bool
	Settings   model.Settings
}

// Initial returns the state of a fresh process (or of a logged-out session) with the given theme.
func Initial(theme Theme) State {
	if theme == "" {
		theme = ThemeLight
	}
	return State{
		Theme:     theme,
		Screen:    ScreenLogin,
		ActiveTab: TabChats,
		IsOnline:  true,
		Settings:  model.DefaultSettings(),
	}
}

// Chat returns the session with the given id.
func (s State) Chat(id string) (model.ChatSession, bool) {
	if i := chatIndex(s.Chats, id); i >= 0 {
		return s.Chats[i], true
	}
	return model.ChatSession{}, false
}

// ChatWith returns the one-to-one session whose participant is userID.
func (s State) ChatWith(userID string) (model.ChatSession, bool) {
	for _, c := range s.Chats {
		if !c.IsGroup && c.Participant.ID == userID {
			return c, true
		}
	}
	return model.ChatSession{}, false
}

// CartTotal is the sum of price*quantity over the cart.
func (s State) CartTotal() float64 {
	var total float64
	for _, it := range s.Cart {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func chatIndex(chats []model.ChatSession, id string) int {
	for i := range chats {
		if chats[i].ID == id {
			return i
		}
	}
	return -1
}
