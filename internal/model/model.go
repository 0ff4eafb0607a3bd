// Package model defines domain entities shared by the store, services and collaborators.
package model

import "time"

// User is a profile as fetched from the backend.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status,omitempty"` // optional status text
	IsOnline bool   `json:"is_online,omitempty"`
}

// UserPatch is a shallow update of the current user; nil fields are left untouched.
type UserPatch struct {
	Name     *string
	Avatar   *string
	Status   *string
	IsOnline *bool
}

// Apply returns u with the non-nil patch fields merged in.
func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.IsOnline != nil {
		u.IsOnline = *p.IsOnline
	}
	return u
}

// ChatSession is one conversation owned by the store.
// Messages are kept in insertion order, which is also CreatedAt order.
type ChatSession struct {
	ID               string    `json:"id"`
	Participant      User      `json:"participant"` // peer, or synthetic group identity
	Messages         []Message `json:"messages"`
	LastMessage      string    `json:"last_message"` // cache of the tail preview
	LastTime         string    `json:"last_time"`
	Unread           int       `json:"unread"`
	IsGroup          bool      `json:"is_group"`
	DisappearingMode bool      `json:"disappearing_mode"`
	Wallpaper        string    `json:"wallpaper,omitempty"`
}

// MessageExpiredText replaces LastMessage once every message of a chat has expired.
const MessageExpiredText = "Messages expired"

// HasExpiring reports whether any message carries an expiry deadline.
func (c ChatSession) HasExpiring() bool {
	for i := range c.Messages {
		if c.Messages[i].ExpiresAt != nil {
			return true
		}
	}
	return false
}

// CallType is the media kind of a call.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// CallStatus is the phase of the active call. Ended calls are removed from state.
type CallStatus string

const (
	CallRinging   CallStatus = "ringing"
	CallConnected CallStatus = "connected"
	CallEnded     CallStatus = "ended"
)

// ActiveCall is the single ongoing call, if any.
type ActiveCall struct {
	ID          string     `json:"id"`
	Participant User       `json:"participant"`
	Type        CallType   `json:"type"`
	Status      CallStatus `json:"status"`
	IsMuted     bool       `json:"is_muted"`
	IsVideoOff  bool       `json:"is_video_off"`
	StartTime   *int64     `json:"start_time,omitempty"` // epoch millis, set on connect
}

// TransactionType classifies wallet ledger entries.
type TransactionType string

const (
	TxReceived TransactionType = "received"
	TxSent     TransactionType = "sent"
	TxWithdraw TransactionType = "withdraw"
	TxDeposit  TransactionType = "deposit"
)

// Transaction is an append-only wallet ledger entry.
type Transaction struct {
	ID     string          `json:"id"`
	Type   TransactionType `json:"type"`
	Amount float64         `json:"amount"`
	Date   time.Time       `json:"date"`
	Entity string          `json:"entity"` // counterparty name
}

// Product is a marketplace listing.
type Product struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Seller string  `json:"seller"`
	Rating float64 `json:"rating"`
}

// CartItem is a product with a quantity of at least one.
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

// Space is a group community. Members is a client-side approximation.
type Space struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Members     int    `json:"members"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Joined      bool   `json:"joined"`
}

// Story is an ephemeral status post.
type Story struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserAvatar string `json:"user_avatar"`
	Image      string `json:"image"`
	Timestamp  string `json:"timestamp"`
	Viewed     bool   `json:"viewed"`
	Caption    string `json:"caption,omitempty"`
}

// Severity of a toast notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Notification is a short-lived toast.
type Notification struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Settings groups user preferences by section.
type Settings struct {
	Notifications map[string]any `json:"notifications"`
	Privacy       map[string]any `json:"privacy"`
	Security      map[string]any `json:"security"`
}

// Settings sections accepted by UpdateSetting.
const (
	SectionNotifications = "notifications"
	SectionPrivacy       = "privacy"
	SectionSecurity      = "security"
)

// DefaultSettings returns the settings of a fresh session.
func DefaultSettings() Settings {
	return Settings{
		Notifications: map[string]any{"messages": true, "groups": true, "calls": true, "sound": true},
		Privacy:       map[string]any{"last_seen": "everyone", "read_receipts": true, "profile_photo": "everyone"},
		Security:      map[string]any{"two_factor": false, "biometric": false},
	}
}

// Snapshot is the bulk payload fetched once after login.
type Snapshot struct {
	Chats        []ChatSession
	Contacts     []User
	Products     []Product
	Spaces       []Space
	Transactions []Transaction
	Stories      []Story
}

// Position is a device location in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Summary is the condensed form of a chat transcript.
type Summary struct {
	Summary     string   `json:"summary"`
	Decisions   []string `json:"decisions"`
	ActionItems []string `json:"action_items"`
}
