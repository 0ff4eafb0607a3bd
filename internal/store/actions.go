package store

import "github.com/and161185/bazaar/internal/model"

// Action is a discrete state transition request consumed by Reduce.
type Action interface {
	// Kind is a stable action name used in logs.
	Kind() string
}

// Session lifecycle.
type (
	SetLoading   struct{ Loading bool }
	SetTheme     struct{ Theme Theme }
	SetScreen    struct{ Screen Screen }
	LoginSuccess struct{ User model.User }
	UpdateUser   struct{ Patch model.UserPatch }
	Logout       struct{}
)

// Navigation. Empty ids clear the selection.
type (
	SetTab        struct{ Tab Tab }
	SelectChat    struct{ ChatID string }
	SelectProduct struct{ ProductID string }
)

// SetData replaces every hydrated list in one transition.
type SetData struct{ Data model.Snapshot }

// Notifications. An empty ID on AddNotification is generated by the reducer.
type (
	AddNotification struct {
		ID       string
		Severity model.Severity
		Message  string
	}
	RemoveNotification struct{ ID string }
)

// Cart.
type (
	AddToCart      struct{ Product model.Product }
	RemoveFromCart struct{ ProductID string }
	ClearCart      struct{}
)

// SendMessage appends a message authored by the current user.
// ID is optional (generated when empty). ExpiresAt is optional; when nil and
// the chat is in disappearing mode the reducer stamps CreatedAt+TTL.
type SendMessage struct {
	ChatID    string
	ID        string
	Text      string
	Type      model.MessageType
	Metadata  *model.Metadata
	ReplyTo   *model.ReplySnapshot
	ExpiresAt *int64
}

// ReceiveMessage appends a fully formed message from a peer, bot or the realtime bridge.
type ReceiveMessage struct {
	ChatID  string
	Message model.Message
}

// Chat creation and removal. CreateGroup and AddChat are idempotent by id.
type (
	CreateGroup struct{ Chat model.ChatSession }
	AddChat     struct{ Chat model.ChatSession }
	DeleteChat  struct{ ChatID string }
)

// Wallet and catalog.
type (
	AddTransaction  struct{ Transaction model.Transaction }
	AddProduct      struct{ Product model.Product }
	AddStory        struct{ Story model.Story }
	MarkStoryViewed struct{ StoryID string }
	AddSpace        struct{ Space model.Space }
	JoinSpace       struct{ SpaceID string }
)

// Message mutation.
type (
	ToggleStarMessage struct{ ChatID, MessageID string }
	AddReaction       struct {
		ChatID    string
		MessageID string
		Emoji     string
		UserID    string
	}
	DeleteExpiredMessages  struct{ ChatID string }
	ToggleDisappearingMode struct{ ChatID string }
	SetWallpaper           struct{ ChatID, Wallpaper string }
)

// Call lifecycle. All but StartCall are no-ops without an active call.
type (
	StartCall struct {
		ID          string
		Participant model.User
		Type        model.CallType
	}
	EndCall         struct{}
	SetCallStatus   struct{ Status model.CallStatus }
	ToggleCallMute  struct{}
	ToggleCallVideo struct{}
)

// Connectivity and settings.
type (
	SetOnlineStatus struct{ Online bool }
	UpdateSetting   struct {
		Section string
		Key     string
		Value   any
	}
)

func (SetLoading) Kind() string             { return "set_loading" }
func (SetTheme) Kind() string               { return "set_theme" }
func (SetScreen) Kind() string              { return "set_screen" }
func (LoginSuccess) Kind() string           { return "login_success" }
func (UpdateUser) Kind() string             { return "update_user" }
func (Logout) Kind() string                 { return "logout" }
func (SetTab) Kind() string                 { return "set_tab" }
func (SelectChat) Kind() string             { return "select_chat" }
func (SelectProduct) Kind() string          { return "select_product" }
func (SetData) Kind() string                { return "set_data" }
func (AddNotification) Kind() string        { return "add_notification" }
func (RemoveNotification) Kind() string     { return "remove_notification" }
func (AddToCart) Kind() string              { return "add_to_cart" }
func (RemoveFromCart) Kind() string         { return "remove_from_cart" }
func (ClearCart) Kind() string              { return "clear_cart" }
func (SendMessage) Kind() string            { return "send_message" }
func (ReceiveMessage) Kind() string         { return "receive_message" }
func (CreateGroup) Kind() string            { return "create_group" }
func (AddChat) Kind() string                { return "add_chat" }
func (DeleteChat) Kind() string             { return "delete_chat" }
func (AddTransaction) Kind() string         { return "add_transaction" }
func (AddProduct) Kind() string             { return "add_product" }
func (AddStory) Kind() string               { return "add_story" }
func (MarkStoryViewed) Kind() string        { return "mark_story_viewed" }
func (AddSpace) Kind() string               { return "add_space" }
func (JoinSpace) Kind() string              { return "join_space" }
func (ToggleStarMessage) Kind() string      { return "toggle_star_message" }
func (AddReaction) Kind() string            { return "add_reaction" }
func (DeleteExpiredMessages) Kind() string  { return "delete_expired_messages" }
func (ToggleDisappearingMode) Kind() string { return "toggle_disappearing_mode" }
func (SetWallpaper) Kind() string           { return "set_wallpaper" }
func (StartCall) Kind() string              { return "start_call" }
func (EndCall) Kind() string                { return "end_call" }
func (SetCallStatus) Kind() string          { return "set_call_status" }
func (ToggleCallMute) Kind() string         { return "toggle_call_mute" }
func (ToggleCallVideo) Kind() string        { return "toggle_call_video" }
func (SetOnlineStatus) Kind() string        { return "set_online_status" }
func (UpdateSetting) Kind() string          { return "update_setting" }
