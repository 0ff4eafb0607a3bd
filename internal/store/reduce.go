package store

import (
	"time"

	"github.com/and161185/bazaar/internal/model"
)

// Env supplies the only impure inputs the reducer may use.
type Env struct {
	Now             func() time.Time
	NewID           func() string
	DisappearingTTL time.Duration
	// Miss is called when an action references something absent from state.
	// State is left unchanged for that slice.
	Miss func(a Action, ref string)
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e Env) newID() string {
	if e.NewID == nil {
		return newID()
	}
	return e.NewID()
}

func (e Env) miss(a Action, ref string) {
	if e.Miss != nil {
		e.Miss(a, ref)
	}
}

// Reduce maps (state, action) to the next state. It never panics and never
// modifies s: every changed slice or map is rebuilt.
func Reduce(s State, a Action, env Env) State {
	switch a := a.(type) {

	// ---- session lifecycle ----
	case SetLoading:
		s.IsLoading = a.Loading
	case SetTheme:
		s.Theme = a.Theme
	case SetScreen:
		s.Screen = a.Screen
	case LoginSuccess:
		u := a.User
		s.CurrentUser = &u
		s.Screen = ScreenMain
	case UpdateUser:
		if s.CurrentUser == nil {
			env.miss(a, "current_user")
			return s
		}
		u := a.Patch.Apply(*s.CurrentUser)
		s.CurrentUser = &u
	case Logout:
		return Initial(s.Theme)

	// ---- navigation ----
	case SetTab:
		s.ActiveTab = a.Tab
	case SelectChat:
		if a.ChatID == "" {
			s.SelectedChatID = ""
			return s
		}
		i := chatIndex(s.Chats, a.ChatID)
		if i < 0 {
			env.miss(a, "chat:"+a.ChatID)
			return s
		}
		s.SelectedChatID = a.ChatID
		if s.Chats[i].Unread > 0 {
			c := s.Chats[i]
			c.Unread = 0
			s.Chats = replaceChat(s.Chats, i, c)
		}
	case SelectProduct:
		s.SelectedProductID = a.ProductID

	// ---- bulk hydrate ----
	case SetData:
		s.Chats = a.Data.Chats
		s.Contacts = a.Data.Contacts
		s.Products = a.Data.Products
		s.Spaces = a.Data.Spaces
		s.Transactions = a.Data.Transactions
		s.Stories = a.Data.Stories

	// ---- notifications ----
	case AddNotification:
		id := a.ID
		if id == "" {
			id = env.newID()
		}
		s.Notifications = appendOne(s.Notifications, model.Notification{ID: id, Severity: a.Severity, Message: a.Message})
	case RemoveNotification:
		out, ok := removeWhere(s.Notifications, func(n model.Notification) bool { return n.ID == a.ID })
		if !ok {
			env.miss(a, "notification:"+a.ID)
			return s
		}
		s.Notifications = out

	// ---- cart ----
	case AddToCart:
		s.Cart = addToCart(s.Cart, a.Product)
	case RemoveFromCart:
		out, ok := removeWhere(s.Cart, func(it model.CartItem) bool { return it.ID == a.ProductID })
		if !ok {
			env.miss(a, "product:"+a.ProductID)
			return s
		}
		s.Cart = out
	case ClearCart:
		s.Cart = nil

	// ---- messaging ----
	case SendMessage:
		return sendMessage(s, a, env)
	case ReceiveMessage:
		return receiveMessage(s, a, env)

	// ---- chat creation ----
	case CreateGroup:
		return upsertChat(s, a.Chat, a, env)
	case AddChat:
		return upsertChat(s, a.Chat, a, env)
	case DeleteChat:
		out, ok := removeWhere(s.Chats, func(c model.ChatSession) bool { return c.ID == a.ChatID })
		if !ok {
			env.miss(a, "chat:"+a.ChatID)
			return s
		}
		s.Chats = out
		if s.SelectedChatID == a.ChatID {
			s.SelectedChatID = ""
		}

	// ---- wallet / catalog ----
	case AddTransaction:
		s.Transactions = prependOne(s.Transactions, a.Transaction)
	case AddProduct:
		s.Products = prependOne(s.Products, a.Product)
	case AddStory:
		s.Stories = prependOne(s.Stories, a.Story)
	case MarkStoryViewed:
		out, ok := updateWhere(s.Stories, func(st model.Story) bool { return st.ID == a.StoryID },
			func(st model.Story) model.Story { st.Viewed = true; return st })
		if !ok {
			env.miss(a, "story:"+a.StoryID)
			return s
		}
		s.Stories = out
	case AddSpace:
		s.Spaces = appendOne(s.Spaces, a.Space)
	case JoinSpace:
		out, ok := updateWhere(s.Spaces, func(sp model.Space) bool { return sp.ID == a.SpaceID }, toggleJoin)
		if !ok {
			env.miss(a, "space:"+a.SpaceID)
			return s
		}
		s.Spaces = out

	// ---- message mutation ----
	case ToggleStarMessage:
		return updateMessage(s, a.ChatID, a.MessageID, a, env, func(m model.Message) model.Message {
			m.IsStarred = !m.IsStarred
			return m
		})
	case AddReaction:
		if a.Emoji == "" {
			env.miss(a, "emoji")
			return s
		}
		return updateMessage(s, a.ChatID, a.MessageID, a, env, func(m model.Message) model.Message {
			m.Reactions = addReaction(m.Reactions, a.Emoji, a.UserID)
			return m
		})
	case DeleteExpiredMessages:
		return deleteExpired(s, a, env)
	case ToggleDisappearingMode:
		return updateChat(s, a.ChatID, a, env, func(c model.ChatSession) model.ChatSession {
			c.DisappearingMode = !c.DisappearingMode
			return c
		})
	case SetWallpaper:
		return updateChat(s, a.ChatID, a, env, func(c model.ChatSession) model.ChatSession {
			c.Wallpaper = a.Wallpaper
			return c
		})

	// ---- call lifecycle ----
	case StartCall:
		id := a.ID
		if id == "" {
			id = env.newID()
		}
		typ := a.Type
		if typ == "" {
			typ = model.CallAudio
		}
		s.ActiveCall = &model.ActiveCall{ID: id, Participant: a.Participant, Type: typ, Status: model.CallRinging}
	case EndCall:
		if s.ActiveCall == nil {
			env.miss(a, "active_call")
			return s
		}
		s.ActiveCall = nil
	case SetCallStatus:
		if s.ActiveCall == nil {
			env.miss(a, "active_call")
			return s
		}
		if a.Status == model.CallEnded {
			s.ActiveCall = nil
			return s
		}
		c := *s.ActiveCall
		c.Status = a.Status
		if a.Status == model.CallConnected && c.StartTime == nil {
			started := env.now().UnixMilli()
			c.StartTime = &started
		}
		s.ActiveCall = &c
	case ToggleCallMute:
		if s.ActiveCall == nil {
			env.miss(a, "active_call")
			return s
		}
		c := *s.ActiveCall
		c.IsMuted = !c.IsMuted
		s.ActiveCall = &c
	case ToggleCallVideo:
		if s.ActiveCall == nil {
			env.miss(a, "active_call")
			return s
		}
		c := *s.ActiveCall
		c.IsVideoOff = !c.IsVideoOff
		s.ActiveCall = &c

	// ---- connectivity / settings ----
	case SetOnlineStatus:
		s.IsOnline = a.Online
	case UpdateSetting:
		next, ok := updateSetting(s.Settings, a.Section, a.Key, a.Value)
		if !ok {
			env.miss(a, "settings:"+a.Section)
			return s
		}
		s.Settings = next

	default:
		env.miss(a, "unknown_action")
	}
	return s
}

func sendMessage(s State, a SendMessage, env Env) State {
	if s.CurrentUser == nil {
		env.miss(a, "current_user")
		return s
	}
	i := chatIndex(s.Chats, a.ChatID)
	if i < 0 {
		env.miss(a, "chat:"+a.ChatID)
		return s
	}
	chat := s.Chats[i]
	now := env.now().UnixMilli()

	m := model.Message{
		ID:        a.ID,
		SenderID:  s.CurrentUser.ID,
		Text:      a.Text,
		Type:      a.Type,
		Metadata:  a.Metadata,
		CreatedAt: now,
		Timestamp: model.FormatTimestamp(now),
		ReplyTo:   a.ReplyTo,
	}
	if m.ID == "" {
		m.ID = env.newID()
	}
	if m.Type == "" {
		m.Type = model.MessageText
	}
	switch {
	case a.ExpiresAt != nil:
		exp := *a.ExpiresAt
		m.ExpiresAt = &exp
	case chat.DisappearingMode:
		exp := now + env.DisappearingTTL.Milliseconds()
		m.ExpiresAt = &exp
	}

	s.Chats = replaceChat(s.Chats, i, appendMessage(chat, m))
	return s
}

func receiveMessage(s State, a ReceiveMessage, env Env) State {
	i := chatIndex(s.Chats, a.ChatID)
	if i < 0 {
		env.miss(a, "chat:"+a.ChatID)
		return s
	}
	chat := s.Chats[i]
	m := a.Message
	if m.ID == "" {
		m.ID = env.newID()
	} else if messageIndex(chat.Messages, m.ID) >= 0 {
		// already applied (e.g. the same row delivered twice)
		return s
	}
	// an expired message stays gone, including on redelivery after a sweep
	if m.Expired(env.now().UnixMilli()) {
		return s
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = env.now().UnixMilli()
	}
	if m.Timestamp == "" {
		m.Timestamp = model.FormatTimestamp(m.CreatedAt)
	}
	if m.Type == "" {
		m.Type = model.MessageText
	}

	chat = appendMessage(chat, m)
	own := s.CurrentUser != nil && m.SenderID == s.CurrentUser.ID
	if s.SelectedChatID != chat.ID && !own {
		chat.Unread++
	}
	s.Chats = replaceChat(s.Chats, i, chat)
	return s
}

func upsertChat(s State, c model.ChatSession, a Action, env Env) State {
	if c.ID == "" {
		c.ID = env.newID()
	}
	if chatIndex(s.Chats, c.ID) < 0 {
		s.Chats = prependOne(s.Chats, c)
	}
	s.SelectedChatID = c.ID
	return s
}

func deleteExpired(s State, a DeleteExpiredMessages, env Env) State {
	i := chatIndex(s.Chats, a.ChatID)
	if i < 0 {
		env.miss(a, "chat:"+a.ChatID)
		return s
	}
	now := env.now().UnixMilli()
	chat := s.Chats[i]
	kept, removed := removeWhere(chat.Messages, func(m model.Message) bool { return m.Expired(now) })
	if !removed {
		return s
	}
	chat.Messages = kept
	if len(kept) == 0 {
		chat.LastMessage = model.MessageExpiredText
	} else {
		tail := kept[len(kept)-1]
		chat.LastMessage = tail.Preview()
		chat.LastTime = tail.Timestamp
	}
	s.Chats = replaceChat(s.Chats, i, chat)
	return s
}

func updateChat(s State, chatID string, a Action, env Env, fn func(model.ChatSession) model.ChatSession) State {
	i := chatIndex(s.Chats, chatID)
	if i < 0 {
		env.miss(a, "chat:"+chatID)
		return s
	}
	s.Chats = replaceChat(s.Chats, i, fn(s.Chats[i]))
	return s
}

func updateMessage(s State, chatID, msgID string, a Action, env Env, fn func(model.Message) model.Message) State {
	i := chatIndex(s.Chats, chatID)
	if i < 0 {
		env.miss(a, "chat:"+chatID)
		return s
	}
	chat := s.Chats[i]
	j := messageIndex(chat.Messages, msgID)
	if j < 0 {
		env.miss(a, "message:"+msgID)
		return s
	}
	msgs := make([]model.Message, len(chat.Messages))
	copy(msgs, chat.Messages)
	msgs[j] = fn(msgs[j])
	chat.Messages = msgs
	s.Chats = replaceChat(s.Chats, i, chat)
	return s
}

// appendMessage appends m and refreshes the lastMessage/lastTime cache.
func appendMessage(c model.ChatSession, m model.Message) model.ChatSession {
	c.Messages = appendOne(c.Messages, m)
	c.LastMessage = m.Preview()
	c.LastTime = m.Timestamp
	return c
}

func messageIndex(msgs []model.Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func replaceChat(chats []model.ChatSession, i int, c model.ChatSession) []model.ChatSession {
	out := make([]model.ChatSession, len(chats))
	copy(out, chats)
	out[i] = c
	return out
}

func addToCart(cart []model.CartItem, p model.Product) []model.CartItem {
	out, ok := updateWhere(cart, func(it model.CartItem) bool { return it.ID == p.ID },
		func(it model.CartItem) model.CartItem { it.Quantity++; return it })
	if ok {
		return out
	}
	return appendOne(cart, model.CartItem{Product: p, Quantity: 1})
}

func toggleJoin(sp model.Space) model.Space {
	if sp.Joined {
		sp.Joined = false
		if sp.Members > 0 {
			sp.Members--
		}
		return sp
	}
	sp.Joined = true
	sp.Members++
	return sp
}

func addReaction(rs []model.Reaction, emoji, userID string) []model.Reaction {
	out, ok := updateWhere(rs, func(r model.Reaction) bool { return r.Emoji == emoji }, func(r model.Reaction) model.Reaction {
		r.Count++
		if userID != "" && !contains(r.Users, userID) {
			r.Users = appendOne(r.Users, userID)
		}
		return r
	})
	if ok {
		return out
	}
	r := model.Reaction{Emoji: emoji, Count: 1}
	if userID != "" {
		r.Users = []string{userID}
	}
	return appendOne(rs, r)
}

func updateSetting(st model.Settings, section, key string, value any) (model.Settings, bool) {
	set := func(m map[string]any) map[string]any {
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		out[key] = value
		return out
	}
	switch section {
	case model.SectionNotifications:
		st.Notifications = set(st.Notifications)
	case model.SectionPrivacy:
		st.Privacy = set(st.Privacy)
	case model.SectionSecurity:
		st.Security = set(st.Security)
	default:
		return st, false
	}
	return st, true
}

// ---- copy-on-write slice helpers ----

func appendOne[T any](xs []T, x T) []T {
	return append(xs[:len(xs):len(xs)], x)
}

func prependOne[T any](xs []T, x T) []T {
	out := make([]T, 0, len(xs)+1)
	out = append(out, x)
	return append(out, xs...)
}

func removeWhere[T any](xs []T, match func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(xs))
	removed := false
	for _, x := range xs {
		if match(x) {
			removed = true
			continue
		}
		out = append(out, x)
	}
	if !removed {
		return xs, false
	}
	return out, true
}

func updateWhere[T any](xs []T, match func(T) bool, fn func(T) T) ([]T, bool) {
	for i := range xs {
		if match(xs[i]) {
			out := make([]T, len(xs))
			copy(out, xs)
			out[i] = fn(out[i])
			return out, true
		}
	}
	return xs, false
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
