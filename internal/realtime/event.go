// Package realtime bridges server-pushed events into store actions.
package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/and161185/bazaar/internal/model"
)

// Event kinds carried by an Envelope.
const (
	EventNewMessage = "new_message"
	EventTyping     = "typing_status"
)

// Envelope is the wire frame of every realtime event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageRow is the payload of a new_message event: one inserted message row.
type MessageRow struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	SenderID  string          `json:"sender_id"`
	Text      string          `json:"text"`
	Type      string          `json:"type"`
	CreatedAt Timestamp       `json:"created_at"`
	Metadata  *model.Metadata `json:"metadata,omitempty"`
	ExpiresAt *int64          `json:"expires_at,omitempty"`
}

// Message maps the row to a domain message. A missing created_at becomes now.
func (r MessageRow) Message(now time.Time) model.Message {
	typ := model.MessageType(r.Type)
	if !typ.Valid() {
		typ = model.MessageText
	}
	created := int64(r.CreatedAt)
	if created == 0 {
		created = now.UnixMilli()
	}
	return model.Message{
		ID:        r.ID,
		SenderID:  r.SenderID,
		Text:      r.Text,
		Type:      typ,
		Metadata:  r.Metadata,
		CreatedAt: created,
		Timestamp: model.FormatTimestamp(created),
		ExpiresAt: r.ExpiresAt,
	}
}

// TypingStatus is the payload of a typing_status event.
type TypingStatus struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Timestamp is epoch millis that also accepts an RFC 3339 string on decode.
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*t = 0
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = Timestamp(ms)
			return nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
		*t = Timestamp(ts.UnixMilli())
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	*t = Timestamp(ms)
	return nil
}

func encode(kind string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Payload: raw}, nil
}
