package model

import "time"

// MessageType is the payload kind of a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageLocation MessageType = "location"
	MessagePayment  MessageType = "payment"
	MessageProduct  MessageType = "product"
	MessageSystem   MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageDocument,
		MessageLocation, MessagePayment, MessageProduct, MessageSystem:
		return true
	}
	return false
}

// Metadata is the type-specific payload of a message. Only the fields
// relevant to the message type are set.
type Metadata struct {
	URL          string  `json:"url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	FileName     string  `json:"file_name,omitempty"`
	FileSize     int64   `json:"file_size,omitempty"`
	Duration     float64 `json:"duration,omitempty"` // seconds
	Lat          float64 `json:"lat,omitempty"`
	Lng          float64 `json:"lng,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	Status       string  `json:"status,omitempty"`
	ProductID    string  `json:"product_id,omitempty"`
}

// ReplySnapshot is a denormalized copy of a quoted message; it survives deletion of the original.
type ReplySnapshot struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// Reaction aggregates one emoji on a message.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Message is a single chat entry.
type Message struct {
	ID        string         `json:"id"`
	SenderID  string         `json:"sender_id"`
	Text      string         `json:"text"`
	Type      MessageType    `json:"type"`
	Metadata  *Metadata      `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"` // epoch millis, ordering key
	Timestamp string         `json:"timestamp"`
	ReplyTo   *ReplySnapshot `json:"reply_to,omitempty"`
	ExpiresAt *int64         `json:"expires_at,omitempty"` // epoch millis, immutable once set
	Reactions []Reaction     `json:"reactions,omitempty"`
	IsStarred bool           `json:"is_starred,omitempty"`
}

// Expired reports whether the message must be purged at now (epoch millis).
func (m Message) Expired(now int64) bool {
	return m.ExpiresAt != nil && now >= *m.ExpiresAt
}

// Preview is the short text shown in chat lists for this message.
func (m Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	switch m.Type {
	case MessageImage:
		return "Photo"
	case MessageVideo:
		return "Video"
	case MessageAudio:
		return "Voice message"
	case MessageDocument:
		if m.Metadata != nil && m.Metadata.FileName != "" {
			return m.Metadata.FileName
		}
		return "Document"
	case MessageLocation:
		return "Location"
	case MessagePayment:
		return "Payment"
	case MessageProduct:
		return "Product"
	}
	return ""
}

// FormatTimestamp renders epoch millis as the display time of a message.
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("15:04")
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 { return t.UnixMilli() }
