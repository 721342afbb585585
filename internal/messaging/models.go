// internal/messaging/models.go

package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates what a message carries
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// ParseKind accepts only the known message kinds
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindText, KindImage, KindAudio, KindFile:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// HasMedia reports whether the kind references an uploaded object
func (k Kind) HasMedia() bool {
	return k != KindText
}

// Conversation is a thread between a buyer and the seller of one ad
type Conversation struct {
	ID                 string     `json:"id" db:"id"`
	AdID               string     `json:"ad_id" db:"ad_id"`
	AdTitle            string     `json:"ad_title" db:"ad_title"`
	BuyerID            string     `json:"buyer_id" db:"buyer_id"`
	SellerID           string     `json:"seller_id" db:"seller_id"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	LastMessagePreview *string    `json:"last_message_preview,omitempty" db:"last_message_preview"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`

	// Computed fields
	OtherParty  *Profile `json:"other_party,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// HasParticipant reports whether userID is the buyer or the seller
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.SellerID == userID)
}

// OtherPartyID returns the participant that is not userID
func (c *Conversation) OtherPartyID(userID string) string {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// Profile is the public snapshot of a user shown in chat headers
type Profile struct {
	ID          string  `json:"id" db:"id"`
	DisplayName string  `json:"display_name" db:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// Contact is what offline notifiers need to reach a user
type Contact struct {
	ID          string  `db:"id"`
	DisplayName string  `db:"display_name"`
	Email       *string `db:"email"`
	Phone       *string `db:"phone"`
}

// Message is one persisted chat row
type Message struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	SenderID       string     `json:"sender_id" db:"sender_id"`
	Kind           Kind       `json:"kind" db:"kind"`
	Content        string     `json:"content" db:"content"`
	MediaURL       *string    `json:"media_url,omitempty" db:"media_url"`
	MediaName      *string    `json:"media_name,omitempty" db:"media_name"`
	MediaDuration  *int       `json:"media_duration,omitempty" db:"media_duration"`
	ClientMsgID    *string    `json:"client_msg_id,omitempty" db:"client_msg_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// PreviewFor renders the one-line conversation list preview of a message
func PreviewFor(m *Message) string {
	switch m.Kind {
	case KindText:
		runes := []rune(m.Content)
		if len(runes) > 120 {
			return string(runes[:120]) + "…"
		}
		return m.Content
	case KindImage:
		return "📷 Photo"
	case KindAudio:
		return "🎤 Voice message"
	case KindFile:
		if m.MediaName != nil && *m.MediaName != "" {
			return "📎 " + *m.MediaName
		}
		return "📎 File"
	default:
		return ""
	}
}

// EventType names a realtime row change
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is a row change fanned out to the subscribers of one conversation
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Message        *Message  `json:"message"`
}

// WSMessage is the websocket frame envelope in both directions
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type WSMessageType string

const (
	WSTypeSubscribe    WSMessageType = "subscribe"
	WSTypeUnsubscribe  WSMessageType = "unsubscribe"
	WSTypeSubscribed   WSMessageType = "subscribed"
	WSTypeUnsubscribed WSMessageType = "unsubscribed"
	WSTypeInsert       WSMessageType = "insert"
	WSTypeUpdate       WSMessageType = "update"
	WSTypeError        WSMessageType = "error"
)

// SubscriptionRequest is the data of subscribe/unsubscribe frames
type SubscriptionRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid"`
}

// WSError is the data of an error frame
type WSError struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Request DTOs

type SendMessageRequest struct {
	Kind          string `json:"kind" validate:"required,oneof=text image audio file"`
	Content       string `json:"content" validate:"max=4000"`
	MediaURL      string `json:"media_url" validate:"omitempty,url"`
	MediaName     string `json:"media_name" validate:"max=255"`
	MediaDuration int    `json:"media_duration" validate:"min=0"`
	ClientMsgID   string `json:"client_msg_id" validate:"omitempty,max=64"`
}

type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids" validate:"omitempty,dive,uuid"`
}

type PushTokenRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

// PushToken represents a device push notification token
type PushToken struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UploadResult is returned by the upload endpoint
type UploadResult struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}
