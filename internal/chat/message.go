// internal/chat/message.go
// Client-side model of a chat message

package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the wire discriminator of a message's content
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// Content is a closed set of payloads: Text, Image, Audio and File.
type Content interface {
	Kind() Kind
	sealed()
}

type Text struct {
	Body string
}

type Image struct {
	URL string
}

type Audio struct {
	URL             string
	DurationSeconds int
}

type File struct {
	URL  string
	Name string
}

func (Text) Kind() Kind  { return KindText }
func (Image) Kind() Kind { return KindImage }
func (Audio) Kind() Kind { return KindAudio }
func (File) Kind() Kind  { return KindFile }

func (Text) sealed()  {}
func (Image) sealed() {}
func (Audio) sealed() {}
func (File) sealed()  {}

// Match dispatches on the content variant. Adding a variant adds a
// parameter, so every caller has to handle it.
func Match[T any](c Content,
	onText func(Text) T,
	onImage func(Image) T,
	onAudio func(Audio) T,
	onFile func(File) T,
) T {
	switch v := c.(type) {
	case Text:
		return onText(v)
	case Image:
		return onImage(v)
	case Audio:
		return onAudio(v)
	case File:
		return onFile(v)
	}
	var zero T
	return zero
}

// Describe renders the one-line preview of a content
func Describe(c Content) string {
	return Match(c,
		func(t Text) string { return t.Body },
		func(Image) string { return "📷 Photo" },
		func(a Audio) string {
			if a.DurationSeconds > 0 {
				return "🎤 Voice message (" + (time.Duration(a.DurationSeconds) * time.Second).String() + ")"
			}
			return "🎤 Voice message"
		},
		func(f File) string {
			if f.Name != "" {
				return "📎 " + f.Name
			}
			return "📎 File"
		},
	)
}

// MediaURL returns the referenced object for non-text content
func MediaURL(c Content) string {
	return Match(c,
		func(Text) string { return "" },
		func(i Image) string { return i.URL },
		func(a Audio) string { return a.URL },
		func(f File) string { return f.URL },
	)
}

// Message is one entry of a conversation as the chat view sees it
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        Content
	ClientMsgID    string
	CreatedAt      time.Time
	ReadAt         *time.Time

	// Optimistic is true while a local send awaits confirmation
	Optimistic bool
}

// IsRead reports whether the recipient has viewed the message
func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

// Draft is what the sender hands to the row insert
type Draft struct {
	Content     Content
	ClientMsgID string
}

const tempIDPrefix = "temp-"

func newTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated locally for an unconfirmed message
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// EventType names a realtime row change
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is a realtime row change for the open conversation
type Event struct {
	Type    EventType
	Message Message
}
