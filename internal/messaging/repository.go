// internal/messaging/repository.go

package messaging

import (
	"context"
	"time"
)

type Repository interface {
	// Conversations
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time, preview string) error

	// Messages
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	// InsertMessage is idempotent on (conversation, client message id). The returned
	// flag is false when an earlier insert with the same client id won.
	InsertMessage(ctx context.Context, message *Message) (bool, error)
	// MarkRead sets read_at on rows not sent by readerID that are still unread,
	// restricted to ids when non-empty, and returns the rows it flipped.
	MarkRead(ctx context.Context, conversationID, readerID string, ids []string) ([]*Message, error)

	// Users
	GetContact(ctx context.Context, userID string) (*Contact, error)

	// Push tokens
	SavePushToken(ctx context.Context, userID, token, platform string) error
	DeletePushToken(ctx context.Context, token string) error
	GetPushTokens(ctx context.Context, userID string) ([]*PushToken, error)
}
