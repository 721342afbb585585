// internal/messaging/postgres.go

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const messageColumns = `id, conversation_id, sender_id, kind, content, media_url,
	media_name, media_duration, client_msg_id, created_at, read_at`

// GetConversation loads a conversation with its ad title
func (r *postgresRepository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT c.id, c.ad_id, a.title AS ad_title, c.buyer_id, c.seller_id,
		       c.last_message_at, c.last_message_preview, c.created_at
		FROM conversations c
		JOIN ads a ON a.id = c.ad_id
		WHERE c.id = $1`

	var conv Conversation
	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

type conversationRow struct {
	Conversation
	OtherID          string  `db:"other_id"`
	OtherDisplayName string  `db:"other_display_name"`
	OtherAvatarURL   *string `db:"other_avatar_url"`
	Unread           int     `db:"unread_count"`
}

// ListConversations returns the user's conversations, most recent activity first
func (r *postgresRepository) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	query := `
		SELECT c.id, c.ad_id, a.title AS ad_title, c.buyer_id, c.seller_id,
		       c.last_message_at, c.last_message_preview, c.created_at,
		       p.id AS other_id, p.display_name AS other_display_name, p.avatar_url AS other_avatar_url,
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.read_at IS NULL) AS unread_count
		FROM conversations c
		JOIN ads a ON a.id = c.ad_id
		JOIN profiles p ON p.id = CASE WHEN c.buyer_id = $1 THEN c.seller_id ELSE c.buyer_id END
		WHERE c.buyer_id = $1 OR c.seller_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
		LIMIT $2 OFFSET $3`

	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, err
	}

	conversations := make([]*Conversation, 0, len(rows))
	for i := range rows {
		conv := rows[i].Conversation
		conv.OtherParty = &Profile{
			ID:          rows[i].OtherID,
			DisplayName: rows[i].OtherDisplayName,
			AvatarURL:   rows[i].OtherAvatarURL,
		}
		conv.UnreadCount = rows[i].Unread
		conversations = append(conversations, &conv)
	}
	return conversations, nil
}

// TouchConversation updates the last message of a conversation
func (r *postgresRepository) TouchConversation(ctx context.Context, id string, at time.Time, preview string) error {
	query := `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $1), $1),
		    last_message_preview = $2
		WHERE id = $3`

	_, err := r.db.ExecContext(ctx, query, at, preview, id)
	return err
}

// ListMessages returns the whole history of a conversation in ascending time order
func (r *postgresRepository) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`

	messages := []*Message{}
	if err := r.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, err
	}
	return messages, nil
}

type insertedRow struct {
	Message
	Inserted bool `db:"inserted"`
}

// InsertMessage creates a message; a retry carrying the same client id gets the original row back
func (r *postgresRepository) InsertMessage(ctx context.Context, message *Message) (bool, error) {
	query := `
		INSERT INTO messages (
			conversation_id, sender_id, kind, content, media_url,
			media_name, media_duration, client_msg_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (conversation_id, client_msg_id) WHERE client_msg_id IS NOT NULL
		DO UPDATE SET client_msg_id = EXCLUDED.client_msg_id
		RETURNING ` + messageColumns + `, (xmax = 0) AS inserted`

	var row insertedRow
	err := r.db.GetContext(
		ctx, &row, query,
		message.ConversationID, message.SenderID, message.Kind, message.Content,
		message.MediaURL, message.MediaName, message.MediaDuration, message.ClientMsgID,
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	*message = row.Message
	return row.Inserted, nil
}

// MarkRead flips read_at for unread rows of the other party
func (r *postgresRepository) MarkRead(ctx context.Context, conversationID, readerID string, ids []string) ([]*Message, error) {
	query := `
		UPDATE messages
		SET read_at = CURRENT_TIMESTAMP
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND read_at IS NULL
		  AND (cardinality($3::uuid[]) = 0 OR id = ANY($3::uuid[]))
		RETURNING ` + messageColumns

	if ids == nil {
		ids = []string{}
	}

	flipped := []*Message{}
	if err := r.db.SelectContext(ctx, &flipped, query, conversationID, readerID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return flipped, nil
}

// GetContact loads what notifiers need to reach a user
func (r *postgresRepository) GetContact(ctx context.Context, userID string) (*Contact, error) {
	var contact Contact
	err := r.db.GetContext(ctx, &contact,
		`SELECT id, display_name, email, phone FROM profiles WHERE id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// SavePushToken registers a device token, moving it to userID if it was known
func (r *postgresRepository) SavePushToken(ctx context.Context, userID, token, platform string) error {
	query := `
		INSERT INTO push_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform`

	_, err := r.db.ExecContext(ctx, query, userID, token, platform)
	return err
}

func (r *postgresRepository) DeletePushToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = $1`, token)
	return err
}

func (r *postgresRepository) GetPushTokens(ctx context.Context, userID string) ([]*PushToken, error) {
	tokens := []*PushToken{}
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT id, user_id, token, platform, created_at FROM push_tokens WHERE user_id = $1`, userID)
	return tokens, err
}
