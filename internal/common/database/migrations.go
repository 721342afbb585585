// internal/common/database/migrations.go
// Idempotent schema for the chat tables

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

var chatMigrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	// Profile snapshot used for the other-party header of a conversation
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		display_name VARCHAR(120) NOT NULL DEFAULT '',
		avatar_url TEXT,
		email VARCHAR(255),
		phone VARCHAR(20),
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS ads (
		id UUID PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		seller_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		ad_id UUID NOT NULL REFERENCES ads(id) ON DELETE CASCADE,
		buyer_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		seller_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		last_message_at TIMESTAMPTZ,
		last_message_preview TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT unique_ad_buyer UNIQUE (ad_id, buyer_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		kind VARCHAR(10) NOT NULL DEFAULT 'text' CHECK (kind IN ('text', 'image', 'audio', 'file')),
		content TEXT NOT NULL DEFAULT '',
		media_url TEXT,
		media_name TEXT,
		media_duration INTEGER,
		client_msg_id VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		read_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS push_tokens (
		id SERIAL PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		platform VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_msg_id
		ON messages(conversation_id, client_msg_id) WHERE client_msg_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id) WHERE read_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_buyer ON conversations(buyer_id, last_message_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_seller ON conversations(seller_id, last_message_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_push_tokens_user ON push_tokens(user_id)`,
}

// RunMigrations executes the chat schema migrations
func RunMigrations(ctx context.Context, db *sqlx.DB, logger zerolog.Logger) error {
	for i, migration := range chatMigrations {
		logger.Debug().Int("step", i+1).Int("total", len(chatMigrations)).Msg("running migration")
		if _, err := db.ExecContext(ctx, migration); err != nil {
			// Don't fail on objects that already exist
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
			logger.Debug().Int("step", i+1).Msg("migration skipped (already exists)")
		}
	}
	return nil
}
