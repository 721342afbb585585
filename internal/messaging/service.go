// internal/messaging/service.go

package messaging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Service interface {
	// Conversations
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error)

	// Messages
	ListMessages(ctx context.Context, userID, conversationID string) ([]*Message, error)
	SendMessage(ctx context.Context, userID, conversationID string, req *SendMessageRequest) (*Message, error)
	MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]*Message, error)

	// Realtime
	Subscribe(ctx context.Context, userID, conversationID string) (*Subscription, error)

	// Media
	UploadMedia(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error)
	DeleteMedia(ctx context.Context, userID, objectURL string) error

	// Push notifications
	RegisterPushToken(ctx context.Context, userID string, req *PushTokenRequest) error
}

// Presence reports whether a user currently holds a realtime connection
type Presence interface {
	IsUserOnline(userID string) bool
}

const notifyTimeout = 30 * time.Second

type MessageService struct {
	repo     Repository
	broker   Broker
	storage  StorageService
	notifier Notifier
	presence Presence
	logger   zerolog.Logger

	// pending offline notifications
	wg sync.WaitGroup
}

func NewService(repo Repository, broker Broker, storage StorageService, notifier Notifier, logger zerolog.Logger) *MessageService {
	return &MessageService{
		repo:     repo,
		broker:   broker,
		storage:  storage,
		notifier: notifier,
		logger:   logger,
	}
}

// SetPresence sets the hub after initialization to avoid a circular dependency
func (s *MessageService) SetPresence(p Presence) {
	s.presence = p
}

// Wait blocks until in-flight offline notifications are done
func (s *MessageService) Wait() {
	s.wg.Wait()
}

func (s *MessageService) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	return s.repo.ListConversations(ctx, userID, limit, offset)
}

// GetConversation loads a conversation the user participates in
func (s *MessageService) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *MessageService) ListMessages(ctx context.Context, userID, conversationID string) ([]*Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

// SendMessage persists a message and announces it to subscribers
func (s *MessageService) SendMessage(ctx context.Context, userID, conversationID string, req *SendMessageRequest) (*Message, error) {
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	message, err := buildMessage(userID, conversationID, req)
	if err != nil {
		return nil, err
	}

	inserted, err := s.repo.InsertMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	messagesPersisted.WithLabelValues(string(message.Kind), fmt.Sprint(!inserted)).Inc()

	// A replayed client id already went through the steps below
	if !inserted {
		return message, nil
	}

	if err := s.repo.TouchConversation(ctx, conversationID, message.CreatedAt, PreviewFor(message)); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to update conversation preview")
	}

	s.publish(ctx, Event{Type: EventInsert, ConversationID: conversationID, Message: message})

	recipientID := conv.OtherPartyID(userID)
	if s.notifier != nil && (s.presence == nil || !s.presence.IsUserOnline(recipientID)) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			s.notifyOffline(nctx, conv, message, recipientID)
		}()
	}

	return message, nil
}

func buildMessage(userID, conversationID string, req *SendMessageRequest) (*Message, error) {
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}

	message := &Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Kind:           kind,
	}
	if req.ClientMsgID != "" {
		message.ClientMsgID = &req.ClientMsgID
	}

	switch kind {
	case KindText:
		content := strings.TrimSpace(req.Content)
		if content == "" {
			return nil, ErrEmptyMessage
		}
		if req.MediaURL != "" {
			return nil, ErrUnexpectedMedia
		}
		message.Content = content
	case KindImage, KindAudio, KindFile:
		if req.MediaURL == "" {
			return nil, ErrMediaRequired
		}
		url := req.MediaURL
		message.MediaURL = &url
		message.Content = strings.TrimSpace(req.Content)
		if kind == KindAudio && req.MediaDuration > 0 {
			d := req.MediaDuration
			message.MediaDuration = &d
		}
		if kind == KindFile && req.MediaName != "" {
			name := req.MediaName
			message.MediaName = &name
		}
	}
	return message, nil
}

// MarkRead flips unread messages of the other party and announces every flip
func (s *MessageService) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]*Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	flipped, err := s.repo.MarkRead(ctx, conversationID, userID, messageIDs)
	if err != nil {
		return nil, err
	}
	readFlips.Add(float64(len(flipped)))

	for _, m := range flipped {
		s.publish(ctx, Event{Type: EventUpdate, ConversationID: conversationID, Message: m})
	}
	return flipped, nil
}

func (s *MessageService) publish(ctx context.Context, event Event) {
	err := s.broker.Publish(ctx, event)
	eventsPublished.WithLabelValues(string(event.Type), outcome(err)).Inc()
	if err != nil {
		// The row is stored; subscribers converge on their next fetch
		s.logger.Error().Err(err).
			Str("conversation_id", event.ConversationID).
			Str("type", string(event.Type)).
			Msg("Failed to publish realtime event")
	}
}

// Subscribe opens a realtime feed for a participant
func (s *MessageService) Subscribe(ctx context.Context, userID, conversationID string) (*Subscription, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.broker.Subscribe(ctx, conversationID)
}

func (s *MessageService) notifyOffline(ctx context.Context, conv *Conversation, message *Message, recipientID string) {
	recipient, err := s.repo.GetContact(ctx, recipientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("recipient_id", recipientID).Msg("Failed to load recipient contact")
		return
	}

	senderName := "Someone"
	if sender, err := s.repo.GetContact(ctx, message.SenderID); err == nil && sender.DisplayName != "" {
		senderName = sender.DisplayName
	}

	notice := &OfflineNotice{
		Recipient:      recipient,
		SenderName:     senderName,
		AdTitle:        conv.AdTitle,
		ConversationID: conv.ID,
		MessageID:      message.ID,
		Preview:        PreviewFor(message),
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.logger.Warn().Err(err).Str("recipient_id", recipientID).Msg("Offline notification incomplete")
	}
}

func (s *MessageService) UploadMedia(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error) {
	return s.storage.Upload(ctx, userID, filename, contentType, body)
}

func (s *MessageService) DeleteMedia(ctx context.Context, userID, objectURL string) error {
	return s.storage.Delete(ctx, userID, objectURL)
}

func (s *MessageService) RegisterPushToken(ctx context.Context, userID string, req *PushTokenRequest) error {
	return s.repo.SavePushToken(ctx, userID, req.Token, req.Platform)
}
