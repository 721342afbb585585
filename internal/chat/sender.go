// internal/chat/sender.go

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sender shows outgoing messages immediately and converges the store to
// the backend's answer.
type Sender struct {
	store          *Store
	rows           MessageWriter
	objects        ObjectStore
	compressor     Compressor
	notifier       Notifier
	conversationID string
	userID         string
	timeout        time.Duration
	logger         zerolog.Logger
	now            func() time.Time
}

func NewSender(store *Store, rows MessageWriter, objects ObjectStore, notifier Notifier,
	conversationID, userID string, opts Options) *Sender {
	opts = opts.withDefaults()
	return &Sender{
		store:          store,
		rows:           rows,
		objects:        objects,
		compressor:     opts.Compressor,
		notifier:       notifier,
		conversationID: conversationID,
		userID:         userID,
		timeout:        opts.OperationTimeout,
		logger:         opts.Logger.With().Str("conversation_id", conversationID).Logger(),
		now:            opts.Now,
	}
}

// SendText sends a text message. Blank input is ignored and yields (nil, nil).
func (s *Sender) SendText(ctx context.Context, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	content := Text{Body: body}
	placeholder := s.begin(content)

	confirmed, err := s.persist(ctx, placeholder, content)
	if err != nil {
		s.notifier.Notify(Notice{Text: "Your message could not be sent.", Err: err})
		return nil, &SendError{TempID: placeholder.ID, Kind: KindText, Err: err}
	}
	return &confirmed, nil
}

// begin appends the optimistic placeholder
func (s *Sender) begin(preview Content) Message {
	placeholder := Message{
		ID:             newTempID(),
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Content:        preview,
		ClientMsgID:    uuid.NewString(),
		CreatedAt:      s.now(),
		Optimistic:     true,
	}
	s.store.AppendPending(placeholder)
	return placeholder
}

// persist writes the row and settles the placeholder either way. A failed
// write whose realtime echo already arrived counts as a success.
func (s *Sender) persist(ctx context.Context, placeholder Message, content Content) (Message, error) {
	confirmed, err := call(ctx, s.timeout, func(ctx context.Context) (Message, error) {
		return s.rows.InsertMessage(ctx, s.conversationID, Draft{
			Content:     content,
			ClientMsgID: placeholder.ClientMsgID,
		})
	})
	if err != nil {
		if echoed, ok := s.store.Discard(placeholder.ID, placeholder.ClientMsgID); ok {
			s.logger.Debug().Err(err).Str("message_id", echoed.ID).
				Msg("Insert reported failure but the row was already delivered")
			return echoed, nil
		}
		s.logger.Warn().Err(err).Str("temp_id", placeholder.ID).Msg("Send failed")
		return Message{}, err
	}

	confirmed.Optimistic = false
	if confirmed.ClientMsgID == "" {
		confirmed.ClientMsgID = placeholder.ClientMsgID
	}
	s.store.Replace(placeholder.ID, confirmed)
	return confirmed, nil
}
