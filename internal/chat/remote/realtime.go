// internal/chat/remote/realtime.go

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jootiya/jootiya-backend/internal/chat"
	"github.com/jootiya/jootiya-backend/internal/messaging"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 10 * time.Second
	streamBuffer = 64
)

// Realtime opens one websocket per subscribed conversation
type Realtime struct {
	wsURL  string
	token  string
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewRealtime derives the websocket endpoint from the API base URL
func NewRealtime(baseURL, token string, logger zerolog.Logger) *Realtime {
	wsURL := strings.TrimRight(baseURL, "/") + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return &Realtime{
		wsURL:  wsURL,
		token:  token,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("component", "chat_realtime").Logger(),
	}
}

// Subscribe connects and waits for the server to confirm the subscription
func (r *Realtime) Subscribe(ctx context.Context, conversationID string) (chat.Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token)

	conn, resp, err := r.dialer.DialContext(ctx, r.wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := handshake(ctx, conn, conversationID); err != nil {
		conn.Close()
		return nil, err
	}

	s := &stream{
		conn:           conn,
		conversationID: conversationID,
		events:         make(chan chat.Event, streamBuffer),
		closed:         make(chan struct{}),
		logger:         r.logger.With().Str("conversation_id", conversationID).Logger(),
	}
	go s.readPump()
	return s, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, conversationID string) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	data, err := json.Marshal(messaging.SubscriptionRequest{ConversationID: conversationID})
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(messaging.WSMessage{
		Type:      string(messaging.WSTypeSubscribe),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to send subscribe frame: %w", err)
	}

	for {
		var frame messaging.WSMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("no subscription confirmation: %w", err)
		}

		switch messaging.WSMessageType(frame.Type) {
		case messaging.WSTypeSubscribed:
			return nil
		case messaging.WSTypeError:
			var wsErr messaging.WSError
			if err := json.Unmarshal(frame.Data, &wsErr); err != nil {
				return fmt.Errorf("subscription refused: malformed error frame: %w", err)
			}
			return fmt.Errorf("subscription refused: %s: %s", wsErr.Code, wsErr.Message)
		}
	}
}

type stream struct {
	conn           *websocket.Conn
	conversationID string
	events         chan chat.Event
	closed         chan struct{}
	closeOnce      sync.Once
	writeMu        sync.Mutex
	logger         zerolog.Logger
}

func (s *stream) Events() <-chan chat.Event { return s.events }

// Close sends a close frame and tears the connection down
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *stream) readPump() {
	defer close(s.events)

	for {
		var frame messaging.WSMessage
		if err := s.conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Warn().Err(err).Msg("Realtime connection lost")
				}
				s.conn.Close()
			}
			return
		}

		var evType chat.EventType
		switch messaging.WSMessageType(frame.Type) {
		case messaging.WSTypeInsert:
			evType = chat.EventInsert
		case messaging.WSTypeUpdate:
			evType = chat.EventUpdate
		case messaging.WSTypeError:
			s.logger.Warn().RawJSON("data", frame.Data).Msg("Realtime error frame")
			continue
		default:
			continue
		}

		var row messaging.Message
		if err := json.Unmarshal(frame.Data, &row); err != nil {
			s.logger.Warn().Err(err).Msg("Malformed realtime frame")
			continue
		}
		msg, err := toChat(&row)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", row.ID).Msg("Unsupported realtime message")
			continue
		}

		select {
		case s.events <- chat.Event{Type: evType, Message: msg}:
		case <-s.closed:
			return
		}
	}
}
