// internal/messaging/client.go

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jootiya/jootiya-backend/internal/common/utils"
)

// Client is one websocket connection and its conversation subscriptions
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	service Service
	logger  zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once

	subsMux sync.Mutex
	subs    map[string]*clientSub
}

type clientSub struct {
	sub  *Subscription
	stop chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, service Service, logger zerolog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, maxQueuedMessages),
		userID:  userID,
		service: service,
		logger:  logger.With().Str("user_id", userID).Logger(),
		done:    make(chan struct{}),
		subs:    make(map[string]*clientSub),
	}
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Close ends every subscription and stops the pumps. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.subsMux.Lock()
		for id, cs := range c.subs {
			c.endSubscription(cs)
			delete(c.subs, id)
		}
		c.subsMux.Unlock()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		c.processMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// enqueue never blocks; a client that cannot keep up is dropped
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn().Msg("Send buffer full, closing slow client")
		go c.hub.Unregister(c)
		c.Close()
		return false
	}
}

func (c *Client) processMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad_frame", "frame is not valid JSON", "")
		return
	}

	switch WSMessageType(msg.Type) {
	case WSTypeSubscribe:
		c.handleSubscribe(msg.Data)

	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg.Data)

	default:
		c.sendError("unknown_type", "unknown frame type: "+msg.Type, "")
	}
}

func (c *Client) parseSubscription(data json.RawMessage) (*SubscriptionRequest, bool) {
	var req SubscriptionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("bad_request", "invalid subscription payload", "")
		return nil, false
	}
	if err := utils.ValidateStruct(&req); err != nil {
		c.sendError("bad_request", err.Error(), req.ConversationID)
		return nil, false
	}
	return &req, true
}

func (c *Client) handleSubscribe(data json.RawMessage) {
	req, ok := c.parseSubscription(data)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.hub.ctx, writeWait)
	defer cancel()

	sub, err := c.service.Subscribe(ctx, c.userID, req.ConversationID)
	if err != nil {
		code := "subscribe_failed"
		switch {
		case errors.Is(err, ErrConversationNotFound):
			code = "not_found"
		case errors.Is(err, ErrNotParticipant):
			code = "forbidden"
		default:
			c.logger.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("Subscribe failed")
		}
		c.sendError(code, err.Error(), req.ConversationID)
		return
	}

	cs := &clientSub{sub: sub, stop: make(chan struct{})}

	c.subsMux.Lock()
	select {
	case <-c.done:
		c.subsMux.Unlock()
		sub.Close()
		return
	default:
	}
	if old, exists := c.subs[req.ConversationID]; exists {
		c.endSubscription(old)
	}
	c.subs[req.ConversationID] = cs
	wsSubscriptions.Inc()
	c.subsMux.Unlock()

	// Confirm before any event of the subscription is queued
	c.enqueue(newFrame(WSTypeSubscribed, req))
	go c.forward(cs)
}

func (c *Client) handleUnsubscribe(data json.RawMessage) {
	req, ok := c.parseSubscription(data)
	if !ok {
		return
	}

	c.subsMux.Lock()
	if cs, exists := c.subs[req.ConversationID]; exists {
		c.endSubscription(cs)
		delete(c.subs, req.ConversationID)
	}
	c.subsMux.Unlock()

	c.enqueue(newFrame(WSTypeUnsubscribed, req))
}

// endSubscription must be called with subsMux held
func (c *Client) endSubscription(cs *clientSub) {
	close(cs.stop)
	cs.sub.Close()
	wsSubscriptions.Dec()
}

func (c *Client) forward(cs *clientSub) {
	for {
		select {
		case <-cs.stop:
			return
		case <-c.done:
			return
		case event, ok := <-cs.sub.C:
			if !ok {
				return
			}
			frameType := WSTypeInsert
			if event.Type == EventUpdate {
				frameType = WSTypeUpdate
			}
			if !c.enqueue(newFrame(frameType, event.Message)) {
				return
			}
		}
	}
}

func (c *Client) sendError(code, message, conversationID string) {
	c.enqueue(newFrame(WSTypeError, WSError{
		Code:           code,
		Message:        message,
		ConversationID: conversationID,
	}))
}
