// internal/messaging/websocket.go

package messaging

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket configuration constants
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxMessageSize = 4 * 1024

	// Maximum number of queued frames per client
	maxQueuedMessages = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are not checked; connections are authorized by bearer token
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newFrame encodes a server frame
func newFrame(msgType WSMessageType, data interface{}) []byte {
	frame := WSMessage{
		Type:      string(msgType),
		Data:      mustMarshal(data),
		Timestamp: time.Now().UTC(),
	}
	out, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("type", string(msgType)).Msg("Failed to marshal frame")
		return []byte(`{"type":"error"}`)
	}
	return out
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal frame data")
		return json.RawMessage(`{}`)
	}
	return data
}
