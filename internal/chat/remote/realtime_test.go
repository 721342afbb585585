package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jootiya/jootiya-backend/internal/chat"
	"github.com/jootiya/jootiya-backend/internal/messaging"
)

func TestRealtime_DeliversInsertAndUpdate(t *testing.T) {
	srv := newTestServer(t)
	buyer := srv.client(t, buyerID)
	seller := srv.client(t, sellerID)
	ctx := context.Background()

	stream, err := NewRealtime(srv.URL, buyer.token, zerolog.Nop()).Subscribe(ctx, convID)
	require.NoError(t, err)
	defer stream.Close()

	sent, err := buyer.InsertMessage(ctx, convID, chat.Draft{Content: chat.Text{Body: "Bonjour"}, ClientMsgID: uuid.NewString()})
	require.NoError(t, err)

	ev := nextEvent(t, stream)
	assert.Equal(t, chat.EventInsert, ev.Type)
	assert.Equal(t, sent.ID, ev.Message.ID)
	assert.Equal(t, sent.ClientMsgID, ev.Message.ClientMsgID)

	_, err = seller.MarkRead(ctx, convID, nil)
	require.NoError(t, err)

	ev = nextEvent(t, stream)
	assert.Equal(t, chat.EventUpdate, ev.Type)
	assert.Equal(t, sent.ID, ev.Message.ID)
	assert.NotNil(t, ev.Message.ReadAt)
}

func TestRealtime_RefusedSubscription(t *testing.T) {
	srv := newTestServer(t)
	stranger := srv.client(t, strangerID)

	_, err := NewRealtime(srv.URL, stranger.token, zerolog.Nop()).Subscribe(context.Background(), convID)
	assert.ErrorContains(t, err, "forbidden")
}

func TestHandshake_MalformedErrorFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req messaging.WSMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(messaging.WSMessage{
			Type:      string(messaging.WSTypeError),
			Data:      json.RawMessage(`"not an object"`),
			Timestamp: time.Now().UTC(),
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = handshake(ctx, conn, convID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed error frame")

	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestRealtime_CloseEndsEvents(t *testing.T) {
	srv := newTestServer(t)
	buyer := srv.client(t, buyerID)

	stream, err := NewRealtime(srv.URL, buyer.token, zerolog.Nop()).Subscribe(context.Background(), convID)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

// Two views on the same conversation: the seller's message reaches the
// buyer live, is marked read by the buyer's view, and the read receipt
// reaches the seller's view.
func TestView_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	opts := chat.Options{OperationTimeout: 5 * time.Second}
	ctx := context.Background()

	buyerView := chat.NewView(srv.client(t, buyerID).Backend(), buyerID, nil, opts)
	sellerView := chat.NewView(srv.client(t, sellerID).Backend(), sellerID, nil, opts)
	defer buyerView.Close()
	defer sellerView.Close()

	require.NoError(t, buyerView.Open(ctx, convID))
	require.NoError(t, sellerView.Open(ctx, convID))

	sent, err := sellerView.SendText(ctx, "Oui, toujours disponible")
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Eventually(t, func() bool {
		msgs := buyerView.Messages()
		return len(msgs) == 1 && msgs[0].ID == sent.ID && msgs[0].IsRead()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		msgs := sellerView.Messages()
		return len(msgs) == 1 && msgs[0].ID == sent.ID && msgs[0].IsRead() && !msgs[0].Optimistic
	}, 5*time.Second, 20*time.Millisecond)

	reply, err := buyerView.SendText(ctx, "Je passe ce soir")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		msgs := sellerView.Messages()
		return len(msgs) == 2 && msgs[1].ID == reply.ID
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, buyerView.Messages(), 2)
}

func nextEvent(t *testing.T, stream chat.Stream) chat.Event {
	t.Helper()
	select {
	case ev, ok := <-stream.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no realtime event")
		return chat.Event{}
	}
}
