package remote

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jootiya/jootiya-backend/internal/auth"
	"github.com/jootiya/jootiya-backend/internal/common/utils"
	"github.com/jootiya/jootiya-backend/internal/messaging"
)

const (
	testSecret = "remote-test-secret"
	convID     = "5f0c3a1e-8b2d-4c6e-9f1a-2b3c4d5e6f70"
	buyerID    = "1b4e28ba-2fa1-41d2-883f-0016d3cca427"
	sellerID   = "6fa459ea-ee8a-4ca4-894e-db77e160355e"
	strangerID = "0e8f6d2c-5b4a-4392-8170-6f5e4d3c2b1a"
	cdnBase    = "http://cdn.test/uploads"
)

// memRepository keeps conversations and messages in memory
type memRepository struct {
	mu            sync.Mutex
	conversations map[string]*messaging.Conversation
	messages      []*messaging.Message
}

func newMemRepository() *memRepository {
	return &memRepository{conversations: map[string]*messaging.Conversation{
		convID: {ID: convID, AdID: "ad-1", AdTitle: "Vélo de course", BuyerID: buyerID, SellerID: sellerID, CreatedAt: time.Now()},
	}}
}

func copyMessage(m *messaging.Message) *messaging.Message {
	c := *m
	return &c
}

func (r *memRepository) GetConversation(ctx context.Context, id string) (*messaging.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, messaging.ErrConversationNotFound
	}
	c := *conv
	return &c, nil
}

func (r *memRepository) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*messaging.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*messaging.Conversation
	for _, c := range r.conversations {
		if c.HasParticipant(userID) {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (r *memRepository) TouchConversation(ctx context.Context, id string, at time.Time, preview string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		c.LastMessageAt = &at
		c.LastMessagePreview = &preview
	}
	return nil
}

func (r *memRepository) ListMessages(ctx context.Context, conversationID string) ([]*messaging.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*messaging.Message{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

func (r *memRepository) InsertMessage(ctx context.Context, message *messaging.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ClientMsgID != nil {
		for _, m := range r.messages {
			if m.ConversationID == message.ConversationID && m.ClientMsgID != nil && *m.ClientMsgID == *message.ClientMsgID {
				*message = *m
				return false, nil
			}
		}
	}
	message.ID = uuid.NewString()
	message.CreatedAt = time.Now().UTC()
	r.messages = append(r.messages, copyMessage(message))
	return true, nil
}

func (r *memRepository) MarkRead(ctx context.Context, conversationID, readerID string, ids []string) ([]*messaging.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	now := time.Now().UTC()
	var flipped []*messaging.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.SenderID == readerID || m.ReadAt != nil {
			continue
		}
		if len(ids) > 0 && !wanted[m.ID] {
			continue
		}
		at := now
		m.ReadAt = &at
		flipped = append(flipped, copyMessage(m))
	}
	return flipped, nil
}

func (r *memRepository) GetContact(ctx context.Context, userID string) (*messaging.Contact, error) {
	return &messaging.Contact{ID: userID, DisplayName: "user"}, nil
}

func (r *memRepository) SavePushToken(ctx context.Context, userID, token, platform string) error {
	return nil
}

func (r *memRepository) DeletePushToken(ctx context.Context, token string) error { return nil }

func (r *memRepository) GetPushTokens(ctx context.Context, userID string) ([]*messaging.PushToken, error) {
	return nil, nil
}

type testServer struct {
	URL       string
	repo      *memRepository
	uploadDir string
}

// newTestServer runs the messaging API with its in-memory broker and
// local storage
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := newMemRepository()
	dir := t.TempDir()
	broker := messaging.NewMemoryBroker(zerolog.Nop())
	storage := messaging.NewLocalStorageService(dir, cdnBase, 1<<20)
	service := messaging.NewService(repo, broker, storage, nil, zerolog.Nop())

	hub := messaging.NewHub(service, zerolog.Nop())
	service.SetPresence(hub)
	go hub.Run()

	router := mux.NewRouter()
	handler := messaging.NewHandler(service, hub, 1<<20, zerolog.Nop())
	messaging.RegisterRoutes(router, handler, auth.NewMiddleware(testSecret).Authenticate)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		hub.Shutdown()
		broker.Close()
	})
	return &testServer{URL: server.URL, repo: repo, uploadDir: dir}
}

func (s *testServer) client(t *testing.T, userID string) *Client {
	t.Helper()
	token, err := utils.GenerateJWT(userID, "access", testSecret, time.Hour)
	require.NoError(t, err)
	return NewClient(s.URL, token, nil, zerolog.Nop())
}

func (s *testServer) stored(url string) string {
	return filepath.Join(s.uploadDir, filepath.FromSlash(strings.TrimPrefix(url, cdnBase+"/")))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
