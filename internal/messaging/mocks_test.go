package messaging

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	args := m.Called(ctx, id)
	conv, _ := args.Get(0).(*Conversation)
	return conv, args.Error(1)
}

func (m *mockRepository) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	args := m.Called(ctx, userID, limit, offset)
	convs, _ := args.Get(0).([]*Conversation)
	return convs, args.Error(1)
}

func (m *mockRepository) TouchConversation(ctx context.Context, id string, at time.Time, preview string) error {
	return m.Called(ctx, id, at, preview).Error(0)
}

func (m *mockRepository) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	args := m.Called(ctx, conversationID)
	msgs, _ := args.Get(0).([]*Message)
	return msgs, args.Error(1)
}

func (m *mockRepository) InsertMessage(ctx context.Context, message *Message) (bool, error) {
	args := m.Called(ctx, message)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) MarkRead(ctx context.Context, conversationID, readerID string, ids []string) ([]*Message, error) {
	args := m.Called(ctx, conversationID, readerID, ids)
	msgs, _ := args.Get(0).([]*Message)
	return msgs, args.Error(1)
}

func (m *mockRepository) GetContact(ctx context.Context, userID string) (*Contact, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(*Contact)
	return c, args.Error(1)
}

func (m *mockRepository) SavePushToken(ctx context.Context, userID, token, platform string) error {
	return m.Called(ctx, userID, token, platform).Error(0)
}

func (m *mockRepository) DeletePushToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockRepository) GetPushTokens(ctx context.Context, userID string) ([]*PushToken, error) {
	args := m.Called(ctx, userID)
	tokens, _ := args.Get(0).([]*PushToken)
	return tokens, args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error) {
	args := m.Called(ctx, userID, filename, contentType, body)
	res, _ := args.Get(0).(*UploadResult)
	return res, args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, userID, objectURL string) error {
	return m.Called(ctx, userID, objectURL).Error(0)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []*OfflineNotice
	err     error
}

func (r *recordingNotifier) Channel() string { return "test" }

func (r *recordingNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return r.err
}

func (r *recordingNotifier) sent() []*OfflineNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*OfflineNotice(nil), r.notices...)
}

type staticPresence map[string]bool

func (p staticPresence) IsUserOnline(userID string) bool { return p[userID] }

type mockService struct {
	mock.Mock
}

func (m *mockService) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	args := m.Called(ctx, userID, limit, offset)
	convs, _ := args.Get(0).([]*Conversation)
	return convs, args.Error(1)
}

func (m *mockService) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	args := m.Called(ctx, userID, conversationID)
	conv, _ := args.Get(0).(*Conversation)
	return conv, args.Error(1)
}

func (m *mockService) ListMessages(ctx context.Context, userID, conversationID string) ([]*Message, error) {
	args := m.Called(ctx, userID, conversationID)
	msgs, _ := args.Get(0).([]*Message)
	return msgs, args.Error(1)
}

func (m *mockService) SendMessage(ctx context.Context, userID, conversationID string, req *SendMessageRequest) (*Message, error) {
	args := m.Called(ctx, userID, conversationID, req)
	msg, _ := args.Get(0).(*Message)
	return msg, args.Error(1)
}

func (m *mockService) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]*Message, error) {
	args := m.Called(ctx, userID, conversationID, messageIDs)
	msgs, _ := args.Get(0).([]*Message)
	return msgs, args.Error(1)
}

func (m *mockService) Subscribe(ctx context.Context, userID, conversationID string) (*Subscription, error) {
	args := m.Called(ctx, userID, conversationID)
	if fn, ok := args.Get(0).(func(context.Context, string, string) *Subscription); ok {
		return fn(ctx, userID, conversationID), args.Error(1)
	}
	sub, _ := args.Get(0).(*Subscription)
	return sub, args.Error(1)
}

func (m *mockService) UploadMedia(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error) {
	args := m.Called(ctx, userID, filename, contentType, body)
	res, _ := args.Get(0).(*UploadResult)
	return res, args.Error(1)
}

func (m *mockService) DeleteMedia(ctx context.Context, userID, objectURL string) error {
	return m.Called(ctx, userID, objectURL).Error(0)
}

func (m *mockService) RegisterPushToken(ctx context.Context, userID string, req *PushTokenRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}
