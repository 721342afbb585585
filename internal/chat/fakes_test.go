package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

const (
	me    = "user-me"
	other = "user-other"
	conv  = "conv-1"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// insertCall is one pending InsertMessage; the test resolves it
type insertCall struct {
	Draft  Draft
	result chan insertResult
}

type insertResult struct {
	msg Message
	err error
}

func (c *insertCall) resolve(id string, at time.Time) {
	c.result <- insertResult{msg: Message{
		ID: id, ConversationID: conv, SenderID: me, Content: c.Draft.Content,
		ClientMsgID: c.Draft.ClientMsgID, CreatedAt: at,
	}}
}

func (c *insertCall) reject(err error) {
	c.result <- insertResult{err: err}
}

type fakeRows struct {
	mu        sync.Mutex
	history   []Message
	fetchErr  error
	markCalls [][]string
	markErr   error

	// afterFetch runs once FetchMessages has taken its copy of history
	afterFetch func(f *fakeRows)

	// when manual is set, InsertMessage publishes its call and waits
	manual  bool
	inserts chan *insertCall

	insertErr error
	nextID    int
}

func newFakeRows() *fakeRows {
	return &fakeRows{inserts: make(chan *insertCall, 16)}
}

func (f *fakeRows) FetchMessages(ctx context.Context, conversationID string) ([]Message, error) {
	f.mu.Lock()
	if f.fetchErr != nil {
		f.mu.Unlock()
		return nil, f.fetchErr
	}
	out := append([]Message(nil), f.history...)
	hook := f.afterFetch
	f.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return out, nil
}

func (f *fakeRows) InsertMessage(ctx context.Context, conversationID string, draft Draft) (Message, error) {
	if f.manual {
		c := &insertCall{Draft: draft, result: make(chan insertResult, 1)}
		f.inserts <- c
		r := <-c.result
		return r.msg, r.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return Message{}, f.insertErr
	}
	f.nextID++
	return Message{
		ID: fmt.Sprintf("srv-%d", f.nextID), ConversationID: conversationID, SenderID: me,
		Content: draft.Content, ClientMsgID: draft.ClientMsgID, CreatedAt: t0,
	}, nil
}

func (f *fakeRows) MarkRead(ctx context.Context, conversationID string, ids []string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, ids)
	return nil, f.markErr
}

func (f *fakeRows) marks() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.markCalls...)
}

func (f *fakeRows) nextInsert(t *testing.T) *insertCall {
	t.Helper()
	select {
	case c := <-f.inserts:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no insert call")
		return nil
	}
}

type fakeStream struct {
	events    chan Event
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan Event, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Events() <-chan Event { return s.events }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeRealtime struct {
	mu      sync.Mutex
	streams map[string][]*fakeStream
	err     error
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{streams: make(map[string][]*fakeStream)}
}

func (f *fakeRealtime) Subscribe(ctx context.Context, conversationID string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeStream()
	f.streams[conversationID] = append(f.streams[conversationID], s)
	return s, nil
}

func (f *fakeRealtime) latest(conversationID string) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.streams[conversationID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

type upload struct {
	Name, ContentType string
	Data              []byte
}

type fakeObjects struct {
	mu        sync.Mutex
	uploads   []upload
	deletes   []string
	uploadErr error
	deleteErr error
}

func (f *fakeObjects) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, upload{name, contentType, data})
	return fmt.Sprintf("https://cdn.example.com/chat/%d-%s", len(f.uploads), name), nil
}

func (f *fakeObjects) Delete(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, url)
	return f.deleteErr
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func testOptions() Options {
	return Options{
		OperationTimeout: time.Second,
		Now:              func() time.Time { return t0 },
	}
}

func texts(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Describe(m.Content))
	}
	return out
}
