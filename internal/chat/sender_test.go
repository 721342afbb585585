package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendResult struct {
	msg *Message
	err error
}

func newTestSender(rows *fakeRows, objects *fakeObjects, notifier Notifier, opts Options) (*Sender, *Store) {
	store := NewStore(rows, opts.OperationTimeout)
	return NewSender(store, rows, objects, notifier, conv, me, opts), store
}

func sendAsync(s *Sender, body string) <-chan sendResult {
	out := make(chan sendResult, 1)
	go func() {
		msg, err := s.SendText(context.Background(), body)
		out <- sendResult{msg, err}
	}()
	return out
}

func wait(t *testing.T, ch <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("send did not finish")
		return sendResult{}
	}
}

func TestSendText_OptimisticThenConfirmed(t *testing.T) {
	rows := newFakeRows()
	rows.manual = true
	sender, store := newTestSender(rows, &fakeObjects{}, &recordingNotifier{}, testOptions())

	done := sendAsync(sender, "Bonjour")
	call := rows.nextInsert(t)

	msgs := store.Snapshot()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Optimistic)
	assert.True(t, IsTempID(msgs[0].ID))
	assert.Equal(t, Text{Body: "Bonjour"}, msgs[0].Content)
	assert.Equal(t, msgs[0].ClientMsgID, call.Draft.ClientMsgID)

	created := t0.Add(time.Second)
	call.resolve("srv-1", created)
	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, "srv-1", r.msg.ID)

	msgs = store.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.False(t, msgs[0].Optimistic)
	assert.True(t, msgs[0].CreatedAt.Equal(created))
	assert.Zero(t, store.PendingCount())
}

func TestSendText_FailureRollsBack(t *testing.T) {
	rows := newFakeRows()
	rows.insertErr = errors.New("permission denied")
	notifier := &recordingNotifier{}
	sender, store := newTestSender(rows, &fakeObjects{}, notifier, testOptions())
	store.Append(Message{ID: "srv-0", SenderID: other, Content: Text{Body: "hi"}})

	msg, err := sender.SendText(context.Background(), "Bonjour")

	assert.Nil(t, msg)
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, KindText, sendErr.Kind)
	assert.ErrorIs(t, err, rows.insertErr)
	assert.Equal(t, 1, store.Len())
	_, found := store.Get(sendErr.TempID)
	assert.False(t, found)
	assert.Equal(t, 1, notifier.count())
}

func TestSendText_BlankIsNoop(t *testing.T) {
	rows := newFakeRows()
	notifier := &recordingNotifier{}
	sender, store := newTestSender(rows, &fakeObjects{}, notifier, testOptions())

	for _, body := range []string{"", "   ", "\n\t"} {
		msg, err := sender.SendText(context.Background(), body)
		assert.NoError(t, err)
		assert.Nil(t, msg)
	}
	assert.Zero(t, store.Len())
	assert.Zero(t, notifier.count())
}

func TestSendText_ConcurrentSendsKeepOrder(t *testing.T) {
	rows := newFakeRows()
	rows.manual = true
	sender, store := newTestSender(rows, &fakeObjects{}, &recordingNotifier{}, testOptions())

	doneA := sendAsync(sender, "A")
	callA := rows.nextInsert(t)
	doneB := sendAsync(sender, "B")
	callB := rows.nextInsert(t)

	assert.Equal(t, []string{"A", "B"}, texts(store.Snapshot()))

	// B resolves first
	callB.resolve("srv-b", t0.Add(2*time.Second))
	require.NoError(t, wait(t, doneB).err)
	callA.resolve("srv-a", t0.Add(time.Second))
	require.NoError(t, wait(t, doneA).err)

	msgs := store.Snapshot()
	assert.Equal(t, []string{"A", "B"}, texts(msgs))
	assert.Equal(t, "srv-a", msgs[0].ID)
	assert.Equal(t, "srv-b", msgs[1].ID)
}

func TestSendText_OneFailureDoesNotAffectOther(t *testing.T) {
	rows := newFakeRows()
	rows.manual = true
	sender, store := newTestSender(rows, &fakeObjects{}, &recordingNotifier{}, testOptions())

	doneA := sendAsync(sender, "A")
	callA := rows.nextInsert(t)
	doneB := sendAsync(sender, "B")
	callB := rows.nextInsert(t)

	callA.reject(errors.New("boom"))
	assert.Error(t, wait(t, doneA).err)
	callB.resolve("srv-b", t0)
	require.NoError(t, wait(t, doneB).err)

	assert.Equal(t, []string{"B"}, texts(store.Snapshot()))
}

func TestSendText_TimeoutRemovesStuckPlaceholder(t *testing.T) {
	rows := newFakeRows()
	rows.manual = true
	opts := testOptions()
	opts.OperationTimeout = 50 * time.Millisecond
	notifier := &recordingNotifier{}
	sender, store := newTestSender(rows, &fakeObjects{}, notifier, opts)

	done := sendAsync(sender, "hello?")
	call := rows.nextInsert(t)

	r := wait(t, done)
	assert.ErrorIs(t, r.err, ErrTimeout)
	assert.Zero(t, store.Len())
	assert.Equal(t, 1, notifier.count())

	// the hung call finally returns; nothing changes
	call.resolve("srv-late", t0)
	assert.Zero(t, store.Len())
}

func TestSendText_EchoBeforeFailedReplyCountsAsSent(t *testing.T) {
	rows := newFakeRows()
	rows.manual = true
	notifier := &recordingNotifier{}
	sender, store := newTestSender(rows, &fakeObjects{}, notifier, testOptions())

	done := sendAsync(sender, "Bonjour")
	call := rows.nextInsert(t)

	store.ApplyInsert(Message{
		ID: "srv-1", ConversationID: conv, SenderID: me, Content: Text{Body: "Bonjour"},
		ClientMsgID: call.Draft.ClientMsgID, CreatedAt: t0,
	})
	call.reject(errors.New("connection reset after write"))

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, "srv-1", r.msg.ID)
	assert.Equal(t, 1, store.Len())
	assert.Zero(t, notifier.count())
}
