// internal/chat/backend.go
// Collaborators the pipeline is built on. They are always injected.

package chat

import (
	"context"
	"errors"
	"time"
)

// HistoryFetcher returns every message of a conversation, oldest first
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// MessageWriter inserts a message row and returns the authoritative copy
type MessageWriter interface {
	InsertMessage(ctx context.Context, conversationID string, draft Draft) (Message, error)
}

// ReadMarker sets read timestamps on the other party's unread messages.
// A nil ids slice means every unread message of the conversation.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID string, ids []string) ([]Message, error)
}

// MessageRows is the full row contract of the backend
type MessageRows interface {
	HistoryFetcher
	MessageWriter
	ReadMarker
}

// Stream delivers realtime events until closed or dropped.
// Events is closed when the underlying connection goes away.
type Stream interface {
	Events() <-chan Event
	Close() error
}

type Realtime interface {
	Subscribe(ctx context.Context, conversationID string) (Stream, error)
}

// ObjectStore keeps attachment blobs
type ObjectStore interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// Backend bundles every collaborator of a chat view
type Backend struct {
	Rows     MessageRows
	Realtime Realtime
	Objects  ObjectStore
}

// call runs fn under a deadline. If the deadline passes first, ErrTimeout is
// returned even when fn ignores its context.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(tctx)
		done <- result{val, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && tctx.Err() == context.DeadlineExceeded {
			return zero, errors.Join(ErrTimeout, r.err)
		}
		return r.val, r.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, tctx.Err()
	}
}

// callErr is call for operations without a result
func callErr(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
