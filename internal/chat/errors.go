// internal/chat/errors.go

package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means a network call exceeded the operation deadline,
	// as opposed to being rejected by the backend.
	ErrTimeout = errors.New("chat: operation timed out")

	ErrNotOpen = errors.New("chat: no conversation is open")
)

// FetchError is returned when the history of a conversation cannot be loaded
type FetchError struct {
	ConversationID string
	Err            error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("chat: load conversation %s: %v", e.ConversationID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError is returned when a message row could not be written
type SendError struct {
	TempID string
	Kind   Kind
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("chat: send %s message: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// UploadError is returned when an attachment never reached object storage
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("chat: upload %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// OrphanWriteError is returned when an attachment was uploaded but its
// message row was not written. CleanupErr is set if deleting the object failed too.
type OrphanWriteError struct {
	URL        string
	Err        error
	CleanupErr error
}

func (e *OrphanWriteError) Error() string {
	if e.CleanupErr != nil {
		return fmt.Sprintf("chat: write message for %s: %v (cleanup failed: %v)", e.URL, e.Err, e.CleanupErr)
	}
	return fmt.Sprintf("chat: write message for %s: %v", e.URL, e.Err)
}

func (e *OrphanWriteError) Unwrap() error { return e.Err }

// SubscriptionError is returned when the realtime channel cannot be opened
type SubscriptionError struct {
	ConversationID string
	Err            error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("chat: subscribe to %s: %v", e.ConversationID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
