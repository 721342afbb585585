// internal/chat/reconciler.go

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler marks the other party's messages read while the view is open.
// The current user's own read flags change only through update events.
type Reconciler struct {
	rows           ReadMarker
	store          *Store
	conversationID string
	userID         string
	timeout        time.Duration
	logger         zerolog.Logger
	now            func() time.Time

	mu     sync.Mutex
	issued map[string]struct{}
	wg     sync.WaitGroup
}

func NewReconciler(rows ReadMarker, store *Store, conversationID, userID string, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		rows:           rows,
		store:          store,
		conversationID: conversationID,
		userID:         userID,
		timeout:        opts.OperationTimeout,
		logger:         opts.Logger.With().Str("conversation_id", conversationID).Logger(),
		now:            opts.Now,
		issued:         make(map[string]struct{}),
	}
}

// MarkConversationRead marks the other party's unread messages held by the
// store in one write. Rows the store has not seen stay unread on the server.
func (r *Reconciler) MarkConversationRead(ctx context.Context) error {
	unread := r.store.UnreadFrom(r.userID)
	if len(unread) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, id := range unread {
		r.issued[id] = struct{}{}
	}
	r.mu.Unlock()

	_, err := call(ctx, r.timeout, func(ctx context.Context) ([]Message, error) {
		return r.rows.MarkRead(ctx, r.conversationID, unread)
	})
	if err != nil {
		r.logger.Warn().Err(err).Int("count", len(unread)).Msg("Failed to mark conversation read")
		r.forget(unread)
		return err
	}

	r.store.MarkRead(unread, r.now())
	return nil
}

// MarkIncoming marks one newly received message read without blocking the
// caller. Each id is sent at most once.
func (r *Reconciler) MarkIncoming(id string) {
	r.mu.Lock()
	if _, done := r.issued[id]; done {
		r.mu.Unlock()
		return
	}
	r.issued[id] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_, err := call(context.Background(), r.timeout, func(ctx context.Context) ([]Message, error) {
			return r.rows.MarkRead(ctx, r.conversationID, []string{id})
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("message_id", id).Msg("Failed to mark message read")
			return
		}
		r.store.MarkRead([]string{id}, r.now())
	}()
}

func (r *Reconciler) forget(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.issued, id)
	}
}

// Wait blocks until every MarkIncoming write has finished
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
