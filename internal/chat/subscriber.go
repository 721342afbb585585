// internal/chat/subscriber.go

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Subscriber applies realtime events of one conversation to the store
type Subscriber struct {
	realtime   Realtime
	store      *Store
	reconciler *Reconciler
	userID     string
	timeout    time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	stream Stream
	stop   chan struct{}
	done   chan struct{}
}

func NewSubscriber(realtime Realtime, store *Store, reconciler *Reconciler, userID string, opts Options) *Subscriber {
	opts = opts.withDefaults()
	return &Subscriber{
		realtime:   realtime,
		store:      store,
		reconciler: reconciler,
		userID:     userID,
		timeout:    opts.OperationTimeout,
		logger:     opts.Logger,
	}
}

// Start subscribes to the conversation. A running subscription is stopped first.
func (s *Subscriber) Start(ctx context.Context, conversationID string) error {
	s.Stop()

	stream, err := call(ctx, s.timeout, func(ctx context.Context) (Stream, error) {
		return s.realtime.Subscribe(ctx, conversationID)
	})
	if err != nil {
		return &SubscriptionError{ConversationID: conversationID, Err: err}
	}

	s.mu.Lock()
	s.stream = stream
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(conversationID, stream, s.stop, s.done)
	s.mu.Unlock()

	return nil
}

// Stop unsubscribes. Once it returns no further event reaches the store.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	stream, stop, done := s.stream, s.stop, s.done
	s.stream, s.stop, s.done = nil, nil, nil
	s.mu.Unlock()

	if stream == nil {
		return
	}
	close(stop)
	if err := stream.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Error closing realtime stream")
	}
	<-done
}

func (s *Subscriber) run(conversationID string, stream Stream, stop, done chan struct{}) {
	defer close(done)

	events := stream.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Warn().Str("conversation_id", conversationID).
					Msg("Realtime connection dropped, live updates paused until the conversation is reopened")
				return
			}
			// Stop may have raced with this receive
			select {
			case <-stop:
				return
			default:
			}
			if ev.Message.ConversationID != "" && ev.Message.ConversationID != conversationID {
				continue
			}
			s.apply(ev)
		}
	}
}

func (s *Subscriber) apply(ev Event) {
	switch ev.Type {
	case EventInsert:
		appended := s.store.ApplyInsert(ev.Message)
		if appended && ev.Message.SenderID != s.userID && ev.Message.ReadAt == nil && s.reconciler != nil {
			s.reconciler.MarkIncoming(ev.Message.ID)
		}
	case EventUpdate:
		s.store.ApplyUpdate(ev.Message)
	default:
		s.logger.Debug().Str("type", string(ev.Type)).Msg("Ignoring unknown realtime event")
	}
}
