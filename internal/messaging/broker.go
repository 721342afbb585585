// internal/messaging/broker.go

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Broker fans realtime row changes out to every subscriber of a conversation
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, conversationID string) (*Subscription, error)
	Close() error
}

// Subscription delivers the events of one conversation until closed
type Subscription struct {
	ConversationID string
	C              <-chan Event

	once    sync.Once
	closeFn func()
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.closeFn)
}

const subscriptionBuffer = 64

// MemoryBroker serves a single API instance
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
	logger zerolog.Logger
}

type memorySub struct {
	ch   chan Event
	done chan struct{}
}

func NewMemoryBroker(logger zerolog.Logger) *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySub]struct{}),
		logger: logger,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for sub := range b.subs[event.ConversationID] {
		select {
		case sub.ch <- event:
		case <-sub.done:
		default:
			b.logger.Warn().
				Str("conversation_id", event.ConversationID).
				Msg("Subscriber buffer full, dropping event")
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &memorySub{
		ch:   make(chan Event, subscriptionBuffer),
		done: make(chan struct{}),
	}
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[*memorySub]struct{})
	}
	b.subs[conversationID][sub] = struct{}{}

	return &Subscription{
		ConversationID: conversationID,
		C:              sub.ch,
		closeFn: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			close(sub.done)
			if set, ok := b.subs[conversationID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, conversationID)
				}
			}
		},
	}, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// RedisBroker lets several API instances share realtime events over Redis pub/sub
type RedisBroker struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisBroker(client *redis.Client, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

// ChannelName is the pub/sub channel carrying one conversation's events
func ChannelName(conversationID string) string {
	return "jootiya:conversation:" + conversationID
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelName(event.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, ChannelName(conversationID))

	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", conversationID, err)
	}

	out := make(chan Event, subscriptionBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Error().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed event")
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			}
		}
	}()

	return &Subscription{
		ConversationID: conversationID,
		C:              out,
		closeFn: func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				b.logger.Debug().Err(err).Msg("Error closing pubsub")
			}
		},
	}, nil
}

// Close releases the Redis connection pool
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
