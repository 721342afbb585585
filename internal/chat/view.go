// internal/chat/view.go

package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// View owns the pipeline of one open conversation for one user. Opening
// another conversation discards the previous store and subscription.
type View struct {
	backend  Backend
	userID   string
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
	onChange func([]Message)

	mu      sync.Mutex
	session *session
}

type session struct {
	conversationID string
	store          *Store
	sender         *Sender
	subscriber     *Subscriber
	reconciler     *Reconciler
}

func NewView(backend Backend, userID string, notifier Notifier, opts Options) *View {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = LogNotifier{Logger: opts.Logger}
	}
	return &View{
		backend:  backend,
		userID:   userID,
		notifier: notifier,
		opts:     opts,
		logger:   opts.Logger.With().Str("user_id", userID).Logger(),
	}
}

// OnChange sets the re-render hook of every conversation opened afterwards
func (v *View) OnChange(fn func([]Message)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
	if v.session != nil {
		v.session.store.OnChange(fn)
	}
}

// Open loads a conversation, subscribes to it and marks it read. Only a
// failed history load is returned; a realtime or read-marking failure
// leaves the view usable without live updates. v.mu is never held while the
// store notifies or a subscription stops, so the OnChange hook may read the view.
func (v *View) Open(ctx context.Context, conversationID string) error {
	opts := v.opts
	opts.Logger = v.logger.With().Str("conversation_id", conversationID).Logger()

	store := NewStore(v.backend.Rows, opts.OperationTimeout)
	reconciler := NewReconciler(v.backend.Rows, store, conversationID, v.userID, opts)
	s := &session{
		conversationID: conversationID,
		store:          store,
		sender:         NewSender(store, v.backend.Rows, v.backend.Objects, v.notifier, conversationID, v.userID, opts),
		subscriber:     NewSubscriber(v.backend.Realtime, store, reconciler, v.userID, opts),
		reconciler:     reconciler,
	}

	v.mu.Lock()
	store.OnChange(v.onChange)
	old := v.session
	v.session = s
	v.mu.Unlock()

	if old != nil {
		old.subscriber.Stop()
	}

	if err := store.Load(ctx, conversationID); err != nil {
		v.notifier.Notify(Notice{Text: "Messages could not be loaded.", Err: err})
		return err
	}

	if err := s.subscriber.Start(ctx, conversationID); err != nil {
		opts.Logger.Warn().Err(err).Msg("Live updates unavailable")
	}
	// a concurrent Open or Close may have replaced s before its stream existed
	if !v.isCurrent(s) {
		s.subscriber.Stop()
		return nil
	}

	if err := reconciler.MarkConversationRead(ctx); err != nil {
		opts.Logger.Warn().Err(err).Msg("Conversation not marked read")
	}
	return nil
}

// Close releases the subscription of the open conversation
func (v *View) Close() {
	v.mu.Lock()
	s := v.session
	v.session = nil
	v.mu.Unlock()

	if s != nil {
		s.subscriber.Stop()
	}
}

func (v *View) isCurrent(s *session) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session == s
}

func (v *View) current() (*session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return nil, ErrNotOpen
	}
	return v.session, nil
}

// ConversationID returns the open conversation, if any
func (v *View) ConversationID() string {
	s, err := v.current()
	if err != nil {
		return ""
	}
	return s.conversationID
}

// Messages returns a snapshot of the open conversation
func (v *View) Messages() []Message {
	s, err := v.current()
	if err != nil {
		return nil
	}
	return s.store.Snapshot()
}

func (v *View) SendText(ctx context.Context, body string) (*Message, error) {
	s, err := v.current()
	if err != nil {
		return nil, err
	}
	return s.sender.SendText(ctx, body)
}

func (v *View) SendImage(ctx context.Context, a Attachment) (*Message, error) {
	s, err := v.current()
	if err != nil {
		return nil, err
	}
	return s.sender.SendImage(ctx, a)
}

func (v *View) SendAudio(ctx context.Context, a Attachment, durationSeconds int) (*Message, error) {
	s, err := v.current()
	if err != nil {
		return nil, err
	}
	return s.sender.SendAudio(ctx, a, durationSeconds)
}

func (v *View) SendFile(ctx context.Context, a Attachment) (*Message, error) {
	s, err := v.current()
	if err != nil {
		return nil, err
	}
	return s.sender.SendFile(ctx, a)
}
