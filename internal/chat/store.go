// internal/chat/store.go

package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the ordered message list of one open conversation. Every
// mutation is atomic with respect to the others.
type Store struct {
	fetcher HistoryFetcher
	timeout time.Duration

	mu       sync.Mutex
	messages []Message
	// in-flight sends: client message id -> temp id
	pending map[string]string
	version uint64

	notifyMu sync.Mutex
	notified uint64
	onChange func([]Message)
}

func NewStore(fetcher HistoryFetcher, timeout time.Duration) *Store {
	return &Store{
		fetcher: fetcher,
		timeout: timeout,
		pending: make(map[string]string),
	}
}

// OnChange registers the re-render hook. It receives a snapshot after
// every mutation and must not mutate the store synchronously.
func (s *Store) OnChange(fn func([]Message)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onChange = fn
}

// Load replaces the contents with the conversation history. On failure the
// store is left empty.
func (s *Store) Load(ctx context.Context, conversationID string) error {
	history, err := call(ctx, s.timeout, func(ctx context.Context) ([]Message, error) {
		return s.fetcher.FetchMessages(ctx, conversationID)
	})

	s.mu.Lock()
	if err != nil {
		s.messages = nil
	} else {
		s.messages = dedupe(history)
		sort.SliceStable(s.messages, func(i, j int) bool {
			return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
		})
	}
	s.pending = make(map[string]string)
	v, snap := s.commitLocked()
	s.mu.Unlock()
	s.emit(v, snap)

	if err != nil {
		return &FetchError{ConversationID: conversationID, Err: err}
	}
	return nil
}

func dedupe(history []Message) []Message {
	seen := make(map[string]struct{}, len(history))
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.Optimistic = false
		out = append(out, m)
	}
	return out
}

// Append adds msg at the end unless a message with the same id exists
func (s *Store) Append(msg Message) bool {
	s.mu.Lock()
	if s.indexLocked(msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, msg)
	v, snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(v, snap)
	return true
}

// AppendPending appends an optimistic placeholder and records it as an
// in-flight send, so its realtime echo is folded into it.
func (s *Store) AppendPending(placeholder Message) bool {
	s.mu.Lock()
	if s.indexLocked(placeholder.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	placeholder.Optimistic = true
	s.messages = append(s.messages, placeholder)
	if placeholder.ClientMsgID != "" {
		s.pending[placeholder.ClientMsgID] = placeholder.ID
	}
	v, snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(v, snap)
	return true
}

// ApplyInsert applies a realtime insert. It reports true only when the
// message was new to the store and appended at the end; an echo of an
// in-flight send replaces its placeholder in place instead.
func (s *Store) ApplyInsert(msg Message) bool {
	msg.Optimistic = false

	s.mu.Lock()
	if i := s.indexLocked(msg.ID); i >= 0 {
		changed := mergeReadLocked(&s.messages[i], msg.ReadAt)
		var v uint64
		var snap []Message
		if changed {
			v, snap = s.commitLocked()
		}
		s.mu.Unlock()
		if changed {
			s.emit(v, snap)
		}
		return false
	}

	if tempID, ok := s.pending[msg.ClientMsgID]; ok && msg.ClientMsgID != "" {
		if i := s.indexLocked(tempID); i >= 0 {
			s.messages[i] = msg
			delete(s.pending, msg.ClientMsgID)
			v, snap := s.commitLocked()
			s.mu.Unlock()
			s.emit(v, snap)
			return false
		}
		delete(s.pending, msg.ClientMsgID)
	}

	s.messages = append(s.messages, msg)
	v, snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(v, snap)
	return true
}

// Replace swaps a temporary entry for its confirmed counterpart, keeping its
// position. If the confirmed id is already present the temporary entry is
// dropped instead.
func (s *Store) Replace(tempID string, confirmed Message) bool {
	s.mu.Lock()
	ok := s.replaceLocked(tempID, confirmed)
	var v uint64
	var snap []Message
	if ok {
		v, snap = s.commitLocked()
	}
	s.mu.Unlock()

	if ok {
		s.emit(v, snap)
	}
	return ok
}

func (s *Store) replaceLocked(tempID string, confirmed Message) bool {
	i := s.indexLocked(tempID)
	if i < 0 {
		return false
	}
	delete(s.pending, s.messages[i].ClientMsgID)

	confirmed.Optimistic = false
	if j := s.indexLocked(confirmed.ID); j >= 0 && j != i {
		mergeReadLocked(&s.messages[j], confirmed.ReadAt)
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		return true
	}
	if prev := s.messages[i].ReadAt; prev != nil && confirmed.ReadAt == nil {
		confirmed.ReadAt = prev
	}
	s.messages[i] = confirmed
	return true
}

// Remove deletes a temporary entry
func (s *Store) Remove(tempID string) bool {
	s.mu.Lock()
	i := s.indexLocked(tempID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, s.messages[i].ClientMsgID)
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	v, snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(v, snap)
	return true
}

// Discard rolls back a failed send. If the realtime echo already replaced the
// placeholder, the send did reach the backend: the confirmed message is
// returned with true and nothing is removed.
func (s *Store) Discard(tempID, clientMsgID string) (Message, bool) {
	s.mu.Lock()
	if clientMsgID != "" {
		delete(s.pending, clientMsgID)
	}

	if i := s.indexLocked(tempID); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		v, snap := s.commitLocked()
		s.mu.Unlock()
		s.emit(v, snap)
		return Message{}, false
	}

	defer s.mu.Unlock()
	if clientMsgID == "" {
		return Message{}, false
	}
	for _, m := range s.messages {
		if m.ClientMsgID == clientMsgID && !m.Optimistic {
			return m, true
		}
	}
	return Message{}, false
}

// MarkRead sets the read time of the given messages that are still unread.
// It returns how many changed.
func (s *Store) MarkRead(ids []string, at time.Time) int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	changed := 0
	for i := range s.messages {
		if _, ok := want[s.messages[i].ID]; !ok {
			continue
		}
		if mergeReadLocked(&s.messages[i], &at) {
			changed++
		}
	}
	var v uint64
	var snap []Message
	if changed > 0 {
		v, snap = s.commitLocked()
	}
	s.mu.Unlock()

	if changed > 0 {
		s.emit(v, snap)
	}
	return changed
}

// ApplyUpdate merges a realtime update into the stored copy. The read
// time is only ever set, never cleared.
func (s *Store) ApplyUpdate(msg Message) bool {
	s.mu.Lock()
	i := s.indexLocked(msg.ID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	cur := &s.messages[i]
	changed := mergeReadLocked(cur, msg.ReadAt)
	if msg.Content != nil && msg.Content != cur.Content {
		cur.Content = msg.Content
		changed = true
	}
	var v uint64
	var snap []Message
	if changed {
		v, snap = s.commitLocked()
	}
	s.mu.Unlock()

	if changed {
		s.emit(v, snap)
	}
	return changed
}

func mergeReadLocked(m *Message, readAt *time.Time) bool {
	if m.ReadAt != nil || readAt == nil {
		return false
	}
	t := *readAt
	m.ReadAt = &t
	return true
}

// UnreadFrom returns the ids of confirmed messages not sent by userID that are still unread
func (s *Store) UnreadFrom(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, m := range s.messages {
		if m.SenderID != userID && m.ReadAt == nil && !m.Optimistic {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Snapshot returns a copy of the current list
func (s *Store) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Store) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.messages[i], true
	}
	return Message{}, false
}

// PendingCount is the number of sends still awaiting confirmation
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) commitLocked() (uint64, []Message) {
	s.version++
	return s.version, s.snapshotLocked()
}

// emit delivers snapshots in version order and skips stale ones
func (s *Store) emit(version uint64, snap []Message) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.onChange == nil || version <= s.notified {
		return
	}
	s.notified = version
	s.onChange(snap)
}
