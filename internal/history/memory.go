package history

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps the conversation in process memory.
type MemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	msgs    []Message
	nextID  int64
	now     func() time.Time
	bcast   *Broadcaster
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now, bcast: NewBroadcaster()}
}

func (s *MemoryStore) Append(_ context.Context, msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	stamp(msg, s.now)
	msg.ID = s.nextID
	s.nextID++
	s.msgs = append(s.msgs, *msg)
	sortByTime(s.msgs)
	snap := slices.Clone(s.msgs)
	s.mu.Unlock()

	s.bcast.Publish(snap)
	return nil
}

func (s *MemoryStore) List(context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.msgs), nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs), nil
}

func (s *MemoryStore) Latest(_ context.Context, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.msgs, n), nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	i := slices.IndexFunc(s.msgs, func(m Message) bool { return m.ID == id })
	if i == -1 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.msgs = slices.Delete(s.msgs, i, i+1)
	snap := slices.Clone(s.msgs)
	s.mu.Unlock()

	s.bcast.Publish(snap)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()

	s.bcast.Publish([]Message{})
	return nil
}

func (s *MemoryStore) Subscribe(fn func([]Message)) func() {
	return s.bcast.Subscribe(fn)
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
