package history

import (
	"slices"
	"sync"

	"github.com/sourcegraph/conc"
)

// Broadcaster fans snapshots out to subscribers. Publish waits until every
// subscriber has returned. Stores call Publish while holding their write
// lock, so subscribers must not write to the store they listen to.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]func([]Message)
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func([]Message))}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Broadcaster) Subscribe(fn func([]Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers a copy of snapshot to each subscriber concurrently.
func (b *Broadcaster) Publish(snapshot []Message) {
	b.mu.Lock()
	fns := make([]func([]Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, fn := range fns {
		msgs := slices.Clone(snapshot)
		wg.Go(func() { fn(msgs) })
	}
	wg.Wait()
}
