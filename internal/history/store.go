// Package history persists the conversation as an append-only, time-ordered
// log of messages. Backends are sqlite (default), bolt and memory.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/comigor/panda-go/internal/config"
)

// ErrNotFound is returned when deleting a message that does not exist.
var ErrNotFound = errors.New("message not found")

// Store is the conversation log. Implementations are safe for concurrent use
// and publish the full ordered list to subscribers after every change.
type Store interface {
	// Append stores msg, assigning its ID and, if zero, its Timestamp.
	Append(ctx context.Context, msg *Message) error
	// List returns every message by ascending timestamp.
	List(ctx context.Context) ([]Message, error)
	Count(ctx context.Context) (int, error)
	// Latest returns up to n messages, newest first.
	Latest(ctx context.Context, n int) ([]Message, error)
	Delete(ctx context.Context, id int64) error
	// Clear removes every message atomically.
	Clear(ctx context.Context) error
	// Subscribe registers fn for snapshots; the returned func unsubscribes.
	Subscribe(fn func([]Message)) (cancel func())
	Close() error
}

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "bolt":
		s, err := OpenBolt(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func stamp(msg *Message, now func() time.Time) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now()
	}
}

func sortByTime(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

func newestFirst(msgs []Message, n int) []Message {
	if n <= 0 {
		return []Message{}
	}
	out := make([]Message, 0, min(n, len(msgs)))
	for i := len(msgs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, msgs[i])
	}
	return out
}
