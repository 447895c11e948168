package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketMessages = []byte("chat_messages")

// BoltStore persists the conversation in a bbolt file. Keys are the
// big-endian message ID, values the JSON-encoded Message.
type BoltStore struct {
	writeMu sync.Mutex
	db      *bolt.DB
	now     func() time.Time
	bcast   *Broadcaster
}

// OpenBolt opens (creating if needed) the bolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		path = "panda.bolt"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketMessages)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, now: time.Now, bcast: NewBroadcaster()}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *BoltStore) Append(_ context.Context, msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stamp(msg, s.now)
	var snap []Message
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		msg.ID = int64(seq)
		enc, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := b.Put(itob(seq), enc); err != nil {
			return err
		}
		snap, err = readAll(b)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	s.bcast.Publish(snap)
	return nil
}

func (s *BoltStore) List(context.Context) ([]Message, error) {
	var out []Message
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = readAll(tx.Bucket(bucketMessages))
		return err
	})
	return out, err
}

func (s *BoltStore) Count(context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketMessages).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) Latest(ctx context.Context, n int) ([]Message, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return newestFirst(all, n), nil
}

func (s *BoltStore) Delete(_ context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var snap []Message
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		key := itob(uint64(id))
		if id <= 0 || b.Get(key) == nil {
			return ErrNotFound
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		var err error
		snap, err = readAll(b)
		return err
	})
	if err != nil {
		return err
	}
	s.bcast.Publish(snap)
	return nil
}

// Clear recreates the bucket in one transaction, carrying the ID sequence
// over so IDs are never reused.
func (s *BoltStore) Clear(context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		seq := tx.Bucket(bucketMessages).Sequence()
		if err := tx.DeleteBucket(bucketMessages); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketMessages)
		if err != nil {
			return err
		}
		return b.SetSequence(seq)
	})
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	s.bcast.Publish([]Message{})
	return nil
}

func (s *BoltStore) Subscribe(fn func([]Message)) func() {
	return s.bcast.Subscribe(fn)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func readAll(b *bolt.Bucket) ([]Message, error) {
	out := []Message{}
	err := b.ForEach(func(_, v []byte) error {
		var m Message
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByTime(out)
	return out, nil
}

var _ Store = (*BoltStore)(nil)
