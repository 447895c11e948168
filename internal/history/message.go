package history

import "time"

// Message is a single persisted chat message. Messages are immutable once
// stored; they are only inserted or deleted.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	FromUser  bool      `json:"from_user"`
	Timestamp time.Time `json:"timestamp"`
}
