// Package transcript holds the per-session record of what the two comedians
// said and the logic that turns an exchange into transcript entries.
//
// [Store] is the append-only transcript. [Map] and [Apply] resolve the
// relative roles of an [ExchangeRecord] (initiator / responder / system) into
// absolute speaker identities using a fixed two-party [Pair].
package transcript

import (
	"sync"
	"time"
)

// Identity names one of the two fixed conversation participants.
type Identity string

// Message is a single transcript entry. Messages are immutable once appended.
type Message struct {
	// Speaker is the participant who said Text.
	Speaker Identity `json:"speaker"`

	// Text is the message body exactly as generated.
	Text string `json:"text"`

	// Seq is the 1-indexed append position assigned by the [Store].
	Seq int `json:"seq"`

	// At is the wall-clock time the message was appended.
	At time.Time `json:"at"`
}

// Store is the append-only transcript of one session.
//
// A session has a single writer (the conversation driver). The mutex only
// exists so that presentation code can take snapshots while an exchange is
// appending.
type Store struct {
	mu   sync.RWMutex
	msgs []Message
	now  func() time.Time
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append adds a message and returns its sequence index. The n-th call returns n.
func (s *Store) Append(speaker Identity, text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := len(s.msgs) + 1
	s.msgs = append(s.msgs, Message{
		Speaker: speaker,
		Text:    text,
		Seq:     seq,
		At:      s.now(),
	})
	return seq
}

// All returns a snapshot of every message in append order. The returned slice
// is a copy; mutating it does not affect the store.
func (s *Store) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Since returns the messages with Seq greater than seq, in order.
func (s *Store) Since(seq int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= len(s.msgs) {
		return nil
	}
	out := make([]Message, len(s.msgs)-seq)
	copy(out, s.msgs[seq:])
	return out
}

// Len returns the number of messages appended so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
