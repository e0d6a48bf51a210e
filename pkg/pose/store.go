package pose

import (
	"sync/atomic"
	"time"
)

// Sample is one published pose. Samples are immutable once stored.
type Sample struct {
	Pose   Pose
	Seq    uint64
	At     time.Time
	Source string
}

// Age returns how old the sample is relative to now.
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.At)
}

// Store publishes the latest pose as a single pointer swap. Readers never
// see a mix of fields from two different updates.
type Store struct {
	cur atomic.Pointer[Sample]
	seq atomic.Uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish records a new pose and returns its sequence number.
func (s *Store) Publish(p Pose, source string) uint64 {
	seq := s.seq.Add(1)
	s.cur.Store(&Sample{Pose: p, Seq: seq, At: time.Now(), Source: source})
	return seq
}

// Latest returns the newest sample. ok is false until the first Publish.
func (s *Store) Latest() (Sample, bool) {
	cur := s.cur.Load()
	if cur == nil {
		return Sample{}, false
	}
	return *cur, true
}

// Clear drops the current sample, e.g. when the pose source disconnects.
func (s *Store) Clear() {
	s.cur.Store(nil)
}
