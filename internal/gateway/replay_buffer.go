package gateway

import "sync"

// ReplayEntry is one broadcast envelope kept for backfill.
type ReplayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size ring of recent envelopes of one channel.
// Safe for concurrent use.
type ReplayBuffer struct {
	mu    sync.RWMutex
	ring  []ReplayEntry
	next  int
	count int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{ring: make([]ReplayEntry, capacity)}
}

// Push stores a copy of data under seq, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.ring[rb.next] = ReplayEntry{Seq: seq, Data: cp}
	rb.next = (rb.next + 1) % len(rb.ring)
	if rb.count < len(rb.ring) {
		rb.count++
	}
}

// Range returns the entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []ReplayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []ReplayEntry
	start := (rb.next - rb.count + len(rb.ring)) % len(rb.ring)
	for i := 0; i < rb.count; i++ {
		e := rb.ring[(start+i)%len(rb.ring)]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
