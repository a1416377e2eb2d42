// internal/dupdet/dupdet.go
package dupdet

import (
	"sync"

	"github.com/dchest/siphash"
)

// MaxTracked bounds how many fingerprints a Tracker retains before the
// oldest are evicted.
const MaxTracked = 40_000

// Fingerprint hashes a raw frame for duplicate detection. SipHash-2-4 with a
// fixed zero key; this is a dedup fingerprint, not an authenticator.
func Fingerprint(data []byte) uint64 {
	return siphash.Hash(0, 0, data)
}

// Tracker is a bounded insertion-ordered set of frame fingerprints with
// strict FIFO eviction. A fingerprint never moves once inserted: repeats
// short-circuit before insertion, so a hit does not refresh its slot.
// Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	max   int
	index map[uint64]struct{}
	ring  []uint64
	head  int
	count int
}

// NewTracker returns a Tracker with the default MaxTracked capacity.
func NewTracker() *Tracker {
	return NewTrackerSize(MaxTracked)
}

// NewTrackerSize returns a Tracker holding at most max fingerprints.
func NewTrackerSize(max int) *Tracker {
	if max <= 0 {
		max = MaxTracked
	}
	return &Tracker{
		max:   max,
		index: make(map[uint64]struct{}, max),
		ring:  make([]uint64, max),
	}
}

// IsDuplicate reports whether fp has been seen while still tracked, and
// records it when it has not. Once a fingerprint has been evicted it is
// indistinguishable from one never seen.
func (t *Tracker) IsDuplicate(fp uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[fp]; ok {
		return true
	}
	if t.count == t.max {
		oldest := (t.head + t.max - t.count) % t.max
		delete(t.index, t.ring[oldest])
		t.count--
	}
	t.ring[t.head] = fp
	t.head = (t.head + 1) % t.max
	t.count++
	t.index[fp] = struct{}{}
	return false
}

// Len returns the number of fingerprints currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Reset forgets all tracked fingerprints.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index = make(map[uint64]struct{}, t.max)
	t.head = 0
	t.count = 0
}
