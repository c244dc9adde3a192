package timing

import (
	"sync"
	"time"
)

// Record is a fixed-capacity, append-only history of onset offsets relative
// to the epoch. Once full, each append evicts the oldest entry.
type Record struct {
	mu        sync.Mutex
	buf       []time.Duration
	next      int
	n         int
	lastDelay time.Duration
}

func newRecord(capacity int) *Record {
	return &Record{buf: make([]time.Duration, capacity)}
}

// Append stores onset as the newest entry.
func (r *Record) Append(onset time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = onset
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// Snapshot returns the entries oldest first.
func (r *Record) Snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, r.n)
	start := (r.next - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Latest returns the newest entry, if any.
func (r *Record) Latest() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return 0, false
	}
	return r.buf[(r.next-1+len(r.buf))%len(r.buf)], true
}

// Len returns the number of stored entries.
func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the record capacity.
func (r *Record) Cap() int {
	return len(r.buf)
}

// SetLastDelay remembers the delay most recently applied on this channel.
func (r *Record) SetLastDelay(d time.Duration) {
	r.mu.Lock()
	r.lastDelay = d
	r.mu.Unlock()
}

// LastDelay returns the delay most recently applied on this channel.
func (r *Record) LastDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDelay
}
