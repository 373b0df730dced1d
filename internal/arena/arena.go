// Package arena implements a bounded bump allocator used by the message
// bus to hold inbound/outbound payload bytes without per-message heap
// churn. Unlike the original design's raw arena pointers, ownership never
// escapes the package: callers get back an opaque handle (an offset +
// length pair) and must read the bytes back through Arena.Bytes while
// holding no reference past a Reset.
package arena

import (
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// Handle identifies a byte range inside an Arena. It is only valid until
// the Arena that produced it is Reset.
type Handle struct {
	offset int
	length int
}

func (h Handle) Len() int { return h.length }

// Arena is a fixed-capacity bump allocator protected by a mutex. It never
// grows; once the backing buffer is exhausted, Alloc returns an
// ArenaFull error and the caller should apply backpressure (or Reset).
type Arena struct {
	mu   sync.Mutex
	buf  []byte
	used int
}

// New allocates an Arena with the given fixed capacity in bytes.
func New(capacity int) *Arena {
	if capacity <= 0 {
		capacity = 1
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Cap returns the arena's total byte capacity.
func (a *Arena) Cap() int {
	return len(a.buf)
}

// Used returns the number of bytes currently allocated.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Alloc copies data into the arena and returns a Handle referencing the
// copy. Returns ArenaFull if there is not enough remaining space.
func (a *Arena) Alloc(data []byte) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(data) > len(a.buf)-a.used {
		return Handle{}, corekind.New(corekind.ArenaFull, "arena.Alloc")
	}
	off := a.used
	copy(a.buf[off:], data)
	a.used += len(data)
	return Handle{offset: off, length: len(data)}, nil
}

// Bytes returns a read-only view of the bytes referenced by h. The
// returned slice aliases the arena's backing buffer and must not be
// retained past the next Reset.
func (a *Arena) Bytes(h Handle) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf[h.offset : h.offset+h.length]
}

// WithBytes invokes fn with the bytes referenced by h while holding the
// arena lock, guaranteeing the slice cannot be invalidated by a
// concurrent Reset mid-read. This is the preferred way to read arena
// data outside the arena package.
func (a *Arena) WithBytes(h Handle, fn func([]byte)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.buf[h.offset : h.offset+h.length])
}

// Reset reclaims all allocated space. Every Handle issued before Reset
// becomes invalid; callers must not dereference stale handles afterward.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = 0
}

// Remaining returns the number of unallocated bytes.
func (a *Arena) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf) - a.used
}
