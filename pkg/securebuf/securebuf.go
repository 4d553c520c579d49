// Package securebuf provides fixed-length byte buffers for key material
// and plaintext secrets.
//
// A Buffer pins its backing storage against swapping (best effort,
// platform dependent) and scrubs the contents with random bytes when
// destroyed, so freed memory does not hold a recognizable key pattern.
// Go's runtime never relocates heap slices, so pinning reduces to locking
// the pages into RAM.
package securebuf

import (
	"crypto/rand"
	"errors"
	"runtime"
	"sync"
)

// ErrDestroyed is returned when a destroyed buffer is accessed.
var ErrDestroyed = errors.New("securebuf: buffer destroyed")

// Buffer is a fixed-length region of sensitive bytes. It is not safe for
// concurrent mutation; Destroy may race only with other Destroy calls.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	locked    bool
	destroyed bool
}

// New allocates a buffer of n zero bytes.
func New(n int) *Buffer {
	b := &Buffer{data: make([]byte, n)}
	b.locked = lockMemory(b.data) == nil
	return b
}

// FromBytes takes ownership of the given bytes: the contents are copied
// into a fresh pinned buffer and the source slice is wiped.
func FromBytes(src []byte) *Buffer {
	b := New(len(src))
	copy(b.data, src)
	wipe(src)
	return b
}

// Bytes returns the live contents. The slice aliases the pinned storage;
// callers must not retain it past the buffer's lifetime.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil
	}
	return b.data
}

// Len returns the buffer length, or 0 once destroyed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return 0
	}
	return len(b.data)
}

// Destroyed reports whether Destroy has run.
func (b *Buffer) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// Destroy scrubs the contents with random bytes and releases the page
// lock. It is idempotent. Random scrubbing is preferred over zeroing so
// a memory dump does not show a distinguishable cleared-key pattern;
// if the CSPRNG fails the buffer is zeroed instead.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	if _, err := rand.Read(b.data); err != nil {
		wipe(b.data)
	}
	runtime.KeepAlive(b.data)
	if b.locked {
		_ = unlockMemory(b.data)
	}
	b.data = nil
	b.destroyed = true
}

// wipe overwrites a slice with zeros without being optimized away.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
