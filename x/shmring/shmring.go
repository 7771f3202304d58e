// Package shmring is a lock-free single-producer, single-consumer byte ring.
// The scan loop produces; any one other goroutine may consume.
package shmring

import "sync/atomic"

type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index, monotonic
	wr   atomic.Uint32 // producer index, monotonic

	readable chan struct{} // empty to non-empty edge
}

// New returns a ring of size bytes. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || size&(size-1) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) Space() int { return int(r.size() - (r.wr.Load() - r.rd.Load())) }

func (r *Ring) Available() int { return int(r.wr.Load() - r.rd.Load()) }

// TryWrite copies as much of src as fits and returns the count. It never
// blocks; the caller keeps whatever was not written.
func (r *Ring) TryWrite(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	rd, wr := r.rd.Load(), r.wr.Load()
	before := wr - rd
	n := min(int(r.size()-before), len(src))
	if n <= 0 {
		return 0
	}
	idx := wr & r.mask
	first := min(int(r.size()-idx), n)
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	copy(r.buf, src[first:n])
	r.wr.Store(wr + uint32(n))

	if before == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// TryRead copies up to len(dst) pending bytes and returns the count.
func (r *Ring) TryRead(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	rd, wr := r.rd.Load(), r.wr.Load()
	n := min(int(wr-rd), len(dst))
	if n <= 0 {
		return 0
	}
	idx := rd & r.mask
	first := min(int(r.size()-idx), n)
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	copy(dst[first:n], r.buf)
	r.rd.Store(rd + uint32(n))
	return n
}

// Readable is signalled when the ring goes from empty to non-empty.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Reset empties the ring. Only safe while neither side is active.
func (r *Ring) Reset() {
	r.rd.Store(0)
	r.wr.Store(0)
	select {
	case <-r.readable:
	default:
	}
}
