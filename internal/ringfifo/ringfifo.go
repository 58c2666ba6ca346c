// Package ringfifo implements the lock-free single-producer/single-consumer
// float queue spec.md §4.3 and §5 describe. Grounded structurally on the
// fixed-buffer-plus-indices idiom in other_examples'
// b186fc7f_doismellburning-samoyed__src-audio.go.go ring buffer, but rebuilt
// on sync/atomic instead of that file's mutex/condvar pair: spec.md §5
// requires genuinely lock-free SPSC semantics, which a mutex cannot give.
package ringfifo

import "sync/atomic"

// FIFO is a fixed-capacity ring buffer of float32 samples. A single
// goroutine may call Push; a single (possibly different) goroutine may call
// Pop. No other concurrent access is safe.
type FIFO struct {
	buf  []float32
	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned
}

// New allocates a FIFO holding up to capacity samples. One slot is reserved
// internally to distinguish full from empty (spec.md §3: capacity MAX_FIFO_SIZE+1).
func New(capacity int) *FIFO {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO{buf: make([]float32, capacity+1)}
}

func (f *FIFO) mask(i uint64) uint64 {
	return i % uint64(len(f.buf))
}

// Available reports the current fill count.
func (f *FIFO) Available() int {
	head := f.head.Load()
	tail := f.tail.Load()
	return int(head - tail)
}

// FreeSpace reports how many more samples Push will accept before Push
// starts returning false.
func (f *FIFO) FreeSpace() int {
	return len(f.buf) - 1 - f.Available()
}

// Push appends one sample, returning false if the FIFO is full. The caller
// must be the sole producer.
func (f *FIFO) Push(x float32) bool {
	head := f.head.Load()
	tail := f.tail.Load()
	if int(head-tail) >= len(f.buf)-1 {
		return false
	}
	f.buf[f.mask(head)] = x
	// Release: the write above must be visible before a consumer can see
	// the advanced head.
	f.head.Store(head + 1)
	return true
}

// Pop removes and returns one sample; ok is false if the FIFO is empty. The
// caller must be the sole consumer.
func (f *FIFO) Pop() (x float32, ok bool) {
	tail := f.tail.Load()
	head := f.head.Load()
	if tail == head {
		return 0, false
	}
	x = f.buf[f.mask(tail)]
	f.tail.Store(tail + 1)
	return x, true
}

// Reset drops all buffered samples, used by the orchestrator's start() to
// clear stale state (spec.md §4.7).
func (f *FIFO) Reset() {
	f.tail.Store(f.head.Load())
}

// Capacity returns the usable capacity (excluding the reserved slot).
func (f *FIFO) Capacity() int {
	return len(f.buf) - 1
}
