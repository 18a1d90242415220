// Package mpsc provides the multi-producer single-consumer ring buffer that
// carries queued player actions from the gateway workers and bot brains into
// the simulation tick. Producers are HTTP handler goroutines; the only
// consumer is the tick loop, which drains the ring once per step.
package mpsc

import (
	"runtime"
	"sync/atomic"
)

// cacheLineSize keeps the producer and consumer cursors on separate cache
// lines so concurrent pushes do not false-share with the drain.
const cacheLineSize = 64

type padding [cacheLineSize]byte

// slot pairs an item with its publication sequence. A slot at ring index i
// cycles through seq values: pos (free for the producer claiming position
// pos), pos+1 (item written, visible to the consumer), pos+capacity (free
// again for the next lap).
type slot[T any] struct {
	seq  uint64
	item T
}

// Ring is a bounded MPSC ring buffer. TryPush is safe for any number of
// concurrent producers; Drain must only ever run on the single consumer.
//
// Publication is per slot: a producer claims a position with a CAS on the
// head cursor, writes the item, then stores the slot sequence. The consumer
// reads the item only after the sequence shows the write landed, so a drain
// running concurrently with a push never observes a half-written or
// previous-lap slot.
type Ring[T any] struct {
	_ padding

	head uint64 // producer cursor
	_    padding

	tail uint64 // consumer cursor
	_    padding

	mask  uint64
	slots []slot[T]
}

// NewRing creates a ring with the given capacity, rounded up to a power of
// two.
func NewRing[T any](capacity int) *Ring[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}
	r := &Ring[T]{
		mask:  uint64(size - 1),
		slots: make([]slot[T], size),
	}
	for i := range r.slots {
		r.slots[i].seq = uint64(i)
	}
	return r
}

// TryPush claims a slot, writes the item, then publishes it. Returns false
// when the ring is full; callers treat that as backpressure and drop the
// action.
func (r *Ring[T]) TryPush(item T) bool {
	pos := atomic.LoadUint64(&r.head)
	for {
		s := &r.slots[pos&r.mask]
		seq := atomic.LoadUint64(&s.seq)

		switch {
		case seq == pos:
			if atomic.CompareAndSwapUint64(&r.head, pos, pos+1) {
				s.item = item
				atomic.StoreUint64(&s.seq, pos+1)
				return true
			}
			// Lost the claim race, retry at the new head.
			pos = atomic.LoadUint64(&r.head)
			runtime.Gosched()

		case seq < pos:
			// The slot still carries the previous lap: full.
			return false

		default:
			// Another producer claimed this position first.
			pos = atomic.LoadUint64(&r.head)
		}
	}
}

// tryPop removes one item. Single consumer only. A claimed but not yet
// published slot reads as empty, which preserves FIFO order: nothing
// behind it is taken early.
func (r *Ring[T]) tryPop() (T, bool) {
	var zero T

	tail := atomic.LoadUint64(&r.tail)
	s := &r.slots[tail&r.mask]
	if atomic.LoadUint64(&s.seq) != tail+1 {
		return zero, false
	}

	item := s.item
	s.item = zero
	atomic.StoreUint64(&s.seq, tail+r.mask+1)
	atomic.StoreUint64(&r.tail, tail+1)
	return item, true
}

// Drain appends every available item to buf and returns the result. The
// tick loop reuses one buffer across steps to stay allocation-free.
func (r *Ring[T]) Drain(buf []T) []T {
	for {
		item, ok := r.tryPop()
		if !ok {
			return buf
		}
		buf = append(buf, item)
	}
}

// Len returns the approximate number of queued items.
func (r *Ring[T]) Len() int {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return int(r.mask + 1)
}
