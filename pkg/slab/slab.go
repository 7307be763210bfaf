/*
 * STREAMCAP - Traffic Analysis Framework
 * Copyright (c) 2017-2020 Philipp Mieden <dreadl0ck [at] protonmail [dot] ch>
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package slab implements a fixed-ceiling, index-based free pool.
//
// The original C++ source (guidoreina/libpacket) recycles objects through
// raw-pointer free-stacks (net/ip/fragmented_packets.h, the TCP segment
// allocator referenced by net/ip/tcp/stream.cpp). design notes §9 ask for
// the same bounded-memory behavior expressed with stable integer handles
// instead of pointers, so cycles and dangling references are impossible by
// construction. Get/Put are O(1).
package slab

// Index is a handle into a Pool. Get issues handles starting at 0.
type Index int32

// NoIndex is the invalid handle, returned when a pool is exhausted.
const NoIndex Index = -1

// Pool is a fixed-ceiling slab of T, addressed by Index. It owns no
// pointers to T other than the backing slice, so growth via append never
// invalidates previously issued indices (the backing slice is pre-sized to
// the ceiling by New(capacity) and never reallocates).
type Pool[T any] struct {
	items []T
	free  []Index
	cap   int
}

// New creates a pool that will never hold more than capacity live items.
func New[T any](capacity int) *Pool[T] {
	return &Pool[T]{
		items: make([]T, 0, capacity),
		free:  make([]Index, 0, capacity),
		cap:   capacity,
	}
}

// Len returns the number of live (checked-out) items.
func (p *Pool[T]) Len() int {
	return len(p.items) - len(p.free)
}

// Cap returns the pool's fixed ceiling.
func (p *Pool[T]) Cap() int {
	return p.cap
}

// Get checks out a slot, zero-valuing it, and returns its handle. Returns
// NoIndex when the pool is exhausted (spec.md §7 NoMemory/PoolExhausted).
func (p *Pool[T]) Get() Index {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		var zero T
		p.items[idx] = zero
		return idx
	}

	if len(p.items) >= p.cap {
		return NoIndex
	}

	p.items = append(p.items, *new(T))
	return Index(len(p.items) - 1)
}

// At returns a pointer to the item backing idx. The pointer is only valid
// until the next Put(idx) reclaims the slot.
func (p *Pool[T]) At(idx Index) *T {
	return &p.items[idx]
}

// Put returns a slot to the free list. Callers must not use idx or any
// pointer obtained from At(idx) afterwards.
func (p *Pool[T]) Put(idx Index) {
	p.free = append(p.free, idx)
}
