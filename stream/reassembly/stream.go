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

// Package reassembly implements the per-direction TCP stream reassembler:
// out-of-order segment queueing, gap detection, and in-order delivery via
// user callbacks, per spec.md §4.6. Grounded on
// original_source/net/ip/tcp/stream.cpp (guidoreina/libpacket); the queue
// is kept as a small sorted slice rather than stream.cpp's intrusive
// doubly-linked free-pool list, per design notes §9's alternative (b) —
// "a small-N sorted vector is often faster than a tree for typical queue
// depths."
package reassembly

import (
	"github.com/dreadl0ck/streamcap/metrics"
	"github.com/dreadl0ck/streamcap/types"
)

// lessThan compares sequence numbers in the 32-bit signed wraparound
// space, per spec.md §4.6: less_than(a,b) ≡ (int32)(a-b) < 0.
func lessThan(a, b uint32) bool {
	return int32(a-b) < 0
}

// segment is one queued out-of-order chunk of payload.
type segment struct {
	seq  uint32
	data []byte
}

func (s segment) end() uint32 { return s.seq + uint32(len(s.data)) }

// Callbacks bundles the four user-facing hooks spec.md §6 names. Any
// unset hook is treated as a no-op returning true (begin_stream: ok).
type Callbacks struct {
	BeginStream func(conn interface{}, dir types.Direction) (ok bool, userToken interface{})
	OnPayload   func(data []byte, streamOffset int64, conn interface{}, dir types.Direction, userToken interface{}) bool
	OnGap       func(gapSize int, streamOffset int64, conn interface{}, dir types.Direction, userToken interface{}) bool
	EndStream   func(conn interface{}, dir types.Direction, userToken interface{})
}

// Stream is one (connection, direction) reassembly slot.
type Stream struct {
	conn interface{}
	dir  types.Direction
	cb   Callbacks

	opened bool
	sawSeq bool // whether nextExpected has been initialized from a packet yet

	nextExpected uint32
	streamOffset int64

	queue []segment
	maxQueued int

	userToken interface{}
	ignore    bool
}

// NewStream opens a stream slot and invokes BeginStream. If BeginStream
// returns ok=false, the slot starts in the ignore state; a nil BeginStream
// opens the slot.
func NewStream(conn interface{}, dir types.Direction, cb Callbacks, maxQueued int) *Stream {
	s := &Stream{conn: conn, dir: dir, cb: cb, maxQueued: maxQueued}

	if cb.BeginStream == nil {
		s.opened = true
		return s
	}

	ok, token := cb.BeginStream(conn, dir)
	if !ok {
		s.ignore = true
		return s
	}

	s.userToken = token
	s.opened = true

	return s
}

// Ignore reports whether this stream has stopped processing (either
// BeginStream refused it, or a later callback returned false).
func (s *Stream) Ignore() bool { return s.ignore }

// Add inserts one TCP segment, per spec.md §4.6's "Insert" algorithm.
// flags is the already-masked 4-bit flag set.
func (s *Stream) Add(seq uint32, flags types.TCPFlags, payload []byte) {
	if s.ignore {
		return
	}

	if flags.Has(types.FlagSYN) {
		if !s.sawSeq {
			s.nextExpected = seq + 1
			s.sawSeq = true
		}
		return
	}

	if !s.sawSeq {
		s.nextExpected = seq
		s.sawSeq = true
	}

	if len(payload) == 0 {
		return
	}

	n := s.nextExpected

	switch {
	case seq == n:
		s.deliver(payload)
		s.drain()

	case lessThan(seq, n):
		end := seq + uint32(len(payload))
		if lessThan(n, end) {
			shift := n - seq
			s.deliver(payload[shift:])
			s.drain()
		}
		// else: entirely old data, drop.

	default: // seq is ahead of nextExpected: queue it.
		s.insertQueued(seq, payload)

		if len(s.queue) > s.maxQueued {
			s.forceGap()
		}
	}
}

// deliver hands payload to OnPayload and advances nextExpected/
// streamOffset. A false return cancels the stream.
func (s *Stream) deliver(payload []byte) {
	if len(payload) == 0 {
		return
	}

	ok := true
	if s.cb.OnPayload != nil {
		ok = s.cb.OnPayload(payload, s.streamOffset, s.conn, s.dir, s.userToken)
	}

	s.nextExpected += uint32(len(payload))
	s.streamOffset += int64(len(payload))

	if !ok {
		s.ignore = true
	}
}

// drain delivers any queued segment that has become current, re-reading
// nextExpected on every iteration — the literal fix for the ambiguity
// spec.md §9 flags around a gap notification advancing nextExpected
// mid-drain.
func (s *Stream) drain() {
	for !s.ignore && len(s.queue) > 0 {
		head := s.queue[0]
		n := s.nextExpected

		if lessThan(n, head.seq) {
			return
		}

		if lessThan(head.seq, n) {
			end := head.seq + uint32(len(head.data))
			if !lessThan(n, end) {
				// Fully stale, drop it.
				s.queue = s.queue[1:]
				continue
			}
			shift := n - head.seq
			s.queue = s.queue[1:]
			s.deliver(head.data[shift:])
			continue
		}

		// head.seq == n
		s.queue = s.queue[1:]
		s.deliver(head.data)
	}
}

// insertQueued walks the sorted queue from the tail, per spec.md §4.6's
// find-from-tail policy, trimming overlaps and dropping exact or
// fully-covered duplicates.
func (s *Stream) insertQueued(seq uint32, payload []byte) {
	newSeg := segment{seq: seq, data: append([]byte(nil), payload...)}

	i := len(s.queue)

	for i > 0 {
		cur := s.queue[i-1]

		switch {
		case lessThan(cur.seq, newSeg.seq):
			// cur starts before newSeg.
			if !lessThan(newSeg.seq, cur.end()) {
				// No overlap: newSeg goes right after cur.
				break
			}
			// Overlap: trim newSeg's head to abut cur's end.
			trim := cur.end() - newSeg.seq
			if trim >= uint32(len(newSeg.data)) {
				return // fully covered by cur
			}
			newSeg.seq = cur.end()
			newSeg.data = newSeg.data[trim:]

		case newSeg.seq == cur.seq:
			if len(newSeg.data) <= len(cur.data) {
				return // duplicate or fully covered by cur
			}
			// A longer resend: keep cur, fold in only the new tail
			// beyond what cur already covers, and insert right after
			// cur without continuing the backward walk — cur is never
			// removed, so walking further left would insert the
			// trimmed segment ahead of cur's still-smaller seq.
			newSeg.data = newSeg.data[len(cur.data):]
			newSeg.seq = cur.end()

		default: // newSeg.seq < cur.seq
			if lessThan(cur.seq, newSeg.end()) {
				// Overlaps cur from below: trim newSeg's tail.
				trim := newSeg.end() - cur.seq
				if trim >= uint32(len(newSeg.data)) {
					return
				}
				newSeg.data = newSeg.data[:uint32(len(newSeg.data))-trim]
			}
			i--
			continue
		}

		break
	}

	if len(newSeg.data) == 0 {
		return
	}

	s.queue = append(s.queue, segment{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = newSeg
}

// forceGap reports the gap between nextExpected and the queue head, per
// spec.md §4.6: "call on_gap(gap_size, stream_offset)", then resumes at
// the head's sequence number and drains.
func (s *Stream) forceGap() {
	if len(s.queue) == 0 {
		return
	}

	head := s.queue[0]
	gapSize := int(head.seq - s.nextExpected)
	metrics.GapsDetected.Inc()

	ok := true
	if s.cb.OnGap != nil {
		ok = s.cb.OnGap(gapSize, s.streamOffset, s.conn, s.dir, s.userToken)
	}

	s.streamOffset += int64(gapSize)
	s.nextExpected = head.seq

	if !ok {
		s.ignore = true
		return
	}

	s.drain()
}

// Terminate flushes any remaining queued segments via repeated gap
// notifications, then calls EndStream, per spec.md §4.6's "Terminate".
func (s *Stream) Terminate() {
	if s.ignore {
		return
	}

	for len(s.queue) > 0 {
		s.forceGap()
		if s.ignore {
			break
		}
	}

	if s.cb.EndStream != nil {
		s.cb.EndStream(s.conn, s.dir, s.userToken)
	}
}
