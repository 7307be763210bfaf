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

// Package fragment implements the IP fragment reassembly engine described
// in spec.md §4.3, grounded on original_source/net/ip/fragmented_packet.cpp
// and fragmented_packets.cpp (guidoreina/libpacket). The insertion policy,
// the completeness test and the age-out/free-pool mechanics are carried
// over from that source; pointer-based free-stacks become slab.Pool
// indices per design notes §9.
package fragment

import (
	"github.com/dreadl0ck/streamcap/pkg/slab"
	"github.com/dreadl0ck/streamcap/types"
)

// PacketMaxLen is the maximum total size (IP header + fragments) of a
// reassembled datagram, per spec.md §3.
const PacketMaxLen = 256 * 1024

// Outcome is the result of Reassembler.Add, per spec.md §4.3 and §7.
type Outcome int

const (
	Incomplete Outcome = iota
	Complete
	Duplicate
	InvalidFragment
	NoMemory
)

// fragment is one piece of a datagram, offset already shifted out of the
// wire's 8-byte encoding.
type fragment struct {
	offset uint16
	data   []byte
	last   bool
}

func (f *fragment) end() int { return int(f.offset) + len(f.data) }

// key identifies an in-flight datagram. Endpoints/proto are always
// recorded but only compared when strict keying (Options.StrictFragmentKey)
// is enabled — see SPEC_FULL.md Open Question 1.
type key struct {
	id       uint32
	src, dst types.IPAddress
	proto    types.Protocol
	strict   bool
}

func (k key) matches(o key) bool {
	if k.id != o.id {
		return false
	}
	if !k.strict {
		return true
	}
	return k.proto == o.proto && k.src.Equal(o.src) && k.dst.Equal(o.dst)
}

// slot is one fragmented-packet-in-progress, holding its fragments sorted
// by offset.
type slot struct {
	key        key
	ipHeader   []byte
	firstSeen  int64
	dataLength int // sum of fragment payload lengths inserted so far
	fragments  []fragment
	inUse      bool
}

func (s *slot) totalLength() int {
	return len(s.ipHeader) + s.dataLength
}

// Datagram is a fully reassembled IP datagram: its original IP header
// (first fragment's) and the concatenation of fragment payloads in
// ascending-offset order.
type Datagram struct {
	IPHeader  []byte
	Payload   []byte
	Timestamp int64
}

// Reassembler is a bounded pool of reassembly slots, per spec.md §4.3: up
// to MaxFragmentedPackets datagrams in flight, each with up to
// MaxFragmentsPerPacket fragments.
type Reassembler struct {
	pool     *slab.Pool[slot]
	live     []slab.Index
	maxFrags int
	maxAge   int64 // microseconds
	strict   bool
}

// New builds a Reassembler from engine options.
func New(opts types.Options) *Reassembler {
	return &Reassembler{
		pool:     slab.New[slot](opts.MaxFragmentedPackets),
		maxFrags: opts.MaxFragmentsPerPacket,
		maxAge:   opts.FragmentMaxAgeSeconds * 1_000_000,
		strict:   opts.StrictFragmentKey,
	}
}

// Add inserts one fragment of a datagram identified by id (plus src/dst/
// proto when strict keying is enabled). iphdr is saved only from the first
// fragment (offset 0), matching the original's behavior of trusting the
// first-arriving offset-0 fragment for header reconstruction; until that
// fragment arrives, len(iphdr) stands in for the header size in the
// PacketMaxLen check.
func (r *Reassembler) Add(
	src, dst types.IPAddress,
	proto types.Protocol,
	iphdr []byte,
	id uint32,
	ts int64,
	offset uint16,
	data []byte,
	last bool,
) (Outcome, *Datagram) {
	if len(data) == 0 {
		return InvalidFragment, nil
	}

	k := key{id: id, src: src, dst: dst, proto: proto, strict: r.strict}

	idx := r.find(k, ts)
	if idx == slab.NoIndex {
		return NoMemory, nil
	}

	s := r.pool.At(idx)

	outcome := s.insert(k, iphdr, ts, offset, data, last, r.maxFrags)

	switch outcome {
	case Complete:
		dg := &Datagram{Timestamp: s.firstSeen}
		dg.IPHeader = append([]byte(nil), s.ipHeader...)
		buf := make([]byte, 0, s.dataLength)
		for _, f := range s.fragments {
			buf = append(buf, f.data...)
		}
		dg.Payload = buf

		r.free(idx)

		return Complete, dg
	case InvalidFragment, NoMemory:
		r.free(idx)
		return outcome, nil
	default:
		return outcome, nil
	}
}

// find locates (or allocates) the slot for k, aging out anything older than
// maxAge as it scans — mirrors fragmented_packets::get.
func (r *Reassembler) find(k key, ts int64) slab.Index {
	for i := 0; i < len(r.live); i++ {
		idx := r.live[i]
		s := r.pool.At(idx)

		if s.firstSeen+r.maxAge < ts {
			r.freeAt(i)
			i--
			continue
		}

		if s.key.matches(k) {
			return idx
		}
	}

	idx := r.pool.Get()
	if idx == slab.NoIndex {
		return slab.NoIndex
	}

	s := r.pool.At(idx)
	*s = slot{key: k, firstSeen: ts, inUse: true}
	r.live = append(r.live, idx)

	return idx
}

// free removes idx from the live list (by id, since the list may have
// shifted) and returns the slot to the pool.
func (r *Reassembler) free(idx slab.Index) {
	for i, v := range r.live {
		if v == idx {
			r.freeAt(i)
			return
		}
	}
}

// freeAt removes the live-list entry at position i (swap-remove, matching
// the original's move-last-into-hole eviction) and releases its slot.
func (r *Reassembler) freeAt(i int) {
	idx := r.live[i]
	last := len(r.live) - 1
	r.live[i] = r.live[last]
	r.live = r.live[:last]
	r.pool.Put(idx)
}

// insert implements fragmented_packet::add's find-from-tail policy.
func (s *slot) insert(k key, iphdr []byte, ts int64, offset uint16, data []byte, last bool, maxFrags int) Outcome {
	idx := len(s.fragments)

	for idx > 0 {
		cur := &s.fragments[idx-1]

		switch {
		case offset > cur.offset:
			if !cur.last && cur.end() <= int(offset) {
				goto insertAt
			}
			return InvalidFragment
		case offset < cur.offset:
			if !last && int(offset)+len(data) <= int(cur.offset) {
				idx--
				continue
			}
			return InvalidFragment
		default: // offset == cur.offset
			if len(data) == len(cur.data) && last == cur.last {
				return Duplicate
			}
			return InvalidFragment
		}
	}

insertAt:
	ipHdrEstimate := len(s.ipHeader)
	if ipHdrEstimate == 0 {
		ipHdrEstimate = len(iphdr)
	}
	if ipHdrEstimate+s.dataLength+len(data) > PacketMaxLen {
		return InvalidFragment
	}
	if len(s.fragments) >= maxFrags {
		return NoMemory
	}

	if offset == 0 {
		s.ipHeader = append([]byte(nil), iphdr...)
		s.key = k
		s.firstSeen = ts
	} else if len(s.fragments) == 0 {
		s.key = k
		s.firstSeen = ts
	}

	owned := append([]byte(nil), data...)
	f := fragment{offset: offset, data: owned, last: last}

	s.fragments = append(s.fragments, fragment{})
	copy(s.fragments[idx+1:], s.fragments[idx:])
	s.fragments[idx] = f

	s.dataLength += len(data)

	tail := &s.fragments[len(s.fragments)-1]
	if !tail.last || s.dataLength < tail.end() {
		return Incomplete
	}

	return Complete
}
