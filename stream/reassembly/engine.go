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

package reassembly

import (
	"go.uber.org/zap"

	"github.com/dreadl0ck/streamcap/decoder/l4"
	"github.com/dreadl0ck/streamcap/metrics"
	"github.com/dreadl0ck/streamcap/stream/tcp"
	"github.com/dreadl0ck/streamcap/types"
)

// Engine wires a tcp.Table to a pair of Stream slots per connection, per
// spec.md §4.6's "Parallel slot indexing": slot_index = connection_id*2 +
// direction. The slot vector grows lazily instead of being preallocated
// to 2*max_connections, since a Go map costs nothing for the (large)
// unused range a fixed slab would otherwise reserve.
type Engine struct {
	table *tcp.Table
	cb    Callbacks
	opts  types.Options

	slots map[int64]*slotPair

	log *zap.Logger
}

// slotPair holds the two per-direction streams for one connection id,
// tagged with the creation timestamp of the connection that opened them
// so Feed can detect the id being recycled by an unrelated later
// connection (§4.6: "the engine calls terminate first whenever ... the
// slot was live").
type slotPair struct {
	streams  [2]*Stream
	creation int64
}

// New builds an Engine over a fresh connection table.
func New(opts types.Options, cb Callbacks, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		table: tcp.New(opts, log),
		cb:    cb,
		opts:  opts,
		slots: make(map[int64]*slotPair),
		log:   log,
	}
}

// Feed processes one decoded TCP packet: tracks the connection, opens or
// reuses its stream slot, and feeds the segment to the reassembler.
// Returns false when the packet was dropped by the connection tracker
// (failed transition or exhausted pool).
func (e *Engine) Feed(pkt *types.Packet, ts int64) bool {
	if pkt.Protocol != types.ProtoTCP {
		return false
	}

	hdr := l4.ParseTCPHeader(pkt.L3Header)

	conn, dir, ok := e.table.Process(pkt, hdr, ts)
	if !ok {
		return false
	}

	pair, exists := e.slots[conn.ID]

	// A connection the table admitted on this packet has not been counted
	// in either direction yet; mid-stream connections all share a zero
	// CreationTimestamp, so the timestamp alone cannot tell them apart.
	fresh := conn.PacketsFromClient == 0 && conn.PacketsFromServer == 0

	if exists && (fresh || pair.creation != conn.CreationTimestamp) {
		// The slab slot behind this id was recycled for an unrelated
		// connection: flush whatever streams are still open on it
		// before starting fresh.
		for i, st := range pair.streams {
			if st != nil {
				st.Terminate()
				pair.streams[i] = nil
			}
		}
		pair.creation = conn.CreationTimestamp
	} else if !exists {
		pair = &slotPair{creation: conn.CreationTimestamp}
		e.slots[conn.ID] = pair
	}

	st := pair.streams[dir]
	if st == nil {
		st = NewStream(conn, dir, e.cb, e.opts.MaxQueuedSegmentsPerStream)
		pair.streams[dir] = st
	}

	st.Add(hdr.Seq, hdr.Flags, pkt.L4Payload)

	metrics.BytesDelivered.WithLabelValues(dir.String()).Add(float64(len(pkt.L4Payload)))
	metrics.SegmentsQueued.Set(float64(len(st.queue)))

	return true
}

// Purge runs tcp.Table.Purge and terminates every stream slot belonging
// to an expired connection, per spec.md §4.5/§4.6.
func (e *Engine) Purge(now int64) {
	expired := e.table.Purge(now)

	for _, conn := range expired {
		pair, ok := e.slots[conn.ID]
		if !ok {
			continue
		}

		for _, st := range pair.streams {
			if st != nil {
				st.Terminate()
			}
		}

		delete(e.slots, conn.ID)
	}
}
