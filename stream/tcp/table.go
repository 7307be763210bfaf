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

package tcp

import (
	"go.uber.org/zap"

	"github.com/dreadl0ck/streamcap/metrics"
	"github.com/dreadl0ck/streamcap/pkg/slab"
	"github.com/dreadl0ck/streamcap/types"
)

// Table is the hash-bucketed connection table: buckets of chained
// connection indices backed by a single slab pool, per spec.md §4.5.
// Grounded on original_source/net/ip/tcp/connections.cpp's process_ and
// remove_expired.
type Table struct {
	pool    *slab.Pool[Connection]
	buckets [][]slab.Index
	mask    uint32

	maxConnections uint32
	nconns         uint32
	timeout        int64 // microseconds
	timeWait       int64 // microseconds

	log *zap.Logger
}

// New builds a Table from engine options. opts must already have passed
// Options.Validate.
func New(opts types.Options, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}

	return &Table{
		pool:           slab.New[Connection](int(opts.MaxConnections)),
		buckets:        make([][]slab.Index, opts.HashTableSize),
		mask:           opts.HashTableSize - 1,
		maxConnections: opts.MaxConnections,
		timeout:        int64(opts.IdleTimeoutSeconds) * 1_000_000,
		timeWait:       int64(opts.TimeWaitSeconds) * 1_000_000,
		log:            log,
	}
}

// Process admits or updates the connection matching pkt's four-tuple and
// TCP header, per spec.md §4.5's "Insertion" algorithm. now is the
// packet's timestamp in microseconds. ok is false when the packet must
// be dropped: either a transition failure evicted the matching
// connection, or the connection pool is exhausted.
func (t *Table) Process(pkt *types.Packet, hdr types.TCPHeader, now int64) (conn *Connection, dir types.Direction, ok bool) {
	srcAddr, dstAddr := pkt.SrcAddr(), pkt.DstAddr()

	bucket := connectionHash(srcAddr, dstAddr, hdr.SrcPort, hdr.DstPort) & t.mask
	stack := t.buckets[bucket]

	for i := len(stack) - 1; i >= 0; i-- {
		idx := stack[i]
		c := t.pool.At(idx)

		notTimedWaitExpired := c.State != types.Closed || c.LastPacketTimestamp+t.timeWait > now
		if !notTimedWaitExpired {
			stack = removeAt(stack, i)
			t.free(idx)
			continue
		}

		if c.LastPacketTimestamp+t.timeout <= now {
			stack = removeAt(stack, i)
			t.free(idx)
			continue
		}

		if d, matched := c.match(srcAddr, dstAddr, hdr.SrcPort, hdr.DstPort); matched {
			if c.process(d, hdr.Flags, now) {
				t.buckets[bucket] = stack
				return c, d, true
			}

			stack = removeAt(stack, i)
			t.free(idx)
			t.buckets[bucket] = stack

			metrics.ConnectionsClosed.WithLabelValues("failure").Inc()

			return nil, 0, false
		}
	}

	t.buckets[bucket] = stack

	idx := t.allocate()
	if idx == slab.NoIndex {
		return nil, 0, false
	}

	c = t.pool.At(idx)

	var state types.ConnState
	var ts int64

	switch {
	case hdr.Flags.Has(types.FlagSYN) && !hdr.Flags.Has(types.FlagACK):
		state = types.ConnRequested
		dir = types.FromClient
		ts = now
	case hdr.Flags.Has(types.FlagSYN) && hdr.Flags.Has(types.FlagACK):
		state = types.ConnEstablished
		dir = types.FromServer
		ts = now
	default:
		state = types.DataTransfer
		ts = 0
		if hdr.DstPort < hdr.SrcPort {
			dir = types.FromClient
		} else {
			dir = types.FromServer
		}
	}

	if dir == types.FromClient {
		c.assign(srcAddr, dstAddr, hdr.SrcPort, hdr.DstPort, state, ts, t.timeWait)
	} else {
		c.assign(dstAddr, srcAddr, hdr.DstPort, hdr.SrcPort, state, ts, t.timeWait)
	}

	// The connection id is the slab index, not a monotonically increasing
	// counter: the stream layer indexes its parallel slots by id (§4.6),
	// and a recycled slab slot must reuse the same pair of slots.
	c.ID = int64(idx)

	c.touch(now)

	t.buckets[bucket] = append(t.buckets[bucket], idx)
	t.nconns++

	metrics.ConnectionsActive.Inc()

	return c, dir, true
}

// Purge walks every bucket, evicting connections whose idle timeout or
// time-wait has elapsed, per spec.md §4.5's "Bulk expiry". Returns the
// evicted connections so the stream layer can flush their slots.
func (t *Table) Purge(now int64) []*Connection {
	var expired []*Connection

	for b, stack := range t.buckets {
		kept := stack[:0]

		for _, idx := range stack {
			c := t.pool.At(idx)

			var alive bool
			if c.State != types.Closed {
				alive = c.LastPacketTimestamp+t.timeout > now
			} else {
				alive = c.LastPacketTimestamp+t.timeWait > now
			}

			if alive {
				kept = append(kept, idx)
				continue
			}

			expired = append(expired, c)
			metrics.ConnectionsClosed.WithLabelValues(purgeLabel(c.State)).Inc()
			t.free(idx)
		}

		t.buckets[b] = kept
	}

	return expired
}

// allocate draws a connection from the pool, refusing once Options'
// MaxConnections is reached (spec.md §5's resource policy: new
// connections are refused silently when the pool is exhausted).
func (t *Table) allocate() slab.Index {
	if t.nconns >= t.maxConnections {
		return slab.NoIndex
	}
	return t.pool.Get()
}

func (t *Table) free(idx slab.Index) {
	t.pool.Put(idx)
	t.nconns--
	metrics.ConnectionsActive.Dec()
}

// removeAt swap-removes the element at i, mirroring connections.cpp's
// "move last into hole" bucket eviction.
func removeAt(s []slab.Index, i int) []slab.Index {
	last := len(s) - 1
	s[i] = s[last]
	return s[:last]
}

func purgeLabel(s types.ConnState) string {
	if s == types.Closed {
		return "closed"
	}
	return "timeout"
}
