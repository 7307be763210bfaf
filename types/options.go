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

package types

import "github.com/pkg/errors"

// Sentinel configuration errors, returned by Options.Validate.
var (
	ErrHashTableSize    = errors.New("hash_table_size must be a power of two in [256, 2^32]")
	ErrMaxConnections   = errors.New("max_connections must be > 0")
	ErrIdleTimeout      = errors.New("idle_timeout_s must be >= 5")
	ErrTimeWait         = errors.New("time_wait_s must be >= 1")
	ErrMaxQueuedSegment = errors.New("max_queued_segments_per_stream must be > 0")
	ErrFragmentLimits   = errors.New("fragment limits must be > 0")
)

// Options is the single configuration struct threaded through the engine,
// in place of the teacher's global package-level `conf` — every engine
// constructs its own Options value rather than reading process-wide state
// (design notes §9, "Global statics and callback pointers").
type Options struct {
	// HashTableSize is the number of buckets in the connection table.
	// Must be a power of two in [256, 2^32].
	HashTableSize uint32

	// MaxConnections caps the number of simultaneously tracked connections.
	MaxConnections uint32

	// IdleTimeoutSeconds is how long a connection may sit without a packet
	// before it is eligible for expiry.
	IdleTimeoutSeconds uint64

	// TimeWaitSeconds is how long a Closed connection is retained to
	// absorb straggling ACKs/FINs.
	TimeWaitSeconds uint64

	// MaxQueuedSegmentsPerStream bounds the out-of-order queue per stream
	// direction before a gap is forced.
	MaxQueuedSegmentsPerStream int

	// MaxFragmentsPerPacket bounds fragments held per in-flight datagram.
	MaxFragmentsPerPacket int

	// MaxFragmentedPackets bounds the number of concurrently reassembling
	// datagrams.
	MaxFragmentedPackets int

	// FragmentMaxAgeSeconds is how long an incomplete datagram is kept
	// before being recycled.
	FragmentMaxAgeSeconds int64

	// StrictFragmentKey keys fragment reassembly on (src, dst, proto, id)
	// instead of the original's id-only key — see SPEC_FULL.md Open
	// Question 1.
	StrictFragmentKey bool

	// ExportMetrics is not read by any package; the prometheus collectors
	// in the metrics package are registered and updated regardless.
	ExportMetrics bool

	// Debug enables verbose spew-dump logging on unexpected states.
	Debug bool
}

// DefaultOptions returns the spec.md §6 defaults.
func DefaultOptions() Options {
	return Options{
		HashTableSize:              4096,
		MaxConnections:             1 << 20,
		IdleTimeoutSeconds:         7200,
		TimeWaitSeconds:            120,
		MaxQueuedSegmentsPerStream: 4096,
		MaxFragmentsPerPacket:      8192,
		MaxFragmentedPackets:       1024,
		FragmentMaxAgeSeconds:      30,
	}
}

// Validate checks the options against spec.md §6's stated ranges.
func (o Options) Validate() error {
	if o.HashTableSize < 256 || (o.HashTableSize&(o.HashTableSize-1)) != 0 {
		return ErrHashTableSize
	}
	if o.MaxConnections == 0 {
		return ErrMaxConnections
	}
	if o.IdleTimeoutSeconds < 5 {
		return ErrIdleTimeout
	}
	if o.TimeWaitSeconds < 1 {
		return ErrTimeWait
	}
	if o.MaxQueuedSegmentsPerStream <= 0 {
		return ErrMaxQueuedSegment
	}
	if o.MaxFragmentsPerPacket <= 0 || o.MaxFragmentedPackets <= 0 || o.FragmentMaxAgeSeconds <= 0 {
		return ErrFragmentLimits
	}

	return nil
}
