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

// Package metrics holds the prometheus collectors shared across the
// decode and reassembly engines, in the style of the per-stage gauges
// and counters DynamEq6388-netcap's decoder/stream package registers
// (tcpStreamFeedDataTime, tcpStreamProcessingTime, etc. in
// decoder/stream/tcpConnection.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsDecoded counts successfully decoded packets, labeled by IP
	// version.
	PacketsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcap",
		Subsystem: "decoder",
		Name:      "packets_decoded_total",
		Help:      "Number of packets successfully decoded, by IP version.",
	}, []string{"version"})

	// PacketsDiscarded counts packets dropped during decode, labeled by
	// the stage that rejected them (link, ip, link_type, ip_version).
	PacketsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcap",
		Subsystem: "decoder",
		Name:      "packets_discarded_total",
		Help:      "Number of packets discarded during decode, by stage.",
	}, []string{"stage"})

	// FragmentOutcomes is registered for fragment.Reassembler.Add
	// outcomes, labeled by outcome name (complete, duplicate, invalid,
	// no_memory). No package in this module increments it.
	FragmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcap",
		Subsystem: "fragment",
		Name:      "outcomes_total",
		Help:      "Fragment reassembly outcomes, by kind.",
	}, []string{"outcome"})

	// ConnectionsActive is the number of connections currently tracked
	// in the connection table.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcap",
		Subsystem: "tcp",
		Name:      "connections_active",
		Help:      "Number of TCP connections currently tracked.",
	})

	// ConnectionsClosed counts connections removed from the table by
	// Purge (labeled "closed" or "timeout") or by a failed transition
	// (labeled "failure").
	ConnectionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcap",
		Subsystem: "tcp",
		Name:      "connections_closed_total",
		Help:      "Number of TCP connections purged from the table, by final state.",
	}, []string{"state"})

	// SegmentsQueued is the out-of-order queue depth of the stream that
	// received the most recently fed segment.
	SegmentsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcap",
		Subsystem: "reassembly",
		Name:      "segments_queued",
		Help:      "Out-of-order queue depth of the most recently fed TCP stream.",
	})

	// GapsDetected counts forced gaps (queue depth exceeded before the
	// missing segment arrived).
	GapsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcap",
		Subsystem: "reassembly",
		Name:      "gaps_detected_total",
		Help:      "Number of gaps forced by out-of-order queue depth.",
	})

	// BytesDelivered counts TCP payload bytes fed to the stream
	// reassembler, labeled by direction. Retransmitted, queued and
	// ignored-stream bytes are counted as well.
	BytesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcap",
		Subsystem: "reassembly",
		Name:      "bytes_delivered_total",
		Help:      "TCP payload bytes fed to the stream reassembler, by direction.",
	}, []string{"direction"})
)
