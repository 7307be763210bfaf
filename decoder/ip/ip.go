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

// Package ip implements the IPv4/IPv6 header parser, including the IPv6
// extension-header walk and hookup to the fragment reassembler, per
// spec.md §4.2. Grounded on
// original_source/net/ip/parser.cpp's process_ipv4/process_ipv6.
package ip

import (
	"encoding/binary"

	"github.com/dreadl0ck/streamcap/decoder/fragment"
	"github.com/dreadl0ck/streamcap/decoder/l4"
	"github.com/dreadl0ck/streamcap/types"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40

	ipv4FlagMF     = 0x2000
	ipv4OffsetMask = 0x1fff
)

// isIPv6ExtensionHeader reports whether next is one of the chained
// extension header types spec.md §4.2 step 3 lists.
func isIPv6ExtensionHeader(next types.Protocol) bool {
	switch next {
	case types.ProtoHopByHop, types.ProtoRouting, types.ProtoDstOpts,
		types.ProtoFragment, types.ProtoMobility, types.ProtoHostIdent, types.ProtoShim6:
		return true
	default:
		return false
	}
}

// DecodeIPv4 parses an IPv4 header starting at buf[0], demuxing L4 or
// feeding the reassembler when the datagram is fragmented. ts is
// microseconds since epoch.
func DecodeIPv4(buf []byte, ts int64, reasm *fragment.Reassembler) (*types.Packet, bool) {
	if len(buf) <= ipv4HeaderMinLen {
		return nil, false
	}

	ihl := int(buf[0]&0x0f) * 4
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))

	if ihl < ipv4HeaderMinLen || ihl >= len(buf) || len(buf) < totalLen {
		return nil, false
	}

	fragOff := binary.BigEndian.Uint16(buf[6:8])
	proto := types.Protocol(buf[9])

	src := types.V4Bytes(buf[12:16])
	dst := types.V4Bytes(buf[16:20])

	if fragOff&(ipv4FlagMF|ipv4OffsetMask) == 0 {
		pkt := &types.Packet{
			Timestamp: ts,
			Version:   types.IPv4,
			IPLength:  totalLen,
			L2Header:  buf[:totalLen],
		}

		if !l4.Demux(pkt, proto, ihl) {
			return nil, false
		}

		return pkt, true
	}

	id := uint32(binary.BigEndian.Uint16(buf[4:6]))
	offsetBytes := (fragOff & ipv4OffsetMask) << 3
	last := fragOff&ipv4FlagMF == 0

	outcome, dg := reasm.Add(src, dst, proto, buf[:ihl], id, ts, offsetBytes, buf[ihl:totalLen], last)
	if outcome != fragment.Complete {
		return nil, false
	}

	return rebuildIPv4(dg, proto)
}

// rebuildIPv4 reconstructs a Packet from a completed IPv4 reassembly,
// rewriting the saved header's total length and clearing the
// fragmentation bits, then demuxing L4 — per spec.md §4.2 step 4.
func rebuildIPv4(dg *fragment.Datagram, proto types.Protocol) (*types.Packet, bool) {
	ihl := len(dg.IPHeader)
	total := ihl + len(dg.Payload)

	buf := make([]byte, total)
	copy(buf, dg.IPHeader)
	copy(buf[ihl:], dg.Payload)

	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	buf[6], buf[7] = 0, 0 // clear fragmentation bits

	pkt := &types.Packet{
		Timestamp: dg.Timestamp,
		Version:   types.IPv4,
		IPLength:  total,
		L2Header:  buf,
		Owned:     true,
	}

	if !l4.Demux(pkt, proto, ihl) {
		return nil, false
	}

	return pkt, true
}

// DecodeIPv6 parses an IPv6 header and walks its extension header chain,
// per spec.md §4.2.
func DecodeIPv6(buf []byte, ts int64, reasm *fragment.Reassembler) (*types.Packet, bool) {
	if len(buf) <= ipv6HeaderLen {
		return nil, false
	}

	payloadLen := int(binary.BigEndian.Uint16(buf[4:6]))
	if ipv6HeaderLen+payloadLen > len(buf) {
		return nil, false
	}

	src := types.V6Bytes(buf[8:24])
	dst := types.V6Bytes(buf[24:40])

	next := types.Protocol(buf[6])
	off := ipv6HeaderLen
	remaining := payloadLen

	for isIPv6ExtensionHeader(next) {
		if remaining < 8 {
			return nil, false
		}

		extLen := (int(buf[off+1]) + 1) * 8
		if extLen > remaining {
			return nil, false
		}

		if next == types.ProtoFragment {
			return decodeIPv6Fragment(buf, src, dst, ts, off, reasm)
		}

		next = types.Protocol(buf[off])
		off += extLen
		remaining -= extLen
	}

	totalLen := ipv6HeaderLen + payloadLen

	pkt := &types.Packet{
		Timestamp: ts,
		Version:   types.IPv6,
		IPLength:  totalLen,
		L2Header:  buf[:totalLen],
	}

	if !l4.Demux(pkt, next, off) {
		return nil, false
	}

	return pkt, true
}

// decodeIPv6Fragment handles an IPv6 Fragment extension header: it feeds
// the fragment payload to the reassembler keyed by the header's 32-bit
// ident, and on completion rebuilds a single IPv6 header whose
// next-header is the fragment's saved inner protocol.
func decodeIPv6Fragment(buf []byte, src, dst types.IPAddress, ts int64, off int, reasm *fragment.Reassembler) (*types.Packet, bool) {
	// Fragment extension header layout: next_header(1) reserved(1)
	// offset+flags(2) ident(4).
	innerNext := types.Protocol(buf[off])
	offlg := binary.BigEndian.Uint16(buf[off+2 : off+4])
	ident := binary.BigEndian.Uint32(buf[off+4 : off+8])

	offsetBytes := offlg &^ 0x7
	last := offlg&0x1 == 0

	fragPayloadStart := off + 8
	if fragPayloadStart > len(buf) {
		return nil, false
	}

	ipHeader := make([]byte, ipv6HeaderLen)
	copy(ipHeader, buf[:ipv6HeaderLen])

	outcome, dg := reasm.Add(src, dst, innerNext, ipHeader, ident, ts, offsetBytes, buf[fragPayloadStart:], last)
	if outcome != fragment.Complete {
		return nil, false
	}

	return rebuildIPv6(dg, innerNext)
}

// rebuildIPv6 reconstructs a Packet from a completed IPv6 fragment chain:
// a single IPv6 header with payload_len set to the rebuilt payload size
// and next_header set to the fragment's inner protocol.
func rebuildIPv6(dg *fragment.Datagram, innerNext types.Protocol) (*types.Packet, bool) {
	buf := make([]byte, ipv6HeaderLen+len(dg.Payload))
	copy(buf, dg.IPHeader)
	copy(buf[ipv6HeaderLen:], dg.Payload)

	binary.BigEndian.PutUint16(buf[4:6], uint16(len(dg.Payload)))
	buf[6] = byte(innerNext)

	pkt := &types.Packet{
		Timestamp: dg.Timestamp,
		Version:   types.IPv6,
		IPLength:  len(buf),
		L2Header:  buf,
		Owned:     true,
	}

	if !l4.Demux(pkt, innerNext, ipv6HeaderLen) {
		return nil, false
	}

	return pkt, true
}
