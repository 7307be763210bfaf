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

// Package l4 demultiplexes the transport-layer header out of a contiguous
// IP packet, per spec.md §4.4. Grounded on
// original_source/net/ip/parser.cpp's process_tcp/process_udp/
// process_icmp{,v6}.
package l4

import (
	"encoding/binary"

	"github.com/dreadl0ck/streamcap/types"
)

const (
	tcpHeaderMinLen  = 20
	udpHeaderLen     = 8
	icmpHeaderLen    = 8
	icmpv6HeaderLen  = 8
)

// Demux fills in pkt.Protocol/L3Header/L4Payload given the contiguous IP
// packet in pkt.L2Header and the byte offset of the L4 header (iphdrLen).
// Returns false (discard) on any malformed header.
func Demux(pkt *types.Packet, proto types.Protocol, iphdrLen int) bool {
	l4 := pkt.L2Header[iphdrLen:pkt.IPLength]

	switch proto {
	case types.ProtoTCP:
		return demuxTCP(pkt, l4, iphdrLen)
	case types.ProtoUDP:
		return demuxUDP(pkt, l4, iphdrLen)
	case types.ProtoICMP:
		return demuxICMP(pkt, l4, iphdrLen, types.ProtoICMP, icmpHeaderLen)
	case types.ProtoICMPv6:
		return demuxICMP(pkt, l4, iphdrLen, types.ProtoICMPv6, icmpv6HeaderLen)
	default:
		return false
	}
}

func demuxTCP(pkt *types.Packet, l4 []byte, iphdrLen int) bool {
	if len(l4) < tcpHeaderMinLen {
		return false
	}

	dataOffset := int(l4[12]>>4) * 4
	if dataOffset < tcpHeaderMinLen || dataOffset > len(l4) {
		return false
	}

	pkt.Protocol = types.ProtoTCP
	pkt.L3Header = l4[:dataOffset]
	pkt.L4Payload = l4[dataOffset:]

	return true
}

func demuxUDP(pkt *types.Packet, l4 []byte, iphdrLen int) bool {
	if len(l4) < udpHeaderLen {
		return false
	}

	length := binary.BigEndian.Uint16(l4[4:6])
	if int(length) != len(l4) {
		return false
	}

	pkt.Protocol = types.ProtoUDP
	pkt.L3Header = l4[:udpHeaderLen]
	pkt.L4Payload = l4[udpHeaderLen:]

	return true
}

func demuxICMP(pkt *types.Packet, l4 []byte, iphdrLen int, proto types.Protocol, headerLen int) bool {
	if len(l4) < headerLen {
		return false
	}

	pkt.Protocol = proto
	pkt.L3Header = l4[:headerLen]
	pkt.L4Payload = l4[headerLen:]

	return true
}

// ParseTCPHeader extracts the fixed TCP header fields from a header slice
// previously produced by Demux.
func ParseTCPHeader(h []byte) types.TCPHeader {
	return types.TCPHeader{
		SrcPort:    binary.BigEndian.Uint16(h[0:2]),
		DstPort:    binary.BigEndian.Uint16(h[2:4]),
		Seq:        binary.BigEndian.Uint32(h[4:8]),
		Ack:        binary.BigEndian.Uint32(h[8:12]),
		DataOffset: (h[12] >> 4) * 4,
		Flags:      types.TCPFlags(h[13]).Mask(),
		Window:     binary.BigEndian.Uint16(h[14:16]),
	}
}

// ParseUDPHeader extracts the fixed UDP header fields.
func ParseUDPHeader(h []byte) types.UDPHeader {
	return types.UDPHeader{
		SrcPort: binary.BigEndian.Uint16(h[0:2]),
		DstPort: binary.BigEndian.Uint16(h[2:4]),
		Length:  binary.BigEndian.Uint16(h[4:6]),
	}
}

// ParseICMPHeader extracts the type/code common to ICMP and ICMPv6.
func ParseICMPHeader(h []byte) types.ICMPHeader {
	return types.ICMPHeader{Type: h[0], Code: h[1]}
}
