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

// Packet is a decoded packet record, per spec.md §3. L2Header is the slice
// holding the IP header (and, for a reassembled datagram, the rebuilt
// contiguous buffer); L3Header and L4Payload are sub-slices of it, or of an
// owned reassembly buffer when the packet came from fragments.
//
// Invariant: L4Start+L4Length <= L2Start+IPLength (enforced by the decoders
// that populate a Packet; never adjusted after the fact).
type Packet struct {
	// Timestamp is microseconds since the Unix epoch.
	Timestamp int64

	// Version is the decoded IP version.
	Version IPVersion

	// IPLength is the total length of the IP packet (header + payload).
	IPLength int

	// L2Header is the IP header and payload, as a contiguous slice. For a
	// non-fragmented packet this aliases the caller's frame buffer; for a
	// reassembled datagram it is an owned copy (Owned is true).
	L2Header []byte

	// Protocol is the L4 protocol number carried by the IP packet.
	Protocol Protocol

	// L3Header is the L4 protocol header (TCP/UDP/ICMP/ICMPv6), a sub-slice
	// of L2Header.
	L3Header []byte

	// L4Payload is the application payload following the L4 header, a
	// sub-slice of L2Header.
	L4Payload []byte

	// Owned is true when L2Header is a buffer built by the fragment
	// reassembler rather than borrowed from the caller's frame.
	Owned bool
}

// PayloadLength returns the number of application bytes carried.
func (p *Packet) PayloadLength() int {
	return len(p.L4Payload)
}

// SrcAddr extracts the IP source address from L2Header, per the
// version-specific fixed header layout (IPv4 bytes [12:16], IPv6 bytes
// [8:24]).
func (p *Packet) SrcAddr() IPAddress {
	if p.Version == IPv4 {
		return V4Bytes(p.L2Header[12:16])
	}
	return V6Bytes(p.L2Header[8:24])
}

// DstAddr extracts the IP destination address from L2Header (IPv4 bytes
// [16:20], IPv6 bytes [24:40]).
func (p *Packet) DstAddr() IPAddress {
	if p.Version == IPv4 {
		return V4Bytes(p.L2Header[16:20])
	}
	return V6Bytes(p.L2Header[24:40])
}

// TCPHeader is a parsed TCP header view into Packet.L3Header.
type TCPHeader struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // header length in bytes
	Flags      TCPFlags
	Window     uint16
}

// UDPHeader is a parsed UDP header view into Packet.L3Header.
type UDPHeader struct {
	SrcPort uint16
	DstPort uint16
	Length  uint16
}

// ICMPHeader is a parsed ICMP/ICMPv6 header view into Packet.L3Header.
type ICMPHeader struct {
	Type uint8
	Code uint8
}
