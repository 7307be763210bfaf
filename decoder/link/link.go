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

// Package link implements the link-layer decoder: it maps a raw captured
// frame to the offset and length of the IP packet it carries, per
// spec.md §4.1. It understands Ethernet, 802.1Q/802.1ad VLAN tagging, MPLS
// label stacks, Linux cooked capture (SLL) and bare (raw) IP framing.
//
// Grounded on net::ip::parser::process_ethernet in
// original_source/net/ip/parser.cpp; the EtherType dispatch loop and the
// MPLS bottom-of-stack walk are carried over structurally, translated from
// pointer arithmetic over a single byte slice to slice re-slicing.
package link

import "github.com/dreadl0ck/streamcap/types"

const (
	etherTypeIPv4    = 0x0800
	etherTypeIPv6    = 0x86DD
	etherTypeVLAN    = 0x8100
	etherTypeSVLAN   = 0x88A8
	etherTypeMPLSUC  = 0x8847
	etherTypeMPLSMC  = 0x8848
	etherHeaderLen   = 14
	sllHeaderExtra   = 2 // SLL header is 2 bytes longer than Ethernet
	arphrdEther      = 1
	sllAddressLength = 6
)

// Result is the outcome of decoding a frame's link layer: the IP version
// found and the byte range ([Offset:Offset+Length)) of the IP packet within
// the original frame. Ok is false when the frame was discarded.
type Result struct {
	Version types.IPVersion
	Offset  int
	Length  int
	Ok      bool
}

func discard() Result { return Result{} }

// DecodeEthernet decodes an Ethernet frame (with optional VLAN/MPLS
// encapsulation), per spec.md §4.1.
func DecodeEthernet(frame []byte) Result {
	if len(frame) <= etherHeaderLen {
		return discard()
	}

	offset := 12 // EtherType position
	remaining := len(frame) - etherHeaderLen

	for {
		if offset+2 > len(frame) {
			return discard()
		}

		etherType := uint16(frame[offset])<<8 | uint16(frame[offset+1])

		switch etherType {
		case etherTypeIPv4:
			return dispatch(types.IPv4, frame, offset+2)
		case etherTypeIPv6:
			return dispatch(types.IPv6, frame, offset+2)
		case etherTypeVLAN, etherTypeSVLAN:
			if remaining <= 4 {
				return discard()
			}
			offset += 4
			remaining -= 4
		case etherTypeMPLSUC, etherTypeMPLSMC:
			return decodeMPLS(frame, offset+2)
		default:
			return discard()
		}
	}
}

// decodeMPLS walks 4-byte MPLS labels starting at off until the
// bottom-of-stack bit is set, then dispatches on the label value (0 = IPv4,
// 2 = IPv6) or, failing that, the first payload byte's IP version nibble.
func decodeMPLS(frame []byte, off int) Result {
	for {
		if off+4 > len(frame) {
			return discard()
		}

		b := frame[off : off+4]
		bottomOfStack := b[2]&0x01 != 0

		if bottomOfStack {
			label := (uint32(b[0])<<12 | uint32(b[1])<<8 | uint32(b[2])>>4) & 0x0fffff

			switch label {
			case 0:
				return dispatch(types.IPv4, frame, off+4)
			case 2:
				return dispatch(types.IPv6, frame, off+4)
			default:
				if off+4 >= len(frame) {
					return discard()
				}
				switch frame[off+4] & 0xf0 {
				case 0x40:
					return dispatch(types.IPv4, frame, off+4)
				case 0x60:
					return dispatch(types.IPv6, frame, off+4)
				default:
					return discard()
				}
			}
		}

		off += 4
	}
}

// DecodeRaw peeks the IP version nibble of a bare IP frame.
func DecodeRaw(frame []byte) Result {
	if len(frame) == 0 {
		return discard()
	}

	switch frame[0] & 0xf0 {
	case 0x40:
		return dispatch(types.IPv4, frame, 0)
	case 0x60:
		return dispatch(types.IPv6, frame, 0)
	default:
		return discard()
	}
}

// DecodeSLL decodes Linux cooked capture framing, restricted to
// ARPHRD_ETHER/6-byte hardware addresses. The 16-byte SLL header is 2
// bytes longer than an Ethernet header and ends in the protocol field, so
// the frame from byte 2 onward is decoded as an Ethernet frame.
func DecodeSLL(frame []byte) Result {
	const sllHeaderLen = etherHeaderLen + sllHeaderExtra

	if len(frame) <= sllHeaderLen {
		return discard()
	}

	hatype := uint16(frame[0])<<8 | uint16(frame[1])
	halen := uint16(frame[4])<<8 | uint16(frame[5])

	if hatype != arphrdEther || halen != sllAddressLength {
		return discard()
	}

	r := DecodeEthernet(frame[sllHeaderExtra:])
	if r.Ok {
		r.Offset += sllHeaderExtra
	}

	return r
}

// dispatch resolves the IP payload starting at off, peeking its version
// nibble defensively (the caller already knows it from the EtherType, but
// this keeps a single choke point for the "is there enough left" check).
func dispatch(version types.IPVersion, frame []byte, off int) Result {
	if off >= len(frame) {
		return discard()
	}

	return Result{Version: version, Offset: off, Length: len(frame) - off, Ok: true}
}
