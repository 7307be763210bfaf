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

// Package types holds the shared data model: addresses, endpoints, the
// decoded packet record and the engine-wide configuration options.
package types

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Family identifies whether an IPAddress holds a v4 or v6 value.
type Family uint8

const (
	// FamilyV4 marks a 32-bit IPv4 address.
	FamilyV4 Family = iota
	// FamilyV6 marks a 128-bit IPv6 address.
	FamilyV6
)

// IPAddress is a tagged union over an IPv4 or IPv6 address, stored without
// heap allocation so connection lookups don't pressure the GC.
//
// Equality is family-sensitive: a v4 and a v6 address are never equal even
// if one is the IPv4-mapped form of the other.
type IPAddress struct {
	v4     uint32
	v6     [16]byte
	family Family
}

// V4 builds an IPAddress from a 32-bit host-order value.
func V4(addr uint32) IPAddress {
	return IPAddress{v4: addr, family: FamilyV4}
}

// V4Bytes builds an IPAddress from 4 network-order bytes.
func V4Bytes(b []byte) IPAddress {
	return V4(binary.BigEndian.Uint32(b))
}

// V6 builds an IPAddress from a 16-byte network-order address.
func V6(addr [16]byte) IPAddress {
	return IPAddress{v6: addr, family: FamilyV6}
}

// V6Bytes builds an IPAddress from a 16-byte network-order slice.
func V6Bytes(b []byte) IPAddress {
	var a [16]byte
	copy(a[:], b)
	return V6(a)
}

// Family reports whether this is a v4 or v6 address.
func (a IPAddress) Family() Family {
	return a.family
}

// IsV4 reports whether the address is IPv4.
func (a IPAddress) IsV4() bool {
	return a.family == FamilyV4
}

// Equal compares two addresses, family-sensitive.
func (a IPAddress) Equal(b IPAddress) bool {
	if a.family != b.family {
		return false
	}
	if a.family == FamilyV4 {
		return a.v4 == b.v4
	}
	return a.v6 == b.v6
}

// Less provides a total order, used to pick a canonical (a1, a2) pair when
// symmetrizing a 4-tuple (§4.5 hash commutativity, §4.3's addr comparisons).
func (a IPAddress) Less(b IPAddress) bool {
	if a.family != b.family {
		return a.family < b.family
	}
	if a.family == FamilyV4 {
		return a.v4 < b.v4
	}
	for i := range a.v6 {
		if a.v6[i] != b.v6[i] {
			return a.v6[i] < b.v6[i]
		}
	}
	return false
}

// Hash mixes a V4 address to its 32-bit word and a V6 address across its
// four 32-bit lanes, per spec.md §3.
func (a IPAddress) Hash() uint32 {
	if a.family == FamilyV4 {
		return a.v4
	}

	h := binary.BigEndian.Uint32(a.v6[0:4])
	h ^= binary.BigEndian.Uint32(a.v6[4:8])
	h ^= binary.BigEndian.Uint32(a.v6[8:12])
	h ^= binary.BigEndian.Uint32(a.v6[12:16])

	return h
}

// Bytes returns the address in network byte order.
func (a IPAddress) Bytes() []byte {
	if a.family == FamilyV4 {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, a.v4)
		return b
	}

	b := make([]byte, 16)
	copy(b, a.v6[:])
	return b
}

// String renders dotted-quad for v4, canonical IPv6 otherwise.
func (a IPAddress) String() string {
	if a.family == FamilyV4 {
		return net.IPv4(byte(a.v4>>24), byte(a.v4>>16), byte(a.v4>>8), byte(a.v4)).String()
	}

	return net.IP(a.v6[:]).String()
}

// Endpoint is an (address, port) pair.
type Endpoint struct {
	Addr IPAddress
	Port uint16
}

// Equal compares two endpoints.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Port == o.Port && e.Addr.Equal(o.Addr)
}

// String renders "A.B.C.D:p" for v4 and "[addr]:p" for v6.
func (e Endpoint) String() string {
	if e.Addr.IsV4() {
		return fmt.Sprintf("%s:%d", e.Addr.String(), e.Port)
	}

	return fmt.Sprintf("[%s]:%d", e.Addr.String(), e.Port)
}
