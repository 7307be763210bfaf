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

import "github.com/dreadl0ck/streamcap/types"

// rot rotates a 32-bit word left by k bits, the building block of Bob
// Jenkins' lookup3 mixing functions.
func rot(x uint32, k uint) uint32 {
	return (x << k) | (x >> (32 - k))
}

// mix scrambles three 32-bit words, per Jenkins' lookup3.c.
func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= rot(c, 4)
	c += b
	b -= a
	b ^= rot(a, 6)
	a += c
	c -= b
	c ^= rot(b, 8)
	b += a
	a -= c
	a ^= rot(c, 16)
	c += b
	b -= a
	b ^= rot(a, 19)
	a += c
	c -= b
	c ^= rot(b, 4)
	b += a
	return a, b, c
}

// final applies lookup3.c's avalanche finisher.
func final(a, b, c uint32) uint32 {
	c ^= b
	c -= rot(b, 14)
	a ^= c
	a -= rot(c, 11)
	b ^= a
	b -= rot(a, 25)
	c ^= b
	c -= rot(b, 16)
	a ^= c
	a -= rot(c, 4)
	b ^= a
	b -= rot(a, 14)
	c ^= b
	c -= rot(b, 24)
	return c
}

// hash3Words is the Jenkins-style mix the hash key is built from, per
// spec.md §4.5 and original_source/net/ip/tcp/hash.h's hash_3words calls.
func hash3Words(a, b, c uint32) uint32 {
	a, b, c = mix(a, b, c)
	return final(a, b, c)
}

// connectionHash computes the commutative four-tuple hash: sorting the
// (address, port) pair means both directions of a connection hash
// identically. Grounded on original_source/net/ip/tcp/hash.h.
func connectionHash(srcAddr, dstAddr types.IPAddress, srcPort, dstPort uint16) uint32 {
	switch {
	case srcPort < dstPort:
		return hash3Words(srcAddr.Hash(), dstAddr.Hash(), uint32(srcPort)<<16|uint32(dstPort))
	case srcPort > dstPort:
		return hash3Words(dstAddr.Hash(), srcAddr.Hash(), uint32(dstPort)<<16|uint32(srcPort))
	default:
		if !dstAddr.Less(srcAddr) {
			return hash3Words(srcAddr.Hash(), dstAddr.Hash(), uint32(srcPort)<<16|uint32(dstPort))
		}
		return hash3Words(dstAddr.Hash(), srcAddr.Hash(), uint32(dstPort)<<16|uint32(srcPort))
	}
}
