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

// Package cidr implements a binary trie over address bytes for CIDR
// containment and longest-prefix-match lookups — the "trie for CIDR
// lookup" supporting primitive spec.md §2 names, grounded on the bit-by-bit
// walk the original implementation's net/ip/address_list performs, adapted
// here into a tree keyed by individual address bits instead of a sorted
// list of ranges.
package cidr

import "github.com/dreadl0ck/streamcap/types"

type node struct {
	children [2]*node
	value    int32 // -1 when this node doesn't terminate a registered network
}

// Trie is a binary trie over IPv4 or IPv6 address bits. A single Trie holds
// only one address family; callers track two tries if they need both.
type Trie struct {
	root   *node
	family types.Family
}

// New creates an empty trie for the given address family.
func New(family types.Family) *Trie {
	return &Trie{root: &node{value: -1}, family: family}
}

func bitWidth(family types.Family) int {
	if family == types.FamilyV4 {
		return 32
	}
	return 128
}

func bit(b []byte, i int) int {
	return int((b[i/8] >> (7 - uint(i%8))) & 1)
}

// Insert registers network/prefixBits with an arbitrary caller-defined
// value (e.g. a service id). A prefixBits of 0 matches every address of
// this trie's family.
func (t *Trie) Insert(network types.IPAddress, prefixBits int, value int32) {
	if network.Family() != t.family {
		return
	}

	b := network.Bytes()
	n := t.root

	for i := 0; i < prefixBits; i++ {
		c := bit(b, i)
		if n.children[c] == nil {
			n.children[c] = &node{value: -1}
		}
		n = n.children[c]
	}

	n.value = value
}

// Contains reports whether addr falls within any registered network.
func (t *Trie) Contains(addr types.IPAddress) bool {
	_, ok := t.LongestMatch(addr)
	return ok
}

// LongestMatch returns the value of the most specific registered network
// containing addr, walking the trie from the root and remembering the
// deepest terminating node seen along the way.
func (t *Trie) LongestMatch(addr types.IPAddress) (int32, bool) {
	if addr.Family() != t.family {
		return 0, false
	}

	b := addr.Bytes()
	n := t.root

	var (
		best   int32 = -1
		found  bool
		width  = bitWidth(t.family)
	)

	if n.value != -1 {
		best, found = n.value, true
	}

	for i := 0; i < width && n != nil; i++ {
		n = n.children[bit(b, i)]
		if n == nil {
			break
		}
		if n.value != -1 {
			best, found = n.value, true
		}
	}

	return best, found
}
