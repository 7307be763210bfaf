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

package cidr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreadl0ck/streamcap/types"
)

func TestTrieLongestMatchPrefersMoreSpecific(t *testing.T) {
	tr := New(types.FamilyV4)

	tr.Insert(types.V4Bytes([]byte{10, 0, 0, 0}), 8, 1)
	tr.Insert(types.V4Bytes([]byte{10, 1, 0, 0}), 16, 2)

	v, ok := tr.LongestMatch(types.V4Bytes([]byte{10, 1, 2, 3}))
	assert.True(t, ok)
	assert.Equal(t, int32(2), v)

	v, ok = tr.LongestMatch(types.V4Bytes([]byte{10, 2, 2, 3}))
	assert.True(t, ok)
	assert.Equal(t, int32(1), v)
}

func TestTrieContainsMiss(t *testing.T) {
	tr := New(types.FamilyV4)
	tr.Insert(types.V4Bytes([]byte{192, 168, 0, 0}), 16, 1)

	assert.False(t, tr.Contains(types.V4Bytes([]byte{172, 16, 0, 1})))
}

func TestTrieZeroPrefixMatchesEverything(t *testing.T) {
	tr := New(types.FamilyV4)
	tr.Insert(types.V4Bytes([]byte{0, 0, 0, 0}), 0, 7)

	v, ok := tr.LongestMatch(types.V4Bytes([]byte{203, 0, 113, 5}))
	assert.True(t, ok)
	assert.Equal(t, int32(7), v)
}

func TestTrieFamilyMismatchIsIgnored(t *testing.T) {
	tr := New(types.FamilyV4)
	v6 := types.V6Bytes([]byte{0x20, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})

	tr.Insert(v6, 64, 1)
	_, ok := tr.LongestMatch(v6)
	assert.False(t, ok, "inserting a v6 network into a v4 trie must be a no-op")
}

func TestTrieIPv6LongestMatch(t *testing.T) {
	tr := New(types.FamilyV6)

	net1 := types.V6Bytes([]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	tr.Insert(net1, 32, 11)

	addr := types.V6Bytes([]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	v, ok := tr.LongestMatch(addr)
	assert.True(t, ok)
	assert.Equal(t, int32(11), v)
}
