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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPAddressV4RoundTrip(t *testing.T) {
	a := V4Bytes([]byte{192, 168, 1, 1})

	assert.True(t, a.IsV4())
	assert.Equal(t, FamilyV4, a.Family())
	assert.Equal(t, "192.168.1.1", a.String())
	assert.Equal(t, []byte{192, 168, 1, 1}, a.Bytes())
}

func TestIPAddressV6RoundTrip(t *testing.T) {
	raw := []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	a := V6Bytes(raw)

	assert.False(t, a.IsV4())
	assert.Equal(t, FamilyV6, a.Family())
	assert.Equal(t, raw, a.Bytes())
}

func TestIPAddressEqualIsFamilySensitive(t *testing.T) {
	v4 := V4(0x0a000001)

	var mapped [16]byte
	mapped[10] = 0xff
	mapped[11] = 0xff
	mapped[12] = 0x0a
	mapped[13] = 0x00
	mapped[14] = 0x00
	mapped[15] = 0x01
	v6 := V6(mapped)

	assert.False(t, v4.Equal(v6), "a v4 address must never equal its v6-mapped form")
	assert.True(t, v4.Equal(V4(0x0a000001)))
}

func TestIPAddressLessTotalOrder(t *testing.T) {
	a := V4(1)
	b := V4(2)
	v6 := V6Bytes([]byte{0x20, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))

	// Families never compare equal and must order consistently.
	assert.True(t, a.Less(v6))
	assert.False(t, v6.Less(a))
}

func TestIPAddressHashV4IsIdentity(t *testing.T) {
	a := V4(0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), a.Hash())
}

func TestIPAddressHashV6XorsLanes(t *testing.T) {
	raw := make([]byte, 16)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	a := V6Bytes(raw)

	want := uint32(0x01020304) ^ uint32(0x05060708) ^ uint32(0x090a0b0c) ^ uint32(0x0d0e0f10)
	assert.Equal(t, want, a.Hash())
}

func TestEndpointString(t *testing.T) {
	v4ep := Endpoint{Addr: V4Bytes([]byte{10, 0, 0, 1}), Port: 8080}
	assert.Equal(t, "10.0.0.1:8080", v4ep.String())

	v6ep := Endpoint{Addr: V6Bytes([]byte{0x20, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}), Port: 443}
	require.Contains(t, v6ep.String(), "]:443")
}

func TestEndpointEqual(t *testing.T) {
	a := Endpoint{Addr: V4(1), Port: 80}
	b := Endpoint{Addr: V4(1), Port: 80}
	c := Endpoint{Addr: V4(1), Port: 81}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
