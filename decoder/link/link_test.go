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

package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreadl0ck/streamcap/types"
)

func ethFrame(etherType uint16, payload []byte) []byte {
	f := make([]byte, 14+len(payload))
	f[12] = byte(etherType >> 8)
	f[13] = byte(etherType)
	copy(f[14:], payload)
	return f
}

func TestDecodeEthernetIPv4(t *testing.T) {
	payload := []byte{0x45, 0, 0, 0, 0, 0, 0, 0}
	f := ethFrame(0x0800, payload)

	r := DecodeEthernet(f)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv4, r.Version)
	assert.Equal(t, 14, r.Offset)
	assert.Equal(t, len(payload), r.Length)
}

func TestDecodeEthernetIPv6(t *testing.T) {
	f := ethFrame(0x86DD, []byte{0x60, 0, 0, 0})
	r := DecodeEthernet(f)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv6, r.Version)
}

func TestDecodeEthernetTooShortIsDiscarded(t *testing.T) {
	r := DecodeEthernet(make([]byte, 10))
	assert.False(t, r.Ok)
}

func TestDecodeEthernetUnknownEtherTypeIsDiscarded(t *testing.T) {
	f := ethFrame(0x1234, []byte{1, 2, 3, 4})
	r := DecodeEthernet(f)
	assert.False(t, r.Ok)
}

func TestDecodeEthernetVLANTag(t *testing.T) {
	// 802.1Q tag (4 bytes: tpid already consumed at etherType position,
	// then tci) followed by the real EtherType and an IPv4 header.
	inner := append([]byte{0, 1, 0x08, 0x00}, 0x45, 0, 0, 0)
	f := ethFrame(0x8100, inner)

	r := DecodeEthernet(f)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv4, r.Version)
}

func TestDecodeEthernetDoubleTaggedVLAN(t *testing.T) {
	innerInner := append([]byte{0, 2, 0x86, 0xDD}, 0x60, 0, 0, 0)
	outer := append([]byte{0, 1, 0x81, 0x00}, innerInner...)
	f := ethFrame(0x88A8, outer)

	r := DecodeEthernet(f)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv6, r.Version)
}

func TestDecodeMPLSUnicastLabelZero(t *testing.T) {
	// label 0 => IPv4, bottom-of-stack bit set
	label := []byte{0x00, 0x00, 0x01, 0xff}
	f := ethFrame(0x8847, append(label, 0x45, 0, 0, 0))

	r := DecodeEthernet(f)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv4, r.Version)
}

func TestDecodeMPLSFallsBackToVersionNibble(t *testing.T) {
	// An explicit-null-incompatible label value with bottom-of-stack set;
	// version must be sniffed from the next byte.
	label := []byte{0x00, 0x10, 0x01, 0xff}
	f := ethFrame(0x8847, append(label, 0x60, 0, 0, 0))

	r := DecodeEthernet(f)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv6, r.Version)
}

func TestDecodeRaw(t *testing.T) {
	r := DecodeRaw([]byte{0x45, 0, 0, 0})
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv4, r.Version)
	assert.Equal(t, 0, r.Offset)

	r = DecodeRaw([]byte{0x00})
	assert.False(t, r.Ok)
}

func TestDecodeSLL(t *testing.T) {
	eth := ethFrame(0x0800, []byte{0x45, 0, 0, 0})

	frame := make([]byte, 2+len(eth))
	copy(frame[2:], eth)
	frame[0], frame[1] = 0, 1 // hatype = ARPHRD_ETHER, set after the copy
	frame[4], frame[5] = 0, 6 // halen

	r := DecodeSLL(frame)
	require.True(t, r.Ok)
	assert.Equal(t, types.IPv4, r.Version)
}

func TestDecodeSLLWrongHardwareTypeDiscarded(t *testing.T) {
	sll := make([]byte, 20)
	sll[1] = 9 // not ARPHRD_ETHER
	sll[5] = 6

	r := DecodeSLL(sll)
	assert.False(t, r.Ok)
}
