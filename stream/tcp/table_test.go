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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreadl0ck/streamcap/types"
)

func testTableOpts() types.Options {
	o := types.DefaultOptions()
	o.HashTableSize = 256
	o.MaxConnections = 4
	o.IdleTimeoutSeconds = 5
	o.TimeWaitSeconds = 1
	return o
}

// ipPacket builds a bare IPv4 header (no L4 bytes needed by Table.Process)
// with the given source and destination addresses.
func ipPacket(srcA, srcB, srcC, srcD, dstA, dstB, dstC, dstD byte) *types.Packet {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	copy(hdr[12:16], []byte{srcA, srcB, srcC, srcD})
	copy(hdr[16:20], []byte{dstA, dstB, dstC, dstD})
	return &types.Packet{Version: types.IPv4, L2Header: hdr}
}

// clientToServer builds the packet as seen traveling from 10.0.0.1 to
// 10.0.0.2 (the client's original SYN direction on the wire).
func clientToServer() *types.Packet {
	return ipPacket(10, 0, 0, 1, 10, 0, 0, 2)
}

// serverToClient builds the packet as seen traveling the other way on the
// wire: a real reply has its IP addresses swapped relative to the SYN.
func serverToClient() *types.Packet {
	return ipPacket(10, 0, 0, 2, 10, 0, 0, 1)
}

func TestTableHandshakeLifecycle(t *testing.T) {
	table := New(testTableOpts(), nil)

	conn, dir, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagSYN}, 1000)
	require.True(t, ok)
	assert.Equal(t, types.FromClient, dir)
	assert.Equal(t, types.ConnRequested, conn.State)
	id := conn.ID

	conn2, dir2, ok := table.Process(serverToClient(), types.TCPHeader{SrcPort: 80, DstPort: 5000, Flags: types.FlagSYN | types.FlagACK}, 1001)
	require.True(t, ok)
	assert.Equal(t, types.FromServer, dir2)
	assert.Equal(t, types.ConnEstablished, conn2.State)
	assert.Equal(t, id, conn2.ID)

	conn3, dir3, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagACK}, 1002)
	require.True(t, ok)
	assert.Equal(t, types.FromClient, dir3)
	assert.Equal(t, types.DataTransfer, conn3.State)
}

func TestTableIllegalTransitionEvictsConnection(t *testing.T) {
	table := New(testTableOpts(), nil)

	_, _, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagSYN}, 1000)
	require.True(t, ok)

	// FIN in ConnRequested is illegal: the connection is evicted and the
	// packet dropped.
	_, _, ok = table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagFIN}, 1001)
	assert.False(t, ok)

	// A fresh SYN for the same tuple now starts a brand new connection.
	conn, _, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagSYN}, 1002)
	require.True(t, ok)
	assert.Equal(t, types.ConnRequested, conn.State)
}

func TestTablePoolExhaustionRefusesNewConnections(t *testing.T) {
	opts := testTableOpts()
	opts.MaxConnections = 1
	table := New(opts, nil)

	_, _, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 1000, DstPort: 80, Flags: types.FlagSYN}, 1000)
	require.True(t, ok)

	_, _, ok = table.Process(clientToServer(), types.TCPHeader{SrcPort: 1001, DstPort: 80, Flags: types.FlagSYN}, 1000)
	assert.False(t, ok)
}

func TestTablePurgeExpiresIdleConnections(t *testing.T) {
	opts := testTableOpts()
	opts.IdleTimeoutSeconds = 5
	table := New(opts, nil)

	conn, _, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagSYN}, 1_000_000)
	require.True(t, ok)

	expired := table.Purge(1_000_000 + 4_000_000) // within idle timeout
	assert.Empty(t, expired)

	expired = table.Purge(1_000_000 + 6_000_000) // past idle timeout
	require.Len(t, expired, 1)
	assert.Equal(t, conn.ID, expired[0].ID)
}

func TestTablePurgeRespectsTimeWaitForClosed(t *testing.T) {
	opts := testTableOpts()
	opts.TimeWaitSeconds = 2
	table := New(opts, nil)

	_, _, ok := table.Process(clientToServer(), types.TCPHeader{SrcPort: 5000, DstPort: 80, Flags: types.FlagSYN}, 1_000_000)
	require.True(t, ok)
	_, _, ok = table.Process(serverToClient(), types.TCPHeader{SrcPort: 80, DstPort: 5000, Flags: types.FlagRST | types.FlagACK}, 1_000_100)
	require.True(t, ok)

	expired := table.Purge(1_000_100 + 1_000_000) // 1s later, within time_wait
	assert.Empty(t, expired)

	expired = table.Purge(1_000_100 + 3_000_000) // 3s later, past time_wait
	require.Len(t, expired, 1)
}
