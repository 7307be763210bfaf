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

// Package tcp implements the TCP connection tracker: the hash-bucketed
// connection table, the per-connection match/process logic and the
// simplified state machine, per spec.md §4.5. Grounded on
// original_source/net/ip/tcp/{connection.h,connection.cpp,connections.cpp}
// (guidoreina/libpacket); the transition table, including the
// retransmission-within-time_wait guard in DataTransfer, is carried over
// literally rather than re-derived.
package tcp

import "github.com/dreadl0ck/streamcap/types"

// Connection is one tracked TCP flow, keyed by the four-tuple of its
// initial SYN (or, for mid-stream captures, the first packet seen).
type Connection struct {
	ID int64

	Client types.Endpoint
	Server types.Endpoint

	State        types.ConnState
	ActiveCloser types.Originator

	CreationTimestamp   int64
	LastPacketTimestamp int64

	PacketsFromClient int64
	PacketsFromServer int64

	timeWait int64 // microseconds, copied from the owning table at assign time
}

// assign (re)initializes a freshly allocated connection slot — the Go
// analogue of connection::assign, called once when the table admits a
// new flow.
func (c *Connection) assign(srcAddr, dstAddr types.IPAddress, srcPort, dstPort uint16, state types.ConnState, ts int64, timeWait int64) {
	c.Client = types.Endpoint{Addr: srcAddr, Port: srcPort}
	c.Server = types.Endpoint{Addr: dstAddr, Port: dstPort}
	c.State = state
	c.CreationTimestamp = ts
	c.LastPacketTimestamp = 0
	c.PacketsFromClient = 0
	c.PacketsFromServer = 0
	c.timeWait = timeWait
}

// touch updates the last-packet timestamp.
func (c *Connection) touch(ts int64) {
	c.LastPacketTimestamp = ts
}

// match reports whether (srcAddr, srcPort, dstAddr, dstPort) belongs to
// this connection, and if so, from which direction.
func (c *Connection) match(srcAddr, dstAddr types.IPAddress, srcPort, dstPort uint16) (types.Direction, bool) {
	if c.Client.Port == srcPort && c.Server.Port == dstPort &&
		c.Client.Addr.Equal(srcAddr) && c.Server.Addr.Equal(dstAddr) {
		return types.FromClient, true
	}
	if c.Client.Port == dstPort && c.Server.Port == srcPort &&
		c.Client.Addr.Equal(dstAddr) && c.Server.Addr.Equal(srcAddr) {
		return types.FromServer, true
	}
	return 0, false
}

// process runs one packet through the state machine, per spec.md §4.5's
// transition table. Returns false when the transition is not legal, in
// which case the caller moves the connection to Failure and recycles it.
func (c *Connection) process(dir types.Direction, flags types.TCPFlags, ts int64) bool {
	if dir == types.FromClient {
		c.PacketsFromClient++
	} else {
		c.PacketsFromServer++
	}

	switch c.State {
	case types.ConnRequested:
		switch flags {
		case types.FlagSYN | types.FlagACK:
			if dir == types.FromServer {
				c.State = types.ConnEstablished
				c.touch(ts)
				return true
			}
		case types.FlagSYN, types.FlagACK:
			if dir == types.FromClient {
				c.touch(ts)
				return true
			}
		case types.FlagRST, types.FlagRST | types.FlagACK:
			c.State = types.Closed
			c.ActiveCloser = types.Originator(dir)
			c.touch(ts)
			return true
		}

	case types.ConnEstablished:
		switch flags {
		case types.FlagACK:
			if dir == types.FromClient {
				c.State = types.DataTransfer
				c.touch(ts)
				return true
			}
		case types.FlagSYN:
			if dir == types.FromClient {
				c.touch(ts)
				return true
			}
		case types.FlagSYN | types.FlagACK:
			if dir == types.FromServer {
				c.touch(ts)
				return true
			}
		case types.FlagRST, types.FlagRST | types.FlagACK:
			c.State = types.Closed
			c.ActiveCloser = types.Originator(dir)
			c.touch(ts)
			return true
		}

	case types.DataTransfer:
		switch flags {
		case types.FlagACK:
			c.touch(ts)
			return true
		case types.FlagFIN, types.FlagFIN | types.FlagACK:
			c.State = types.Closing
			c.ActiveCloser = types.Originator(dir)
			c.touch(ts)
			return true
		case types.FlagRST, types.FlagRST | types.FlagACK:
			c.State = types.Closed
			c.ActiveCloser = types.Originator(dir)
			c.touch(ts)
			return true
		case types.FlagSYN:
			if dir == types.FromClient && c.CreationTimestamp != 0 &&
				(ts <= c.CreationTimestamp || ts-c.CreationTimestamp <= c.timeWait) {
				c.touch(ts)
				return true
			}
		case types.FlagSYN | types.FlagACK:
			if dir == types.FromServer && c.CreationTimestamp != 0 &&
				(ts <= c.CreationTimestamp || ts-c.CreationTimestamp <= c.timeWait) {
				c.touch(ts)
				return true
			}
		}

	case types.Closing:
		switch flags {
		case types.FlagACK:
			c.touch(ts)
			return true
		case types.FlagFIN, types.FlagFIN | types.FlagACK:
			if types.Originator(dir) != c.ActiveCloser {
				c.State = types.Closed
			}
			c.touch(ts)
			return true
		case types.FlagRST, types.FlagRST | types.FlagACK:
			c.State = types.Closed
			c.touch(ts)
			return true
		}

	case types.Closed:
		switch flags {
		case types.FlagACK, types.FlagFIN, types.FlagFIN | types.FlagACK,
			types.FlagRST, types.FlagRST | types.FlagACK:
			c.touch(ts)
			return true
		}

	case types.Failure:
		return false
	}

	c.State = types.Failure
	return false
}
