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

// LinkType identifies the physical/link-layer framing of a captured frame,
// per spec.md §6.
type LinkType int

const (
	LinkEthernet LinkType = 1
	LinkRaw      LinkType = 101
	LinkSLL      LinkType = 113
)

// String implements fmt.Stringer.
func (l LinkType) String() string {
	switch l {
	case LinkEthernet:
		return "Ethernet"
	case LinkRaw:
		return "Raw"
	case LinkSLL:
		return "LinuxSLL"
	default:
		return "Unknown"
	}
}

// IPVersion is the decoded network-layer version.
type IPVersion uint8

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// String implements fmt.Stringer.
func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "Unknown"
	}
}

// Protocol is an IP protocol number (IANA assigned, network byte order
// already resolved).
type Protocol uint8

const (
	ProtoICMP   Protocol = 1
	ProtoTCP    Protocol = 6
	ProtoUDP    Protocol = 17
	ProtoICMPv6 Protocol = 58

	// IPv6 extension header "protocols", per spec.md §4.2 step 3.
	ProtoHopByHop  Protocol = 0
	ProtoRouting   Protocol = 43
	ProtoFragment  Protocol = 44
	ProtoDstOpts   Protocol = 60
	ProtoMobility  Protocol = 135
	ProtoShim6     Protocol = 140
	ProtoHostIdent Protocol = 139
)

// Direction of a packet relative to the party that sent the initial SYN.
type Direction uint8

const (
	FromClient Direction = iota
	FromServer
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == FromClient {
		return "client->server"
	}
	return "server->client"
}

// Other returns the opposite direction.
func (d Direction) Other() Direction {
	if d == FromClient {
		return FromServer
	}
	return FromClient
}

// ConnState is the simplified TCP connection state machine's state, per
// spec.md §4.5.
type ConnState uint8

const (
	ConnRequested ConnState = iota
	ConnEstablished
	DataTransfer
	Closing
	Closed
	Failure
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case ConnRequested:
		return "ConnRequested"
	case ConnEstablished:
		return "ConnEstablished"
	case DataTransfer:
		return "DataTransfer"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case Failure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// TCPFlags is the masked 4-bit flag set the state machine reacts to:
// SYN, ACK, FIN, RST. Other bits (PSH, URG, ECE, CWR) are irrelevant to
// state transitions and are stripped by Mask.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 0x01
	FlagSYN TCPFlags = 0x02
	FlagRST TCPFlags = 0x04
	FlagACK TCPFlags = 0x10

	flagMask = FlagFIN | FlagSYN | FlagRST | FlagACK
)

// Mask returns only the bits relevant to the connection state machine.
func (f TCPFlags) Mask() TCPFlags {
	return f & flagMask
}

func (f TCPFlags) Has(bit TCPFlags) bool {
	return f&bit != 0
}

// Originator identifies which side of a connection initiated its shutdown.
type Originator uint8

const (
	OriginatorClient Originator = Originator(FromClient)
	OriginatorServer Originator = Originator(FromServer)
)
