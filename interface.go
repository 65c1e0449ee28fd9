// Package quicmux demultiplexes QUIC datagrams arriving on a shared
// transport to per-connection protocol engines, and batches the outbound
// packets of all connections into as few physical flushes as possible.
package quicmux

import (
	"net"

	"github.com/quicmux/quicmux/internal/protocol"
	"github.com/quicmux/quicmux/internal/wire"
)

// A ConnectionID is an opaque byte sequence of 0 to 20 bytes identifying a
// logical connection, independent of the peer's network address.
type ConnectionID = protocol.ConnectionID

// ParseConnectionID interprets b as a ConnectionID. It panics if b is longer
// than 20 bytes.
func ParseConnectionID(b []byte) ConnectionID { return protocol.ParseConnectionID(b) }

// GenerateConnectionID generates a random connection ID of the given length.
func GenerateConnectionID(l int) (ConnectionID, error) { return protocol.GenerateConnectionID(l) }

// A ByteCount is a count of bytes.
type ByteCount = protocol.ByteCount

// A PacketType is the type of a QUIC packet.
type PacketType = protocol.PacketType

const (
	PacketTypeInitial            = protocol.PacketTypeInitial
	PacketType0RTT               = protocol.PacketType0RTT
	PacketTypeHandshake          = protocol.PacketTypeHandshake
	PacketTypeRetry              = protocol.PacketTypeRetry
	PacketTypeVersionNegotiation = protocol.PacketTypeVersionNegotiation
	PacketType1RTT               = protocol.PacketType1RTT
)

// A Version is a QUIC version number.
type Version = protocol.Version

// A Header is the version independent part of a parsed QUIC packet header.
type Header = wire.Header

// A ReceivedPacket is a single datagram handed to the dispatcher.
type ReceivedPacket struct {
	Sender    net.Addr
	Recipient net.Addr
	Data      []byte
	// Volatile says that Data aliases a buffer the caller reuses for the
	// next datagram it reads. The dispatcher then copies the payload into a
	// scratch buffer that stays valid until the end of the read burst.
	Volatile bool
}

// A ConnectionHandler is the protocol engine of a single connection.
// The dispatcher routes datagrams to it, notifies it once per read burst
// that all its datagrams have been delivered, and keeps the routing table
// in sync with the connection IDs it issues and retires.
//
// All methods are called from the goroutine driving the dispatcher.
type ConnectionHandler interface {
	// HandlePacket processes a single datagram. The data slice stays valid
	// until HandleReceiveComplete returns; it must not be retained beyond that.
	// A returned error is confined to this datagram: it is logged and the
	// datagram is dropped, nothing else is affected.
	HandlePacket(sender, recipient net.Addr, data []byte) error
	// HandleReceiveComplete is called once per read burst, after every
	// datagram of that burst addressed to this connection has been delivered.
	HandleReceiveComplete()
	// HandleWritable is called when the transport becomes writable again.
	HandleWritable()

	// SourceConnectionIDs returns all connection IDs the connection currently
	// answers to.
	SourceConnectionIDs() []ConnectionID
	// AddedSourceConnectionIDs returns the connection IDs issued since the
	// last call, draining them.
	AddedSourceConnectionIDs() []ConnectionID
	// RetiredSourceConnectionIDs returns the connection IDs retired since the
	// last call, draining them.
	RetiredSourceConnectionIDs() []ConnectionID

	IsClosed() bool
	ForceClose()
}

// A HeaderParser extracts the routing-relevant header fields from a datagram.
// Implementations must not retain the data slice beyond the call.
// The dispatcher uses the parser shipped with this package unless the Config
// provides another one.
type HeaderParser interface {
	Parse(sender, recipient net.Addr, data []byte) (*Header, error)
}

// A Transport queues and sends outbound packets.
// WritePacket only queues; Flush performs the physical send of everything
// queued. EstimateSize returns the estimated on-wire size of a packet, or a
// non-positive value if unknown.
type Transport interface {
	WritePacket(data []byte, addr net.Addr) error
	Flush() error
	EstimateSize(data []byte) ByteCount
}

// A WritabilityNotifier is implemented by transports that can signal
// edge-triggered writability changes. The dispatcher registers itself on
// construction and uses the signal to drive backpressure.
type WritabilityNotifier interface {
	OnWritabilityChanged(func(writable bool))
}

// An UnknownPacketHandler decides what happens with a packet whose
// destination connection ID is not in the routing table. It is the role
// specific part of the dispatcher: a server may accept a new connection, a
// client never does. Returning nil drops the packet.
type UnknownPacketHandler interface {
	HandleUnknownPacket(sender, recipient net.Addr, hdr *Header) ConnectionHandler
}

// A FlushStrategy decides, from the counters of not yet flushed writes,
// whether the dispatcher should flush now. It must be a pure function of its
// arguments.
type FlushStrategy func(pendingPackets int, pendingBytes ByteCount) bool

// NewThresholdFlushStrategy returns the default kind of FlushStrategy: flush
// as soon as either maxPackets packets or maxBytes bytes are pending.
func NewThresholdFlushStrategy(maxPackets int, maxBytes ByteCount) FlushStrategy {
	return func(pendingPackets int, pendingBytes ByteCount) bool {
		return pendingPackets >= maxPackets || pendingBytes >= maxBytes
	}
}

// A DropReason says why the dispatcher dropped a packet.
type DropReason uint8

const (
	// DropParseError is used for packets whose header could not be parsed.
	DropParseError DropReason = iota
	// DropUnroutable is used for packets that matched no connection and that
	// the UnknownPacketHandler declined.
	DropUnroutable
	// DropEngineError is used for packets the connection engine failed to process.
	DropEngineError
)

func (r DropReason) String() string {
	switch r {
	case DropParseError:
		return "parse_error"
	case DropUnroutable:
		return "unroutable"
	case DropEngineError:
		return "engine_error"
	default:
		return "unknown"
	}
}

// A FlushTrigger says what caused a physical flush.
type FlushTrigger uint8

const (
	// FlushTriggerStrategy: the FlushStrategy's thresholds were reached.
	FlushTriggerStrategy FlushTrigger = iota
	// FlushTriggerBurstEnd: a read burst ended with writes pending.
	FlushTriggerBurstEnd
	// FlushTriggerUnwritable: the transport became unwritable.
	FlushTriggerUnwritable
	// FlushTriggerExplicit: a flush was requested outside a read burst.
	FlushTriggerExplicit
	// FlushTriggerTeardown: the dispatcher was closed with writes pending.
	FlushTriggerTeardown
)

func (t FlushTrigger) String() string {
	switch t {
	case FlushTriggerStrategy:
		return "strategy"
	case FlushTriggerBurstEnd:
		return "burst_end"
	case FlushTriggerUnwritable:
		return "unwritable"
	case FlushTriggerExplicit:
		return "explicit"
	case FlushTriggerTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// A Tracer observes dispatcher events, for metrics collection.
// All methods are called from the goroutine driving the dispatcher.
type Tracer interface {
	DroppedPacket(reason DropReason)
	Flushed(trigger FlushTrigger, packets int, bytes ByteCount)
	ConnectionAdded()
	ConnectionRemoved()
}
