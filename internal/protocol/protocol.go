package protocol

// A ByteCount in QUIC
type ByteCount int64

// The PacketType is the type of a QUIC packet, as determined from the header.
type PacketType uint8

const (
	// PacketTypeInitial is the packet type of an Initial packet
	PacketTypeInitial PacketType = iota
	// PacketType0RTT is the packet type of a 0-RTT packet
	PacketType0RTT
	// PacketTypeHandshake is the packet type of a Handshake packet
	PacketTypeHandshake
	// PacketTypeRetry is the packet type of a Retry packet
	PacketTypeRetry
	// PacketTypeVersionNegotiation is the packet type of a Version Negotiation packet
	PacketTypeVersionNegotiation
	// PacketType1RTT is the packet type of a short header packet
	PacketType1RTT
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeInitial:
		return "Initial"
	case PacketType0RTT:
		return "0-RTT"
	case PacketTypeHandshake:
		return "Handshake"
	case PacketTypeRetry:
		return "Retry"
	case PacketTypeVersionNegotiation:
		return "Version Negotiation"
	case PacketType1RTT:
		return "1-RTT"
	default:
		return "unknown packet type"
	}
}

// MaxPacketBufferSize is the maximum size of a UDP datagram this code
// expects to receive or send. QUIC caps datagrams well below typical
// jumbo frames, so a single Ethernet-MTU-sized buffer suffices.
const MaxPacketBufferSize ByteCount = 1452

// DefaultConnectionIDLength is the connection ID length that is used for multiplexed connections.
const DefaultConnectionIDLength = 4

// DefaultMaxTokenLength is the maximum length of a token accepted in an Initial packet header.
const DefaultMaxTokenLength = 256
