// Package wire parses the version independent part of QUIC packet headers,
// as far as it is needed to route a datagram to a connection.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/quicmux/quicmux/internal/protocol"
	"github.com/quicmux/quicmux/internal/utils"
)

// ErrUnsupportedVersion is returned when parsing a long header packet of an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported version")

// ErrTokenTooLong is returned when an Initial packet carries a token larger than the configured maximum.
var ErrTokenTooLong = errors.New("token too long")

// IsLongHeader says if a packet is a long header packet.
func IsLongHeader(firstByte byte) bool {
	return firstByte&0x80 > 0
}

// IsVersionNegotiationPacket says if this is a version negotiation packet
func IsVersionNegotiationPacket(b []byte) bool {
	if len(b) < 5 {
		return false
	}
	return b[0]&0x80 > 0 && b[1] == 0 && b[2] == 0 && b[3] == 0 && b[4] == 0
}

// The Header is the version independent part of a QUIC header.
// It carries everything needed to route the packet: the packet type, the
// version, both connection IDs and (for Initial and Retry packets) the token.
type Header struct {
	Type    protocol.PacketType
	Version protocol.Version

	SrcConnectionID  protocol.ConnectionID
	DestConnectionID protocol.ConnectionID

	Token []byte
}

// ParseHeader parses the version independent part of the header of a single
// QUIC packet. For short header packets the destination connection ID length
// is not encoded on the wire and must be supplied by the caller.
// Initial tokens longer than maxTokenLength are rejected.
func ParseHeader(data []byte, shortHeaderConnIDLen, maxTokenLength int) (*Header, error) {
	if len(data) == 0 {
		return nil, io.EOF
	}
	if !IsLongHeader(data[0]) {
		return parseShortHeader(data, shortHeaderConnIDLen)
	}
	return parseLongHeader(bytes.NewReader(data), maxTokenLength)
}

func parseShortHeader(data []byte, connIDLen int) (*Header, error) {
	if len(data) < 1+connIDLen {
		return nil, io.EOF
	}
	if data[0]&0x40 == 0 {
		return nil, errors.New("not a QUIC packet")
	}
	return &Header{
		Type:             protocol.PacketType1RTT,
		DestConnectionID: protocol.ParseConnectionID(data[1 : 1+connIDLen]),
	}, nil
}

func parseLongHeader(b *bytes.Reader, maxTokenLength int) (*Header, error) {
	typeByte, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	h := &Header{}
	v, err := utils.BigEndian.ReadUint32(b)
	if err != nil {
		return nil, err
	}
	h.Version = protocol.Version(v)
	if h.Version != 0 && typeByte&0x40 == 0 {
		return nil, errors.New("not a QUIC packet")
	}
	destConnIDLen, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	h.DestConnectionID, err = protocol.ReadConnectionID(b, int(destConnIDLen))
	if err != nil {
		return nil, err
	}
	srcConnIDLen, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	h.SrcConnectionID, err = protocol.ReadConnectionID(b, int(srcConnIDLen))
	if err != nil {
		return nil, err
	}
	if h.Version == 0 { // version negotiation packet
		h.Type = protocol.PacketTypeVersionNegotiation
		return h, nil
	}
	// If we don't understand the version, we have no idea how to interpret the rest of the bytes.
	if !protocol.IsSupportedVersion(protocol.SupportedVersions, h.Version) {
		return h, ErrUnsupportedVersion
	}

	switch (typeByte & 0x30) >> 4 {
	case 0x0:
		if h.Version == protocol.Version2 {
			h.Type = protocol.PacketTypeRetry
		} else {
			h.Type = protocol.PacketTypeInitial
		}
	case 0x1:
		if h.Version == protocol.Version2 {
			h.Type = protocol.PacketTypeInitial
		} else {
			h.Type = protocol.PacketType0RTT
		}
	case 0x2:
		if h.Version == protocol.Version2 {
			h.Type = protocol.PacketType0RTT
		} else {
			h.Type = protocol.PacketTypeHandshake
		}
	case 0x3:
		if h.Version == protocol.Version2 {
			h.Type = protocol.PacketTypeHandshake
		} else {
			h.Type = protocol.PacketTypeRetry
		}
	}

	switch h.Type {
	case protocol.PacketTypeRetry:
		// the last 16 bytes are the Retry integrity tag
		tokenLen := b.Len() - 16
		if tokenLen <= 0 {
			return nil, io.EOF
		}
		h.Token = make([]byte, tokenLen)
		if _, err := io.ReadFull(b, h.Token); err != nil {
			return nil, err
		}
	case protocol.PacketTypeInitial:
		tokenLen, err := utils.ReadVarInt(b)
		if err != nil {
			return nil, err
		}
		if tokenLen > uint64(b.Len()) {
			return nil, io.EOF
		}
		if tokenLen > uint64(maxTokenLength) {
			return nil, fmt.Errorf("%w: %d bytes", ErrTokenTooLong, tokenLen)
		}
		if tokenLen > 0 {
			h.Token = make([]byte, tokenLen)
			if _, err := io.ReadFull(b, h.Token); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}
