package quicmux

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerPacketHandlerAcceptsInitialsOnly(t *testing.T) {
	var accepts int
	h := NewServerPacketHandler(func(_, _ net.Addr, hdr *Header) (ConnectionHandler, error) {
		accepts++
		return newFakeConn(hdr.DestConnectionID), nil
	}, 0, 0)

	hdr := &Header{Type: PacketTypeInitial, DestConnectionID: ParseConnectionID([]byte{1, 2, 3, 4})}
	require.NotNil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr))
	require.Equal(t, 1, accepts)

	for _, typ := range []PacketType{
		PacketType0RTT,
		PacketTypeHandshake,
		PacketType1RTT,
		PacketTypeVersionNegotiation,
	} {
		hdr := &Header{Type: typ, DestConnectionID: ParseConnectionID([]byte{1, 2, 3, 4})}
		require.Nil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr), "accepted a %s packet", typ)
	}
	require.Equal(t, 1, accepts)
}

func TestServerPacketHandlerAcceptErrors(t *testing.T) {
	h := NewServerPacketHandler(func(net.Addr, net.Addr, *Header) (ConnectionHandler, error) {
		return nil, errors.New("no capacity")
	}, 0, 0)
	hdr := &Header{Type: PacketTypeInitial}
	require.Nil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr))
}

func TestServerPacketHandlerRateLimit(t *testing.T) {
	var accepts int
	h := NewServerPacketHandler(func(_, _ net.Addr, hdr *Header) (ConnectionHandler, error) {
		accepts++
		return newFakeConn(hdr.DestConnectionID), nil
	}, 1, 2) // 1 per second, burst of 2

	hdr := &Header{Type: PacketTypeInitial}
	require.NotNil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr))
	require.NotNil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr))
	// the burst is used up
	require.Nil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr))
	require.Equal(t, 2, accepts)
}

func TestClientPacketHandlerDeclines(t *testing.T) {
	h := NewClientPacketHandler()
	for _, typ := range []PacketType{PacketTypeInitial, PacketType1RTT} {
		hdr := &Header{Type: typ, DestConnectionID: ParseConnectionID([]byte{1, 2, 3, 4})}
		require.Nil(t, h.HandleUnknownPacket(clientAddr, serverAddr, hdr))
	}
}
