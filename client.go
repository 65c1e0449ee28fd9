package quicmux

import "net"

// clientPacketHandler is the client side role hook. A client registers its
// dialed connection up front (Dispatcher.AddConnection) and never accepts
// connections, so every unknown destination connection ID is unroutable.
type clientPacketHandler struct{}

var _ UnknownPacketHandler = clientPacketHandler{}

// NewClientPacketHandler returns the UnknownPacketHandler for a client.
func NewClientPacketHandler() UnknownPacketHandler {
	return clientPacketHandler{}
}

func (clientPacketHandler) HandleUnknownPacket(net.Addr, net.Addr, *Header) ConnectionHandler {
	return nil
}
