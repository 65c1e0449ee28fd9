package quicmux

import (
	"net"

	"golang.org/x/time/rate"

	"github.com/quicmux/quicmux/internal/utils"
)

// An AcceptFunc creates the connection engine for a new inbound connection.
// It is called for Initial packets whose destination connection ID is not yet
// registered. Returning an error (or a nil handler) drops the packet.
// The returned handler's SourceConnectionIDs must include
// hdr.DestConnectionID, otherwise follow-up packets for the connection miss
// the routing table and trigger accept again.
type AcceptFunc func(sender, recipient net.Addr, hdr *Header) (ConnectionHandler, error)

// serverPacketHandler is the server side role hook: an Initial packet for an
// unknown destination connection ID may open a new connection.
type serverPacketHandler struct {
	accept  AcceptFunc
	limiter *rate.Limiter
	logger  utils.Logger
}

var _ UnknownPacketHandler = &serverPacketHandler{}

// NewServerPacketHandler returns the UnknownPacketHandler for a server.
// New connections are created through accept, at most acceptsPerSecond per
// second with the given burst. A zero acceptsPerSecond disables the limit.
func NewServerPacketHandler(accept AcceptFunc, acceptsPerSecond rate.Limit, burst int) UnknownPacketHandler {
	h := &serverPacketHandler{
		accept: accept,
		logger: utils.DefaultLogger.WithPrefix("server"),
	}
	if acceptsPerSecond > 0 {
		h.limiter = rate.NewLimiter(acceptsPerSecond, burst)
	}
	return h
}

func (s *serverPacketHandler) HandleUnknownPacket(sender, recipient net.Addr, hdr *Header) ConnectionHandler {
	// Only Initial packets open connections. Anything else for an unknown
	// connection ID is a stray, e.g. a packet for a connection that was
	// already reaped.
	if hdr.Type != PacketTypeInitial {
		return nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Debugf("Rejecting connection attempt from %s: rate limit exceeded.", sender)
		return nil
	}
	conn, err := s.accept(sender, recipient, hdr)
	if err != nil {
		s.logger.Errorf("Rejecting connection attempt from %s: %s", sender, err)
		return nil
	}
	return conn
}
