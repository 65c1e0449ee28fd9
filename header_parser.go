package quicmux

import (
	"net"

	"github.com/quicmux/quicmux/internal/wire"
)

// headerParser is the HeaderParser used unless the Config provides another
// one. It parses the version independent header as defined by RFC 8999.
type headerParser struct {
	connIDLen      int
	maxTokenLength int
}

var _ HeaderParser = &headerParser{}

func (p *headerParser) Parse(_, _ net.Addr, data []byte) (*Header, error) {
	return wire.ParseHeader(data, p.connIDLen, p.maxTokenLength)
}
