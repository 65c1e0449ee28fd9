// Command example runs a server side dispatcher with a trivial connection
// engine that echoes every datagram payload back to its sender at the end of
// each read burst. It shows how the pieces are wired together; a real engine
// would implement the QUIC protocol state machine behind the same interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quicmux/quicmux"
	"github.com/quicmux/quicmux/metrics"
)

type echoConn struct {
	id         quicmux.ConnectionID
	peer       net.Addr
	dispatcher *quicmux.Dispatcher
	pending    [][]byte
	closed     bool
}

var _ quicmux.ConnectionHandler = &echoConn{}

func (c *echoConn) HandlePacket(sender, _ net.Addr, data []byte) error {
	c.peer = sender
	c.pending = append(c.pending, append([]byte(nil), data...))
	return nil
}

func (c *echoConn) HandleReceiveComplete() {
	for _, data := range c.pending {
		if err := c.dispatcher.WritePacket(data, c.peer); err != nil {
			fmt.Fprintf(os.Stderr, "write failed: %s\n", err)
		}
	}
	c.pending = c.pending[:0]
}

func (c *echoConn) HandleWritable() {}

func (c *echoConn) SourceConnectionIDs() []quicmux.ConnectionID {
	return []quicmux.ConnectionID{c.id}
}
func (c *echoConn) AddedSourceConnectionIDs() []quicmux.ConnectionID   { return nil }
func (c *echoConn) RetiredSourceConnectionIDs() []quicmux.ConnectionID { return nil }
func (c *echoConn) IsClosed() bool                                     { return c.closed }
func (c *echoConn) ForceClose()                                        { c.closed = true }

func main() {
	bindTo := flag.String("bind", "localhost:6121", "bind to")
	metricsAddr := flag.String("metrics", "localhost:9090", "serve Prometheus metrics on")
	flag.Parse()

	udpAddr, err := net.ResolveUDPAddr("udp", *bindTo)
	if err != nil {
		panic(err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		panic(err)
	}
	transport := quicmux.NewUDPTransport(conn)

	var dispatcher *quicmux.Dispatcher
	accept := func(sender, _ net.Addr, hdr *quicmux.Header) (quicmux.ConnectionHandler, error) {
		fmt.Printf("new connection %s from %s\n", hdr.DestConnectionID, sender)
		return &echoConn{id: hdr.DestConnectionID, peer: sender, dispatcher: dispatcher}, nil
	}
	dispatcher, err = quicmux.NewDispatcher(
		transport,
		quicmux.NewServerPacketHandler(accept, 100, 10),
		&quicmux.Config{Tracer: metrics.NewTracer()},
	)
	if err != nil {
		panic(err)
	}
	defer dispatcher.Close()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server failed: %s\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := transport.Serve(ctx, dispatcher); err != nil && ctx.Err() == nil {
		panic(err)
	}
}
