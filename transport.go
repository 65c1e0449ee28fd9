package quicmux

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"github.com/quicmux/quicmux/internal/protocol"
	"github.com/quicmux/quicmux/internal/utils"
)

// number of datagrams read from the socket in a single batch.
// One batch is one read burst.
const batchSize = 8

const (
	// Watermarks on the number of queued but not yet flushed outbound
	// packets. Crossing the high watermark makes the transport report itself
	// unwritable, draining below the low watermark makes it writable again.
	defaultHighWatermark = 256
	defaultLowWatermark  = 64
)

// A batchConn sends and receives several datagrams with a single syscall,
// where the platform supports it.
type batchConn interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
	WriteBatch(ms []ipv4.Message, flags int) (int, error)
}

// A UDPTransport implements Transport on top of a UDP socket, using batched
// reads and writes. Each batch read is delivered to the dispatcher as one
// read burst; queued outbound packets are sent with batched writes on Flush.
//
// Like the Dispatcher it serves, a UDPTransport is owned by a single goroutine.
type UDPTransport struct {
	conn      net.PacketConn
	batch     batchConn
	localAddr net.Addr

	readMsgs []ipv4.Message

	queue        []ipv4.Message
	queueBuffers []*packetBuffer

	highWatermark int
	lowWatermark  int
	writable      bool
	onWritability func(writable bool)

	logger utils.Logger
}

var (
	_ Transport           = &UDPTransport{}
	_ WritabilityNotifier = &UDPTransport{}
)

// NewUDPTransport creates a UDPTransport reading from and writing to conn.
func NewUDPTransport(conn *net.UDPConn) *UDPTransport {
	t := &UDPTransport{
		conn:          conn,
		batch:         ipv4.NewPacketConn(conn),
		localAddr:     conn.LocalAddr(),
		highWatermark: defaultHighWatermark,
		lowWatermark:  defaultLowWatermark,
		writable:      true,
		logger:        utils.DefaultLogger.WithPrefix("transport"),
	}
	t.readMsgs = make([]ipv4.Message, batchSize)
	for i := range t.readMsgs {
		t.readMsgs[i].Buffers = [][]byte{make([]byte, protocol.MaxPacketBufferSize)}
	}
	return t
}

// SetWriteWatermarks sets the queue length watermarks steering writability:
// queuing the high-th packet makes the transport report itself unwritable,
// draining to low or fewer queued packets makes it writable again.
// Must be called before the transport is used.
func (t *UDPTransport) SetWriteWatermarks(high, low int) {
	if high <= 0 || low < 0 || low >= high {
		panic("quicmux: invalid write watermarks")
	}
	t.highWatermark = high
	t.lowWatermark = low
}

// OnWritabilityChanged registers the callback for writability edges.
func (t *UDPTransport) OnWritabilityChanged(f func(writable bool)) {
	t.onWritability = f
}

// WritePacket queues a packet for the next Flush.
func (t *UDPTransport) WritePacket(data []byte, addr net.Addr) error {
	if len(data) > int(protocol.MaxPacketBufferSize) {
		return errors.Errorf("packet too large: %d bytes", len(data))
	}
	buf := getPacketBuffer()
	buf.Data = append(buf.Data, data...)
	t.queue = append(t.queue, ipv4.Message{Buffers: [][]byte{buf.Data}, Addr: addr})
	t.queueBuffers = append(t.queueBuffers, buf)
	if t.writable && len(t.queue) >= t.highWatermark {
		t.setWritable(false)
	}
	return nil
}

// Flush sends all queued packets.
func (t *UDPTransport) Flush() error {
	for len(t.queue) > 0 {
		n, err := t.batch.WriteBatch(t.queue, 0)
		if n > 0 {
			for _, buf := range t.queueBuffers[:n] {
				buf.Release()
			}
			t.queue = t.queue[n:]
			t.queueBuffers = t.queueBuffers[n:]
		}
		if err != nil {
			return errors.Wrap(err, "sending batched packets")
		}
	}
	if !t.writable && len(t.queue) <= t.lowWatermark {
		t.setWritable(true)
	}
	return nil
}

// EstimateSize estimates the on-wire size of a packet.
func (t *UDPTransport) EstimateSize(data []byte) ByteCount {
	return ByteCount(len(data))
}

// Serve reads batches of datagrams from the socket and drives the dispatcher,
// one burst per batch, until the context is canceled or the socket fails.
func (t *UDPTransport) Serve(ctx context.Context, d *Dispatcher) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		// unblocks the blocking batch read
		return t.conn.Close()
	})
	g.Go(func() error {
		for {
			n, err := t.batch.ReadBatch(t.readMsgs, 0)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Wrap(err, "reading batched packets")
			}
			// The read buffers are only reused for the next batch, after
			// EndReadBurst has fired all receive-complete notifications, so
			// the packets are not volatile.
			d.BeginReadBurst()
			for i := 0; i < n; i++ {
				m := t.readMsgs[i]
				d.HandleDatagram(ReceivedPacket{
					Sender:    m.Addr,
					Recipient: t.localAddr,
					Data:      m.Buffers[0][:m.N],
				})
			}
			d.EndReadBurst()
		}
	})
	return g.Wait()
}

func (t *UDPTransport) setWritable(writable bool) {
	if t.writable == writable {
		return
	}
	t.writable = writable
	if t.logger.Debug() {
		t.logger.Debugf("Transport writability changed: %t (%d packets queued).", writable, len(t.queue))
	}
	if t.onWritability != nil {
		t.onWritability(writable)
	}
}
