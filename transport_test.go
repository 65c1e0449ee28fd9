package quicmux

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"github.com/quicmux/quicmux/internal/protocol"
	"github.com/quicmux/quicmux/internal/utils"
)

type fakeDatagram struct {
	data []byte
	addr net.Addr
}

type fakeBatchConn struct {
	reads   [][]fakeDatagram // successive ReadBatch results
	readErr error

	written   [][]byte
	writeFunc func(ms []ipv4.Message) (int, error)
}

func (c *fakeBatchConn) ReadBatch(ms []ipv4.Message, _ int) (int, error) {
	if len(c.reads) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		return 0, errors.New("no more reads")
	}
	batch := c.reads[0]
	c.reads = c.reads[1:]
	for i, dgram := range batch {
		ms[i].N = copy(ms[i].Buffers[0], dgram.data)
		ms[i].Addr = dgram.addr
	}
	return len(batch), nil
}

func (c *fakeBatchConn) WriteBatch(ms []ipv4.Message, _ int) (int, error) {
	if c.writeFunc != nil {
		return c.writeFunc(ms)
	}
	for _, m := range ms {
		c.written = append(c.written, append([]byte(nil), m.Buffers[0]...))
	}
	return len(ms), nil
}

type fakePacketConn struct{ closed bool }

func (c *fakePacketConn) ReadFrom([]byte) (int, net.Addr, error) {
	return 0, nil, errors.New("not implemented")
}
func (c *fakePacketConn) WriteTo([]byte, net.Addr) (int, error) {
	return 0, errors.New("not implemented")
}
func (c *fakePacketConn) Close() error                     { c.closed = true; return nil }
func (c *fakePacketConn) LocalAddr() net.Addr              { return serverAddr }
func (c *fakePacketConn) SetDeadline(time.Time) error      { return nil }
func (c *fakePacketConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakePacketConn) SetWriteDeadline(time.Time) error { return nil }

func newTestUDPTransport(batch batchConn, conn net.PacketConn) *UDPTransport {
	t := &UDPTransport{
		conn:          conn,
		batch:         batch,
		localAddr:     serverAddr,
		highWatermark: defaultHighWatermark,
		lowWatermark:  defaultLowWatermark,
		writable:      true,
		logger:        utils.DefaultLogger,
	}
	t.readMsgs = make([]ipv4.Message, batchSize)
	for i := range t.readMsgs {
		t.readMsgs[i].Buffers = [][]byte{make([]byte, protocol.MaxPacketBufferSize)}
	}
	return t
}

func TestUDPTransportQueuesUntilFlush(t *testing.T) {
	batch := &fakeBatchConn{}
	tr := newTestUDPTransport(batch, &fakePacketConn{})

	require.NoError(t, tr.WritePacket([]byte("one"), clientAddr))
	require.NoError(t, tr.WritePacket([]byte("two"), clientAddr))
	require.Empty(t, batch.written)

	require.NoError(t, tr.Flush())
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, batch.written)
	require.Empty(t, tr.queue)

	// write order is preserved across flushes
	require.NoError(t, tr.WritePacket([]byte("three"), clientAddr))
	require.NoError(t, tr.Flush())
	require.Equal(t, []byte("three"), batch.written[2])
}

func TestUDPTransportEstimatesSizes(t *testing.T) {
	tr := newTestUDPTransport(&fakeBatchConn{}, &fakePacketConn{})
	require.Equal(t, ByteCount(10), tr.EstimateSize(make([]byte, 10)))
}

func TestUDPTransportRejectsOversizedPackets(t *testing.T) {
	tr := newTestUDPTransport(&fakeBatchConn{}, &fakePacketConn{})
	require.Error(t, tr.WritePacket(make([]byte, int(protocol.MaxPacketBufferSize)+1), clientAddr))
	require.Empty(t, tr.queue)
}

func TestUDPTransportWatermarks(t *testing.T) {
	batch := &fakeBatchConn{}
	tr := newTestUDPTransport(batch, &fakePacketConn{})
	tr.SetWriteWatermarks(2, 0)
	var edges []bool
	tr.OnWritabilityChanged(func(writable bool) { edges = append(edges, writable) })

	require.NoError(t, tr.WritePacket([]byte("one"), clientAddr))
	require.Empty(t, edges)
	require.NoError(t, tr.WritePacket([]byte("two"), clientAddr))
	require.Equal(t, []bool{false}, edges)
	// staying above the watermark doesn't signal again
	require.NoError(t, tr.WritePacket([]byte("three"), clientAddr))
	require.Equal(t, []bool{false}, edges)

	require.NoError(t, tr.Flush())
	require.Equal(t, []bool{false, true}, edges)
}

func TestUDPTransportRejectsInvalidWatermarks(t *testing.T) {
	tr := newTestUDPTransport(&fakeBatchConn{}, &fakePacketConn{})
	require.Panics(t, func() { tr.SetWriteWatermarks(0, 0) })
	require.Panics(t, func() { tr.SetWriteWatermarks(10, -1) })
	require.Panics(t, func() { tr.SetWriteWatermarks(10, 10) })
}

func TestUDPTransportPartialWrites(t *testing.T) {
	batch := &fakeBatchConn{}
	sendErr := errors.New("ENOBUFS")
	batch.writeFunc = func(ms []ipv4.Message) (int, error) {
		// one packet goes out, then the socket chokes
		batch.written = append(batch.written, append([]byte(nil), ms[0].Buffers[0]...))
		return 1, sendErr
	}
	tr := newTestUDPTransport(batch, &fakePacketConn{})
	require.NoError(t, tr.WritePacket([]byte("one"), clientAddr))
	require.NoError(t, tr.WritePacket([]byte("two"), clientAddr))
	require.NoError(t, tr.WritePacket([]byte("three"), clientAddr))

	require.ErrorIs(t, tr.Flush(), sendErr)
	require.Len(t, batch.written, 1)
	require.Len(t, tr.queue, 2)

	// the remaining packets go out once the socket recovers
	batch.writeFunc = nil
	require.NoError(t, tr.Flush())
	require.Equal(t, [][]byte{[]byte("one"), []byte("two"), []byte("three")}, batch.written)
	require.Empty(t, tr.queue)
}

func TestUDPTransportServe(t *testing.T) {
	id := ParseConnectionID([]byte{1, 2, 3, 4})
	readErr := errors.New("socket closed")
	batch := &fakeBatchConn{
		reads: [][]fakeDatagram{{
			{data: testPacket(PacketType1RTT, id, []byte("a")), addr: clientAddr},
			{data: testPacket(PacketType1RTT, id, []byte("b")), addr: clientAddr},
		}},
		readErr: readErr,
	}
	pc := &fakePacketConn{}
	tr := newTestUDPTransport(batch, pc)
	d := newTestDispatcher(t, tr, NewClientPacketHandler(), nil)
	conn := newFakeConn(id)
	d.AddConnection(conn)

	err := tr.Serve(context.Background(), d)
	require.ErrorIs(t, err, readErr)

	// the batch was dispatched as a single read burst
	require.Len(t, conn.received, 2)
	require.Equal(t, 1, conn.completes)
	require.True(t, pc.closed)
}

func TestUDPTransportServeContextCancellation(t *testing.T) {
	batch := &fakeBatchConn{readErr: errors.New("use of closed network connection")}
	pc := &fakePacketConn{}
	tr := newTestUDPTransport(batch, pc)
	d := newTestDispatcher(t, tr, NewClientPacketHandler(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Serve(ctx, d)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, pc.closed)
}
