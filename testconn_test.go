package quicmux

import (
	"fmt"
	"net"
)

// fakeConn is the ConnectionHandler used throughout the tests.
type fakeConn struct {
	sourceIDs []ConnectionID
	added     []ConnectionID
	retired   []ConnectionID

	received     [][]byte
	completes    int
	writables    int
	closed       bool
	handleErr    error
	onReceive    func(data []byte)
	onComplete   func()
	onForceClose func()
}

var _ ConnectionHandler = &fakeConn{}

func newFakeConn(ids ...ConnectionID) *fakeConn {
	return &fakeConn{sourceIDs: ids}
}

func (c *fakeConn) HandlePacket(_, _ net.Addr, data []byte) error {
	if c.handleErr != nil {
		return c.handleErr
	}
	c.received = append(c.received, data)
	if c.onReceive != nil {
		c.onReceive(data)
	}
	return nil
}

func (c *fakeConn) HandleReceiveComplete() {
	c.completes++
	if c.onComplete != nil {
		c.onComplete()
	}
}

func (c *fakeConn) HandleWritable() { c.writables++ }

func (c *fakeConn) SourceConnectionIDs() []ConnectionID { return c.sourceIDs }

func (c *fakeConn) AddedSourceConnectionIDs() []ConnectionID {
	ids := c.added
	c.added = nil
	return ids
}

func (c *fakeConn) RetiredSourceConnectionIDs() []ConnectionID {
	ids := c.retired
	c.retired = nil
	return ids
}

func (c *fakeConn) IsClosed() bool { return c.closed }

func (c *fakeConn) ForceClose() {
	c.closed = true
	if c.onForceClose != nil {
		c.onForceClose()
	}
}

// issueConnectionID makes the connection answer to id and reports it as newly
// added on the next poll.
func (c *fakeConn) issueConnectionID(id ConnectionID) {
	c.sourceIDs = append(c.sourceIDs, id)
	c.added = append(c.added, id)
}

// retireConnectionID makes the connection stop answering to id and reports it
// as retired on the next poll.
func (c *fakeConn) retireConnectionID(id ConnectionID) {
	for i, existing := range c.sourceIDs {
		if existing == id {
			c.sourceIDs = append(c.sourceIDs[:i], c.sourceIDs[i+1:]...)
			break
		}
	}
	c.retired = append(c.retired, id)
}

// fakeTransport records writes and flushes.
type fakeTransport struct {
	written  [][]byte
	flushes  int
	flushErr error
	estimate func([]byte) ByteCount
}

var _ Transport = &fakeTransport{}

func (t *fakeTransport) WritePacket(data []byte, _ net.Addr) error {
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Flush() error {
	t.flushes++
	return t.flushErr
}

func (t *fakeTransport) EstimateSize(data []byte) ByteCount {
	if t.estimate != nil {
		return t.estimate(data)
	}
	return ByteCount(len(data))
}

// testParser parses the test packet format:
// byte 0 is the packet type, byte 1 the connection ID length, followed by the
// connection ID and the payload.
type testParser struct{}

var _ HeaderParser = testParser{}

func (testParser) Parse(_, _ net.Addr, data []byte) (*Header, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	connIDLen := int(data[1])
	if len(data) < 2+connIDLen {
		return nil, fmt.Errorf("packet too short for connection ID length %d", connIDLen)
	}
	return &Header{
		Type:             PacketType(data[0]),
		DestConnectionID: ParseConnectionID(data[2 : 2+connIDLen]),
	}, nil
}

// testPacket composes a packet in the format understood by testParser.
func testPacket(t PacketType, dest ConnectionID, payload []byte) []byte {
	data := []byte{byte(t), byte(dest.Len())}
	data = append(data, dest.Bytes()...)
	return append(data, payload...)
}

// recordingTracer counts tracer events.
type recordingTracer struct {
	dropped map[DropReason]int
	flushes map[FlushTrigger]int
	conns   int
}

var _ Tracer = &recordingTracer{}

func newRecordingTracer() *recordingTracer {
	return &recordingTracer{
		dropped: make(map[DropReason]int),
		flushes: make(map[FlushTrigger]int),
	}
}

func (t *recordingTracer) DroppedPacket(reason DropReason) { t.dropped[reason]++ }
func (t *recordingTracer) Flushed(trigger FlushTrigger, _ int, _ ByteCount) {
	t.flushes[trigger]++
}
func (t *recordingTracer) ConnectionAdded()   { t.conns++ }
func (t *recordingTracer) ConnectionRemoved() { t.conns-- }
