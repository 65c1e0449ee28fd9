package quicmux

import (
	"net"

	"github.com/quicmux/quicmux/internal/protocol"
	"github.com/quicmux/quicmux/internal/utils"
)

// A Dispatcher routes the datagrams of many logical connections sharing one
// transport, and batches their outbound packets into as few physical flushes
// as possible.
//
// Inbound, the transport driver brackets each read event with BeginReadBurst
// and EndReadBurst and calls HandleDatagram once per datagram in between.
// Outbound, connection engines call WritePacket; the flush strategy, the end
// of the read burst and writability loss decide when the transport flushes.
//
// A Dispatcher is exclusively owned by one goroutine. Multiple dispatchers
// (one per socket) must not share state unless externally synchronized.
type Dispatcher struct {
	registry  *connRegistry
	readCycle *readCycleCoordinator
	flush     *flushController

	parser    HeaderParser
	unknown   UnknownPacketHandler
	transport Transport
	tracer    Tracer
	logger    utils.Logger

	scratch []*packetBuffer // copies of volatile datagrams, released at burst end
	closed  bool
}

// NewDispatcher creates a Dispatcher sending on transport and resolving
// unknown destination connection IDs through unknown.
// If the transport implements WritabilityNotifier, the dispatcher registers
// for writability changes to drive backpressure.
func NewDispatcher(transport Transport, unknown UnknownPacketHandler, config *Config) (*Dispatcher, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = populateConfig(config)
	logger := utils.DefaultLogger.WithPrefix("dispatcher")
	registry := newConnRegistry(logger)
	d := &Dispatcher{
		registry:  registry,
		readCycle: newReadCycleCoordinator(registry, config.Tracer),
		flush:     newFlushController(transport, config.FlushStrategy, config.Tracer, logger),
		parser:    config.HeaderParser,
		unknown:   unknown,
		transport: transport,
		tracer:    config.Tracer,
		logger:    logger,
	}
	if wn, ok := transport.(WritabilityNotifier); ok {
		wn.OnWritabilityChanged(d.HandleWritabilityChanged)
	}
	return d, nil
}

// BeginReadBurst is called once per read event, before the first datagram of
// that event is dispatched.
func (d *Dispatcher) BeginReadBurst() {
	d.readCycle.burstStart()
}

// HandleDatagram dispatches a single inbound datagram.
// It never fails: malformed, unroutable and engine-rejected packets are
// logged and dropped without affecting any other connection.
func (d *Dispatcher) HandleDatagram(p ReceivedPacket) {
	data := p.Data
	if p.Volatile {
		data = d.copyToScratch(data)
	}
	hdr, err := d.parser.Parse(p.Sender, p.Recipient, data)
	if err != nil {
		d.logger.Debugf("Dropping packet from %s that could not be parsed: %s", p.Sender, err)
		d.dropped(DropParseError)
		return
	}
	h, ok := d.registry.Get(hdr.DestConnectionID)
	if !ok {
		h = d.unknown.HandleUnknownPacket(p.Sender, p.Recipient, hdr)
		if h == nil {
			d.logger.Debugf("Dropping unroutable %s packet for connection ID %s.", hdr.Type, hdr.DestConnectionID)
			d.dropped(DropUnroutable)
			return
		}
		d.registry.Add(h)
		if d.tracer != nil {
			d.tracer.ConnectionAdded()
		}
	}
	// Mark before processing, so the receive-complete notification fires at
	// burst end even if this datagram is rejected. A connection that is
	// closed but still registered gets the datagram delivered: it may
	// legitimately carry the final close exchange.
	d.readCycle.markDirty(h)
	if err := h.HandlePacket(p.Sender, p.Recipient, data); err != nil {
		d.logger.Errorf("Error processing packet from %s: %s", p.Sender, err)
		d.dropped(DropEngineError)
		return
	}
	// Reconcile connection ID changes into the routing table right away, so
	// that a follow-up datagram in the same burst already routes to the new IDs.
	for _, id := range h.RetiredSourceConnectionIDs() {
		d.registry.RemoveMapping(id)
	}
	for _, id := range h.AddedSourceConnectionIDs() {
		d.registry.AddMapping(id, h)
	}
}

// EndReadBurst ends the current read burst: every connection that received a
// datagram gets its receive-complete notification, closed connections are
// reaped, and writes that accumulated during the burst are flushed.
func (d *Dispatcher) EndReadBurst() {
	defer func() {
		for _, buf := range d.scratch {
			buf.Release()
		}
		d.scratch = d.scratch[:0]
		if d.flush.pendingPackets > 0 {
			_ = d.flush.flushNow(FlushTriggerBurstEnd)
		}
	}()
	d.readCycle.burstEnd()
}

// WritePacket queues an outbound packet on the transport and flushes if the
// flush strategy says so. Connection engines use this for all their sends.
func (d *Dispatcher) WritePacket(data []byte, addr net.Addr) error {
	d.flush.recordWrite(d.transport.EstimateSize(data))
	err := d.transport.WritePacket(data, addr)
	if ferr := d.flush.flushIfNeeded(); err == nil {
		err = ferr
	}
	return err
}

// RequestFlush asks for a flush of pending writes. During a read burst the
// request defers to the flush strategy, since the burst end flushes anyway;
// outside a burst pending writes are flushed immediately.
func (d *Dispatcher) RequestFlush() error {
	if d.readCycle.inBurst {
		return d.flush.flushIfNeeded()
	}
	if d.flush.pendingPackets > 0 {
		return d.flush.flushNow(FlushTriggerExplicit)
	}
	return nil
}

// HandleWritabilityChanged is the edge-triggered writability signal of the
// transport. Becoming unwritable forces a flush of everything buffered;
// becoming writable wakes every connection and reaps the ones that closed.
func (d *Dispatcher) HandleWritabilityChanged(writable bool) {
	if !writable {
		_ = d.flush.handleUnwritable()
		return
	}
	var closed []ConnectionHandler
	for h := range d.registry.Conns() {
		h.HandleWritable()
		// A connection with a pending receive-complete notification is
		// reaped by the burst-end drain; reaping it here too would remove
		// it from the registry twice.
		if h.IsClosed() && !d.readCycle.isDirty(h) {
			closed = append(closed, h)
		}
	}
	for _, h := range closed {
		d.registry.Remove(h)
		if d.tracer != nil {
			d.tracer.ConnectionRemoved()
		}
	}
}

// AddConnection registers a connection created outside the dispatch path,
// e.g. the dialed connection of a client. The dispatcher takes over routing
// for all the connection's current source connection IDs.
func (d *Dispatcher) AddConnection(h ConnectionHandler) {
	d.registry.Add(h)
	if d.tracer != nil {
		d.tracer.ConnectionAdded()
	}
}

// NumConnections returns the number of registered connections.
func (d *Dispatcher) NumConnections() int { return d.registry.Len() }

// Close force-closes every connection, drops deferred notifications and
// flushes pending writes. The dispatcher must not be used afterwards.
func (d *Dispatcher) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	// The scratch buffers are returned no matter what closing the
	// connections does.
	defer func() {
		for _, buf := range d.scratch {
			buf.Release()
		}
		d.scratch = nil
	}()
	d.registry.CloseAll()
	d.readCycle.reset()
	if d.flush.pendingPackets > 0 {
		err = d.flush.flushNow(FlushTriggerTeardown)
	}
	return err
}

func (d *Dispatcher) copyToScratch(data []byte) []byte {
	if len(data) > int(protocol.MaxPacketBufferSize) {
		// doesn't fit a pooled buffer, take a one-off copy
		return append([]byte(nil), data...)
	}
	buf := getPacketBuffer()
	buf.Data = append(buf.Data, data...)
	d.scratch = append(d.scratch, buf)
	return buf.Data
}

func (d *Dispatcher) dropped(reason DropReason) {
	if d.tracer != nil {
		d.tracer.DroppedPacket(reason)
	}
}
