package quicmux

import (
	"github.com/quicmux/quicmux/internal/utils"
)

// The flushController tracks how many outbound packets (and approximately how
// many bytes) have been written to the transport since the last physical
// flush, and decides when to flush.
//
// The counters are reset in exactly one place, flushNow. When the transport
// becomes unwritable the controller flushes immediately, regardless of the
// strategy, so that buffered writes drain before write-side backpressure
// kicks in.
type flushController struct {
	pendingPackets int
	pendingBytes   ByteCount

	strategy  FlushStrategy
	transport Transport
	tracer    Tracer
	logger    utils.Logger
}

func newFlushController(transport Transport, strategy FlushStrategy, tracer Tracer, logger utils.Logger) *flushController {
	return &flushController{
		strategy:  strategy,
		transport: transport,
		tracer:    tracer,
		logger:    logger,
	}
}

// recordWrite accounts for one written packet. A non-positive size estimate
// contributes only to the packet count.
func (c *flushController) recordWrite(estimatedSize ByteCount) {
	c.pendingPackets++
	if estimatedSize > 0 {
		c.pendingBytes += estimatedSize
	}
}

func (c *flushController) shouldFlush() bool {
	return c.strategy(c.pendingPackets, c.pendingBytes)
}

// flushIfNeeded flushes if the strategy says so.
func (c *flushController) flushIfNeeded() error {
	if !c.shouldFlush() {
		return nil
	}
	return c.flushNow(FlushTriggerStrategy)
}

// flushNow performs the physical flush and resets both counters.
// The counters reset even if the flush errors: the packets were handed to the
// transport either way.
func (c *flushController) flushNow(trigger FlushTrigger) error {
	packets, bytes := c.pendingPackets, c.pendingBytes
	c.pendingPackets = 0
	c.pendingBytes = 0
	err := c.transport.Flush()
	if err != nil {
		c.logger.Errorf("Flushing the transport failed: %s", err)
	}
	if c.tracer != nil {
		c.tracer.Flushed(trigger, packets, bytes)
	}
	return err
}

// handleUnwritable is the backpressure path: flush whatever is buffered,
// regardless of the strategy.
func (c *flushController) handleUnwritable() error {
	return c.flushNow(FlushTriggerUnwritable)
}
