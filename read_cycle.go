package quicmux

import (
	"github.com/eapache/queue"
)

// The readCycleCoordinator defers per-connection receive-complete
// notifications to the end of a read burst. A connection that received at
// least one datagram during the burst is marked dirty (at most once), and the
// dirty queue is drained when the burst ends. Draining fires the notification
// and reaps connections that have closed in the meantime.
//
// Deferring the notification lets an engine batch-process every datagram it
// received in one wake-up, and lets flush batching span the whole burst.
type readCycleCoordinator struct {
	dirty   *queue.Queue // FIFO of ConnectionHandler
	flagged map[ConnectionHandler]struct{}
	inBurst bool

	registry *connRegistry
	tracer   Tracer
}

func newReadCycleCoordinator(registry *connRegistry, tracer Tracer) *readCycleCoordinator {
	return &readCycleCoordinator{
		dirty:    queue.New(),
		flagged:  make(map[ConnectionHandler]struct{}),
		registry: registry,
		tracer:   tracer,
	}
}

// burstStart is called once per read event, before any datagram is dispatched.
func (c *readCycleCoordinator) burstStart() {
	c.inBurst = true
}

// markDirty enqueues h for a receive-complete notification at burst end.
// It reports whether h was newly enqueued; marking is idempotent within a burst.
func (c *readCycleCoordinator) markDirty(h ConnectionHandler) bool {
	if _, ok := c.flagged[h]; ok {
		return false
	}
	c.flagged[h] = struct{}{}
	c.dirty.Add(h)
	return true
}

// isDirty reports whether h is queued for a receive-complete notification.
func (c *readCycleCoordinator) isDirty(h ConnectionHandler) bool {
	_, ok := c.flagged[h]
	return ok
}

// burstEnd drains the dirty queue: every enqueued connection gets its
// receive-complete notification, and connections that closed are removed
// from the registry. The burst flag clears once the queue is empty.
func (c *readCycleCoordinator) burstEnd() {
	defer func() { c.inBurst = false }()
	for c.dirty.Length() > 0 {
		h := c.dirty.Remove().(ConnectionHandler)
		delete(c.flagged, h)
		h.HandleReceiveComplete()
		if h.IsClosed() {
			c.registry.Remove(h)
			if c.tracer != nil {
				c.tracer.ConnectionRemoved()
			}
		}
	}
}

// reset drops all queued notifications, for teardown.
func (c *readCycleCoordinator) reset() {
	for c.dirty.Length() > 0 {
		c.dirty.Remove()
	}
	clear(c.flagged)
	c.inBurst = false
}
