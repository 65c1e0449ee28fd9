package quicmux

import (
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/quicmux/quicmux/internal/utils"
)

// The connRegistry is the routing table of a dispatcher: it maps connection
// IDs to connection handlers and tracks the set of live handlers.
//
// Every entry in the ID map is a back-reference into the live set, never an
// owner. All IDs a handler currently answers to must map to that handler,
// and removing a handler removes all its mappings.
//
// It is owned by a single dispatcher and must only be accessed from the
// goroutine driving it. Precondition violations panic: they indicate a bug
// upstream that silent recovery would mask.
type connRegistry struct {
	handlers map[ConnectionID]ConnectionHandler
	conns    map[ConnectionHandler]struct{}

	logger utils.Logger
}

func newConnRegistry(logger utils.Logger) *connRegistry {
	return &connRegistry{
		handlers: make(map[ConnectionID]ConnectionHandler),
		conns:    make(map[ConnectionHandler]struct{}),
		logger:   logger,
	}
}

func (r *connRegistry) Get(id ConnectionID) (ConnectionHandler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// AddMapping inserts a mapping from id to h.
// The id must not already be mapped to a different handler.
func (r *connRegistry) AddMapping(id ConnectionID, h ConnectionHandler) {
	if existing, ok := r.handlers[id]; ok && existing != h {
		panic(fmt.Sprintf("quicmux: connection ID %s already mapped to a different connection", id))
	}
	r.handlers[id] = h
	if r.logger.Debug() {
		r.logger.Debugf("Adding connection ID %s.", id)
	}
}

// RemoveMapping removes the mapping for id. It is a no-op if id is not mapped.
func (r *connRegistry) RemoveMapping(id ConnectionID) {
	if _, ok := r.handlers[id]; !ok {
		return
	}
	delete(r.handlers, id)
	if r.logger.Debug() {
		r.logger.Debugf("Removing connection ID %s.", id)
	}
}

// Add registers h and inserts a mapping for each of its current source
// connection IDs. It panics if h is already registered.
func (r *connRegistry) Add(h ConnectionHandler) {
	if _, ok := r.conns[h]; ok {
		panic("quicmux: connection registered twice")
	}
	r.conns[h] = struct{}{}
	for _, id := range h.SourceConnectionIDs() {
		r.AddMapping(id, h)
	}
}

// Remove unregisters h and removes the mappings for all its current source
// connection IDs. It panics if h is not registered.
func (r *connRegistry) Remove(h ConnectionHandler) {
	if _, ok := r.conns[h]; !ok {
		panic("quicmux: removing unregistered connection")
	}
	delete(r.conns, h)
	for _, id := range h.SourceConnectionIDs() {
		delete(r.handlers, id)
	}
}

func (r *connRegistry) Len() int { return len(r.conns) }

// Conns returns the live set itself. Callers that close connections while
// iterating must iterate a snapshot instead.
func (r *connRegistry) Conns() map[ConnectionHandler]struct{} { return r.conns }

// CloseAll force-closes every registered connection and clears the registry.
// Closing a connection can synchronously trigger callbacks that mutate the
// live set, so the iteration runs over a snapshot. Both maps are cleared
// unconditionally afterwards.
func (r *connRegistry) CloseAll() {
	for _, h := range maps.Keys(r.conns) {
		h.ForceClose()
	}
	clear(r.conns)
	clear(r.handlers)
}
