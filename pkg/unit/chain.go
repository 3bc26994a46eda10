package unit

import "sync"

// HandlerChain is an ordered, mutable collection of handlers.
// Dispatch visits handlers in insertion order.
type HandlerChain struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewHandlerChain creates an empty handler chain
func NewHandlerChain() *HandlerChain {
	return &HandlerChain{}
}

// Add appends a handler to the end of the chain
func (c *HandlerChain) Add(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Remove removes the first occurrence of the handler, comparing by
// identity. It reports whether a handler was removed.
func (c *HandlerChain) Remove(h Handler) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.handlers {
		if existing == h {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Handlers returns a snapshot of the chain in insertion order
func (c *HandlerChain) Handlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]Handler, len(c.handlers))
	copy(snapshot, c.handlers)
	return snapshot
}

// Len returns the number of handlers in the chain
func (c *HandlerChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}
