package relay

import "sync"

// ContextSlot is the durable "last known context" channel: a single
// last-write-wins slot per peer pair. The phone writes it on every
// mutation regardless of peer reachability; a peer reads it lazily when
// it next connects. Version lets a reader detect that nothing changed
// since its last fetch.
type ContextSlot struct {
	mu      sync.RWMutex
	payload []byte
	version uint64
}

// NewContextSlot creates an empty slot.
func NewContextSlot() *ContextSlot {
	return &ContextSlot{}
}

// Set replaces the slot contents. Last write wins.
func (c *ContextSlot) Set(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payload = append([]byte(nil), payload...)
	c.version++
}

// Get returns the current contents and version. ok is false while the
// slot has never been written.
func (c *ContextSlot) Get() (payload []byte, version uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.payload == nil {
		return nil, 0, false
	}
	return append([]byte(nil), c.payload...), c.version, true
}
