package knxip

import "sync"

// Cache stores the most recently observed value for a group address, so
// that GroupRead and GroupToggle can serve a reading without waiting on
// the bus when a value is already known. Entries carry no age and do not
// expire; they are replaced by Set or removed by Clear.
//
// The source this protocol was distilled from kept this state in a
// class-level dict shared across every KNXIPTunnel instance in the
// process — two independent tunnels to two different gateways would
// silently share and corrupt each other's cached values. MemCache instead
// belongs to a single Tunnel.
type Cache interface {
	// Get returns the cached bytes for addr and whether an entry exists.
	Get(addr GroupAddress) ([]byte, bool)
	// Set stores data as the cached value for addr.
	Set(addr GroupAddress, data []byte)
	// Clear removes every cached entry.
	Clear()
}

// MemCache is an in-memory, mutex-guarded Cache implementation. It is the
// default cache used by Tunnel when no Cache is supplied.
type MemCache struct {
	mu     sync.RWMutex
	values map[GroupAddress][]byte
}

// NewMemCache returns an empty MemCache ready for use.
func NewMemCache() *MemCache {
	return &MemCache{values: make(map[GroupAddress][]byte)}
}

// Get implements Cache.
func (c *MemCache) Get(addr GroupAddress) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[addr]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Set implements Cache.
func (c *MemCache) Set(addr GroupAddress, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[addr] = stored
}

// Clear implements Cache.
func (c *MemCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[GroupAddress][]byte)
}
