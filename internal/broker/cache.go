package broker

import (
	"sync"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// CachedValue is the last value observed for an address.
type CachedValue struct {
	Value any `json:"value"`

	// Revision increases by one with every notification for the address,
	// starting at 1.
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache holds the last value seen for every address. One Cache belongs to
// one Broker; only the Broker writes to it.
type Cache struct {
	mu     sync.RWMutex
	values map[bus.Address]CachedValue
	now    func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		values: make(map[bus.Address]CachedValue),
		now:    time.Now,
	}
}

// Get returns the cached value for addr. ok is false if no notification
// was ever seen. A cached nil is reported with ok true.
func (c *Cache) Get(addr bus.Address) (CachedValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[addr]
	return v, ok
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a copy of the whole cache.
func (c *Cache) Snapshot() map[bus.Address]CachedValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[bus.Address]CachedValue, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// store records value and returns the new entry.
func (c *Cache) store(addr bus.Address, value any) CachedValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	cv := CachedValue{
		Value:     value,
		Revision:  c.values[addr].Revision + 1,
		UpdatedAt: c.now(),
	}
	c.values[addr] = cv
	return cv
}
