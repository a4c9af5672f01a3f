package prefetch

import "sync"

// Effective connection types, as reported by the host.
const (
	TypeSlow2G = "slow-2g"
	Type2G     = "2g"
	Type3G     = "3g"
	Type4G     = "4g"
)

// NetworkInfo reports the user's connection quality.
type NetworkInfo interface {
	// SaveData reports whether the user asked for reduced data usage.
	SaveData() bool
	// EffectiveType is one of the Type* constants, or "" when unknown.
	EffectiveType() string
}

// Constrained reports whether speculative fetches must be skipped.
// A nil NetworkInfo is never constrained.
func Constrained(n NetworkInfo) bool {
	if n == nil {
		return false
	}
	if n.SaveData() {
		return true
	}
	switch n.EffectiveType() {
	case TypeSlow2G, Type2G:
		return true
	}
	return false
}

// Fast reports whether the connection is 4g.
func Fast(n NetworkInfo) bool {
	return n != nil && n.EffectiveType() == Type4G
}

// Connection is a NetworkInfo the host updates as conditions change.
type Connection struct {
	mu        sync.RWMutex
	effective string
	saveData  bool
}

// NewConnection returns a Connection with the given initial state.
func NewConnection(effectiveType string, saveData bool) *Connection {
	return &Connection{effective: effectiveType, saveData: saveData}
}

// Update replaces the reported connection state.
func (c *Connection) Update(effectiveType string, saveData bool) {
	c.mu.Lock()
	c.effective, c.saveData = effectiveType, saveData
	c.mu.Unlock()
}

func (c *Connection) SaveData() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveData
}

func (c *Connection) EffectiveType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effective
}
