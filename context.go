package reactor

import "sync"

// KeyValueContext 挂在 watcher 上的用户数据，避免调用方维护旁路表
type KeyValueContext struct {
	mu sync.RWMutex

	kv map[string]interface{}
}

// Set ...
func (c *KeyValueContext) Set(key string, value interface{}) {
	c.mu.Lock()
	if c.kv == nil {
		c.kv = make(map[string]interface{})
	}

	c.kv[key] = value
	c.mu.Unlock()
}

// Delete ...
func (c *KeyValueContext) Delete(key string) {
	c.mu.Lock()
	delete(c.kv, key)
	c.mu.Unlock()
}

// Get ...
func (c *KeyValueContext) Get(key string) (value interface{}, exists bool) {
	c.mu.RLock()
	value, exists = c.kv[key]
	c.mu.RUnlock()
	return
}
