// Package runtime holds the process-wide singleton registry: provider
// instance caches and the resolved configuration, the only global mutable
// state the system carries.
package runtime

import "sync"

// Container is a small keyed singleton registry. It replaces a full DI
// framework with exactly the capability the services need: look up a
// shared instance by name, constructing it at most once.
type Container struct {
	mu    sync.Mutex
	items map[string]interface{}
}

var global = &Container{items: make(map[string]interface{})}

// Get returns the global container.
func Get() *Container {
	return global
}

// Singleton returns the cached value for key, constructing it via build()
// the first time it is requested.
func (c *Container) Singleton(key string, build func() interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items[key]; ok {
		return v
	}
	v := build()
	c.items[key] = v
	return v
}

// Reset clears the cached singleton for key, so the next Singleton call for
// it builds a fresh value. Nothing in this module calls it.
func (c *Container) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
