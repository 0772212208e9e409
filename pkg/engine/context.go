package engine

import "sort"

// Cloner lets opaque values participate in deep context cloning. Values stored
// in a Context that implement Cloner are copied through this hook; plain maps
// and slices are copied recursively without it.
type Cloner interface {
	Clone() any
}

// Context is the shared mutable state a recipe executes against: an ordered
// mapping from string keys to arbitrary values, plus a separate read-only
// configuration mapping supplied by the host at top-level invocation.
//
// A Context is created once per recipe run and passed by reference through the
// Executor into every step. It performs no locking: sequential steps and
// conditional branches share one Context by reference, while loop items and
// parallel substeps each receive a private Clone. Isolation by cloning is the
// only concurrency-control mechanism in the engine.
type Context struct {
	entries map[string]any
	order   []string
	config  map[string]any
}

// NewContext creates a Context seeded with the given artifacts and host
// configuration. Both maps are deep-copied; the caller keeps ownership of the
// arguments. Either may be nil.
func NewContext(artifacts, config map[string]any) *Context {
	c := &Context{
		entries: make(map[string]any, len(artifacts)),
		order:   make([]string, 0, len(artifacts)),
		config:  make(map[string]any, len(config)),
	}
	for k, v := range config {
		c.config[k] = deepCopyValue(v)
	}
	// Seed artifacts in sorted order so two contexts built from the same map
	// iterate identically.
	for _, k := range sortedKeys(artifacts) {
		c.Set(k, deepCopyValue(artifacts[k]))
	}
	return c
}

// Get returns the value stored under key and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Set stores value under key. A key keeps its original position in the
// iteration order when overwritten.
func (c *Context) Set(key string, value any) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = value
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Delete removes key and its position in the iteration order. Absent keys are
// a no-op.
func (c *Context) Delete(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in first-set order.
func (c *Context) Keys() []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// Len returns the number of stored entries.
func (c *Context) Len() int {
	return len(c.entries)
}

// Config returns a deep copy of the read-only configuration mapping. Mutating
// the returned map never affects the Context.
func (c *Context) Config() map[string]any {
	out := make(map[string]any, len(c.config))
	for k, v := range c.config {
		out[k] = deepCopyValue(v)
	}
	return out
}

// ConfigValue returns a single configuration entry and whether it was present.
// Collection values are deep-copied so callers cannot mutate the store.
func (c *Context) ConfigValue(key string) (any, bool) {
	v, ok := c.config[key]
	if !ok {
		return nil, false
	}
	return deepCopyValue(v), true
}

// Clone returns a deep, independent copy of the Context: entries, key order,
// and configuration. Mutations in the clone are never visible in the original
// and vice versa. Loop items and parallel substeps run against clones.
func (c *Context) Clone() *Context {
	out := &Context{
		entries: make(map[string]any, len(c.entries)),
		order:   make([]string, len(c.order)),
		config:  make(map[string]any, len(c.config)),
	}
	copy(out.order, c.order)
	for k, v := range c.entries {
		out.entries[k] = deepCopyValue(v)
	}
	for k, v := range c.config {
		out.config[k] = deepCopyValue(v)
	}
	return out
}

// Export returns a deep-copied snapshot of all entries, used for result
// collection and debugging. The snapshot does not include the configuration.
func (c *Context) Export() map[string]any {
	out := make(map[string]any, len(c.entries))
	for k, v := range c.entries {
		out[k] = deepCopyValue(v)
	}
	return out
}

// deepCopyValue copies maps and slices recursively and honors the Cloner hook.
// Scalars are returned as-is; so are other reference types (channels, funcs),
// which recipe values are not expected to contain.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Cloner:
		return val.Clone()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
