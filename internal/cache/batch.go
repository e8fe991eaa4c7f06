package cache

import (
	"fmt"
	"regexp"
)

// SetBatch writes every key/value pair in values. Pairs are written
// individually, not atomically: interleaved operations from other goroutines
// may observe a partially applied batch, and each write enforces the
// capacity bound on its own.
func (c *Cache[V]) SetBatch(values map[string]V, opts ...SetOption) {
	for key, value := range values {
		c.Set(key, value, opts...)
	}
}

// GetBatch looks up every key and returns the valid hits. Missing and
// expired keys are simply absent from the result; expired ones are lazily
// removed exactly as Get would.
func (c *Cache[V]) GetBatch(keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, key := range keys {
		if v, ok := c.Get(key); ok {
			out[key] = v
		}
	}
	return out
}

// InvalidatePattern deletes every key matching pattern and returns how many
// were deleted. Patterns are Go regular expressions (regexp syntax, not
// globs); a pattern that fails to compile is an error and removes nothing.
func (c *Cache[V]) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("cache: compile pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.items {
		if re.MatchString(key) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed, nil
}
