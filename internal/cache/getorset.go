package cache

// GetOrSet returns the cached value for key, or invokes factory to produce
// one, stores it, and returns it.
//
// Concurrent callers racing on the same missing key are deduplicated:
// exactly one factory invocation runs and every waiter receives its result.
// The factory runs with the cache mutex released; only the singleflight
// in-flight marker is held across the call, so cache operations on other
// keys proceed normally while the factory is working.
//
// A factory error propagates to every waiter and leaves nothing cached, so
// the next call for that key retries instead of returning a poisoned result.
// Callers needing a deadline on the factory must impose it themselves inside
// the factory.
func (c *Cache[V]) GetOrSet(key string, factory func() (V, error), opts ...SetOption) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ttl := c.resolveTTL(opts)

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A waiter queued behind the previous flight may arrive after the
		// value landed; serve it from the cache instead of recomputing.
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		val, err := factory()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.closed {
			c.setLocked(key, val, ttl)
		}
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
