package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
)

// Snapshot blob layout. Timestamps are epoch milliseconds so blobs written by
// the original dashboard remain readable.
type snapshot struct {
	Entries      map[string]snapshotEntry `json:"entries"`
	RecencyOrder []string                 `json:"recencyOrder"` // oldest..newest
	Timestamp    int64                    `json:"timestamp"`
}

type snapshotEntry struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt int64           `json:"createdAt"`
	TTLMillis int64           `json:"ttlMillis"`
}

// SaveToStorage serializes the currently valid entries plus their recency
// order into one blob and writes it under the instance's fixed storage key.
// The in-memory state is encoded under the lock; the adapter write happens
// outside it. Failures are logged and swallowed — a cache that cannot
// persist keeps serving from memory.
//
// Values must round-trip through JSON; an unmarshalable value fails the
// whole snapshot (and is logged), it does not produce a partial one.
func (c *Cache[V]) SaveToStorage(ctx context.Context) {
	if c.store == nil {
		return
	}

	c.mu.RLock()
	snap, err := c.snapshotLocked(c.timeNow(), false)
	c.mu.RUnlock()
	if err != nil {
		c.m.snapshotFailures.Inc()
		level.Warn(c.logger).Log("msg", "snapshot encode failed", "err", err)
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		c.m.snapshotFailures.Inc()
		level.Warn(c.logger).Log("msg", "snapshot encode failed", "err", err)
		return
	}

	if err := c.store.Save(ctx, c.storageKey, data); err != nil {
		c.m.snapshotFailures.Inc()
		level.Warn(c.logger).Log("msg", "snapshot save failed", "key", c.storageKey, "err", err)
		return
	}

	c.m.snapshotSaves.Inc()
	level.Debug(c.logger).Log("msg", "snapshot saved", "entries", len(snap.Entries))
}

// LoadFromStorage restores a previously saved snapshot, replacing the
// cache's current contents. Intended for cold start, before the instance is
// handed to callers.
//
// An absent blob is a no-op. A blob older than twice the cleanup interval is
// discarded whole: it predates the previous process's last scheduled sweep,
// so restoring any of it could resurrect entries that were already purged.
// A corrupt blob is logged and treated as absent; it never fails the caller.
func (c *Cache[V]) LoadFromStorage(ctx context.Context) {
	if c.store == nil {
		return
	}

	data, ok, err := c.store.Load(ctx, c.storageKey)
	if err != nil {
		level.Warn(c.logger).Log("msg", "snapshot load failed", "key", c.storageKey, "err", err)
		return
	}
	if !ok {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		level.Warn(c.logger).Log("msg", "snapshot corrupt, ignoring", "err", err)
		return
	}

	now := c.timeNow()
	age := now.UnixMilli() - snap.Timestamp
	if age > 2*c.cleanupEvery.Milliseconds() {
		level.Info(c.logger).Log("msg", "snapshot stale, discarding", "age_ms", age)
		return
	}

	restored := c.restore(&snap, now, false)
	level.Info(c.logger).Log("msg", "snapshot restored", "entries", restored)
}

// Export returns a full-fidelity dump of the cache, including entries that
// have already expired. It uses the same blob layout as the scheduled
// snapshot but is independent of it; pair with Import for debugging and
// state transfer.
func (c *Cache[V]) Export() ([]byte, error) {
	c.mu.RLock()
	snap, err := c.snapshotLocked(c.timeNow(), true)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// Import replaces the cache's contents with a previously exported blob,
// keeping even already-expired entries. The blob's shape is validated before
// any state is touched: on failure the existing contents are left exactly as
// they were and an error is returned.
func (c *Cache[V]) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("cache: decode import blob: %w", err)
	}
	if snap.Entries == nil {
		return errors.New("cache: import blob has no entries field")
	}
	if snap.Timestamp <= 0 {
		return errors.New("cache: import blob has no timestamp")
	}

	c.restore(&snap, c.timeNow(), true)
	return nil
}

// snapshotLocked encodes the current state, walking the recency list from
// LRU to MRU so RecencyOrder comes out oldest..newest. Expired entries are
// skipped unless includeExpired is set.
func (c *Cache[V]) snapshotLocked(now time.Time, includeExpired bool) (*snapshot, error) {
	snap := &snapshot{
		Entries:      make(map[string]snapshotEntry, len(c.items)),
		RecencyOrder: make([]string, 0, len(c.items)),
		Timestamp:    now.UnixMilli(),
	}

	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry[V])
		if !includeExpired && e.expired(now) {
			continue
		}
		raw, err := json.Marshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for %q: %w", e.key, err)
		}
		snap.Entries[e.key] = snapshotEntry{
			Value:     raw,
			CreatedAt: e.createdAt.UnixMilli(),
			TTLMillis: e.ttl.Milliseconds(),
		}
		snap.RecencyOrder = append(snap.RecencyOrder, e.key)
	}
	return snap, nil
}

// restore replaces the in-memory state with the snapshot's contents.
// RecencyOrder is honored for the entries it names, preserving their
// relative order; entries the order list misses are restored after them in
// unspecified order. Entries that fail the expiry check (when includeExpired
// is false) or whose value no longer decodes are dropped individually.
func (c *Cache[V]) restore(snap *snapshot, now time.Time, includeExpired bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, len(snap.Entries))
	c.lru.Init()

	restored := 0
	insert := func(key string, se snapshotEntry) {
		e := &entry[V]{
			key:       key,
			createdAt: time.UnixMilli(se.CreatedAt),
			ttl:       time.Duration(se.TTLMillis) * time.Millisecond,
		}
		if !includeExpired && e.expired(now) {
			return
		}
		if err := json.Unmarshal(se.Value, &e.value); err != nil {
			level.Warn(c.logger).Log("msg", "dropping undecodable snapshot entry", "key", key, "err", err)
			return
		}
		// Oldest-first iteration plus PushFront leaves the newest key at
		// the MRU end.
		c.items[key] = c.lru.PushFront(e)
		restored++
	}

	seen := make(map[string]bool, len(snap.RecencyOrder))
	for _, key := range snap.RecencyOrder {
		se, ok := snap.Entries[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		insert(key, se)
	}
	for key, se := range snap.Entries {
		if !seen[key] {
			insert(key, se)
		}
	}

	c.enforceMaxEntriesLocked()
	c.m.entries.Set(float64(len(c.items)))
	return restored
}
