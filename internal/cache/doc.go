// Package cache implements the in-memory cache engine behind the dashboard's
// widget, user, and analytics data layers.
//
// Three invariants hold under every operation:
//   - TTL expiry: an entry past createdAt+ttl is logically absent, even if it
//     is still physically present until the next sweep
//   - Bounded capacity: a map index plus a doubly-linked recency list give
//     O(1) Set/Get/Delete with LRU eviction when over MaxEntries
//   - Durable snapshots: valid entries and their recency order are
//     periodically serialized to a storage.Store, and a restored snapshot
//     never resurrects data that was stale at load time
//
// Each Cache is a fully independent instance with its own config, cleanup
// goroutine, and storage key. The cache owns its goroutine; call Shutdown to
// stop it.
package cache
