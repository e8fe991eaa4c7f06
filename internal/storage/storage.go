// Package storage defines the persistence boundary used for cache snapshots.
//
// A Store is a durable key-value blob store. The cache writes one whole
// snapshot per instance under a fixed key; it never persists individual
// entries. Implementations must treat blobs as opaque.
package storage

import "context"

// Store is the contract a snapshot backend must satisfy.
//
// Load reports absence as (nil, false, nil), never as an error.
// Save must either persist the full blob or leave the previous one intact.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}
