package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dashcache/internal/storage"
)

func newSnapshotCache(t *testing.T, store storage.Store) *Cache[string] {
	t.Helper()

	c, err := New[string](Config{
		Name:            "snap",
		DefaultTTL:      time.Minute,
		MaxEntries:      10,
		CleanupInterval: time.Hour,
	}, store)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	store := storage.NewMemStore()

	c1 := newSnapshotCache(t, store)
	c1.Set("a", "1")
	c1.Set("b", "2")
	c1.Set("c", "3")

	// Refresh a so the persisted recency order is b < c < a.
	_, ok := c1.Get("a")
	require.True(t, ok)

	c1.SaveToStorage(context.Background())
	require.Equal(t, 1, store.Len())

	c2 := newSnapshotCache(t, store)
	c2.LoadFromStorage(context.Background())

	for key, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		got, ok := c2.Get(key)
		require.True(t, ok, "key %q should be restored", key)
		require.Equal(t, want, got)
	}
}

func TestSnapshot_PreservesRecencyOrder(t *testing.T) {
	store := storage.NewMemStore()

	c1 := newSnapshotCache(t, store)
	c1.Set("a", "1")
	c1.Set("b", "2")
	c1.Set("c", "3")
	_, _ = c1.Get("a")

	c1.SaveToStorage(context.Background())

	c2 := newSnapshotCache(t, store)
	c2.LoadFromStorage(context.Background())

	require.Equal(t, []string{"a", "c", "b"}, c2.Keys())
}

func TestSnapshot_SaveExcludesExpired(t *testing.T) {
	store := storage.NewMemStore()

	c1 := newSnapshotCache(t, store)
	now := time.Now()
	c1.SetTimeNowFunc(func() time.Time { return now })

	c1.Set("short", "gone", WithTTL(10*time.Millisecond))
	c1.Set("long", "kept", WithTTL(time.Hour))

	now = now.Add(50 * time.Millisecond)
	c1.SaveToStorage(context.Background())

	c2 := newSnapshotCache(t, store)
	c2.LoadFromStorage(context.Background())

	require.Equal(t, 1, c2.Len())
	got, ok := c2.Get("long")
	require.True(t, ok)
	require.Equal(t, "kept", got)
}

func TestSnapshot_LoadFiltersEntriesExpiredSinceSave(t *testing.T) {
	store := storage.NewMemStore()

	c1 := newSnapshotCache(t, store)
	base := time.Now()
	c1.SetTimeNowFunc(func() time.Time { return base })

	c1.Set("old", "1", WithTTL(30*time.Minute))
	c1.Set("fresh", "2", WithTTL(3*time.Hour))
	c1.SaveToStorage(context.Background())

	// Restart an hour later: within the staleness window (the cleanup
	// interval is one hour), but past "old"'s TTL.
	c2 := newSnapshotCache(t, store)
	c2.SetTimeNowFunc(func() time.Time { return base.Add(time.Hour) })
	c2.LoadFromStorage(context.Background())

	_, ok := c2.Get("old")
	require.False(t, ok)
	got, ok := c2.Get("fresh")
	require.True(t, ok)
	require.Equal(t, "2", got)
}

func TestSnapshot_StaleBlobDiscardedEntirely(t *testing.T) {
	store := storage.NewMemStore()

	c1 := newSnapshotCache(t, store)
	base := time.Now()
	c1.SetTimeNowFunc(func() time.Time { return base })

	c1.Set("a", "1", WithTTL(100*time.Hour))
	c1.Set("b", "2", WithTTL(100*time.Hour))
	c1.SaveToStorage(context.Background())

	// More than 2x the one-hour cleanup interval after the save: even
	// entries whose TTLs would still be valid must not be restored.
	c2 := newSnapshotCache(t, store)
	c2.SetTimeNowFunc(func() time.Time { return base.Add(3 * time.Hour) })
	c2.LoadFromStorage(context.Background())

	require.Equal(t, 0, c2.Len(), "stale snapshot must be discarded whole, not partially merged")
}

func TestSnapshot_CorruptBlobTreatedAsAbsent(t *testing.T) {
	store := storage.NewMemStore()

	c := newSnapshotCache(t, store)
	require.NoError(t, store.Save(context.Background(), c.storageKey, []byte("{not json")))

	c.LoadFromStorage(context.Background())
	require.Equal(t, 0, c.Len())
}

func TestSnapshot_AbsentBlobIsNoop(t *testing.T) {
	c := newSnapshotCache(t, storage.NewMemStore())

	c.Set("live", "v")
	c.LoadFromStorage(context.Background())

	// Nothing stored yet, so the existing contents stay put.
	got, ok := c.Get("live")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestSnapshot_NilStoreIsNoop(t *testing.T) {
	c := newTestCache(t, 10, time.Minute)

	c.Set("k", "v")
	c.SaveToStorage(context.Background())
	c.LoadFromStorage(context.Background())

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestExportImport_RoundTrip(t *testing.T) {
	c := newTestCache(t, 10, time.Minute)

	now := time.Now()
	c.SetTimeNowFunc(func() time.Time { return now })

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("expired", "x", WithTTL(10*time.Millisecond))
	now = now.Add(50 * time.Millisecond)

	blob, err := c.Export()
	require.NoError(t, err)

	c.Clear()
	require.Equal(t, 0, c.Len())

	require.NoError(t, c.Import(blob))

	// Full fidelity: the expired entry is physically restored...
	require.Equal(t, 3, c.Len())

	// ...but remains logically absent.
	_, ok := c.Get("expired")
	require.False(t, ok)

	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", got)
	got, ok = c.Get("b")
	require.True(t, ok)
	require.Equal(t, "2", got)
}

func TestExport_IncludesExpiredEntries(t *testing.T) {
	c := newTestCache(t, 10, time.Minute)

	now := time.Now()
	c.SetTimeNowFunc(func() time.Time { return now })

	c.Set("expired", "x", WithTTL(10*time.Millisecond))
	now = now.Add(time.Minute)

	blob, err := c.Export()
	require.NoError(t, err)

	var snap snapshot
	require.NoError(t, json.Unmarshal(blob, &snap))
	require.Contains(t, snap.Entries, "expired")
}

func TestImport_InvalidBlobLeavesStateUntouched(t *testing.T) {
	tests := map[string]struct {
		blob []byte
	}{
		"not json":          {[]byte("definitely not json")},
		"missing entries":   {[]byte(`{"recencyOrder":[],"timestamp":123}`)},
		"missing timestamp": {[]byte(`{"entries":{},"recencyOrder":[]}`)},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestCache(t, 10, time.Minute)
			c.Set("keep", "v")

			require.Error(t, c.Import(tc.blob))

			got, ok := c.Get("keep")
			require.True(t, ok, "failed import must not mutate existing state")
			require.Equal(t, "v", got)
		})
	}
}

func TestImport_EnforcesCapacity(t *testing.T) {
	big := newTestCache(t, 10, time.Minute)
	for _, k := range []string{"a", "b", "c", "d"} {
		big.Set(k, k)
	}
	blob, err := big.Export()
	require.NoError(t, err)

	small, err := New[string](Config{
		Name:            "small",
		DefaultTTL:      time.Minute,
		MaxEntries:      2,
		CleanupInterval: time.Hour,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { small.Shutdown(context.Background()) })

	require.NoError(t, small.Import(blob))
	require.Equal(t, 2, small.Len())

	// The most recently used keys from the exporting cache survive.
	_, ok := small.Get("d")
	require.True(t, ok)
	_, ok = small.Get("c")
	require.True(t, ok)
}
