package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStore_New(t *testing.T) {
	tests := map[string]struct {
		dir         func(t *testing.T) string
		expectError bool
	}{
		"creates missing directory": {
			dir: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nested", "snapshots") },
		},
		"existing directory": {
			dir: func(t *testing.T) string { return t.TempDir() },
		},
		"empty directory": {
			dir:         func(*testing.T) string { return "" },
			expectError: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := NewFileStore(tc.dir(t))
			if tc.expectError {
				require.Error(t, err)
				require.Nil(t, s)
			} else {
				require.NoError(t, err)
				require.NotNil(t, s)
			}
		})
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)

	blob := []byte(`{"entries":{}}`)
	require.NoError(t, s.Save(context.Background(), "snapshot-a", blob))

	got, ok, err := s.Load(context.Background(), "snapshot-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blob, got)
}

func TestFileStore_OverwriteReplacesBlob(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "k", []byte("first")))
	require.NoError(t, s.Save(context.Background(), "k", []byte("second")))

	got, ok, err := s.Load(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("second"), got)
}

func TestFileStore_SanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "../escape/attempt", []byte("x")))

	got, ok, err := s.Load(context.Background(), "../escape/attempt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("x"), got)

	// Everything must land inside the root directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(context.Background(), "k", []byte("payload")))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
