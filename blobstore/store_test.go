package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"local":  local,
	}
}

func TestStorePutOpen(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "graphs/a.snap", strings.NewReader("payload-a")))

			rc, err := store.Open(ctx, "graphs/a.snap")
			require.NoError(t, err)
			defer rc.Close()

			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "payload-a", string(data))
		})
	}
}

func TestStoreOpenMissing(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open(ctx, "missing.snap")
			assert.True(t, errors.Is(err, ErrNotFound), "want ErrNotFound, got %v", err)
		})
	}
}

func TestStorePutOverwrites(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "a.snap", strings.NewReader("one")))
			require.NoError(t, store.Put(ctx, "a.snap", strings.NewReader("two")))

			rc, err := store.Open(ctx, "a.snap")
			require.NoError(t, err)
			defer rc.Close()

			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "two", string(data))
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "a.snap", strings.NewReader("x")))
			require.NoError(t, store.Delete(ctx, "a.snap"))

			_, err := store.Open(ctx, "a.snap")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing blob is not an error.
			assert.NoError(t, store.Delete(ctx, "a.snap"))
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "graphs/b.snap", strings.NewReader("b")))
			require.NoError(t, store.Put(ctx, "graphs/a.snap", strings.NewReader("a")))
			require.NoError(t, store.Put(ctx, "other/c.snap", strings.NewReader("c")))

			names, err := store.List(ctx, "graphs/")
			require.NoError(t, err)
			assert.Equal(t, []string{"graphs/a.snap", "graphs/b.snap"}, names)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}
