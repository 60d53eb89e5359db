package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "dropletup-state.json")

	s := NewFileStore(path)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Put(ctx, DropletRecord{
		ID:         42,
		Name:       "test-1",
		Region:     "nyc3",
		Size:       "s-1vcpu-1gb",
		Image:      "ubuntu-22-04-x64",
		PublicIPv4: "198.51.100.7",
		Status:     "active",
		CreatedAt:  created,
	}))

	// A fresh store on the same file sees the record.
	loaded, err := NewFileStore(path).Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "test-1", loaded.Name)
	assert.Equal(t, "198.51.100.7", loaded.PublicIPv4)
	assert.True(t, loaded.CreatedAt.Equal(created))
	assert.False(t, loaded.Deleted())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file left behind")
}

func TestFileStoreListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	base := time.Now().UTC()
	require.NoError(t, s.Put(ctx, DropletRecord{ID: 3, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.Put(ctx, DropletRecord{ID: 1, CreatedAt: base}))
	require.NoError(t, s.Put(ctx, DropletRecord{ID: 2, CreatedAt: base}))

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{recs[0].ID, recs[1].ID, recs[2].ID})
}

func TestFileStoreMarkDeleted(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, s.Put(ctx, DropletRecord{ID: 42, Status: "active"}))

	at := time.Now().UTC()
	require.NoError(t, s.MarkDeleted(ctx, 42, at))

	rec, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, rec.Deleted())
	assert.Equal(t, "deleted", rec.Status)

	err = s.MarkDeleted(ctx, 7, at)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreMissingFile(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path).List(context.Background())
	assert.Error(t, err)
}

func TestOpenWithoutEtcdUsesFile(t *testing.T) {
	s := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "state.json")})
	_, ok := s.(*FileStore)
	assert.True(t, ok)
	assert.NoError(t, s.Close())
}

func TestEtcdKey(t *testing.T) {
	assert.Equal(t, "/dropletup/droplets/42", etcdKey(42))
}
