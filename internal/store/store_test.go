package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/platform/s3"
	"github.com/imamik/hubspoke/internal/platform/s3/s3test"
	"github.com/imamik/hubspoke/internal/store"
	"github.com/imamik/hubspoke/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := store.NewFileStore(filepath.Join(t.TempDir(), "storage", "deployments.json"))
		require.NoError(t, err)
		return s
	})
}

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := store.NewBadgerStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_InMemory(t *testing.T) {
	s, err := store.NewBadgerStore("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), storetest.Sample(1)))
	got, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SpokeID)
}

func TestObjectStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		srv := s3test.NewServer(t)
		client, err := s3.NewClient(context.Background(), s3.Options{
			Endpoint:     srv.URL,
			Region:       "us-east-1",
			AccessKey:    "test-key",
			SecretKey:    "test-secret",
			UsePathStyle: true,
		})
		require.NoError(t, err)
		require.NoError(t, client.EnsureBucket(context.Background(), "deployments"))
		return store.NewObjectStore(client, "deployments", "/hubspoke/")
	})
}

func TestObjectStore_Layout(t *testing.T) {
	srv := s3test.NewServer(t)
	client, err := s3.NewClient(context.Background(), s3.Options{
		Endpoint: srv.URL, Region: "us-east-1", AccessKey: "k", SecretKey: "s", UsePathStyle: true,
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.EnsureBucket(ctx, "b"))

	s := store.NewObjectStore(client, "b", "hubspoke")
	require.NoError(t, s.Put(ctx, storetest.Sample(5)))
	// Foreign objects under the prefix are ignored.
	require.NoError(t, client.PutObject(ctx, "b", "hubspoke/spokes/readme.txt", []byte("hi")))

	_, ok := srv.Object("b", "hubspoke/spokes/00005.json")
	assert.True(t, ok)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 5, all[0].SpokeID)
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	ctx := context.Background()

	s, err := store.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, storetest.Sample(2)))
	require.NoError(t, s.Put(ctx, storetest.Sample(11)))
	require.NoError(t, s.Delete(ctx, 2))

	reopened, err := store.NewFileStore(path)
	require.NoError(t, err)
	all, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 11, all[0].SpokeID)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"deployments"`)
	assert.Contains(t, string(raw), `"11"`)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := store.NewFileStore(path)
	assert.ErrorContains(t, err, "failed to decode store file")
}
