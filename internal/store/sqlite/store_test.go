package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
	"github.com/imamik/hubspoke/internal/store/sqlite"
	"github.com/imamik/hubspoke/internal/store/storetest"
)

// openTestStore opens an in-memory database with all migrations applied.
// The database is closed when the test finishes.
func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t)
	})
}

func TestStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubspoke.db")
	ctx := context.Background()

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, storetest.Sample(3)))
	require.NoError(t, s.Close())

	// Migrations are idempotent on reopen.
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SpokeID)
}

func TestStore_ListByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pending := storetest.Sample(1)
	running := storetest.Sample(2)
	require.NoError(t, running.Transition(spoke.StatusInProgress, running.CreatedAt))
	require.NoError(t, s.Put(ctx, pending))
	require.NoError(t, s.Put(ctx, running))

	got, err := s.ListByStatus(ctx, spoke.StatusInProgress)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].SpokeID)
}
