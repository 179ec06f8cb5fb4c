package handlers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/platform/s3/s3test"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/provider/fake"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
	"github.com/imamik/hubspoke/internal/store/sqlite"
	"github.com/imamik/hubspoke/internal/store/storetest"
)

func TestOpenStore(t *testing.T) {
	srv := s3test.NewServer(t)

	tests := []struct {
		name   string
		store  func(dir string) config.StoreConfig
		assert func(t *testing.T, s store.Store)
	}{
		{
			name:  "memory",
			store: func(string) config.StoreConfig { return config.StoreConfig{Backend: config.StoreMemory} },
			assert: func(t *testing.T, s store.Store) {
				assert.IsType(t, &store.MemoryStore{}, s)
			},
		},
		{
			name: "file",
			store: func(dir string) config.StoreConfig {
				return config.StoreConfig{Backend: config.StoreFile, Path: filepath.Join(dir, "nested", "deployments.json")}
			},
			assert: func(t *testing.T, s store.Store) {
				assert.IsType(t, &store.FileStore{}, s)
			},
		},
		{
			name: "badger",
			store: func(dir string) config.StoreConfig {
				return config.StoreConfig{Backend: config.StoreBadger, Path: filepath.Join(dir, "badger")}
			},
			assert: func(t *testing.T, s store.Store) {
				assert.IsType(t, &store.BadgerStore{}, s)
			},
		},
		{
			name: "sqlite",
			store: func(dir string) config.StoreConfig {
				return config.StoreConfig{Backend: config.StoreSQLite, Path: filepath.Join(dir, "db", "hubspoke.db")}
			},
			assert: func(t *testing.T, s store.Store) {
				assert.IsType(t, &sqlite.Store{}, s)
			},
		},
		{
			name: "s3",
			store: func(string) config.StoreConfig {
				return config.StoreConfig{Backend: config.StoreS3, S3: config.S3Config{
					Endpoint:  srv.URL,
					Region:    "us-east-1",
					Bucket:    "deployments",
					Prefix:    "hubspoke",
					AccessKey: "k",
					SecretKey: "s",
				}}
			},
			assert: func(t *testing.T, s store.Store) {
				assert.IsType(t, &store.ObjectStore{}, s)
				_, ok := srv.Object("deployments", "hubspoke/spokes/00001.json")
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store = tt.store(t.TempDir())
			ctx := context.Background()

			s, err := openStore(ctx, cfg)
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Put(ctx, storetest.Sample(1)))
			got, err := s.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 1, got.SpokeID)
			tt.assert(t, s)
		})
	}
}

func TestOpenStore_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "etcd"

	_, err := openStore(context.Background(), cfg)
	assert.EqualError(t, err, `unknown store backend "etcd"`)
}

func TestNewCloud(t *testing.T) {
	cfg := config.Default()

	cfg.Cloud = config.CloudFake
	cloud, err := newCloud(cfg, logr.Discard())
	require.NoError(t, err)
	assert.IsType(t, &fake.Cloud{}, cloud)

	cfg.Cloud = "gcp"
	_, err = newCloud(cfg, logr.Discard())
	assert.EqualError(t, err, `unknown cloud "gcp"`)
}

func TestNewCloud_AzureError(t *testing.T) {
	orig := newAzureClient
	defer func() { newAzureClient = orig }()
	newAzureClient = func(*config.Config, logr.Logger) (provider.Cloud, error) {
		return nil, spoke.ErrValidation
	}

	cfg := config.Default()
	_, err := newCloud(cfg, logr.Discard())
	assert.ErrorContains(t, err, "failed to create azure client")
}
