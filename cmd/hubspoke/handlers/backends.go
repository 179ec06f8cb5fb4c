package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/platform/azure"
	"github.com/imamik/hubspoke/internal/platform/s3"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/provider/fake"
	"github.com/imamik/hubspoke/internal/store"
	"github.com/imamik/hubspoke/internal/store/sqlite"
)

// Factory function variables for backends - can be replaced in tests.
var (
	newAzureClient = func(cfg *config.Config, log logr.Logger) (provider.Cloud, error) {
		return azure.NewClient(cfg, azure.WithLogger(log))
	}

	newObjectClient = func(ctx context.Context, cfg config.S3Config) (store.ObjectClient, error) {
		client, err := s3.NewClient(ctx, s3.Options{
			Endpoint:     cfg.Endpoint,
			Region:       cfg.Region,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			UsePathStyle: cfg.Endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx, cfg.Bucket); err != nil {
			return nil, err
		}
		return client, nil
	}
)

// newCloud returns the provider selected by cfg.Cloud.
func newCloud(cfg *config.Config, log logr.Logger) (provider.Cloud, error) {
	switch cfg.Cloud {
	case config.CloudAzure:
		cloud, err := newAzureClient(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
		return cloud, nil
	case config.CloudFake:
		log.Info("using the in-memory fake cloud; resources live only as long as this process")
		return fake.New(), nil
	default:
		return nil, fmt.Errorf("unknown cloud %q", cfg.Cloud)
	}
}

// openStore opens the backend selected by cfg.Store.Backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreFile:
		if err := ensureDir(sc.Path); err != nil {
			return nil, err
		}
		return store.NewFileStore(sc.Path)
	case config.StoreBadger:
		return store.NewBadgerStore(sc.Path)
	case config.StoreSQLite:
		if err := ensureDir(sc.Path); err != nil {
			return nil, err
		}
		return sqlite.New(sc.Path)
	case config.StoreS3:
		client, err := newObjectClient(ctx, sc.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create object storage client: %w", err)
		}
		return store.NewObjectStore(client, sc.S3.Bucket, sc.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return nil
}
