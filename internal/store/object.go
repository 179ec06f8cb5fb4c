package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/imamik/hubspoke/internal/platform/s3"
	"github.com/imamik/hubspoke/internal/spoke"
)

// ObjectClient is the subset of the object storage client the store uses.
type ObjectClient interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

var _ ObjectClient = (*s3.Client)(nil)

// ObjectStore keeps one JSON object per spoke in an S3-compatible bucket.
type ObjectStore struct {
	client ObjectClient
	bucket string
	prefix string
}

var _ Store = (*ObjectStore)(nil)

// NewObjectStore stores records under {prefix}/spokes/ in bucket.
func NewObjectStore(client ObjectClient, bucket, prefix string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *ObjectStore) dir() string {
	return path.Join(s.prefix, "spokes") + "/"
}

func (s *ObjectStore) key(spokeID int) string {
	return fmt.Sprintf("%s%05d.json", s.dir(), spokeID)
}

// spokeIDFromKey parses keys produced by key and rejects anything else.
func (s *ObjectStore) spokeIDFromKey(key string) (int, bool) {
	name, ok := strings.CutPrefix(key, s.dir())
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok || strings.Contains(name, "/") {
		return 0, false
	}
	id, err := strconv.Atoi(name)
	return id, err == nil
}

func (s *ObjectStore) Get(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	data, err := s.client.GetObject(ctx, s.bucket, s.key(spokeID))
	if err != nil {
		if errors.Is(err, s3.ErrNotFound) {
			return nil, notFound(spokeID)
		}
		return nil, err
	}
	var d spoke.Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode deployment %d: %w", spokeID, err)
	}
	return &d, nil
}

func (s *ObjectStore) Put(ctx context.Context, d *spoke.Deployment) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode deployment %d: %w", d.SpokeID, err)
	}
	return s.client.PutObject(ctx, s.bucket, s.key(d.SpokeID), data)
}

// Delete checks existence first because S3 deletes are silent for missing keys.
func (s *ObjectStore) Delete(ctx context.Context, spokeID int) error {
	if _, err := s.Get(ctx, spokeID); err != nil {
		return err
	}
	return s.client.DeleteObject(ctx, s.bucket, s.key(spokeID))
}

func (s *ObjectStore) List(ctx context.Context) ([]*spoke.Deployment, error) {
	keys, err := s.client.ListKeys(ctx, s.bucket, s.dir())
	if err != nil {
		return nil, err
	}
	out := make([]*spoke.Deployment, 0, len(keys))
	for _, key := range keys {
		id, ok := s.spokeIDFromKey(key)
		if !ok {
			continue
		}
		d, err := s.Get(ctx, id)
		if errors.Is(err, spoke.ErrNotFound) {
			// Deleted between list and get.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sortBySpokeID(out)
	return out, nil
}

func (s *ObjectStore) Close() error {
	return nil
}
