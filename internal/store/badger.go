package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/imamik/hubspoke/internal/spoke"
)

const badgerKeyPrefix = "spoke:"

// BadgerStore keeps records in an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens the database at path. An empty path opens an
// in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// badgerKey zero-pads the id so key order equals spoke id order.
func badgerKey(spokeID int) []byte {
	return fmt.Appendf(nil, "%s%05d", badgerKeyPrefix, spokeID)
}

func (s *BadgerStore) Get(_ context.Context, spokeID int) (*spoke.Deployment, error) {
	var out spoke.Deployment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(spokeID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(spokeID)
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) Put(_ context.Context, d *spoke.Deployment) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode deployment %d: %w", d.SpokeID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(d.SpokeID), data)
	})
}

func (s *BadgerStore) Delete(_ context.Context, spokeID int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(spokeID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(spokeID)
			}
			return err
		}
		return txn.Delete(badgerKey(spokeID))
	})
}

func (s *BadgerStore) List(_ context.Context) ([]*spoke.Deployment, error) {
	var out []*spoke.Deployment
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var d spoke.Deployment
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &d)
			}); err != nil {
				return err
			}
			out = append(out, &d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBySpokeID(out)
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
