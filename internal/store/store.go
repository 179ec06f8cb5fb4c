// Package store persists spoke deployment records.
//
// Every backend implements [Store]. Writers go through [Locked], which
// serializes read-modify-write cycles per spoke id so the orchestrator and
// the rollback engine can decide ownership from the current status without
// lost updates. Reads bypass the lock.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/imamik/hubspoke/internal/spoke"
)

// Store is the persistence contract for deployment records. Get and Delete
// return an error wrapping spoke.ErrNotFound for unknown ids. Records handed
// in or out are never shared with the backend.
type Store interface {
	Get(ctx context.Context, spokeID int) (*spoke.Deployment, error)
	Put(ctx context.Context, d *spoke.Deployment) error
	Delete(ctx context.Context, spokeID int) error
	// List returns every record ordered by spoke id.
	List(ctx context.Context) ([]*spoke.Deployment, error)
	Close() error
}

func notFound(spokeID int) error {
	return fmt.Errorf("deployment for spoke %d: %w", spokeID, spoke.ErrNotFound)
}

func sortBySpokeID(ds []*spoke.Deployment) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].SpokeID < ds[j].SpokeID })
}
