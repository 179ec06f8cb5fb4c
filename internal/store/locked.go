package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/im7mortal/kmutex"

	"github.com/imamik/hubspoke/internal/spoke"
)

// UpdateFunc receives the current record (nil when absent) and returns the
// record to write. Returning a nil record writes nothing.
type UpdateFunc func(cur *spoke.Deployment) (*spoke.Deployment, error)

// Locked serializes writes per spoke id on top of a Store.
type Locked struct {
	Store
	keys *kmutex.Kmutex
}

// NewLocked wraps s.
func NewLocked(s Store) *Locked {
	return &Locked{Store: s, keys: kmutex.New()}
}

// Update runs fn under the spoke's lock and persists its result. The
// returned record is the one written, or the unchanged current record when
// fn wrote nothing.
func (l *Locked) Update(ctx context.Context, spokeID int, fn UpdateFunc) (*spoke.Deployment, error) {
	l.keys.Lock(spokeID)
	defer l.keys.Unlock(spokeID)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cur, err := l.Store.Get(ctx, spokeID)
	if err != nil && !errors.Is(err, spoke.ErrNotFound) {
		return nil, err
	}

	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur, nil
	}
	if next.SpokeID != spokeID {
		return nil, fmt.Errorf("update of spoke %d returned record for spoke %d", spokeID, next.SpokeID)
	}
	if err := l.Store.Put(ctx, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Remove deletes the record under the spoke's lock once check accepts it.
func (l *Locked) Remove(ctx context.Context, spokeID int, check func(cur *spoke.Deployment) error) error {
	l.keys.Lock(spokeID)
	defer l.keys.Unlock(spokeID)

	cur, err := l.Store.Get(ctx, spokeID)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(cur); err != nil {
			return err
		}
	}
	return l.Store.Delete(ctx, spokeID)
}
