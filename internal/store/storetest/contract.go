// Package storetest provides contract tests for [store.Store]
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
)

// Factory creates a fresh, empty store for each test.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Sample returns a record with every field populated.
func Sample(spokeID int) *spoke.Deployment {
	cfg := spoke.Configuration{
		SpokeID:               spokeID,
		ClientName:            "acme",
		AddressPrefix:         fmt.Sprintf("10.11.%d.0/24", spokeID),
		VMSubnetPrefix:        fmt.Sprintf("10.11.%d.0/26", spokeID),
		DBSubnetPrefix:        fmt.Sprintf("10.11.%d.64/26", spokeID),
		KVSubnetPrefix:        fmt.Sprintf("10.11.%d.128/26", spokeID),
		WorkspaceSubnetPrefix: fmt.Sprintf("10.11.%d.192/26", spokeID),
		VNetName:              fmt.Sprintf("spoke-vnet-%d", spokeID),
		VMName:                fmt.Sprintf("acme-spoke%d-vm", spokeID),
		VMSize:                spoke.DefaultVMSize,
		AdminUsername:         spoke.DefaultAdminUsername,
		Image:                 spoke.DefaultImage,
		SSHPublicKey:          "ssh-ed25519 AAAA test",
		BackendPoolName:       fmt.Sprintf("acme-spoke%d-pool", spokeID),
		RoutingRuleName:       fmt.Sprintf("acme-spoke%d-rule", spokeID),
	}
	d := spoke.NewDeployment(cfg, fmt.Sprintf("op-%d", spokeID), epoch.Add(time.Duration(spokeID)*time.Minute))
	d.VNetName = cfg.VNetName
	d.VNetID = "/vnets/" + cfg.VNetName
	d.SubnetIDs = map[string]string{"vm": "/subnets/vm"}
	d.PeeringIDs = []string{"/peerings/a", "/peerings/b"}
	return d
}

// Run exercises the [store.Store] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("GetNotFound", func(t *testing.T) {
		s := factory(t)
		_, err := s.Get(context.Background(), 42)
		assert.True(t, errors.Is(err, spoke.ErrNotFound), "got %v", err)
	})

	t.Run("PutAndGet", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		d := Sample(5)
		require.NoError(t, d.StartStep(spoke.StepValidate, epoch))
		require.NoError(t, d.FailStep(spoke.StepValidate, errors.New("hub overlap"), epoch))
		d.AppendRollbackError("nic: reserved", epoch)
		d.RollbackAttempts = 2

		require.NoError(t, s.Put(ctx, d))

		got, err := s.Get(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, spoke.StatusFailed, got.Status)
		assert.Equal(t, spoke.StepValidate, got.FailedStep)
		assert.Equal(t, "hub overlap", got.ErrorMessage)
		assert.Equal(t, d.Config, got.Config)
		assert.Equal(t, d.SubnetIDs, got.SubnetIDs)
		assert.Equal(t, d.PeeringIDs, got.PeeringIDs)
		assert.Equal(t, []string{"nic: reserved"}, got.RollbackErrors)
		assert.Equal(t, 2, got.RollbackAttempts)
		require.Len(t, got.Steps, len(spoke.StepOrder))
		assert.Equal(t, spoke.StepStatusFailed, got.Steps[0].Status)
		assert.True(t, d.CreatedAt.Equal(got.CreatedAt))
		require.NotNil(t, got.FailedAt)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		d := Sample(7)
		require.NoError(t, s.Put(ctx, d))

		d.VMPrivateIP = "10.11.7.4"
		require.NoError(t, s.Put(ctx, d))

		got, err := s.Get(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "10.11.7.4", got.VMPrivateIP)

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		d := Sample(3)
		require.NoError(t, s.Put(ctx, d))
		d.ClientName = "mutated-after-put"

		got, err := s.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "acme", got.ClientName)

		got.Steps[0].Status = spoke.StepStatusCompleted
		again, err := s.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, spoke.StepStatusPending, again.Steps[0].Status)
	})

	t.Run("ListSortedBySpokeID", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		for _, id := range []int{12, 3, 200, 7} {
			require.NoError(t, s.Put(ctx, Sample(id)))
		}

		all, err := s.List(ctx)
		require.NoError(t, err)
		ids := make([]int, len(all))
		for i, d := range all {
			ids[i] = d.SpokeID
		}
		assert.Equal(t, []int{3, 7, 12, 200}, ids)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		s := factory(t)
		all, err := s.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Delete", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, Sample(9)))

		require.NoError(t, s.Delete(ctx, 9))
		_, err := s.Get(ctx, 9)
		assert.ErrorIs(t, err, spoke.ErrNotFound)

		assert.ErrorIs(t, s.Delete(ctx, 9), spoke.ErrNotFound)
	})

	t.Run("LockedUpdateSerializes", func(t *testing.T) {
		l := store.NewLocked(factory(t))
		ctx := context.Background()
		require.NoError(t, l.Put(ctx, Sample(5)))

		const writers = 20
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Update(ctx, 5, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
					cur.RollbackAttempts++
					return cur, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := l.Get(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, writers, got.RollbackAttempts)
	})

	t.Run("LockedUpdateCreatesAndSkips", func(t *testing.T) {
		l := store.NewLocked(factory(t))
		ctx := context.Background()

		created, err := l.Update(ctx, 8, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
			assert.Nil(t, cur)
			return Sample(8), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 8, created.SpokeID)

		unchanged, err := l.Update(ctx, 8, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
			cur.ClientName = "ignored"
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "acme", unchanged.ClientName)

		sentinel := errors.New("refused")
		_, err = l.Update(ctx, 8, func(*spoke.Deployment) (*spoke.Deployment, error) {
			return nil, sentinel
		})
		assert.ErrorIs(t, err, sentinel)

		_, err = l.Update(ctx, 8, func(*spoke.Deployment) (*spoke.Deployment, error) {
			return Sample(9), nil
		})
		assert.Error(t, err)
	})

	t.Run("LockedRemove", func(t *testing.T) {
		l := store.NewLocked(factory(t))
		ctx := context.Background()
		require.NoError(t, l.Put(ctx, Sample(4)))

		busy := errors.New("busy")
		err := l.Remove(ctx, 4, func(*spoke.Deployment) error { return busy })
		assert.ErrorIs(t, err, busy)

		require.NoError(t, l.Remove(ctx, 4, nil))
		assert.ErrorIs(t, l.Remove(ctx, 4, nil), spoke.ErrNotFound)
	})

	t.Run("Stats", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		a := Sample(1)
		b := Sample(2)
		require.NoError(t, b.Transition(spoke.StatusInProgress, epoch))
		require.NoError(t, s.Put(ctx, a))
		require.NoError(t, s.Put(ctx, b))

		stats, err := store.ComputeStats(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.ByStatus[spoke.StatusPending])
		assert.Equal(t, 1, stats.ByStatus[spoke.StatusInProgress])
		assert.Equal(t, 0, stats.ByStatus[spoke.StatusRolledBack])
		require.NotNil(t, stats.Latest)
		assert.Equal(t, 2, stats.Latest.SpokeID)
	})
}
