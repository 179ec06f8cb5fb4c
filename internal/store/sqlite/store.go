package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
)

// Store implements store.Store backed by SQLite. The full record is kept
// as JSON; status and client are duplicated into columns for queries.
type Store struct {
	DB *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens dsn and returns a store owning the connection.
func New(dsn string) (*Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Get(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM deployments WHERE spoke_id = ?`, spokeID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment for spoke %d: %w", spokeID, spoke.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return decode(data)
}

func (s *Store) Put(ctx context.Context, d *spoke.Deployment) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO deployments (spoke_id, client_name, status, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (spoke_id) DO UPDATE SET
		     client_name = excluded.client_name,
		     status = excluded.status,
		     data = excluded.data,
		     created_at = excluded.created_at,
		     updated_at = excluded.updated_at`,
		d.SpokeID, d.ClientName, string(d.Status), string(data),
		d.CreatedAt.UTC().Format(time.RFC3339Nano), d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, spokeID int) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM deployments WHERE spoke_id = ?`, spokeID)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("deployment for spoke %d: %w", spokeID, spoke.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*spoke.Deployment, error) {
	return s.query(ctx, `SELECT data FROM deployments ORDER BY spoke_id`)
}

// ListByStatus returns records in status, ordered by spoke id.
func (s *Store) ListByStatus(ctx context.Context, status spoke.Status) ([]*spoke.Deployment, error) {
	return s.query(ctx, `SELECT data FROM deployments WHERE status = ? ORDER BY spoke_id`, string(status))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*spoke.Deployment, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []*spoke.Deployment
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		d, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func decode(data string) (*spoke.Deployment, error) {
	var d spoke.Deployment
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("unmarshal deployment: %w", err)
	}
	return &d, nil
}
