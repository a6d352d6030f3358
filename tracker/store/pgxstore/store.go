package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/poolmembers/tracker"
	"github.com/screwyprof/poolmembers/tracker/store/dbrow"
)

// Sentinel errors for store operations
var (
	ErrTransactionFailed = errors.New("transaction failed")
	ErrDeleteFailed      = errors.New("delete operation failed")
	ErrCopyFailed        = errors.New("bulk copy operation failed")
	ErrEncodeFailed      = errors.New("row encoding failed")
	ErrStateFailed       = errors.New("view state update failed")
	ErrVersionFailed     = errors.New("failed to get view version")
)

// Store persists published views using pgx. It implements tracker.Sink.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with an existing connection pool
// Returns the store and a closer function
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// Version returns the version of the last stored view, 0 when none is stored
func (s *Store) Version(ctx context.Context) (uint64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, "SELECT version FROM members_view_state").Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrVersionFailed, err)
	}
	return uint64(version), nil
}

// Publish stores pub in one transaction. A snapshot or resync replaces every pool;
// a merge rewrites only the pools it touched.
func (s *Store) Publish(ctx context.Context, pub tracker.Publication) error {
	memberRows, err := dbrow.MemberRows(pub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if commit succeeds

	// pool_members rows go with their pool (ON DELETE CASCADE)
	if pub.ReplacesAll() {
		_, err = tx.Exec(ctx, "DELETE FROM member_pools")
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM member_pools WHERE pool_id = ANY($1)", dbrow.TouchedPoolIDs(pub))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"member_pools"},
		dbrow.PoolColumns,
		pgx.CopyFromRows(dbrow.PoolRows(pub)),
	)
	if err != nil {
		return fmt.Errorf("%w: member_pools: %w", ErrCopyFailed, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"pool_members"},
		dbrow.MemberColumns,
		pgx.CopyFromRows(memberRows),
	)
	if err != nil {
		return fmt.Errorf("%w: pool_members: %w", ErrCopyFailed, err)
	}

	// Update view state (singleton table with proper upsert)
	_, err = tx.Exec(ctx, `
		INSERT INTO members_view_state (single_row, version, height, reason, published_at)
		VALUES (TRUE, $1, $2, $3, $4)
		ON CONFLICT (single_row) DO UPDATE
		SET version = EXCLUDED.version,
		    height = EXCLUDED.height,
		    reason = EXCLUDED.reason,
		    published_at = EXCLUDED.published_at
	`, int64(pub.Version), int64(pub.Height), string(pub.Reason), pub.PublishedAt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStateFailed, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	return nil
}
