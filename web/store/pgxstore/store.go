package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/web/pools"
	"github.com/screwyprof/poolmembers/web/store/dbrow"
)

// Sentinel errors for store operations
var (
	ErrQueryFailed = errors.New("view query failed")
)

const (
	viewStateQuery = "SELECT version, height, reason, published_at FROM members_view_state"
	poolsQuery     = "SELECT pool_id, member_count, updated_height FROM member_pools"
)

// readOnly queries see one published view even while the tracker rewrites pools
var readOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// Finder implements pools.Finder using pgx
type Finder struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL finder with an existing connection pool
// Returns the finder and a closer function
func New(pool *pgxpool.Pool) (*Finder, func()) {
	finder := &Finder{pool: pool}
	closer := func() {
		pool.Close()
	}
	return finder, closer
}

// FindPools lists every pool of the stored view together with the view state
func (f *Finder) FindPools(ctx context.Context) (*pools.Listing, error) {
	var listing pools.Listing
	err := pgx.BeginTxFunc(ctx, f.pool, readOnly, func(tx pgx.Tx) error {
		state, err := queryViewState(ctx, tx)
		if err != nil {
			return err
		}
		listing.State = state

		rows, err := tx.Query(ctx, poolsQuery+" ORDER BY pool_id")
		if err != nil {
			return err
		}
		dbRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[dbrow.Pool])
		if err != nil {
			return err
		}

		listing.Pools = make([]pools.Pool, len(dbRows))
		for i, row := range dbRows {
			listing.Pools[i] = toPool(row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return &listing, nil
}

// FindMembers returns one page of a pool's members in view order.
// Uses LIMIT n+1 technique for efficient pagination without separate count query
func (f *Finder) FindMembers(ctx context.Context, criteria pools.MembersCriteria) (*pools.MembersPage, error) {
	var dbRows []dbrow.Member
	err := pgx.BeginTxFunc(ctx, f.pool, readOnly, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM member_pools WHERE pool_id = $1)", int64(criteria.PoolID)).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return pools.ErrPoolNotFound
		}

		query, args := NewMembersQuery().ForCriteria(criteria).Build()
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		dbRows, err = pgx.CollectRows(rows, pgx.RowToStructByName[dbrow.Member])
		return err
	})
	if errors.Is(err, pools.ErrPoolNotFound) {
		return nil, fmt.Errorf("%w: %s", pools.ErrPoolNotFound, criteria.PoolID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	// Determine if there are more pages using LIMIT n+1 technique
	hasMore := uint64(len(dbRows)) > criteria.ItemsPerPage()
	if hasMore {
		dbRows = dbRows[:criteria.ItemsPerPage()]
	}

	page := &pools.MembersPage{
		Members: make([]pools.Member, len(dbRows)),
		HasMore: hasMore,
		Number:  criteria.Page,
		Size:    criteria.Size,
	}
	for i, row := range dbRows {
		page.Members[i] = toMember(row)
	}
	return page, nil
}

// FindMembership returns the pool record of account, matched by public key so any SS58
// rendering of the account finds it
func (f *Finder) FindMembership(ctx context.Context, account members.AccountID) (*pools.Membership, error) {
	key := account.Key()
	query, args := NewMembersQuery().ForAccount(key[:]).Build()

	rows, err := f.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dbrow.Member])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pools.ErrAccountNotFound, account)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return &pools.Membership{
		PoolID: members.PoolID(row.PoolID),
		Member: toMember(row),
	}, nil
}

func queryViewState(ctx context.Context, tx pgx.Tx) (pools.ViewState, error) {
	rows, err := tx.Query(ctx, viewStateQuery)
	if err != nil {
		return pools.ViewState{}, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dbrow.ViewState])
	if errors.Is(err, pgx.ErrNoRows) {
		return pools.ViewState{}, nil
	}
	if err != nil {
		return pools.ViewState{}, err
	}

	return pools.ViewState{
		Version:     uint64(row.Version),
		Height:      uint64(row.Height),
		Reason:      row.Reason,
		PublishedAt: row.PublishedAt,
	}, nil
}

func toPool(row dbrow.Pool) pools.Pool {
	return pools.Pool{
		ID:            members.PoolID(row.PoolID),
		MemberCount:   uint64(row.MemberCount),
		UpdatedHeight: uint64(row.UpdatedHeight),
	}
}

func toMember(row dbrow.Member) pools.Member {
	return pools.Member{
		Position:                  uint64(row.Position),
		AccountID:                 row.AccountID,
		Points:                    row.Points,
		LastRecordedRewardCounter: row.LastRecordedRewardCounter,
		UnbondingEras:             row.UnbondingEras,
	}
}
