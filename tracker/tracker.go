package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/pkg/sidecar"
)

// Sentinel errors for failure cases
var (
	ErrSnapshotFailed = errors.New("snapshot load failed")
	ErrPagingStalled  = errors.New("snapshot paging stalled")
	ErrHeadFailed     = errors.New("head retrieval failed")
	ErrBlockFailed    = errors.New("block retrieval failed")
	ErrLookupFailed   = errors.New("member lookup failed")
	ErrInvalidRecord  = errors.New("invalid member record")
	ErrSinkFailed     = errors.New("sink publish failed")
)

// Default configuration values
const (
	DefaultPageSize      = uint64(1000)
	DefaultPollInterval  = 6 * time.Second
	DefaultRetryInterval = 15 * time.Second
	DefaultLookupQueue   = 64
)

// Client reads pool membership from the chain gateway
// ---------------------------------------------------
type Client interface {
	Head(ctx context.Context) (uint64, error)
	Block(ctx context.Context, height uint64) (sidecar.Block, error)
	PoolMembersPage(ctx context.Context, req sidecar.PoolMembersPageRequest) (sidecar.PoolMembersPage, error)
	PoolMembers(ctx context.Context, accounts []string) ([]*sidecar.PoolMember, error)
}

// Sink receives every view the tracker accepts
type Sink interface {
	Publish(ctx context.Context, pub Publication) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, pub Publication) error

// Publish calls f(ctx, pub)
func (f SinkFunc) Publish(ctx context.Context, pub Publication) error {
	return f(ctx, pub)
}

// Reason tells why a view was published
type Reason string

const (
	ReasonSnapshot Reason = "snapshot"
	ReasonMerge    Reason = "merge"
)

// Publication is an accepted view handed to sinks.
// For snapshots and resyncs Touched lists every pool of the view.
type Publication struct {
	Version     uint64
	Height      uint64
	Reason      Reason
	View        members.View
	Touched     []members.PoolID
	PublishedAt time.Time

	// Resync is set on the publication a sink receives after it failed an earlier one.
	// The sink must replace its state with View instead of applying Touched.
	Resync bool
}

// ReplacesAll reports whether a sink must drop what it holds and store View whole
func (p Publication) ReplacesAll() bool {
	return p.Reason == ReasonSnapshot || p.Resync
}

// Clock abstracts time for production and testing
// ------------------------------------------------
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// Event represents a service lifecycle event
// ------------------------------------------
type Event any

type Started struct {
	StartedAt    time.Time
	PollInterval time.Duration
	PageSize     uint64
}

type SnapshotLoaded struct {
	Height   uint64
	Pages    int
	Entries  int
	Skipped  int
	Duration time.Duration
}

type SnapshotError struct {
	Err error
}

type BlocksScanned struct {
	From   uint64
	To     uint64
	Joined int
}

type WatchError struct {
	Err error
}

type LookupError struct {
	Height   uint64
	Accounts int
	Err      error
}

// MergeDropped reports additions that arrived before the first snapshot
type MergeDropped struct {
	Height  uint64
	Members int
}

type ViewPublished struct {
	Version uint64
	Height  uint64
	Reason  Reason
	Pools   int
	Members int
	Touched int
}

type SinkError struct {
	Version uint64
	Err     error
}

// SchemaMismatch reports a chain event the tracker cannot decode. The service stops after it.
type SchemaMismatch struct {
	Height uint64
	Err    error
}

type Stopped struct {
	Reason error // ctx.Err() or the fatal error
}
