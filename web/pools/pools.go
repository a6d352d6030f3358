// Package pools is the read side of the membership view: the pools it holds, the members of
// each pool in view order, and the pool an account belongs to.
package pools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/screwyprof/poolmembers/members"
)

// Sentinel errors for lookups and criteria construction
var (
	ErrPoolNotFound    = errors.New("pool not found")
	ErrAccountNotFound = errors.New("account is not a pool member")
	ErrInvalidPool     = errors.New("invalid pool")
	ErrInvalidPerPage  = errors.New("invalid per_page")
)

// Finder reads the stored view
type Finder interface {
	FindPools(ctx context.Context) (*Listing, error)
	FindMembers(ctx context.Context, criteria MembersCriteria) (*MembersPage, error)
	FindMembership(ctx context.Context, account members.AccountID) (*Membership, error)
}

// ViewState describes the stored view. The zero value means nothing was published yet.
type ViewState struct {
	Version     uint64
	Height      uint64
	Reason      string
	PublishedAt time.Time
}

// Published reports whether a view has been stored
func (s ViewState) Published() bool {
	return s.Version > 0
}

// Pool is one pool of the view. MemberCount may be zero for a pool whose last member left.
type Pool struct {
	ID            members.PoolID
	MemberCount   uint64
	UpdatedHeight uint64
}

// Listing is every pool of the view, ordered by pool id
type Listing struct {
	Pools []Pool
	State ViewState
}

// Member is a delegator record at its position within a pool
type Member struct {
	Position                  uint64
	AccountID                 string
	Points                    string
	LastRecordedRewardCounter string
	UnbondingEras             map[string]string
}

// Membership is the pool record of one account
type Membership struct {
	PoolID members.PoolID
	Member Member
}

// MembersCriteria selects a page of one pool's members
type MembersCriteria struct {
	PoolID members.PoolID
	Page   Page
	Size   PerPage
}

// ItemsPerPage returns the number of items requested per page
func (c MembersCriteria) ItemsPerPage() uint64 {
	return c.Size.Uint64()
}

// ItemsToSkip returns the number of items to skip for pagination
func (c MembersCriteria) ItemsToSkip() uint64 {
	return (c.Page.Uint64() - 1) * c.Size.Uint64()
}

// NewMembersCriteria creates MembersCriteria with validation
func NewMembersCriteria(poolID string, page, perPage uint64) (MembersCriteria, error) {
	id, err := members.ParsePoolID(poolID)
	if err != nil {
		return MembersCriteria{}, fmt.Errorf("%w: %w", ErrInvalidPool, err)
	}

	pp, err := ParsePerPageFromUint64(perPage)
	if err != nil {
		return MembersCriteria{}, fmt.Errorf("%w: %w", ErrInvalidPerPage, err)
	}

	return MembersCriteria{
		PoolID: id,
		Page:   ParsePageFromUint64(page),
		Size:   pp,
	}, nil
}
