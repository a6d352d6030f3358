package bind

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/web/api"
	"github.com/screwyprof/poolmembers/web/pools"
)

// Sentinel errors for request binding
var (
	ErrInvalidPage    = errors.New("invalid page parameter")
	ErrInvalidPerPage = errors.New("invalid per_page parameter")
	ErrInvalidAccount = errors.New("invalid accountId parameter")

	// Specific page validation errors
	ErrPageNotNumeric  = errors.New("page must be numeric")
	ErrPageNotPositive = errors.New("page must be positive")

	// Specific per_page validation errors
	ErrPerPageNotNumeric  = errors.New("per_page must be numeric")
	ErrPerPageNotPositive = errors.New("per_page must be positive")
	ErrPerPageTooLarge    = errors.New("per_page must be between 1 and 100")
)

// GetPoolMembersRequest binds HTTP request to PoolMembersRequest with defaults
func GetPoolMembersRequest(r *http.Request) (api.PoolMembersRequest, error) {
	req := api.PoolMembersRequest{
		PoolID:  r.PathValue("poolId"),
		Page:    pools.DefaultPage,
		PerPage: pools.DefaultPerPage,
	}

	query := r.URL.Query()

	if pageParam := query.Get("page"); pageParam != "" {
		page, err := parsePageNumber(pageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPage, err)
		}
		req.Page = page
	}

	if perPageParam := query.Get("per_page"); perPageParam != "" {
		perPage, err := parsePerPageLimit(perPageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPerPage, err)
		}
		req.PerPage = perPage
	}

	return req, nil
}

// GetAccountPoolRequest binds the account path segment and decodes it as an SS58 address
func GetAccountPoolRequest(r *http.Request) (members.AccountID, error) {
	req := api.AccountPoolRequest{AccountID: r.PathValue("accountId")}

	id, err := members.ParseAccountID(req.AccountID)
	if err != nil {
		return members.AccountID{}, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	return id, nil
}

// parsePageNumber validates that the page parameter is a positive integer
func parsePageNumber(pageParam string) (uint64, error) {
	page, err := strconv.ParseUint(pageParam, 10, 64)
	if err != nil {
		return 0, ErrPageNotNumeric
	}

	if page == 0 {
		return 0, ErrPageNotPositive
	}

	return page, nil
}

// parsePerPageLimit validates that the per_page parameter is within acceptable limits
func parsePerPageLimit(perPageParam string) (uint64, error) {
	perPage, err := strconv.ParseUint(perPageParam, 10, 64)
	if err != nil {
		return 0, ErrPerPageNotNumeric
	}

	if perPage == 0 {
		return 0, ErrPerPageNotPositive
	}

	if perPage > pools.MaxPerPage {
		return 0, ErrPerPageTooLarge
	}

	return perPage, nil
}

// GetPoolsResponse binds the pool listing to API response format
func GetPoolsResponse(listing *pools.Listing) api.PoolsResponse {
	data := make([]api.Pool, len(listing.Pools))
	for i, pool := range listing.Pools {
		data[i] = api.Pool{
			PoolID:        pool.ID.String(),
			MemberCount:   strconv.FormatUint(pool.MemberCount, 10),
			UpdatedHeight: strconv.FormatUint(pool.UpdatedHeight, 10),
		}
	}

	resp := api.PoolsResponse{Data: data}
	if listing.State.Published() {
		resp.Meta = &api.ViewMeta{
			Version:     strconv.FormatUint(listing.State.Version, 10),
			Height:      strconv.FormatUint(listing.State.Height, 10),
			Reason:      listing.State.Reason,
			PublishedAt: listing.State.PublishedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

// GetPoolMembersResponse binds a page of members to API response format
func GetPoolMembersResponse(page *pools.MembersPage) api.PoolMembersResponse {
	data := make([]api.Member, len(page.Members))
	for i, m := range page.Members {
		data[i] = toMember(m)
	}
	return api.PoolMembersResponse{Data: data}
}

// GetAccountPoolResponse binds a membership to API response format
func GetAccountPoolResponse(membership *pools.Membership) api.AccountPoolResponse {
	return api.AccountPoolResponse{
		Data: api.Membership{
			PoolID: membership.PoolID.String(),
			Member: toMember(membership.Member),
		},
	}
}

func toMember(m pools.Member) api.Member {
	eras := m.UnbondingEras
	if eras == nil {
		eras = map[string]string{}
	}
	return api.Member{
		Position:                  strconv.FormatUint(m.Position, 10),
		AccountID:                 m.AccountID,
		Points:                    m.Points,
		LastRecordedRewardCounter: m.LastRecordedRewardCounter,
		UnbondingEras:             eras,
	}
}
