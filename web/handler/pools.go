package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/screwyprof/poolmembers/pkg/httpkit"
	"github.com/screwyprof/poolmembers/web/api"
	"github.com/screwyprof/poolmembers/web/handler/bind"
	"github.com/screwyprof/poolmembers/web/pools"
)

// Routes served by Pools
const (
	GetPoolsRoute       = http.MethodGet + " " + "/pools"
	GetPoolMembersRoute = http.MethodGet + " " + "/pools/{poolId}/members"
	GetAccountPoolRoute = http.MethodGet + " " + "/accounts/{accountId}/pool"
)

// Sentinel errors
var (
	ErrQueryFailed = errors.New("failed to query the membership view")
)

// Pools serves the stored membership view
type Pools struct {
	finder pools.Finder
}

func NewPools(finder pools.Finder) *Pools {
	return &Pools{
		finder: finder,
	}
}

func (h *Pools) AddRoutes(m *http.ServeMux) {
	m.Handle(GetPoolsRoute, httpkit.HandlerFunc(h.GetPools))
	m.Handle(GetPoolMembersRoute, httpkit.HandlerFunc(h.GetPoolMembers))
	m.Handle(GetAccountPoolRoute, httpkit.HandlerFunc(h.GetAccountPool))
}

func (h *Pools) GetPools(_ http.ResponseWriter, r *http.Request) http.HandlerFunc {
	listing, err := h.finder.FindPools(r.Context())
	if err != nil {
		return httpkit.JSONError(api.InternalServerError(fmt.Errorf("%w: %w", ErrQueryFailed, err)))
	}

	return httpkit.JSON(bind.GetPoolsResponse(listing))
}

func (h *Pools) GetPoolMembers(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.GetPoolMembersRequest(r)
	if err != nil {
		return httpkit.JSONError(api.BadRequest(err))
	}

	criteria, err := pools.NewMembersCriteria(req.PoolID, req.Page, req.PerPage)
	if err != nil {
		return httpkit.JSONError(api.BadRequest(err))
	}

	page, err := h.finder.FindMembers(r.Context(), criteria)
	if errors.Is(err, pools.ErrPoolNotFound) {
		return httpkit.JSONError(api.NotFound(err))
	}
	if err != nil {
		return httpkit.JSONError(api.InternalServerError(fmt.Errorf("%w: %w", ErrQueryFailed, err)))
	}

	if linkHeader := buildPaginationLinks(page, r.URL); linkHeader != "" {
		w.Header().Set("Link", linkHeader)
	}

	return httpkit.JSON(bind.GetPoolMembersResponse(page))
}

func (h *Pools) GetAccountPool(_ http.ResponseWriter, r *http.Request) http.HandlerFunc {
	account, err := bind.GetAccountPoolRequest(r)
	if err != nil {
		return httpkit.JSONError(api.BadRequest(err))
	}

	membership, err := h.finder.FindMembership(r.Context(), account)
	if errors.Is(err, pools.ErrAccountNotFound) {
		return httpkit.JSONError(api.NotFound(err))
	}
	if err != nil {
		return httpkit.JSONError(api.InternalServerError(fmt.Errorf("%w: %w", ErrQueryFailed, err)))
	}

	return httpkit.JSON(bind.GetAccountPoolResponse(membership))
}

// buildPaginationLinks creates GitHub-style Link header for pagination navigation.
// Only prev and next are emitted; last would need a count per request.
func buildPaginationLinks(page *pools.MembersPage, baseURL *url.URL) string {
	var links []string

	u := *baseURL
	query := u.Query()
	query.Set("per_page", strconv.FormatUint(page.Size.Uint64(), 10))

	if page.HasPrevious() {
		query.Set("page", strconv.FormatUint(page.Number.Uint64()-1, 10))
		u.RawQuery = query.Encode()
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, u.String()))
	}

	if page.HasNext() {
		query.Set("page", strconv.FormatUint(page.Number.Uint64()+1, 10))
		u.RawQuery = query.Encode()
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, u.String()))
	}

	return strings.Join(links, ", ")
}
