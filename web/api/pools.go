package api

// PoolMembersRequest represents the query parameters for GET /pools/{poolId}/members
type PoolMembersRequest struct {
	PoolID  string `path:"poolId"`
	Page    uint64 `query:"page"`     // Page number for pagination (default: 1)
	PerPage uint64 `query:"per_page"` // Number of items per page (default: 50, max: 100)
}

// AccountPoolRequest represents the path of GET /accounts/{accountId}/pool
type AccountPoolRequest struct {
	AccountID string `path:"accountId"`
}

// Pool represents a single pool in the API response
type Pool struct {
	PoolID        string `json:"poolId"`
	MemberCount   string `json:"memberCount"`
	UpdatedHeight string `json:"updatedHeight"`
}

// ViewMeta describes the view a response was read from
type ViewMeta struct {
	Version     string `json:"version"`
	Height      string `json:"height"`
	Reason      string `json:"reason"`
	PublishedAt string `json:"publishedAt"`
}

// PoolsResponse represents the API response format for GET /pools.
// Meta is absent until the first view is published.
type PoolsResponse struct {
	Data []Pool    `json:"data"`
	Meta *ViewMeta `json:"meta,omitempty"`
}

// Member represents a single pool member in the API response
type Member struct {
	Position                  string            `json:"position"`
	AccountID                 string            `json:"accountId"`
	Points                    string            `json:"points"`
	LastRecordedRewardCounter string            `json:"lastRecordedRewardCounter"`
	UnbondingEras             map[string]string `json:"unbondingEras"`
}

// PoolMembersResponse represents the API response format for GET /pools/{poolId}/members
type PoolMembersResponse struct {
	Data []Member `json:"data"`
}

// AccountPoolResponse represents the API response format for GET /accounts/{accountId}/pool
type AccountPoolResponse struct {
	Data Membership `json:"data"`
}

// Membership is the pool record of one account
type Membership struct {
	PoolID string `json:"poolId"`
	Member Member `json:"member"`
}
