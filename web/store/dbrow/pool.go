package dbrow

import (
	"time"
)

// Pool is a member_pools row
type Pool struct {
	PoolID        int64 `db:"pool_id"`
	MemberCount   int32 `db:"member_count"`
	UpdatedHeight int64 `db:"updated_height"`
}

// Member is a pool_members row without the account key
type Member struct {
	PoolID                    int64             `db:"pool_id"`
	Position                  int32             `db:"position"`
	AccountID                 string            `db:"account_id"`
	Points                    string            `db:"points"`
	LastRecordedRewardCounter string            `db:"last_recorded_reward_counter"`
	UnbondingEras             map[string]string `db:"unbonding_eras"`
}

// ViewState is the members_view_state row
type ViewState struct {
	Version     int64     `db:"version"`
	Height      int64     `db:"height"`
	Reason      string    `db:"reason"`
	PublishedAt time.Time `db:"published_at"`
}
