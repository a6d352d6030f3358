package dbrow

import (
	"encoding/json"
	"fmt"

	"github.com/screwyprof/poolmembers/tracker"
)

// PoolColumns are the member_pools columns written by PoolRows
var PoolColumns = []string{"pool_id", "member_count", "updated_height"}

// MemberColumns are the pool_members columns written by MemberRows
var MemberColumns = []string{
	"pool_id",
	"position",
	"account_id",
	"account_key",
	"points",
	"last_recorded_reward_counter",
	"unbonding_eras",
}

// TouchedPoolIDs returns the touched pools of pub as BIGINT values
func TouchedPoolIDs(pub tracker.Publication) []int64 {
	ids := make([]int64, len(pub.Touched))
	for i, id := range pub.Touched {
		ids[i] = int64(id)
	}
	return ids
}

// PoolRows converts the touched pools of pub to [][]any for pgx.CopyFromRows
func PoolRows(pub tracker.Publication) [][]any {
	rows := make([][]any, len(pub.Touched))
	for i, id := range pub.Touched {
		rows[i] = []any{int64(id), len(pub.View[id]), int64(pub.Height)}
	}
	return rows
}

// MemberRows converts the members of the touched pools of pub to [][]any for pgx.CopyFromRows.
// position keeps the view order within a pool.
func MemberRows(pub tracker.Publication) ([][]any, error) {
	var rows [][]any
	for _, id := range pub.Touched {
		for pos, m := range pub.View[id] {
			eras, err := encodeEras(m.Info.UnbondingEras)
			if err != nil {
				return nil, fmt.Errorf("pool %d position %d: %w", id, pos, err)
			}
			key := m.AccountID.Key()
			rows = append(rows, []any{
				int64(id),
				pos,
				m.AccountID.String(),
				key[:],
				m.Info.Points,
				m.Info.LastRecordedRewardCounter,
				eras,
			})
		}
	}
	return rows, nil
}

func encodeEras(eras map[string]string) ([]byte, error) {
	if eras == nil {
		eras = map[string]string{}
	}
	return json.Marshal(eras)
}
