package dbrow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/tracker"
	"github.com/screwyprof/poolmembers/tracker/store/dbrow"
)

func TestRows(t *testing.T) {
	t.Parallel()

	t.Run("it writes only the touched pools in view order", func(t *testing.T) {
		t.Parallel()

		// Arrange
		a1, a2, a3 := account(1), account(2), account(3)
		pub := tracker.Publication{
			Height: 77,
			Reason: tracker.ReasonMerge,
			View: members.View{
				1: {},
				2: {member(a2, 2, nil), member(a1, 2, map[string]string{"120": "500"})},
				3: {member(a3, 3, nil)},
			},
			Touched: []members.PoolID{1, 2},
		}

		// Act
		pools := dbrow.PoolRows(pub)
		rows, err := dbrow.MemberRows(pub)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(1), 0, int64(77)}, {int64(2), 2, int64(77)}}, pools)
		require.Len(t, rows, 2)

		assert.Equal(t, 0, rows[0][1])
		assert.Equal(t, a2.String(), rows[0][2])
		assert.Equal(t, []byte("{}"), rows[0][6])

		key := a1.Key()
		assert.Equal(t, 1, rows[1][1])
		assert.Equal(t, key[:], rows[1][3])
		assert.JSONEq(t, `{"120":"500"}`, string(rows[1][6].([]byte)))

		assert.Equal(t, []int64{1, 2}, dbrow.TouchedPoolIDs(pub))
	})
}

func account(seed byte) members.AccountID {
	var key members.PublicKey
	key[0] = seed
	return members.EncodeAccountID(members.GenericPrefix, key)
}

func member(id members.AccountID, pool members.PoolID, eras map[string]string) members.Member {
	return members.Member{
		AccountID: id,
		Info: members.Info{
			PoolID:                    pool,
			Points:                    "1000",
			LastRecordedRewardCounter: "0",
			UnbondingEras:             eras,
		},
	}
}
