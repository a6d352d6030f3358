package viewbus_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/pkg/viewbus"
)

const alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

func TestSelect(t *testing.T) {
	t.Parallel()

	t.Run("it keeps only the requested pools", func(t *testing.T) {
		t.Parallel()

		// Arrange
		view := members.View{
			1: {aliceIn(t, 1)},
			2: {aliceIn(t, 2)},
		}

		// Act
		selected := viewbus.Select(view, []members.PoolID{2, 3})

		// Assert
		require.Len(t, selected, 2)
		assert.Equal(t, view[2], selected[2])
		assert.NotNil(t, selected[3], "an emptied pool is reported as an empty list")
		assert.Empty(t, selected[3])
	})

	t.Run("it returns nil when nothing was touched", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, viewbus.Select(members.View{1: {aliceIn(t, 1)}}, nil))
	})
}

func TestMessageEncoding(t *testing.T) {
	t.Parallel()

	t.Run("it renders pools keyed by id with address strings", func(t *testing.T) {
		t.Parallel()

		// Arrange
		msg := viewbus.Message{
			Type:        viewbus.TypeViewPublished,
			Version:     3,
			Height:      120,
			Reason:      "merge",
			PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Pools:       members.View{7: {aliceIn(t, 7)}, 8: {}},
		}

		// Act
		raw, err := json.Marshal(msg)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))

		// Assert
		pools := decoded["pools"].(map[string]any)
		assert.Contains(t, pools, "7")
		assert.Equal(t, []any{}, pools["8"])
		first := pools["7"].([]any)[0].(map[string]any)
		assert.Equal(t, alice, first["accountId"])
	})

	t.Run("it omits pools for snapshot announcements", func(t *testing.T) {
		t.Parallel()

		// Act
		raw, err := json.Marshal(viewbus.Message{Type: viewbus.TypeViewPublished, Reason: "snapshot"})

		// Assert
		require.NoError(t, err)
		assert.NotContains(t, string(raw), `"pools"`)
	})
}

func TestBusErrors(t *testing.T) {
	t.Parallel()

	t.Run("it wraps connection failures", func(t *testing.T) {
		t.Parallel()

		// Arrange
		client := unreachableRedis(t)
		bus := viewbus.New(client)

		// Act
		publishErr := bus.Publish(t.Context(), viewbus.Message{Type: viewbus.TypeViewPublished}, viewbus.Latest{})
		_, latestErr := bus.Latest(t.Context())
		_, subscribeErr := bus.Subscribe(t.Context())

		// Assert
		assert.ErrorIs(t, publishErr, viewbus.ErrPublishFailed)
		assert.ErrorIs(t, latestErr, viewbus.ErrLatestFailed)
		assert.ErrorIs(t, subscribeErr, viewbus.ErrSubscribeFailed)
	})
}

// unreachableRedis returns a client for a port nothing listens on
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func aliceIn(t *testing.T, pool members.PoolID) members.Member {
	t.Helper()

	id, err := members.ParseAccountID(alice)
	require.NoError(t, err)
	return members.Member{AccountID: id, Info: members.Info{PoolID: pool, Points: "100"}}
}
