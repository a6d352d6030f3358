//go:build acceptance

package web_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/migrator"
	"github.com/screwyprof/poolmembers/migrator/migratortest"
	"github.com/screwyprof/poolmembers/pkg/logger"
	"github.com/screwyprof/poolmembers/pkg/pgxdb"
	"github.com/screwyprof/poolmembers/web/api"
	"github.com/screwyprof/poolmembers/web/handler"
	"github.com/screwyprof/poolmembers/web/pools"
	"github.com/screwyprof/poolmembers/web/store/pgxstore"
	"github.com/screwyprof/poolmembers/web/testcfg"
)

const migrationsDir = "../migrator/migrations"

// TestWebAPIAcceptanceBehavior tests end-to-end web API functionality over a seeded view
func TestWebAPIAcceptanceBehavior(t *testing.T) {
	t.Parallel()

	cfg := testcfg.New()

	// One shared read-only database for all subtests
	sharedTestDB := migratortest.CreateSeededTestDatabase(t, migrationsDir, cfg.DemoPools, cfg.DemoMembersPerPool, cfg.SeedTimeout)
	dbConnString := sharedTestDB.Config().ConnString()
	demo := migrator.DemoView(cfg.DemoPools, cfg.DemoMembersPerPool)

	t.Run("it lists every seeded pool with the view meta", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := createTestServer(t, dbConnString)

		// Act
		response := get(t, server.URL+"/pools")
		poolsResp := parseJSONResponse[api.PoolsResponse](t, response)

		// Assert
		assertSuccessfulResponse(t, response)
		require.Len(t, poolsResp.Data, cfg.DemoPools)
		for i, pool := range poolsResp.Data {
			assert.Equal(t, strconv.Itoa(i+1), pool.PoolID)
			assert.Equal(t, strconv.Itoa(cfg.DemoMembersPerPool), pool.MemberCount)
		}
		require.NotNil(t, poolsResp.Meta)
		assert.Equal(t, "1", poolsResp.Meta.Version)
		assert.Equal(t, strconv.FormatUint(migrator.DemoHeight, 10), poolsResp.Meta.Height)
	})

	t.Run("it returns pool members in view order with default pagination", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := createTestServer(t, dbConnString)

		// Act
		response := get(t, server.URL+"/pools/2/members")
		membersResp := parseJSONResponse[api.PoolMembersResponse](t, response)

		// Assert
		assertSuccessfulResponse(t, response)
		require.Len(t, membersResp.Data, min(pools.DefaultPerPage, cfg.DemoMembersPerPool))
		for i, m := range membersResp.Data {
			assert.Equal(t, strconv.Itoa(i), m.Position)
			assert.Equal(t, demo[2][i].AccountID.String(), m.AccountID)
		}
	})

	t.Run("it provides GitHub-style pagination Link headers", func(t *testing.T) {
		t.Parallel()

		t.Run("it provides next link on first page when more pages exist", func(t *testing.T) {
			t.Parallel()

			// Arrange
			server := createTestServer(t, dbConnString)

			// Act
			response := get(t, server.URL+"/pools/1/members?page=1&per_page=10")
			defer response.Body.Close()

			// Assert
			assertSuccessfulResponse(t, response)
			link := response.Header.Get("Link")
			assert.Contains(t, link, `rel="next"`)
			assert.NotContains(t, link, `rel="prev"`)
		})

		t.Run("it provides navigation links on middle pages", func(t *testing.T) {
			t.Parallel()

			// Arrange
			server := createTestServer(t, dbConnString)

			// Act
			response := get(t, server.URL+"/pools/1/members?page=2&per_page=5")
			membersResp := parseJSONResponse[api.PoolMembersResponse](t, response)

			// Assert
			assertSuccessfulResponse(t, response)
			require.Len(t, membersResp.Data, 5)
			assert.Equal(t, "5", membersResp.Data[0].Position)

			link := response.Header.Get("Link")
			assert.Contains(t, link, "page=1&per_page=5")
			assert.Contains(t, link, "page=3&per_page=5")
		})

		t.Run("it omits Link header when the pool fits on one page", func(t *testing.T) {
			t.Parallel()

			// Arrange
			server := createTestServer(t, dbConnString)

			// Act
			response := get(t, server.URL+fmt.Sprintf("/pools/1/members?per_page=%d", pools.MaxPerPage))
			defer response.Body.Close()

			// Assert
			assertSuccessfulResponse(t, response)
			assert.Empty(t, response.Header.Get("Link"))
		})
	})

	t.Run("it finds the pool of an account under any address prefix", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := createTestServer(t, dbConnString)
		seeded := demo[3][7].AccountID
		polkadot := members.EncodeAccountID(0, seeded.Key())

		// Act
		response := get(t, server.URL+"/accounts/"+polkadot.String()+"/pool")
		accountResp := parseJSONResponse[api.AccountPoolResponse](t, response)

		// Assert
		assertSuccessfulResponse(t, response)
		assert.Equal(t, "3", accountResp.Data.PoolID)
		assert.Equal(t, "7", accountResp.Data.Member.Position)
		assert.Equal(t, seeded.String(), accountResp.Data.Member.AccountID)
	})

	t.Run("it reports unknown pools and accounts as not found", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := createTestServer(t, dbConnString)
		var stranger members.PublicKey
		stranger[31] = 0xff

		// Act
		poolResp := get(t, server.URL+"/pools/999/members")
		poolResp.Body.Close()
		accountResp := get(t, server.URL+"/accounts/"+members.EncodeAccountID(members.GenericPrefix, stranger).String()+"/pool")
		accountResp.Body.Close()

		// Assert
		assert.Equal(t, http.StatusNotFound, poolResp.StatusCode)
		assert.Equal(t, http.StatusNotFound, accountResp.StatusCode)
	})
}

// createTestServer creates a test server with its own connection pool to the shared database
func createTestServer(t *testing.T, dbConnString string) *httptest.Server {
	t.Helper()

	storeConn, err := pgxdb.NewConnection(t.Context(), dbConnString, pgxdb.WithMaxConns(2))
	require.NoError(t, err)

	store, storeCloser := pgxstore.New(storeConn)

	mux := http.NewServeMux()
	handler.NewPools(store).AddRoutes(mux)

	testCfg := testcfg.New()
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         testCfg.LogLevel,
		LogHumanFriendly: testCfg.LogHumanFriendly,
		Service:          "web-acceptance",
	})

	server := httptest.NewServer(logger.NewMiddleware(log)(mux))
	t.Cleanup(func() {
		server.Close()
		storeCloser()
	})

	return server
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err, "Should create HTTP request")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "HTTP request should succeed")

	return resp
}

// assertSuccessfulResponse verifies the HTTP response indicates success
func assertSuccessfulResponse(t *testing.T, resp *http.Response) {
	t.Helper()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "Should return HTTP 200 OK")
}

// parseJSONResponse parses HTTP response body as JSON into the specified type
func parseJSONResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()

	var result T
	err := json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err, "Response should be valid JSON")

	return result
}
