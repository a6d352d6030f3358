package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alitto/pond/v2"
)

// Sentinel errors for failure cases
var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrEmptyLookup      = errors.New("empty lookup")
	ErrInvalidHeight    = errors.New("invalid block height")
)

// Default configuration values
const (
	DefaultMaxConcurrency = 8
)

// Option configures the Client
type Option func(*Client)

// WithMaxConcurrency bounds the number of in-flight requests of a batched lookup
func WithMaxConcurrency(n int) Option {
	return func(c *Client) { c.maxConcurrency = n }
}

// Client represents a Substrate API Sidecar client
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxConcurrency int
	pool           pond.Pool
}

// NewClient creates a new Sidecar API client with custom HTTP client and base URL.
// Close releases the lookup workers.
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = pond.NewPool(c.maxConcurrency)
	return c
}

// Close stops the lookup workers, waiting for queued lookups to finish
func (c *Client) Close() {
	c.pool.StopAndWait()
}

// Header is the subset of a block header the client reads
type Header struct {
	Number string `json:"number"`
}

// Head returns the height of the current best block
func (c *Client) Head(ctx context.Context) (uint64, error) {
	var header Header
	if err := c.get(ctx, "/blocks/head/header", nil, &header); err != nil {
		return 0, err
	}
	return ParseHeight(header.Number)
}

// EventMethod names the pallet and the method of a runtime event
type EventMethod struct {
	Pallet string `json:"pallet"`
	Method string `json:"method"`
}

// Event is a runtime event with its positional payload
type Event struct {
	Method EventMethod        `json:"method"`
	Data   []json.RawMessage `json:"data"`
}

// EventGroup holds the events emitted by one phase of a block
type EventGroup struct {
	Events []Event `json:"events"`
}

// Block represents a block with its events as returned by the /blocks endpoint
type Block struct {
	Number       string       `json:"number"`
	Hash         string       `json:"hash"`
	OnInitialize EventGroup   `json:"onInitialize"`
	Extrinsics   []EventGroup `json:"extrinsics"`
	OnFinalize   EventGroup   `json:"onFinalize"`
}

// Events flattens the block's events in execution order
func (b Block) Events() []Event {
	events := make([]Event, 0, len(b.OnInitialize.Events)+len(b.OnFinalize.Events))
	events = append(events, b.OnInitialize.Events...)
	for _, ext := range b.Extrinsics {
		events = append(events, ext.Events...)
	}
	return append(events, b.OnFinalize.Events...)
}

// Block retrieves the block at height
func (c *Client) Block(ctx context.Context, height uint64) (Block, error) {
	var block Block
	path := "/blocks/" + strconv.FormatUint(height, 10)
	if err := c.get(ctx, path, nil, &block); err != nil {
		return Block{}, err
	}
	return block, nil
}

// PoolMember is the delegator record of the poolMembers storage map
type PoolMember struct {
	PoolID                    string            `json:"poolId"`
	Points                    string            `json:"points"`
	LastRecordedRewardCounter string            `json:"lastRecordedRewardCounter"`
	UnbondingEras             map[string]string `json:"unbondingEras"`
}

// PoolMembersPageRequest represents parameters for paging through poolMembers.
// At pins the query to a block hash or height; empty means the current head.
type PoolMembersPageRequest struct {
	Count    uint64
	StartKey string
	At       string
}

// StorageEntry is one key of the poolMembers map. Value is nil when the key has no record.
type StorageEntry struct {
	Key   string      `json:"key"`
	Value *PoolMember `json:"value"`
}

// At identifies the block a storage query was answered at
type At struct {
	Hash   string `json:"hash"`
	Height string `json:"height"`
}

// PoolMembersPage is one page of the poolMembers map. An empty NextKey marks the last page.
type PoolMembersPage struct {
	At      At             `json:"at"`
	Entries []StorageEntry `json:"entries"`
	NextKey string         `json:"nextKey"`
}

// PoolMembersPage retrieves one page of poolMembers entries
func (c *Client) PoolMembersPage(ctx context.Context, req PoolMembersPageRequest) (PoolMembersPage, error) {
	query := url.Values{}
	query.Set("count", strconv.FormatUint(req.Count, 10))
	if req.StartKey != "" {
		query.Set("startKey", req.StartKey)
	}
	if req.At != "" {
		query.Set("at", req.At)
	}

	var page PoolMembersPage
	if err := c.get(ctx, "/pallets/nominationPools/storage/poolMembers/entries", query, &page); err != nil {
		return PoolMembersPage{}, err
	}
	return page, nil
}

type storageItem struct {
	Value *PoolMember `json:"value"`
}

// PoolMember retrieves the delegator record of account, nil when it has none
func (c *Client) PoolMember(ctx context.Context, account string) (*PoolMember, error) {
	query := url.Values{}
	query.Add("keys[]", account)

	var item storageItem
	if err := c.get(ctx, "/pallets/nominationPools/storage/poolMembers", query, &item); err != nil {
		return nil, err
	}
	return item.Value, nil
}

// PoolMembers looks up the delegator records of accounts concurrently.
// The result has one entry per account in the same order; accounts without a record map to nil.
// Any failed lookup fails the whole batch.
func (c *Client) PoolMembers(ctx context.Context, accounts []string) ([]*PoolMember, error) {
	if len(accounts) == 0 {
		return nil, ErrEmptyLookup
	}

	results := make([]*PoolMember, len(accounts))
	group := c.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i, account := range accounts {
		group.SubmitErr(func() error {
			member, err := c.PoolMember(groupCtx, account)
			if err != nil {
				return fmt.Errorf("account %s: %w", account, err)
			}
			results[i] = member
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ParseHeight parses a block height as rendered by the gateway
func ParseHeight(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHeight, s)
	}
	return h, nil
}
