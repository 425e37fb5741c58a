package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	rpcclient "github.com/cometbft/cometbft/rpc/client/http"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/tidwall/gjson"
)

var (
	// returned when the json-rpc endpoint answers with an error member or fails
	ErrRPC = errors.New("node rpc request failed")
	// returned when a REST endpoint answers with a non 2xx status
	ErrREST = errors.New("node rest request failed")
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultPageSize = 200

	// upper bound on a single REST response body
	maxBodySize = 32 << 20
)

type Config struct {
	// CometBFT RPC base url, e.g. http://localhost:26657
	RPCURL string
	// Cosmos REST gateway base url, e.g. http://localhost:1317
	APIURL string
	// optional bearer token sent with every request
	Token string
	// per call timeout, DefaultTimeout when zero
	Timeout time.Duration
	// pagination.limit for list endpoints, DefaultPageSize when zero
	PageSize int
}

// Client talks to a single chain node over json-rpc (status, blocks) and the
// REST gateway (transactions, staking, slashing)
type Client struct {
	rpc      *rpcclient.HTTP
	http     *http.Client
	apiURL   string
	timeout  time.Duration
	pageSize int
}

func NewClient(cfg Config) (*Client, error) {
	var transport http.RoundTripper = &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.Token != "" {
		transport = &AuthTransport{Transport: transport, Token: cfg.Token}
	}
	httpClient := &http.Client{Transport: transport}
	rpc, err := rpcclient.NewWithClient(cfg.RPCURL, "/websocket", httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		rpc:      rpc,
		http:     httpClient,
		apiURL:   strings.TrimSuffix(cfg.APIURL, "/"),
		timeout:  timeout,
		pageSize: pageSize,
	}, nil
}

func (c *Client) LatestHeight(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	status, err := c.rpc.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: status: %v", ErrRPC, err)
	}
	return status.SyncInfo.LatestBlockHeight, nil
}

func (c *Client) Block(ctx context.Context, height int64) (*coretypes.ResultBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.rpc.Block(ctx, &height)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", ErrRPC, height, err)
	}
	if res.Block == nil {
		return nil, fmt.Errorf("%w: block %d: empty result", ErrRPC, height)
	}
	return res, nil
}

// Tx fetches the decoded transaction by its upper-case hex hash
func (c *Client) Tx(ctx context.Context, hash string) (*TxResponse, error) {
	body, err := c.get(ctx, "/cosmos/tx/v1beta1/txs/"+hash, nil)
	if err != nil {
		return nil, err
	}
	raw := gjson.GetBytes(body, "tx_response")
	if !raw.Exists() {
		return nil, fmt.Errorf("%w: tx %s: missing tx_response", ErrREST, hash)
	}
	var resp TxResponse
	if err := json.Unmarshal([]byte(raw.Raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode tx %s: %w", hash, err)
	}
	resp.Raw = json.RawMessage(raw.Raw)
	return &resp, nil
}

func (c *Client) Validators(ctx context.Context) ([]Validator, error) {
	return getPaged[Validator](ctx, c, "/cosmos/staking/v1beta1/validators", "validators")
}

func (c *Client) StakingPool(ctx context.Context) (*Pool, error) {
	var resp struct {
		Pool Pool `json:"pool"`
	}
	if err := c.getJSON(ctx, "/cosmos/staking/v1beta1/pool", &resp); err != nil {
		return nil, err
	}
	return &resp.Pool, nil
}

func (c *Client) SlashingParams(ctx context.Context) (*SlashingParams, error) {
	var resp struct {
		Params SlashingParams `json:"params"`
	}
	if err := c.getJSON(ctx, "/cosmos/slashing/v1beta1/params", &resp); err != nil {
		return nil, err
	}
	return &resp.Params, nil
}

func (c *Client) SigningInfos(ctx context.Context) ([]SigningInfo, error) {
	return getPaged[SigningInfo](ctx, c, "/cosmos/slashing/v1beta1/signing_infos", "info")
}

func (c *Client) ValidatorDelegations(ctx context.Context, operatorAddress string) ([]DelegationResponse, error) {
	path := fmt.Sprintf("/cosmos/staking/v1beta1/validators/%s/delegations", url.PathEscape(operatorAddress))
	return getPaged[DelegationResponse](ctx, c, path, "delegation_responses")
}

// walks every page of a list endpoint following pagination.next_key
func getPaged[T any](ctx context.Context, c *Client, path string, field string) ([]T, error) {
	var (
		out     []T
		nextKey string
	)
	for {
		query := url.Values{}
		query.Set("pagination.limit", strconv.Itoa(c.pageSize))
		if nextKey != "" {
			query.Set("pagination.key", nextKey)
		}
		body, err := c.get(ctx, path, query)
		if err != nil {
			return nil, err
		}
		var page []T
		if items := gjson.GetBytes(body, field); items.Exists() && items.Type != gjson.Null {
			if err := json.Unmarshal([]byte(items.Raw), &page); err != nil {
				return nil, fmt.Errorf("failed to decode %s from %s: %w", field, path, err)
			}
		}
		out = append(out, page...)

		next := gjson.GetBytes(body, "pagination.next_key").String()
		if next == "" || next == nextKey {
			return out, nil
		}
		nextKey = next
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.apiURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrREST, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrREST, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: GET %s: status %d: %s", ErrREST, path, resp.StatusCode, msg)
	}
	return body, nil
}
