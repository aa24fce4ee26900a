// Package rpc is the JSON-RPC backing-store client. It implements
// golemsql.EntityClient over plain HTTP POST; the websocket endpoint
// from the connection string is reserved for log subscriptions, which
// the adapter does not use.
package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
)

const (
	methodCreateEntities    = "golembase_createEntities"
	methodUpdateEntities    = "golembase_updateEntities"
	methodDeleteEntities    = "golembase_deleteEntities"
	methodQueryEntities     = "golembase_queryEntities"
	methodGetAccountAddress = "golembase_getAccountAddress"
)

// Client speaks JSON-RPC 2.0 to a store node.
type Client struct {
	endpoint   string
	privateKey string
	httpClient *http.Client
	logger     *zap.Logger
	nextID     atomic.Uint64
}

// NewClient creates a client for one RPC endpoint. The private key is
// forwarded for request signing by the node-side middleware.
func NewClient(rpcURL, privateKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   rpcURL,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, bytes.TrimSpace(data))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}

	c.logger.Debug("rpc call",
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (c *Client) CreateEntities(ctx context.Context, entities []golemsql.Entity) ([]golemsql.Receipt, error) {
	var receipts []golemsql.Receipt
	if err := c.call(ctx, methodCreateEntities, []any{entities, c.privateKey}, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (c *Client) UpdateEntities(ctx context.Context, updates []golemsql.EntityUpdate) ([]golemsql.Receipt, error) {
	var receipts []golemsql.Receipt
	if err := c.call(ctx, methodUpdateEntities, []any{updates, c.privateKey}, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (c *Client) DeleteEntities(ctx context.Context, keys []string) ([]golemsql.Receipt, error) {
	var receipts []golemsql.Receipt
	if err := c.call(ctx, methodDeleteEntities, []any{keys, c.privateKey}, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (c *Client) QueryEntities(ctx context.Context, predicate string) ([]golemsql.QueryResult, error) {
	var results []golemsql.QueryResult
	if err := c.call(ctx, methodQueryEntities, []any{predicate}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) GetAccountAddress(ctx context.Context) (string, error) {
	var address string
	if err := c.call(ctx, methodGetAccountAddress, []any{}, &address); err != nil {
		return "", err
	}
	return address, nil
}
