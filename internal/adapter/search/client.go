package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"topicidx/internal/domain"
	"topicidx/internal/port"
)

// Client calls a search Server. It implements port.KeywordSearcher.
type Client struct {
	network   string
	address   string
	timeout   time.Duration
	requestID atomic.Uint64
}

var _ port.KeywordSearcher = (*Client)(nil)

// NewClient creates a client. A zero timeout means ten seconds.
func NewClient(network, address string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		network: network,
		address: address,
		timeout: timeout,
	}
}

// Search asks the server for up to size ids ranked by algorithm.
func (c *Client) Search(ctx context.Context, algorithm string, size int, query string) ([]string, error) {
	params := SearchParams{Algorithm: algorithm, Size: size, Query: query}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var result SearchResult
	if err := c.call(ctx, MethodSearch, params, &result); err != nil {
		return nil, err
	}
	if result.IDs == nil {
		return []string{}, nil
	}
	return result.IDs, nil
}

// Ping checks if the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var result PingResult
	return c.call(ctx, MethodPing, nil, &result)
}

// Status retrieves server status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to search server at %s: %v", domain.ErrDependencyUnavailable, c.address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: failed to set deadline: %v", domain.ErrDependencyUnavailable, err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("%w: failed to send request: %v", domain.ErrDependencyUnavailable, err)
	}

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   *Error          `json:"error"`
		ID      string          `json:"id"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("%w: failed to read response: %v", domain.ErrDependencyUnavailable, err)
	}

	if resp.Error != nil {
		sentinel := domain.ErrDependencyUnavailable
		if resp.Error.Code == ErrCodeInvalidParams {
			sentinel = domain.ErrInvalidInput
		}
		return fmt.Errorf("%w: %s failed: %s (code: %d)", sentinel, method, resp.Error.Message, resp.Error.Code)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%w: response id %q does not match request %q", domain.ErrDependencyUnavailable, resp.ID, req.ID)
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s result: %v", domain.ErrDependencyUnavailable, method, err)
	}
	return nil
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
