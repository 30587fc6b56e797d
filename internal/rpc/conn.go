package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Conn is a connection to a remote node. It is not safe for concurrent use;
// the Adapter guarantees only one call runs at a time.
type Conn interface {
	// Call posts params to a plain endpoint such as /get_height and decodes the reply into result.
	Call(ctx context.Context, route string, params, result any) error
	// JSONRPC invokes method on the JSON-RPC endpoint and decodes its result member into result.
	JSONRPC(ctx context.Context, method string, params, result any) error
}

const jsonRPCRoute = "/json_rpc"

// RemoteError is an error object returned by the node's JSON-RPC endpoint.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// HTTPConn talks to a node over its HTTP JSON interface.
type HTTPConn struct {
	client *resty.Client
}

// NewHTTPConn creates a connection to the node at address, e.g. http://127.0.0.1:18081.
func NewHTTPConn(address string, timeout time.Duration) (*HTTPConn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid node address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid node address %q: scheme must be http or https", address)
	}

	client := resty.New().
		SetBaseURL(address).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPConn{client: client}, nil
}

func (c *HTTPConn) Call(ctx context.Context, route string, params, result any) error {
	body, err := c.post(ctx, route, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return errors.WithMessagef(err, "failed to decode %s response", route)
	}
	return nil
}

func (c *HTTPConn) JSONRPC(ctx context.Context, method string, params, result any) error {
	body, err := c.post(ctx, jsonRPCRoute, jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.WithMessagef(err, "failed to decode %s response", method)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if len(resp.Result) == 0 {
		return fmt.Errorf("%s: response has no result", method)
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.WithMessagef(err, "failed to decode %s result", method)
	}
	return nil
}

func (c *HTTPConn) post(ctx context.Context, route string, params any) ([]byte, error) {
	req := c.client.R().SetContext(ctx)
	if params != nil {
		req.SetBody(params)
	}

	resp, err := req.Post(route)
	if err != nil {
		return nil, errors.WithMessagef(err, "request to %s failed", route)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request to %s failed with status %s", route, resp.Status())
	}
	return resp.Body(), nil
}
