package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"healthkey/core/types"
)

// Client is a minimal JSON-RPC client for the ledger node.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Uint64
}

// NewClient targets endpoint. token, when set, is sent as a bearer token.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/",
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method and decodes the result into out. Server side failures
// are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	return c.call(ctx, method, nil, out, params...)
}

func (c *Client) call(ctx context.Context, method string, headers map[string]string, out interface{}, params ...interface{}) error {
	encoded := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode param: %w", err)
		}
		encoded = append(encoded, raw)
	}
	body, err := json.Marshal(RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  encoded,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes*4))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	var decoded RPCResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

// SendTransaction submits a signed transaction. idempotencyKey may be empty.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction, idempotencyKey string) (*ReceiptResult, error) {
	encoded, err := tx.Encode()
	if err != nil {
		return nil, err
	}
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{headerIdempotencyKey: idempotencyKey}
	}
	var out ReceiptResult
	if err := c.call(ctx, "hk_sendTransaction", headers, &out, "0x"+hex.EncodeToString(encoded)); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChainInfo returns the node's chain parameters.
func (c *Client) ChainInfo(ctx context.Context) (*ChainInfoResult, error) {
	var out ChainInfoResult
	if err := c.Call(ctx, "hk_chainInfo", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Nonce returns the next nonce for address.
func (c *Client) Nonce(ctx context.Context, address string) (uint64, error) {
	var out NonceResult
	if err := c.Call(ctx, "hk_getNonce", &out, address); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}
