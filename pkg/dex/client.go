package dex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	SameChainPrefix  = "/fusion"
	CrossChainPrefix = "/fusion-plus"
)

// UpstreamError is a non-2xx response from the execution network. The body is
// carried verbatim so handlers can pass it through to the caller.
type UpstreamError struct {
	Code int
	Body []byte
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %v: %s", e.Code, e.Body)
}

// Client talks to the execution network's authenticated HTTP API.
type Client struct {
	url     string
	authKey string
	client  *http.Client
}

func NewClient(url, authKey string) *Client {
	return &Client{
		url:     url,
		authKey: authKey,
		client:  new(http.Client),
	}
}

// SameChainStatus fetches the status of a same-chain execution.
func (c *Client) SameChainStatus(ctx context.Context, chain, executionHash string) (Status, error) {
	path := fmt.Sprintf("%s/orders/v1.0/order/status/%s?chainId=%s", SameChainPrefix, executionHash, chain)
	return c.status(ctx, path)
}

// CrossChainStatus fetches the status of a cross-chain swap execution.
func (c *Client) CrossChainStatus(ctx context.Context, executionHash string) (Status, error) {
	path := fmt.Sprintf("%s/orders/v1.0/order/status/%s", CrossChainPrefix, executionHash)
	return c.status(ctx, path)
}

func (c *Client) status(ctx context.Context, path string) (Status, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	resp := struct {
		Status Status `json:"status"`
	}{}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to decode status response: %v", err)
	}
	return resp.Status, nil
}

// ReadyFills returns the indices of partial fills whose counter-party escrow
// is ready to accept a secret disclosure.
func (c *Client) ReadyFills(ctx context.Context, executionHash string) ([]int, error) {
	path := fmt.Sprintf("%s/orders/v1.0/order/ready-to-accept-secret-fills/%s", CrossChainPrefix, executionHash)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp := struct {
		Fills []struct {
			Idx int `json:"idx"`
		} `json:"fills"`
	}{}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ready fills response: %v", err)
	}
	indices := make([]int, 0, len(resp.Fills))
	for _, fill := range resp.Fills {
		indices = append(indices, fill.Idx)
	}
	return indices, nil
}

// SubmitSecret discloses the secret for one fill. The upstream deduplicates
// repeated submissions for the same index.
func (c *Client) SubmitSecret(ctx context.Context, executionHash, secret string) error {
	body, err := json.Marshal(map[string]string{
		"orderHash": executionHash,
		"secret":    secret,
	})
	if err != nil {
		return err
	}
	path := CrossChainPrefix + "/relayer/v1.0/submit/secret"
	_, err = c.do(ctx, http.MethodPost, path, body)
	return err
}

// Forward relays an arbitrary request to the execution network, returning the
// upstream status code and body unmodified. Used by the submission gateway
// and the pass-through proxy routes.
func (c *Client) Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return 0, nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	code, data, err := c.Forward(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return nil, UpstreamError{Code: code, Body: data}
	}
	return data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.authKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
