package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DeviceHeader names the connection that made a change, so the change feed
// does not echo it back.
const DeviceHeader = "X-Rxsync-Device"

// Client is an HTTP client for rxsync-server. It implements Store, Subscriber
// and Pinger.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new remote client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Wire types (mirrors internal/api, independently defined) ---

// WriteRequest is the body of POST and PATCH /v1/tables/{table}.
type WriteRequest struct {
	Row      Row       `json:"row"`
	Children *Children `json:"children,omitempty"`
}

// KeyResponse carries a remote key.
type KeyResponse struct {
	Key     int64 `json:"key"`
	Created bool  `json:"created,omitempty"`
}

// RowResponse is the response of GET /v1/tables/{table}/{id}.
type RowResponse struct {
	Key      int64     `json:"key"`
	Row      Row       `json:"row"`
	Children *Children `json:"children,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func tablePath(table string) string {
	return "/v1/tables/" + url.PathEscape(table)
}

func rowPath(table string, key int64) string {
	return tablePath(table) + "/" + strconv.FormatInt(key, 10)
}

// Ping hits /healthz.
func (c *Client) Ping(ctx context.Context) error {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp, false); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%w: health status %q", ErrUnavailable, resp.Status)
	}
	return nil
}

// Insert creates a row, or returns the key of the row with the same client_id.
func (c *Client) Insert(ctx context.Context, table string, row Row, children *Children) (int64, error) {
	var resp KeyResponse
	err := c.do(ctx, http.MethodPost, tablePath(table), &WriteRequest{Row: row, Children: children}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Key, nil
}

// Update applies a partial row update.
func (c *Client) Update(ctx context.Context, table string, key int64, row Row, children *Children) error {
	return c.do(ctx, http.MethodPatch, rowPath(table, key), &WriteRequest{Row: row, Children: children}, nil)
}

// Delete removes a row. A row that is already gone counts as deleted.
func (c *Client) Delete(ctx context.Context, table string, key int64) error {
	err := c.do(ctx, http.MethodDelete, rowPath(table, key), nil, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// Lookup finds a row key by client_id.
func (c *Client) Lookup(ctx context.Context, table, clientID string) (int64, bool, error) {
	params := url.Values{}
	params.Set("client_id", clientID)

	var resp KeyResponse
	err := c.do(ctx, http.MethodGet, tablePath(table)+"/lookup?"+params.Encode(), nil, &resp)
	if isStatus(err, http.StatusNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return resp.Key, true, nil
}

// Get reads one row with its children.
func (c *Client) Get(ctx context.Context, table string, key int64) (*RowResponse, error) {
	var resp RowResponse
	err := c.do(ctx, http.MethodGet, rowPath(table, key), nil, &resp)
	if isStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, table, key)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func isStatus(err error, status int) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Status == status
}

// do executes an authenticated request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set(DeviceHeader, c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return classify(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// classify maps an HTTP error response onto the remote error taxonomy.
func classify(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	code, msg := apiErr.Error.Code, apiErr.Error.Message
	if code == "" {
		msg = string(body)
	}

	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, status, msg)
	}
	return &RejectedError{Status: status, Code: code, Message: msg}
}
