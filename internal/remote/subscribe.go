package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// changeFeedReadLimit caps a single change message (invoices with many lines).
const changeFeedReadLimit = 4 << 20

// Subscribe opens the change feed for tables and calls onChange for each
// change until ctx is cancelled or the connection drops. Changes made through
// this client's own DeviceID are filtered out by the server.
func (c *Client) Subscribe(ctx context.Context, tables []string, onChange func(Change)) error {
	wsURL, err := c.changesURL(tables)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		header.Set(DeviceHeader, c.DeviceID)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.HTTP,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return &RejectedError{Status: resp.StatusCode, Code: "subscribe_refused", Message: err.Error()}
		}
		return fmt.Errorf("%w: dial change feed: %v", ErrUnavailable, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(changeFeedReadLimit)

	for {
		var ch Change
		if err := wsjson.Read(ctx, conn, &ch); err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return fmt.Errorf("%w: change feed closed", ErrUnavailable)
			}
			return fmt.Errorf("%w: read change: %v", ErrUnavailable, err)
		}
		onChange(ch)
	}
}

func (c *Client) changesURL(tables []string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/changes"
	if len(tables) > 0 {
		q := url.Values{}
		q.Set("tables", strings.Join(tables, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
