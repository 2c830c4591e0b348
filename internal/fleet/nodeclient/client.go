// Package nodeclient is the HTTP client used to talk to other fleet nodes:
// remote stats collection and direct fetch forwarding.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gookit/goutil"

	"github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/api"
)

// Client calls the fleet API of remote nodes. One client serves the whole
// fleet; the target endpoint is passed per call.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a node client with the given per-request timeout.
func NewClient(timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("nodeclient"),
	}
}

// NodeStats fetches a remote node's local stats snapshot.
func (c *Client) NodeStats(ctx context.Context, node, endpoint string) (*api.NodeStatsSnapshot, error) {
	url := fmt.Sprintf("%s/api/v1/stats/node", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug("making node stats request", "node", node, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.remoteErr(node, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.remoteErr(node, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var apiResp api.Response[api.NodeStatsSnapshot]
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("failed to decode API response: %w", err)
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("API returned success=false without error details")
		}
		snapshot := apiResp.Data
		return &snapshot, nil

	default:
		c.logger.Warn("unexpected stats response", "node", node, "status", resp.StatusCode)
		return nil, c.statusErr(node, resp, body)
	}
}

// ForwardFetch executes a fetch on a remote node's direct endpoint and relays
// its result. Failures come back as RemoteError so the caller can run the
// local fallback with a tagged reason.
func (c *Client) ForwardFetch(ctx context.Context, node, endpoint string, fetchReq *api.FetchRequest) (*api.FetchResponse, error) {
	url := fmt.Sprintf("%s/api/v1/fetch/direct", endpoint)

	reqBody, err := json.Marshal(fetchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fetch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("forwarding fetch request", "node", node, "url", url)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.remoteErr(node, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.remoteErr(node, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var apiResp api.Response[api.FetchResponse]
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("failed to decode API response: %w", err)
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("API returned success=false without error details")
		}
		fetchResp := apiResp.Data
		c.logger.Info("remote fetch succeeded",
			"node", node,
			"items", len(fetchResp.Items),
		)
		return &fetchResp, nil

	case http.StatusTooManyRequests:
		retryAfter := 0
		if header := resp.Header.Get("Retry-After"); header != "" {
			if val, err := goutil.ToInt(header); err == nil {
				retryAfter = val
			}
		}
		c.logger.Warn("remote node throttled the fetch",
			"node", node,
			"retry_after", retryAfter,
		)
		return nil, c.statusErr(node, resp, body)

	default:
		c.logger.Warn("unexpected fetch response", "node", node, "status", resp.StatusCode)
		return nil, c.statusErr(node, resp, body)
	}
}

// remoteErr classifies a transport failure as timeout or network.
func (c *Client) remoteErr(node string, err error) error {
	reason := "network"
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		reason = "timeout"
	}
	return &errors.RemoteError{Node: node, Reason: reason, Err: err}
}

// statusErr wraps a non-2xx response, preserving any error detail the remote
// side included in the envelope.
func (c *Client) statusErr(node string, resp *http.Response, body []byte) error {
	cause := fmt.Errorf("remote returned status %d", resp.StatusCode)

	var apiResp api.Response[any]
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
		cause = fmt.Errorf("remote returned status %d: %s", resp.StatusCode, apiResp.Error.Message)
	}

	return &errors.RemoteError{
		Node:   node,
		Reason: fmt.Sprintf("status_%d", resp.StatusCode),
		Err:    cause,
	}
}
