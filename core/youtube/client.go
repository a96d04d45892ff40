package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// UpstreamError means the metadata upstream answered with a non-success
// status. The proxy maps it to 503 so devices know the outage is upstream,
// not ours.
type UpstreamError struct {
	StatusCode int
	Endpoint   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.Endpoint)
}

// Client talks to an Invidious instance for video metadata. Responses are
// passed through as raw JSON; the proxy caches and relays them without
// reshaping.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an upstream metadata client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search runs a paginated video search.
func (c *Client) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "video")
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.get(ctx, "/api/v1/search", params)
}

// Trending fetches the trending feed for a region. kind selects an upstream
// section when non-empty.
func (c *Client) Trending(ctx context.Context, region, kind string) (json.RawMessage, error) {
	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if kind != "" {
		params.Set("type", kind)
	}
	return c.get(ctx, "/api/v1/trending", params)
}

// Video fetches full metadata for one video.
func (c *Client) Video(ctx context.Context, videoID string) (json.RawMessage, error) {
	return c.get(ctx, "/api/v1/videos/"+url.PathEscape(videoID), nil)
}

// Channel fetches a channel's uploads page.
func (c *Client) Channel(ctx context.Context, channelID string, page int) (json.RawMessage, error) {
	params := url.Values{}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.get(ctx, "/api/v1/channels/"+url.PathEscape(channelID)+"/videos", params)
}

// Comments fetches a page of comments for a video. continuation resumes a
// previous page when non-empty.
func (c *Client) Comments(ctx context.Context, videoID, continuation string) (json.RawMessage, error) {
	params := url.Values{}
	if continuation != "" {
		params.Set("continuation", continuation)
	}
	return c.get(ctx, "/api/v1/comments/"+url.PathEscape(videoID), params)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	return json.RawMessage(body), nil
}
