package spot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultBaseURL = "https://api.findmespot.com/spot-main-web/consumer/rest-api/2.0/public/feed"

type Client struct {
	host       string
	feedID     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, feedID string) *Client {
	if host == "" {
		host = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		feedID:     strings.TrimSpace(feedID),
		httpClient: httpClient,
	}
}

// FeedID is the public feed polled by this client.
func (c *Client) FeedID() string {
	return c.feedID
}

// FetchMessages performs one GET of the public feed and returns its messages,
// newest first as SPOT orders them. An empty feed yields no error.
func (c *Client) FetchMessages(ctx context.Context) ([]Message, error) {
	if c.feedID == "" {
		return nil, fmt.Errorf("spot feed_id is required")
	}
	body, err := c.doRequest(ctx, "/"+c.feedID+"/message.json")
	if err != nil {
		return nil, err
	}
	return parseFeed(body)
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
