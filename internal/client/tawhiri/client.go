package tawhiri

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

const DefaultBaseURL = "https://api.v2.sondehub.org/tawhiri"

type Client struct {
	host       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// APIError is a non-2xx response. Description carries the service's own
// error description when the body has one.
type APIError struct {
	Status      int
	Body        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Description)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

type Options struct {
	Timeout time.Duration
	// BreakerThreshold is the number of consecutive failures that opens the
	// breaker; zero disables it.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	OnStateChange    func(name string, from, to gobreaker.State)
}

func NewClient(httpClient *http.Client, host string, opts Options) *Client {
	if host == "" {
		host = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	hc := *httpClient
	hc.Timeout = opts.Timeout

	c := &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: &hc,
	}
	if opts.BreakerThreshold > 0 {
		threshold := opts.BreakerThreshold
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "tawhiri",
			MaxRequests: 1,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Rejected parameters say nothing about the service's health.
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Status < http.StatusInternalServerError
				}
				return err == nil
			},
			OnStateChange: opts.OnStateChange,
		})
	}
	return c
}

// BreakerState reports the circuit breaker state, "disabled" without one.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Predict runs one prediction and returns the raw response body.
func (c *Client) Predict(ctx context.Context, query url.Values) ([]byte, error) {
	if c.breaker == nil {
		return c.doRequest(ctx, query)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.doRequest(ctx, query)
	})
}

func (c *Client) doRequest(ctx context.Context, query url.Values) ([]byte, error) {
	fullURL := c.host
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}
	var payload struct {
		Error struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Description = payload.Error.Description
	}
	return apiErr
}
