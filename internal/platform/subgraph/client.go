// Package subgraph is a small GraphQL client for The Graph style indexers.
package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 2
	defaultWait    = 500 * time.Millisecond
	defaultMaxWait = 5 * time.Second

	// PageSize is the largest `first` most indexers accept.
	PageSize = 1000
)

// Client posts GraphQL queries to one subgraph endpoint. It is safe for
// concurrent use.
type Client struct {
	graphqlURL string
	http       *resty.Client
	limiter    *rate.Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithRateLimit caps requests per second against the endpoint.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithRetry sets how many times a transport error or 5xx/429 is retried
// and the initial backoff.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(max(wait, defaultMaxWait))
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient creates a client for graphqlURL. apiKey is sent as a bearer
// token when set.
func NewClient(graphqlURL, apiKey string, opts ...Option) *Client {
	hc := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(defaultRetries).
		SetRetryWaitTime(defaultWait).
		SetRetryMaxWaitTime(defaultMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
				return 0, nil
			}
			if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second, nil
			}
			return 0, nil
		})
	if key := strings.TrimSpace(apiKey); key != "" {
		hc.SetAuthToken(key)
	}

	c := &Client{
		graphqlURL: graphqlURL,
		http:       hc,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint this client queries.
func (c *Client) URL() string { return c.graphqlURL }

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query runs query and decodes its "data" object into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("subgraph: rate limiter: %w", err)
	}
	data, err := c.post(ctx, graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("subgraph: %s: %w", c.graphqlURL, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("subgraph: decode data: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body graphqlRequest) (json.RawMessage, error) {
	var gqlResp graphqlResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&gqlResp).
		ForceContentType("application/json").
		Post(c.graphqlURL)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return nil, fmt.Errorf("HTTP 429: %w", domain.ErrRateLimited)
	case code >= http.StatusInternalServerError:
		return nil, fmt.Errorf("HTTP %d: %w", code, domain.ErrUpstream)
	case code != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d: %s", code, truncate(resp.String(), 256))
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
