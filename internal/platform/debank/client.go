// Package debank fetches cross-chain wallet history from the DeBank Pro
// OpenAPI.
package debank

import (
	"context"
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
	// DefaultBaseURL is the DeBank Pro OpenAPI root.
	DefaultBaseURL = "https://pro-openapi.debank.com/v1"

	// MaxPageCount is the largest page_count all_history_list accepts.
	MaxPageCount = 20

	defaultTimeout  = 30 * time.Second
	defaultRetries  = 3
	defaultWait     = time.Second
	defaultMaxWait  = 10 * time.Second
	defaultMaxPages = 100
)

// Chain is one chain a wallet has used.
type Chain struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the DeBank Pro API. It is safe for concurrent use.
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	maxPages int
}

// Option customises a Client.
type Option func(*Client)

// WithRateLimit caps requests per second; DeBank bills per call.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithRetry overrides the retry count and the initial backoff.
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

// WithMaxPages bounds how many history pages one History call fetches.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient creates a client. accessKey is sent in the AccessKey header.
func NewClient(baseURL, accessKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("AccessKey", strings.TrimSpace(accessKey)).
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

	c := &Client{
		http:     hc,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		maxPages: defaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UsedChains lists every chain wallet has transacted on.
func (c *Client) UsedChains(ctx context.Context, wallet string) ([]Chain, error) {
	var chains []Chain
	params := map[string]string{"id": strings.ToLower(wallet)}
	if err := c.get(ctx, "/user/used_chain_list", params, &chains); err != nil {
		return nil, fmt.Errorf("debank: used chains: %w", err)
	}
	return chains, nil
}

// historyResponse is the all_history_list payload.
type historyResponse struct {
	History []historyTx      `json:"history_list"`
	Tokens  domain.TokenBook `json:"token_dict"`
}

type historyTx struct {
	domain.Transaction
	IsScam bool `json:"is_scam"`
}

// PageCursor describes the unfiltered page DeBank returned. Pagination runs
// on it so that scam filtering never ends a walk early.
type PageCursor struct {
	Raw    int   // transactions on the page before scam filtering
	Oldest int64 // time_at of the last raw transaction, 0 on an empty page
}

// HistoryPage fetches up to pageCount transactions older than before
// (newest first). before == 0 starts at the most recent transaction.
// Transactions DeBank flags as scams are dropped.
func (c *Client) HistoryPage(ctx context.Context, wallet string, before int64, pageCount int) (domain.HistoryPage, PageCursor, error) {
	if pageCount <= 0 || pageCount > MaxPageCount {
		pageCount = MaxPageCount
	}
	params := map[string]string{
		"id":         strings.ToLower(wallet),
		"page_count": strconv.Itoa(pageCount),
	}
	if before > 0 {
		params["start_time"] = strconv.FormatInt(before, 10)
	}

	var out historyResponse
	if err := c.get(ctx, "/user/all_history_list", params, &out); err != nil {
		return domain.HistoryPage{}, PageCursor{}, fmt.Errorf("debank: history: %w", err)
	}

	page := domain.HistoryPage{
		Transactions: make([]domain.Transaction, 0, len(out.History)),
		Tokens:       out.Tokens,
	}
	if page.Tokens == nil {
		page.Tokens = domain.TokenBook{}
	}
	for _, tx := range out.History {
		if tx.IsScam {
			continue
		}
		page.Transactions = append(page.Transactions, tx.Transaction)
	}
	cur := PageCursor{Raw: len(out.History)}
	if cur.Raw > 0 {
		cur.Oldest = out.History[cur.Raw-1].TimeAt
	}
	return page, cur, nil
}

// History walks all_history_list backwards from the newest transaction and
// stops at the first transaction older than since (since == 0 fetches
// everything up to the page bound).
func (c *Client) History(ctx context.Context, wallet string, since int64) (domain.HistoryPage, error) {
	all := domain.HistoryPage{Tokens: domain.TokenBook{}}
	var before int64
	for range c.maxPages {
		page, cur, err := c.HistoryPage(ctx, wallet, before, MaxPageCount)
		if err != nil {
			return all, err
		}
		all.Tokens.Merge(page.Tokens)
		for _, tx := range page.Transactions {
			if since > 0 && tx.TimeAt < since {
				return all, nil
			}
			all.Transactions = append(all.Transactions, tx)
		}
		if cur.Raw < MaxPageCount {
			return all, nil
		}
		if cur.Oldest <= 0 || (before > 0 && cur.Oldest >= before) {
			return all, nil
		}
		if since > 0 && cur.Oldest < since {
			return all, nil
		}
		before = cur.Oldest
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return err
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", code, domain.ErrUnauthorized)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %w", code, domain.ErrRateLimited)
	case resp.IsError():
		return fmt.Errorf("status %d: %s: %w", code, truncate(resp.String(), 200), domain.ErrUpstream)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
