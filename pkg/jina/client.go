// Package jina provides a client for the Jina AI reader and search APIs.
// The pipeline searches for candidate product pages by EAN or model name,
// and uses the reader as a markdown fallback when the primary scraper
// cannot fetch a page.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Client defines the Jina AI operations used by the pipeline.
type Client interface {
	// Read fetches a URL through the reader and returns its markdown rendering.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search performs a web search and returns candidate result pages.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// ReadResponse is the parsed reader API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds one rendered page.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the parsed search API response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	siteFilter string
}

// WithSiteFilter restricts search results to a specific domain, used for
// manufacturer-site and barcode-database lookups.
func WithSiteFilter(domain string) SearchOption {
	return func(o *searchOpts) {
		o.siteFilter = domain
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithSearchBaseURL overrides the search base URL.
func WithSearchBaseURL(url string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryBackoff overrides the base delay between retry attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.backoff = d
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	backoff       time.Duration
	http          *http.Client
}

// NewClient creates a Jina AI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		backoff:       time.Second,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiReply is one settled HTTP exchange: a status the caller must interpret
// and the raw body.
type apiReply struct {
	status int
	body   []byte
}

// get fetches a Jina endpoint, retrying rate limits, server errors, and
// transport failures with exponential backoff. Statuses a retry cannot
// change are returned to the caller as-is.
func (c *httpClient) get(ctx context.Context, reqURL string, markdown bool) (apiReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return apiReply{}, eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if markdown {
		req.Header.Set("X-Return-Format", "markdown")
	}

	policy := resilience.DefaultRetryConfig()
	policy.InitialBackoff = c.backoff
	policy.MaxBackoff = 16 * c.backoff

	return resilience.DoVal(ctx, policy, func(ctx context.Context) (apiReply, error) {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			// The reader fronts arbitrary third-party sites, so transport
			// failures are worth another attempt.
			return apiReply{}, resilience.NewTransientError(err, 0)
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return apiReply{}, eris.Wrap(readErr, "jina: read response body")
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return apiReply{}, resilience.NewTransientError(
				eris.Errorf("jina: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
		}
		return apiReply{status: resp.StatusCode, body: body}, nil
	})
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	reply, err := c.get(ctx, fmt.Sprintf("%s/%s", c.baseURL, targetURL), true)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}
	if reply.status != http.StatusOK {
		return nil, eris.Errorf("jina: read unexpected status %d: %s", reply.status, string(reply.body))
	}

	var result ReadResponse
	if err := json.Unmarshal(reply.body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal read response")
	}
	return &result, nil
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	reqURL := fmt.Sprintf("%s/%s", c.searchBaseURL, url.QueryEscape(query))
	if so.siteFilter != "" {
		reqURL += "?site=" + url.QueryEscape(so.siteFilter)
	}

	reply, err := c.get(ctx, reqURL, false)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}

	// The search API answers 422 when it has no results; an obscure EAN is
	// an empty result set, not a failure.
	if reply.status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: http.StatusUnprocessableEntity}, nil
	}
	if reply.status != http.StatusOK {
		return nil, eris.Errorf("jina: search unexpected status %d: %s", reply.status, string(reply.body))
	}

	var result SearchResponse
	if err := json.Unmarshal(reply.body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return &result, nil
}
