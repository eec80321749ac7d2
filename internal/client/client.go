// Package client talks to the tracking admin panel over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Paths served by the admin panel.
const (
	BulkDeletePath = "/containers/bulk-delete"
	BulkStatusPath = "/containers/bulk-status-update"
	ListPagePath   = "/containers"
	ListAPIPath    = "/api/containers"
	SearchAPIPath  = "/api/search-containers/"
)

// DefaultTimeout bounds each request unless WithTimeout says otherwise.
const DefaultTimeout = 30 * time.Second

// CSRFHeader carries the page's CSRF token on mutating requests.
const CSRFHeader = "X-CSRFToken"

const maxResponseBody = 4 << 20

// ErrMalformedResponse is returned when a 2xx response body cannot be
// decoded or lacks success_count.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// Failure is the per-id failure entry of a bulk response.
type Failure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// BulkDeleteResult is the decoded bulk delete response. Only SuccessCount
// is guaranteed to be present; older servers omit the per-id lists.
type BulkDeleteResult struct {
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Deleted      []int64   `json:"deleted"`
	Failed       []Failure `json:"failed"`
	Message      string    `json:"message"`
}

// FailedIDs returns the ids listed in Failed.
func (r BulkDeleteResult) FailedIDs() []int64 {
	return failedIDs(r.Failed)
}

// BulkStatusResult is the decoded bulk status update response.
type BulkStatusResult struct {
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Updated      []int64   `json:"updated"`
	Failed       []Failure `json:"failed"`
	Message      string    `json:"message"`
}

// FailedIDs returns the ids listed in Failed.
func (r BulkStatusResult) FailedIDs() []int64 {
	return failedIDs(r.Failed)
}

func failedIDs(failed []Failure) []int64 {
	ids := make([]int64, 0, len(failed))
	for _, f := range failed {
		ids = append(ids, f.ID)
	}
	return ids
}

// StatusUpdate is the status entry appended by BulkStatusUpdate. A nil
// Date lets the server stamp the current time.
type StatusUpdate struct {
	Status   string     `json:"status"`
	Location string     `json:"location"`
	Date     *time.Time `json:"date,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

// bulkResponse is the wire shape shared by both bulk endpoints.
// SuccessCount is a pointer so a missing field can be told apart from 0.
type bulkResponse struct {
	SuccessCount *int      `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Deleted      []int64   `json:"deleted"`
	Updated      []int64   `json:"updated"`
	Failed       []Failure `json:"failed"`
	Message      string    `json:"message"`
}

// ContainerSummary is one row of the container list API.
type ContainerSummary struct {
	ID            int64  `json:"id"`
	Number        string `json:"container_number"`
	Type          string `json:"container_type"`
	CurrentStatus string `json:"current_status"`
	LastUpdated   string `json:"last_updated"`
	Location      string `json:"location"`
}

// Client is an HTTP client for the admin panel.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	csrfToken  string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient makes the client send requests the way hc does. New works
// on a copy, so hc itself is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Zero keeps the default, or the
// timeout of the client given to WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCSRFToken sets the token sent in the X-CSRFToken header.
func WithCSRFToken(token string) Option {
	return func(c *Client) { c.csrfToken = token }
}

// New creates a client for the panel at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must use http or https", baseURL)
	}

	c := &Client{baseURL: u}
	for _, opt := range opts {
		opt(c)
	}

	hc := http.Client{Timeout: DefaultTimeout}
	if c.httpClient != nil {
		hc = *c.httpClient
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	return c, nil
}

// CSRFToken returns the token the client currently sends.
func (c *Client) CSRFToken() string {
	return c.csrfToken
}

// BulkDelete sends one bulk delete request for ids, in order.
func (c *Client) BulkDelete(ctx context.Context, ids []int64) (BulkDeleteResult, error) {
	if ids == nil {
		ids = []int64{}
	}
	resp, err := c.postBulk(ctx, BulkDeletePath, map[string][]int64{"container_ids": ids})
	if err != nil {
		return BulkDeleteResult{}, err
	}
	return BulkDeleteResult{
		SuccessCount: *resp.SuccessCount,
		ErrorCount:   resp.ErrorCount,
		Deleted:      resp.Deleted,
		Failed:       resp.Failed,
		Message:      resp.Message,
	}, nil
}

// BulkStatusUpdate appends the same status entry to every container in ids
// with one request.
func (c *Client) BulkStatusUpdate(ctx context.Context, ids []int64, st StatusUpdate) (BulkStatusResult, error) {
	if ids == nil {
		ids = []int64{}
	}
	body := struct {
		ContainerIDs []int64 `json:"container_ids"`
		StatusUpdate
	}{ids, st}

	resp, err := c.postBulk(ctx, BulkStatusPath, body)
	if err != nil {
		return BulkStatusResult{}, err
	}
	return BulkStatusResult{
		SuccessCount: *resp.SuccessCount,
		ErrorCount:   resp.ErrorCount,
		Updated:      resp.Updated,
		Failed:       resp.Failed,
		Message:      resp.Message,
	}, nil
}

func (c *Client) postBulk(ctx context.Context, path string, payload any) (bulkResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return bulkResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return bulkResponse{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.csrfToken != "" {
		req.Header.Set(CSRFHeader, c.csrfToken)
	}

	var resp bulkResponse
	if err := c.doJSON(req, &resp); err != nil {
		return bulkResponse{}, err
	}
	if resp.SuccessCount == nil {
		return bulkResponse{}, fmt.Errorf("%w: success_count missing", ErrMalformedResponse)
	}
	return resp, nil
}

// List fetches the container list.
func (c *Client) List(ctx context.Context) ([]ContainerSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ListAPIPath), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var list []ContainerSummary
	if err := c.doJSON(req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Search returns up to ten containers whose number starts with query.
// Queries shorter than two characters match nothing.
func (c *Client) Search(ctx context.Context, query string) ([]ContainerSummary, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []ContainerSummary{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(SearchAPIPath+query), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var list []ContainerSummary
	if err := c.doJSON(req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FetchCSRFToken loads the list page, reads its csrf-token meta tag and
// stores the value on the client. An empty token means the page carries
// none.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ListPagePath), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching list page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp)
	}

	token, err := MetaContent(io.LimitReader(resp.Body, maxResponseBody), "csrf-token")
	if err != nil {
		return "", err
	}
	c.csrfToken = token
	return token, nil
}

// MetaContent returns the content attribute of the first <meta name=...>
// element in an HTML document, or "" when there is none.
func MetaContent(r io.Reader, name string) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", nil
			}
			return "", fmt.Errorf("parsing html: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			var metaName, content string
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					metaName = a.Val
				case "content":
					content = a.Val
				}
			}
			if strings.EqualFold(metaName, name) {
				return content, nil
			}
		}
	}
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		se.Message = body.Error
	}
	return se
}
