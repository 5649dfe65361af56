// Package openproject is a client for the OpenProject v3 HAL+JSON API.
//
// It covers the endpoints the MCP tools need and nothing more. Every
// failure is returned as an *errs.TransportError carrying the HTTP status
// and the messages parsed from the HAL error document. There are no
// retries: a failed request fails the call.
package openproject

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
)

const (
	apiPath = "/api/v3"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// maxPageSize is the largest page the tracker serves.
	maxPageSize = 100

	// MaxPages caps every paged walk so a huge instance cannot stall a call.
	MaxPages = 50

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Config holds connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	HostHeader string
	Timeout    time.Duration
	UserAgent  string
}

// Client talks to one OpenProject instance. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiBase    string
	apiKey     string
	hostHeader string
	userAgent  string
	http       *http.Client
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the request logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client. BaseURL is the instance root, e.g.
// https://openproject.example.com, without the /api/v3 suffix.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid OpenProject URL %q: must be an absolute http(s) URL", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenProject API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "openproject-mcp"
	}

	c := &Client{
		baseURL:    base,
		apiBase:    base + apiPath,
		apiKey:     cfg.APIKey,
		hostHeader: cfg.HostHeader,
		userAgent:  ua,
		http:       &http.Client{Timeout: timeout},
		log:        logger.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the instance root, used to build browser links.
func (c *Client) BaseURL() string { return c.baseURL }

// WorkPackageURL returns the browser link of a work package.
func (c *Client) WorkPackageURL(id int) string {
	return fmt.Sprintf("%s/work_packages/%d", c.baseURL, id)
}

// ProjectURL returns the browser link of a project.
func (c *Client) ProjectURL(p Project) string {
	key := p.Identifier
	if key == "" {
		key = fmt.Sprint(p.ID)
	}
	return fmt.Sprintf("%s/projects/%s", c.baseURL, key)
}

// href builds the API-relative link used in request payloads.
func href(kind string, id int) Link {
	return Link{Href: fmt.Sprintf("%s/%s/%d", apiPath, kind, id)}
}

// ─── Transport ──────────────────────────────────────────────────────────────

// do performs one request. A nil out discards the body. query may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	full := c.apiBase + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, rdr)
	if err != nil {
		return &errs.TransportError{Method: method, Path: path, Err: err}
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Accept", "application/hal+json, application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.hostHeader != "" {
		req.Host = c.hostHeader
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Str("method", method).Str("path", path).Err(err).Msg("openproject request failed")
		return &errs.TransportError{Method: method, Path: path, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("openproject request")

	if resp.StatusCode >= 400 {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return &errs.TransportError{
			Method: method, Path: path, Status: resp.StatusCode,
			Message: "invalid JSON response", Err: err,
		}
	}
	return nil
}

func decodeError(method, path string, resp *http.Response) error {
	te := &errs.TransportError{
		Method:  method,
		Path:    path,
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var doc apiError
	if len(raw) > 0 && json.Unmarshal(raw, &doc) == nil {
		if msg, details := doc.summary(); msg != "" || len(details) > 0 {
			if msg != "" {
				te.Message = msg
			}
			te.Details = details
		}
	}
	return te
}

// collectAll walks a paged collection with item offsets until total is
// reached or a page comes back empty.
func collectAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	out := []T{}
	offset := 0
	for range MaxPages {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("pageSize", fmt.Sprint(maxPageSize))
		q.Set("offset", fmt.Sprint(offset))

		var page Collection[T]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, err
		}
		elems := page.Elements()
		out = append(out, elems...)
		if len(elems) == 0 || offset+len(elems) >= page.Total {
			return out, nil
		}
		offset += len(elems)
	}
	c.log.Warn().Str("path", path).Int("items", len(out)).Msg("collection truncated at page limit")
	return out, nil
}

// listOnce fetches a single unpaged collection document.
func listOnce[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var col Collection[T]
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &col); err != nil {
		return nil, err
	}
	return col.Elements(), nil
}

// ─── Root ───────────────────────────────────────────────────────────────────

// Ping fetches the API root.
func (c *Client) Ping(ctx context.Context) (*Root, error) {
	var r Root
	if err := c.do(ctx, http.MethodGet, "/", nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
