// Package canvas talks to the Canvas LMS REST API. It builds the remote
// file tree and serves file contents.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/internal/metrics"
	"github.com/kkysen/CanvasFileSync/pkg/retry"
)

// PerPage is the page size requested from list endpoints.
const PerPage = 100

// Client is a Canvas API client authenticated with an access token.
type Client struct {
	domain      string
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	now         func() time.Time
	token       string
}

// Config holds client configuration.
type Config struct {
	Domain      string
	Token       string
	BaseURL     string        // defaults to https://<Domain>
	Timeout     time.Duration // whole request including the body; 0 = none
	RetryConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Domain
	}

	retryConfig := cfg.RetryConfig
	retryConfig.OnRetry = func(attempt int, err error, wait time.Duration) {
		logging.Warn("canvas request failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.Err(err))
	}

	return &Client{
		domain:  cfg.Domain,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		retryConfig: retryConfig,
		now:         time.Now,
		token:       cfg.Token,
	}
}

func (c *Client) applyAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.Code, http.StatusText(e.Code), e.Body)
}

// IsAccessDenied reports whether err is a 401, 403 or 404 response, which
// Canvas returns for course tabs the user cannot see.
func IsAccessDenied(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// get performs one GET with retries and returns the successful response.
// The caller closes the body.
func (c *Client) get(ctx context.Context, op, rawURL string) (*http.Response, error) {
	resp, err := retry.DoWithResult(ctx, c.retryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, retry.Retryable(err)
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		serr := &StatusError{Code: resp.StatusCode, URL: rawURL, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.Retryable(serr)
		}
		return nil, serr
	})
	metrics.RecordRemoteRequest(op, err == nil)
	if err != nil {
		var re retry.RetryableError
		if errors.As(err, &re) {
			err = re.Err
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) apiURL(endpoint string, query url.Values) string {
	u := c.baseURL + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getJSON decodes a single object.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	resp, err := c.get(ctx, "canvas_get", c.apiURL(endpoint, query))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// getList decodes every page of a list endpoint, following the
// rel="next" links of the Link header.
func getList[T any](ctx context.Context, c *Client, endpoint string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(PerPage))

	var all []T
	next := c.apiURL(endpoint, query)
	for next != "" {
		resp, err := c.get(ctx, "canvas_list", next)
		if err != nil {
			return nil, err
		}
		var page []T
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		all = append(all, page...)

		next = c.sameOrigin(NextLink(resp.Header.Get("Link")))
	}
	return all, nil
}

// sameOrigin drops links pointing away from the API host so the token is
// never sent elsewhere.
func (c *Client) sameOrigin(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	base, err := url.Parse(c.baseURL)
	if err != nil || u.Host != base.Host {
		logging.Warn("ignoring foreign pagination link", logging.String("link", link))
		return ""
	}
	return link
}

// NextLink returns the URL of the rel="next" entry of a Link header.
func NextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.TrimSpace(key) == "rel" && strings.Trim(strings.TrimSpace(value), `"`) == "next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

// DownloadURL returns where the contents of file id are served.
func (c *Client) DownloadURL(id uint64) string {
	return fmt.Sprintf("%s/files/%d/download?download_frd=1", c.baseURL, id)
}

// Open implements source.Source by downloading the file from Canvas.
func (c *Client) Open(ctx context.Context, id uint64) (io.ReadCloser, int64, error) {
	resp, err := c.get(ctx, "canvas_download", c.DownloadURL(id))
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// Self returns the authenticated user.
func (c *Client) Self(ctx context.Context) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "users/self", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Courses lists the user's courses.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	return getList[Course](ctx, c, "courses", nil)
}

// Folders lists every folder of a course.
func (c *Client) Folders(ctx context.Context, courseID uint64) ([]Folder, error) {
	return getList[Folder](ctx, c, fmt.Sprintf("courses/%d/folders", courseID), nil)
}

// Files lists every file of a course.
func (c *Client) Files(ctx context.Context, courseID uint64) ([]File, error) {
	return getList[File](ctx, c, fmt.Sprintf("courses/%d/files", courseID), nil)
}

// File returns a single file's metadata.
func (c *Client) File(ctx context.Context, id uint64) (*File, error) {
	var f File
	if err := c.getJSON(ctx, fmt.Sprintf("files/%d", id), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Modules lists a course's modules with their items.
func (c *Client) Modules(ctx context.Context, courseID uint64) ([]Module, error) {
	return getList[Module](ctx, c, fmt.Sprintf("courses/%d/modules", courseID),
		url.Values{"include[]": {"items"}})
}
