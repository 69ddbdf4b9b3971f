// Package rest implements remote.Store against the SharePoint REST API.
//
// Requests use the verbose OData format. Writes carry a form digest
// obtained from _api/contextinfo; the digest lives in a remote.TokenCache
// owned by the Client and is renewed when it expires or the server rejects
// it. Response bodies are read with gjson and request bodies built with
// sjson so that unknown properties pass through untouched.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/remote"
)

const (
	verboseJSON = "application/json;odata=verbose"

	// DefaultTimeout bounds every HTTP request.
	DefaultTimeout = 30 * time.Second

	// digestSkew renews the form digest a little before the server drops it.
	digestSkew = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	// AccessToken is sent as a bearer token on every request.
	AccessToken string
	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to one SharePoint site.
type Client struct {
	site   string
	token  string
	http   *http.Client
	digest *remote.TokenCache
	logger *zap.Logger
}

// New creates a Client for the site at siteURL, e.g.
// https://contoso.sharepoint.com/sites/intranet.
func New(siteURL string, opts Options) (*Client, error) {
	if siteURL == "" {
		return nil, fmt.Errorf("site URL is required")
	}
	if !strings.HasPrefix(siteURL, "http://") && !strings.HasPrefix(siteURL, "https://") {
		return nil, fmt.Errorf("site URL must be absolute: %q", siteURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		site:   strings.TrimRight(siteURL, "/"),
		token:  opts.AccessToken,
		http:   opts.HTTPClient,
		logger: opts.Logger,
	}
	c.digest = remote.NewTokenCache(remote.TokenSourceFunc(c.contextInfo), digestSkew)
	return c, nil
}

// Tokens returns the form digest cache so callers can thread it through
// reconciliation.
func (c *Client) Tokens() *remote.TokenCache {
	return c.digest
}

// contextInfo requests a new form digest.
func (c *Client) contextInfo(ctx context.Context) (remote.Token, error) {
	body, err := c.send(ctx, "contextinfo", http.MethodPost, "/_api/contextinfo", nil, nil)
	if err != nil {
		return remote.Token{}, err
	}

	info := gjson.GetBytes(body, "d.GetContextWebInformation")
	value := info.Get("FormDigestValue").String()
	if value == "" {
		return remote.Token{}, fmt.Errorf("contextinfo: response has no form digest")
	}
	timeout := time.Duration(info.Get("FormDigestTimeoutSeconds").Int()) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return remote.Token{Value: value, ExpiresAt: time.Now().Add(timeout)}, nil
}

// get issues a read.
func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	return c.send(ctx, op, http.MethodGet, path, nil, nil)
}

// post issues a write with the form digest. A rejected digest is renewed
// once and the request repeated.
func (c *Client) post(ctx context.Context, op, path string, body []byte, merge bool) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		tok, err := c.digest.Get(ctx)
		if err != nil {
			return nil, err
		}

		headers := map[string]string{"X-RequestDigest": tok.Value}
		if merge {
			headers["X-HTTP-Method"] = "MERGE"
			headers["IF-MATCH"] = "*"
		}

		resp, err := c.send(ctx, op, http.MethodPost, path, body, headers)
		if err != nil && attempt == 0 && digestRejected(err) {
			c.logger.Debug("form digest rejected, renewing", zap.String("op", op))
			c.digest.Invalidate()
			continue
		}
		return resp, err
	}
}

func (c *Client) send(ctx context.Context, op, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.site+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", verboseJSON)
	if body != nil {
		req.Header.Set("Content-Type", verboseJSON)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w: %v", op, remote.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	c.logger.Debug("sharepoint request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, statusError(op, resp.StatusCode, data)
}

// statusError maps an HTTP failure onto the remote sentinel errors.
func statusError(op string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message.value").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	var kind error
	switch {
	case status == http.StatusNotFound:
		kind = notFoundFor(op)
	case status == http.StatusTooManyRequests:
		kind = remote.ErrThrottled
	case status == http.StatusUnauthorized:
		kind = remote.ErrUnauthorized
	case status == http.StatusForbidden:
		kind = remote.ErrForbidden
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		kind = remote.ErrConflict
	case status >= 500:
		kind = remote.ErrUnavailable
	}
	return &remote.StatusError{Op: op, Status: status, Message: msg, Kind: kind}
}

func notFoundFor(op string) error {
	switch {
	case strings.HasPrefix(op, "field"):
		return remote.ErrFieldNotFound
	case strings.HasPrefix(op, "view"):
		return remote.ErrViewNotFound
	default:
		return remote.ErrListNotFound
	}
}

// digestRejected reports whether a 403 was caused by a stale form digest.
func digestRejected(err error) bool {
	se, ok := err.(*remote.StatusError)
	if !ok || se.Status != http.StatusForbidden {
		return false
	}
	return strings.Contains(strings.ToLower(se.Message), "security validation")
}

// listPath addresses a list by id.
func listPath(listID string) string {
	return fmt.Sprintf("/_api/web/lists(guid'%s')", listID)
}

// literal escapes a string for use inside a quoted OData literal in a path.
func literal(s string) string {
	return url.PathEscape(strings.ReplaceAll(s, "'", "''"))
}

var _ remote.Store = (*Client)(nil)
