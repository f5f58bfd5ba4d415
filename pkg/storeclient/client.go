// Package storeclient is the HTTP client for the storage backend behind the
// gateway. It forwards client requests and issues the internal requests the
// undelete protocol needs: object copies, container creation, and scope
// sysmeta lookups.
package storeclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trashgate/trashgate/pkg/logger"
)

const (
	// Header prefixes the backend uses for persisted scope metadata.
	AccountSysmetaPrefix   = "X-Account-Sysmeta-"
	ContainerSysmetaPrefix = "X-Container-Sysmeta-"

	headerAuthToken        = "X-Auth-Token"
	headerDestination      = "Destination"
	headerDeleteAt         = "X-Delete-At"
	headerVersionsLocation = "X-Versions-Location"
)

// CopyResult is the backend's answer to one copy attempt. Header and Body are
// carried verbatim so failures can be surfaced to the caller as-is.
type CopyResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the copy succeeded.
func (r *CopyResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// NotFound reports the destination-container-missing signal that triggers
// lazy trash provisioning.
func (r *CopyResult) NotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// Client talks to a single storage backend over a pooled transport.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// New creates a Client for the backend at upstream.
func New(upstream string, timeout time.Duration, maxIdleConns int) (*Client, error) {
	base, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream URL: %w", err)
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConns,
				IdleConnTimeout:     90 * time.Second,
			},
			// The gateway is a proxy: backend redirects belong to the caller.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, escapePathSegment(s))
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

// escapePathSegment escapes a path segment while keeping slashes intact, since
// object names may contain them.
func escapePathSegment(s string) string {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Forward sends the client's request to the backend unchanged and returns the
// backend's response. The caller owns the response body.
func (c *Client) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + req.URL.Path
	u.RawQuery = req.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, req.Method, u.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("build forwarded request: %w", err)
	}
	out.ContentLength = req.ContentLength
	copyHeaders(out.Header, req.Header)

	resp, err := c.httpClient.Do(out)
	if err != nil {
		return nil, fmt.Errorf("forward %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// CopyObject copies the object at srcPath into destContainer under the same
// account, as destObject. expireAfter is the number of seconds the copy should
// live; 0 keeps it forever.
func (c *Client) CopyObject(ctx context.Context, token, srcPath, destContainer, destObject string, expireAfter int64) (*CopyResult, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + srcPath

	req, err := http.NewRequestWithContext(ctx, "COPY", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build copy request: %w", err)
	}
	req.Header.Set(headerAuthToken, token)
	req.Header.Set(headerDestination, destContainer+"/"+destObject)
	if expireAfter > 0 {
		deleteAt := time.Now().Add(time.Duration(expireAfter) * time.Second).Unix()
		req.Header.Set(headerDeleteAt, strconv.FormatInt(deleteAt, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("copy object %s: %w", srcPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read copy response: %w", err)
	}

	return &CopyResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// CreateContainer creates a container in the given account. versionsLocation,
// when set, points the container at a history-retention companion. Creation is
// idempotent on the backend: an already existing container is not an error.
func (c *Client) CreateContainer(ctx context.Context, token, account, container, versionsLocation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint("v1", account, container), nil)
	if err != nil {
		return fmt.Errorf("build container create request: %w", err)
	}
	req.Header.Set(headerAuthToken, token)
	if versionsLocation != "" {
		req.Header.Set(headerVersionsLocation, versionsLocation)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create container %s/%s: %w", account, container, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 201 on creation, 202 when it already exists. Both converge on the same
	// end state, which is what the provisioning race relies on.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("create container %s/%s: backend returned %d", account, container, resp.StatusCode)
	}

	logger.Ctx(ctx).Debug().
		Str("account", account).
		Str("container", container).
		Str("versions_location", versionsLocation).
		Int("status", resp.StatusCode).
		Msg("container created")
	return nil
}

// AccountMetadata returns the persisted sysmeta bag for an account, keys
// lowercased with the sysmeta prefix stripped.
func (c *Client) AccountMetadata(ctx context.Context, token, account string) (map[string]string, error) {
	return c.scopeMetadata(ctx, token, c.endpoint("v1", account), AccountSysmetaPrefix)
}

// ContainerMetadata returns the persisted sysmeta bag for a container.
func (c *Client) ContainerMetadata(ctx context.Context, token, account, container string) (map[string]string, error) {
	return c.scopeMetadata(ctx, token, c.endpoint("v1", account, container), ContainerSysmetaPrefix)
}

func (c *Client) scopeMetadata(ctx context.Context, token, endpoint, prefix string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set(headerAuthToken, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup scope metadata: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		// Missing scope reads as an empty bag; policy falls back to defaults.
		return map[string]string{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("lookup scope metadata: backend returned %d", resp.StatusCode)
	}

	meta := make(map[string]string)
	for name, values := range resp.Header {
		if len(values) == 0 {
			continue
		}
		if rest, ok := cutPrefixFold(name, prefix); ok {
			meta[strings.ToLower(rest)] = values[0]
		}
	}
	return meta, nil
}

// cutPrefixFold is strings.CutPrefix under ASCII case folding, since header
// canonicalization may differ between backends.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// Hop-by-hop headers are not forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
