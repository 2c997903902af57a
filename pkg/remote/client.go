package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	defaultTimeout     = 5 * time.Minute
	defaultMaxAttempts = 3

	advertisementContentType = "application/x-git-upload-pack-advertisement"
	uploadPackRequestType    = "application/x-git-upload-pack-request"
	uploadPackResultType     = "application/x-git-upload-pack-result"
)

// Endpoint is a validated remote repository URL.
type Endpoint struct {
	URL string
}

// ParseEndpoint validates a remote URL. Only http and https transports
// are supported.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("unsupported remote scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("remote url %q has no host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return Endpoint{URL: u.String()}, nil
}

// RepositoryName derives a local directory name from the endpoint path.
func (e Endpoint) RepositoryName() string {
	u, err := url.Parse(e.URL)
	if err != nil {
		return "repository"
	}
	name := strings.TrimSuffix(path.Base(u.Path), ".git")
	if name == "" || name == "." || name == "/" {
		return "repository"
	}
	return name
}

// Client speaks the smart-HTTP fetch protocol against one endpoint.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client

	token    string
	username string
	password string

	maxAttempts int
	userAgent   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets a bearer token for authentication.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithBasicAuth sets username/password authentication.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithMaxAttempts sets the retry budget for each HTTP request.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) { c.maxAttempts = n }
}

// NewClient creates a client for the endpoint. Credentials default to
// the GRIT_TOKEN or GRIT_USERNAME/GRIT_PASSWORD environment variables.
func NewClient(endpoint Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		token:       os.Getenv("GRIT_TOKEN"),
		username:    os.Getenv("GRIT_USERNAME"),
		password:    os.Getenv("GRIT_PASSWORD"),
		maxAttempts: defaultMaxAttempts,
		userAgent:   "grit/0.1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint the client was created for.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

func (c *Client) applyAuth(req *http.Request) {
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
}

// DiscoverRefs performs reference discovery against the endpoint.
func (c *Client) DiscoverRefs(ctx context.Context) (*Advertisement, error) {
	u := fmt.Sprintf("%s/info/refs?service=%s", c.endpoint.URL, UploadPackService)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", advertisementContentType)
	c.applyAuth(req)

	resp, err := retryDo(c.httpClient, req, c.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("reference discovery: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		return nil, fmt.Errorf("reference discovery: %w", err)
	}
	adv, err := ParseAdvertisement(resp.Body, UploadPackService)
	if err != nil {
		return nil, err
	}
	return adv, nil
}

// UploadPack posts a negotiation request body and returns the raw
// response stream. The caller owns the returned reader and must close it.
func (c *Client) UploadPack(ctx context.Context, body []byte) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/%s", c.endpoint.URL, UploadPackService)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upload-pack request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", uploadPackRequestType)
	req.Header.Set("Accept", uploadPackResultType)
	c.applyAuth(req)

	resp, err := retryDo(c.httpClient, req, c.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("upload-pack: %w", err)
	}
	if err := checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("upload-pack: %w", err)
	}
	return resp.Body, nil
}

func checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("authentication failed (HTTP %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("repository not found (HTTP 404)")
	default:
		return fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
}
