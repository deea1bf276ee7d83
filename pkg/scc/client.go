package scc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

const (
	DefaultURL = "https://scc.suse.com"

	VirtualizationHostsPath = "/connect/organizations/virtualization_hosts"
	RepositoriesPath        = "/connect/organizations/repositories"

	CollectorVersionHeader = "X-Scc-Hypervisor-Collector-Version"
	GathererVersionHeader  = "X-Gatherer-Version"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

type Client struct {
	baseURL  *url.URL
	username string
	password string
	version  string
	retries  uint64
	interval time.Duration
	http     *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.http = c
	}
}

func WithVersion(v string) ClientOption {
	return func(client *Client) {
		client.version = v
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		if d > 0 {
			client.http.Timeout = d
		}
	}
}

// WithRetries sets how many times a throttled or failed upload is retried.
func WithRetries(n int, interval time.Duration) ClientOption {
	return func(client *Client) {
		client.retries = uint64(max(n, 0))
		if interval > 0 {
			client.interval = interval
		}
	}
}

func NewClient(baseURL, username, password string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.ParseRequestURI(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCC url: %w", err)
	}

	c := &Client{
		baseURL:  u,
		username: username,
		password: password,
		version:  "dev",
		retries:  3,
		interval: 500 * time.Millisecond,
		http: &http.Client{
			Timeout: 60 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckCredentials verifies the organization credentials against SCC.
func (c *Client) CheckCredentials(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, RepositoriesPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach SCC: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return checkStatus(resp)
}

// UploadHypervisors sends the details of one backend, gzip compressed.
// Throttled and server side failures are retried.
func (c *Client) UploadHypervisors(ctx context.Context, details any) error {
	payload, err := compress(details)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	return backoff.Retry(func() error {
		req, err := c.newRequest(ctx, http.MethodPut, VirtualizationHostsPath, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("failed to reach SCC: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		err = checkStatus(resp)
		if err == nil {
			return nil
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(CollectorVersionHeader, c.version)
	req.Header.Set(GathererVersionHeader, c.version)
	return req, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

func compress(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return buf.Bytes(), nil
}
