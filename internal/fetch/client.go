// Package fetch issues the GET requests used to reach the version and
// firmware endpoints.
package fetch

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinoosan/fota/internal/metrics"
)

// Endpoint labels used for metrics.
const (
	EndpointVersion  = "version"
	EndpointFirmware = "firmware"
)

// Options tunes the underlying transport. None of the timeouts bound the time
// spent reading a response body: firmware streams may legitimately run long.
type Options struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	UserAgent             string
}

// DefaultOptions mirrors what a constrained device stack would apply.
func DefaultOptions() Options {
	return Options{
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		UserAgent:             "fota",
	}
}

type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient builds a client with its own transport.
func NewClient(opts Options) *Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.DialTimeout}).DialContext,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		MaxIdleConns:          2,
		DisableCompression:    true,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{http: &http.Client{Transport: tr}, userAgent: opts.UserAgent}
}

// NewClientWithHTTP wraps an existing http.Client, e.g. one from httptest.
func NewClientWithHTTP(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, userAgent: DefaultOptions().UserAgent}
}

func (c *Client) HTTP() *http.Client { return c.http }

// SetNoCache adds the headers that stop CDN-fronted hosting from serving a
// stale object.
func SetNoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// Get performs a cache-defeating GET. The caller owns the response body and
// is responsible for interpreting the status code; non-200 responses are
// counted as endpoint errors here.
func (c *Client) Get(ctx context.Context, endpoint, url string) (*http.Response, error) {
	timer := prometheus.NewTimer(metrics.FetchLatency.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(endpoint).Inc()
		return nil, err
	}
	SetNoCache(req.Header)
	// A transparently gunzipped body loses its Content-Length.
	req.Header.Set("Accept-Encoding", "identity")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(endpoint).Inc()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		metrics.FetchErrors.WithLabelValues(endpoint).Inc()
	}
	return resp, nil
}
