// Package version fetches the published firmware version and compares it with
// the running one.
//
// The version endpoint serves a bare token (for example "1.0.3\n"). Only
// surrounding whitespace is removed; the rest is compared byte for byte, so
// "1.0.3" and "1.0.03" are different versions.
package version

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/fetch"
)

// DefaultMaxBytes caps how much of the version body is read.
const DefaultMaxBytes = 1 << 10

// Result is the outcome of a successful check.
type Result struct {
	Current         string
	Remote          string
	UpdateAvailable bool
}

type Checker struct {
	client   *fetch.Client
	maxBytes int64
}

// NewChecker returns a Checker reading at most maxBytes of the version body;
// maxBytes <= 0 selects DefaultMaxBytes.
func NewChecker(client *fetch.Client, maxBytes int64) *Checker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Checker{client: client, maxBytes: maxBytes}
}

// Fetch retrieves and trims the remote version token. Every failure wraps
// data.ErrVersionCheck.
func (c *Checker) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := c.client.Get(ctx, fetch.EndpointVersion, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", data.ErrVersionCheck, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %w", data.ErrVersionCheck, &data.StatusError{Code: resp.StatusCode})
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", data.ErrVersionCheck, err)
	}
	if int64(len(b)) > c.maxBytes {
		return "", fmt.Errorf("%w: version body exceeds %d bytes", data.ErrVersionCheck, c.maxBytes)
	}
	remote := strings.TrimSpace(string(b))
	if remote == "" {
		return "", fmt.Errorf("%w: empty version body", data.ErrVersionCheck)
	}
	return remote, nil
}

// Check fetches the remote version and compares it with current.
func (c *Checker) Check(ctx context.Context, url, current string) (Result, error) {
	remote, err := c.Fetch(ctx, url)
	if err != nil {
		return Result{Current: current}, err
	}
	return Result{
		Current:         current,
		Remote:          remote,
		UpdateAvailable: !Same(current, remote),
	}, nil
}

// Same reports whether two version tokens are identical after trimming
// surrounding whitespace.
func Same(current, remote string) bool {
	return strings.TrimSpace(current) == strings.TrimSpace(remote)
}
