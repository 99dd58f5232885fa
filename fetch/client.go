/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"chainguard.dev/snowblower/cache"
	"chainguard.dev/snowblower/retry"
	"github.com/chainguard-dev/clog"
)

// DefaultManifestURL is the upstream version manifest.
const DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

const userAgent = "snowblower"

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// IntegrityError reports a downloaded file whose digest does not match the
// published one. The file has already been deleted.
type IntegrityError struct {
	URL  string
	Path string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("downloading %s to %s: sha1 mismatch, expected %s got %s", e.URL, e.Path, e.Want, e.Got)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout || se.Code >= 500
	}
	return true
}

// Client talks to the upstream metadata and artifact hosts.
type Client struct {
	http        *http.Client
	policy      retry.Policy
	manifestURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithManifestURL overrides the version manifest location.
func WithManifestURL(u string) Option {
	return func(c *Client) {
		c.manifestURL = u
	}
}

// New returns a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:        http.DefaultClient,
		policy:      retry.DefaultPolicy(),
		manifestURL: DefaultManifestURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.http == nil:
		return nil, errors.New("http client cannot be nil")
	case c.manifestURL == "":
		return nil, errors.New("manifest url cannot be empty")
	}
	if err := c.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	return c, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		resp.Body.Close()
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return resp, nil
}

// GetJSON decodes the JSON document at url into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	_, err := retry.Do(ctx, c.policy, "GET "+url, IsTransient, func() (struct{}, error) {
		resp, err := c.get(ctx, url)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return struct{}{}, fmt.Errorf("decoding %s: %w", url, err)
		}
		return struct{}{}, nil
	})
	return err
}

// GetBytes returns the body at url, up to limit bytes.
func (c *Client) GetBytes(ctx context.Context, url string, limit int64) ([]byte, error) {
	return retry.Do(ctx, c.policy, "GET "+url, IsTransient, func() ([]byte, error) {
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		return b, nil
	})
}

// Download fetches url into dest. When sha1 is non-empty the content must
// match it.
func (c *Client) Download(ctx context.Context, url, dest, sha1 string) error {
	clog.FromContext(ctx).Debugf("Downloading %s", url)
	_, err := retry.Do(ctx, c.policy, "download "+url, IsTransient, func() (struct{}, error) {
		return struct{}{}, c.downloadOnce(ctx, url, dest, sha1)
	})
	return err
}

func (c *Client) downloadOnce(ctx context.Context, url, dest, want string) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := cache.SHA1.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("reading %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}

	if want != "" {
		if got := fmt.Sprintf("%x", h.Sum(nil)); got != want {
			if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
				clog.FromContext(ctx).Warnf("Removing %s after integrity failure: %v", dest, err)
			}
			return &IntegrityError{URL: url, Path: dest, Want: want, Got: got}
		}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}
