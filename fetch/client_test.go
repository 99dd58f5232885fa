/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fetch

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/snowblower/retry"
	"github.com/stretchr/testify/require"
)

func sum(b string) string {
	h := sha1.Sum([]byte(b)) //nolint:gosec
	return hex.EncodeToString(h[:])
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(
		WithHTTPClient(srv.Client()),
		WithRetryPolicy(fastPolicy()),
		WithManifestURL(srv.URL+"/manifest.json"),
	)
	require.NoError(t, err)
	return c
}

func TestDownload(t *testing.T) {
	const body = "jar bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a", "client.jar")
	c := newTestClient(t, srv)
	require.NoError(t, c.Download(context.Background(), srv.URL+"/client.jar", dest, sum(body)))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, body, string(got))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files left behind")
}

func TestDownloadIntegrityFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "tampered")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "server.jar")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	c := newTestClient(t, srv)
	err := c.Download(context.Background(), srv.URL+"/server.jar", dest, sum("expected"))

	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, sum("tampered"), ie.Got)
	require.EqualValues(t, 1, hits.Load(), "integrity failures must not be retried")
	_, statErr := os.Stat(dest)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestDownloadRetriesTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "x")
	c := newTestClient(t, srv)
	require.NoError(t, c.Download(context.Background(), srv.URL, dest, ""))
	require.EqualValues(t, 3, hits.Load())
}

func TestDownloadNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.Download(context.Background(), srv.URL+"/missing", filepath.Join(t.TempDir(), "x"), "")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.Code)
	require.EqualValues(t, 1, hits.Load())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("connection reset by peer"), true},
		{"server error", &StatusError{Code: 502}, true},
		{"rate limited", fmt.Errorf("wrapped: %w", &StatusError{Code: 429}), true},
		{"not found", &StatusError{Code: 404}, false},
		{"integrity", &IntegrityError{}, false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(WithManifestURL("")); err == nil {
		t.Error("expected error for empty manifest url")
	}
	if _, err := New(WithRetryPolicy(retry.Policy{MaxRetries: -1})); err == nil {
		t.Error("expected error for invalid policy")
	}
}
