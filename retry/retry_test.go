/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/snowblower/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func alwaysRetryable(err error) bool {
	return err != nil
}

func TestDo_Success(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testPolicy(), "op", alwaysRetryable, func() (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("result = %q, want ok", got)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testPolicy(), "op", alwaysRetryable, func() (int, error) {
		if attempts.Add(1) < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
	if n := attempts.Load(); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
}

func TestDo_Exhausted(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("still down")
	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), testPolicy(), "download", alwaysRetryable, func() (struct{}, error) {
		attempts.Add(1)
		return struct{}{}, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	if !strings.Contains(err.Error(), "download failed after 3 retries") {
		t.Fatalf("err = %v, want retry summary", err)
	}
	if n := attempts.Load(); n != 4 {
		t.Fatalf("attempts = %d, want 4", n)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()
	permanent := errors.New("hash mismatch")
	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), testPolicy(), "op", func(err error) bool { return !errors.Is(err, permanent) }, func() (int, error) {
		attempts.Add(1)
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	p := testPolicy()
	p.BaseBackoff = time.Hour
	p.MaxBackoff = time.Hour

	_, err := retry.Do(ctx, p, "op", alwaysRetryable, func() (int, error) {
		cancel()
		return 0, errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  retry.Policy
		wantErr bool
	}{
		{name: "default", policy: retry.DefaultPolicy()},
		{name: "zero", policy: retry.Policy{}},
		{name: "negative retries", policy: retry.Policy{MaxRetries: -1}, wantErr: true},
		{name: "negative jitter", policy: retry.Policy{MaxJitter: -1}, wantErr: true},
		{name: "max below base", policy: retry.Policy{BaseBackoff: time.Second, MaxBackoff: time.Millisecond}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolicyBackoff(t *testing.T) {
	p := retry.Policy{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %s, want %s", i, got, w)
		}
	}
	if got := p.Backoff(100); got != 5*time.Second {
		t.Errorf("Backoff(100) = %s, want cap", got)
	}
}

func TestPolicyBackoffLargeBase(t *testing.T) {
	p := retry.Policy{BaseBackoff: time.Hour, MaxBackoff: time.Duration(math.MaxInt64)}
	prev := time.Duration(0)
	for i := range 40 {
		got := p.Backoff(i)
		if got <= 0 || got < prev {
			t.Fatalf("Backoff(%d) = %s after %s, want a growing positive delay", i, got, prev)
		}
		prev = got
	}
	if got := p.Backoff(40); got != p.MaxBackoff {
		t.Errorf("Backoff(40) = %s, want cap %s", got, p.MaxBackoff)
	}
}
