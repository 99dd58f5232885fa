/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// Policy bounds the number of attempts and the delay between them.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// 0 disables retrying.
	MaxRetries int `env:"MAX_RETRIES,default=4"`
	// BaseBackoff is the delay before the first retry.
	BaseBackoff time.Duration `env:"BASE_BACKOFF,default=1s"`
	// MaxBackoff caps the exponential delay.
	MaxBackoff time.Duration `env:"MAX_BACKOFF,default=30s"`
	// MaxJitter is the upper bound of the random delay added to each wait.
	MaxJitter time.Duration `env:"MAX_JITTER,default=250ms"`
}

// Validate checks that the policy has usable values.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case p.BaseBackoff < 0:
		return errors.New("base backoff cannot be negative")
	case p.MaxBackoff < 0:
		return errors.New("max backoff cannot be negative")
	case p.MaxJitter < 0:
		return errors.New("max jitter cannot be negative")
	case p.MaxBackoff < p.BaseBackoff:
		return fmt.Errorf("max backoff %s is below base backoff %s", p.MaxBackoff, p.BaseBackoff)
	}
	return nil
}

// DefaultPolicy is tuned for artifact downloads from a CDN.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  4,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

// Backoff returns the delay before retry number attempt (zero based),
// excluding jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	// Compare against the shifted cap so the doubling never overflows.
	if attempt >= 63 || p.BaseBackoff > p.MaxBackoff>>attempt {
		return p.MaxBackoff
	}
	return p.BaseBackoff << attempt
}

func (p Policy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(p.MaxJitter)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// Do calls fn until it succeeds, returns an error isRetryable rejects, the
// retries are exhausted, or ctx is done.
func Do[T any](ctx context.Context, p Policy, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= p.MaxRetries {
			break
		}

		wait := p.Backoff(attempt) + p.jitter()
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", p.MaxRetries).
			With("backoff", wait).
			With("error", lastErr.Error()).
			Warn("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, p.MaxRetries, lastErr)
}
