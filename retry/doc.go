/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs blocking operations with bounded exponential backoff.
//
// Callers classify errors with an isRetryable function; errors it rejects are
// returned immediately, so permanent failures such as integrity mismatches are
// never retried. Backoff doubles from BaseBackoff up to MaxBackoff with a
// random jitter of at most MaxJitter, and the wait is abandoned as soon as the
// context is cancelled.
//
//	body, err := retry.Do(ctx, retry.DefaultPolicy(), "fetch manifest", fetch.IsTransient,
//	    func() ([]byte, error) { return get(ctx, url) })
package retry
