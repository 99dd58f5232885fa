/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package stage runs cacheable pipeline steps.
//
// A Stage declares its output artifact, the cache.Record fingerprinting every
// input, and the function that produces the artifact. Runner.Run skips the
// function when the artifact exists and its sidecar record matches; otherwise
// it invokes the function and persists the record only after success, so an
// interrupted stage is recomputed on the next run.
//
// Per-release outcomes are reported as a Result, which is exactly one of OK
// (with the produced artifact), Skip (with a reason, for releases that cannot
// be generated but are not an error) or Fatal (with the error that must stop
// the run).
package stage
