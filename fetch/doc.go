/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fetch retrieves upstream release metadata and artifacts.
//
// The Client downloads the version manifest, the per-release version
// documents it references, and the binary artifacts those documents list.
// Every request is retried with exponential backoff on transient failures
// (network errors, 429 and 5xx responses). Downloads are written to a
// temporary file, verified against the published SHA-1, and renamed into
// place; a digest mismatch deletes the file and fails with an IntegrityError,
// which is never retried.
package fetch
