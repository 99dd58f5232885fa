/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package cache implements the fingerprint records that let pipeline stages
// skip work whose inputs have not changed.
//
// A Record is an ordered set of key/value fingerprints describing every input
// of a stage: file digests, literal strings, and tool identities looked up in
// a DependencyHashes table. Records are persisted next to the artifact they
// describe as a small text sidecar:
//
//	Source files created by Snowblower
//
//	client: 3e7c9a...
//	server: 8f02bd...
//
// An optional comment block is separated from the data by a blank line. When
// the sidecar is read back, a line is treated as data only when the character
// preceding its first space is a colon; everything else is ignored. A stage is
// considered up to date when the freshly computed Record equals the one on
// disk, compared as an unordered map.
//
// Hash functions over files, bytes, and strings produce lowercase hex digests
// padded to the full width of the algorithm.
package cache
