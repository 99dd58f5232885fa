/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package mappings handles the obfuscation maps published with each release.
//
// Upstream ships ProGuard-style maps from readable names to obfuscated ones,
// one for the client and one for the server. The client map is used for the
// merged jar, which is only correct when it is a strict superset of the
// server map; CheckSuperset enforces that. The merged map is written in the
// TSRG2 format, reversed to translate obfuscated names back to readable ones,
// which is what the renaming tool consumes.
package mappings
