/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package history owns the generated branch: it initializes the branch with a
// checkpoint commit, decides where an interrupted run resumes by walking the
// commit log, and records one commit per generated release.
//
// Commits made by the generator carry a reserved author identity. Anything
// else on the branch is treated as a foreign commit and tolerated, which lets
// operators add manual commits between runs.
package history
