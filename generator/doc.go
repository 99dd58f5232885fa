/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package generator drives the generation of one branch.
//
// A run selects the releases of the branch, resumes after the last release
// already committed, and for each remaining release runs the cached stage
// chain:
//
//	maps -> client/server jars -> bundler -> merge -> libraries -> rename -> decompile
//
// The decompiled archive is synchronized into the working tree together with
// the build descriptor, and the result is committed as the release. Commits
// are pushed to the remote in batches when pushing is enabled.
package generator
