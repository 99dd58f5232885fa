/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package push reconciles the generated branch with a remote, pushing new
// commits in bounded batches.
package push

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// Step is one push of a commit as the remote branch tip.
type Step struct {
	Tip   plumbing.Hash
	Force bool
}

// Plan decides which pushes bring the remote up to date. Both histories are
// ordered newest first. The first local commit also present on the remote is
// the common commit:
//   - when it is the local tip, nothing is pushed
//   - when it exists further back, the newer commits are pushed oldest first
//     in batches of at most size commits, each batch's newest commit becoming
//     the tip
//   - when there is none, the local tip is force pushed
func Plan(local, remote []plumbing.Hash, size int) []Step {
	if len(local) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	onRemote := make(map[plumbing.Hash]struct{}, len(remote))
	for _, h := range remote {
		onRemote[h] = struct{}{}
	}
	common := -1
	for i, h := range local {
		if _, ok := onRemote[h]; ok {
			common = i
			break
		}
	}

	switch common {
	case 0:
		return nil
	case -1:
		return []Step{{Tip: local[0], Force: true}}
	}

	// local[:common] holds the pending commits, newest first. Walk it from
	// the oldest end.
	var steps []Step
	for i := common - size; ; i -= size {
		if i <= 0 {
			steps = append(steps, Step{Tip: local[0]})
			return steps
		}
		steps = append(steps, Step{Tip: local[i]})
	}
}
