/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package history

import "chainguard.dev/snowblower/cache"

// CheckpointFile is the checkpoint's path relative to the working tree.
const CheckpointFile = "Snowblower.txt"

// Checkpoint pins the configuration a branch was generated with. Once
// committed it never changes; a different engine or start release needs a
// new branch.
type Checkpoint struct {
	// Engine identifies the generator build.
	Engine string
	// Start is the first release on the branch.
	Start string
}

// Record returns the checkpoint in cache record form.
func (c Checkpoint) Record() *cache.Record {
	rec := cache.NewRecord(
		"Source files created by Snowblower",
		"https://github.com/neoforged/snowblower",
	)
	rec.Put("Snowblower", c.Engine)
	rec.Put("Start", c.Start)
	return rec
}
