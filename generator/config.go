/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package generator

import (
	"errors"
	"fmt"
	"path/filepath"

	"chainguard.dev/snowblower/fetch"
	"chainguard.dev/snowblower/history"
	"chainguard.dev/snowblower/history/push"
	"chainguard.dev/snowblower/selector"
	"golang.org/x/oauth2"
)

// DefaultPrefetchLimit bounds concurrent version document downloads.
const DefaultPrefetchLimit = 8

// Config holds everything a run needs. It is threaded explicitly through
// the components instead of living in package state.
type Config struct {
	// Output is the working tree and repository of the generated branch.
	Output string
	// CacheDir holds per-release artifacts and the shared library cache.
	CacheDir string
	// ExtraMappings optionally supplies maps for releases that publish none.
	ExtraMappings string

	// Branch is the generated branch. Empty means the branch checked out in
	// Output, or history.DefaultBranch for a new repository.
	Branch string
	// Selection holds the bounds given on the command line.
	Selection selector.BranchSpec
	// Branches configures known branches. Nil means selector.DefaultConfig.
	Branches *selector.Config
	// Mode decides what happens when the branch checkpoint no longer matches.
	Mode history.Mode

	// Remote is the URL pushed to and checked out from.
	Remote string
	// Checkout resets the branch to the remote one before generating.
	Checkout bool
	// Push publishes new commits to Remote in batches of BatchSize.
	Push      bool
	BatchSize int
	// TokenSource authenticates against Remote. Nil for anonymous access.
	TokenSource oauth2.TokenSource

	// Committer overrides the committer of generated commits.
	Committer *history.Identity
	// ScaffoldDir overrides the files written with a fresh checkpoint.
	ScaffoldDir string

	// PartialCache drops the downloaded jars once the joined jar exists.
	PartialCache bool
	// Includes and Excludes are globs over generated paths.
	Includes []string
	Excludes []string

	// Platform evaluates library rules for the build descriptor.
	Platform fetch.Platform
	// PrefetchLimit bounds concurrent version document downloads.
	PrefetchLimit int
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	switch {
	case c.Output == "":
		return errors.New("output directory cannot be empty")
	case c.CacheDir == "":
		return errors.New("cache directory cannot be empty")
	case c.Checkout && c.Remote == "":
		return errors.New("checking out requires a remote")
	case c.Push && c.Remote == "":
		return errors.New("pushing requires a remote")
	case c.BatchSize < 0:
		return fmt.Errorf("batch size cannot be negative, got %d", c.BatchSize)
	case c.PrefetchLimit < 0:
		return fmt.Errorf("prefetch limit cannot be negative, got %d", c.PrefetchLimit)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Branches == nil {
		out.Branches = selector.DefaultConfig()
	}
	if out.BatchSize == 0 {
		out.BatchSize = push.DefaultBatchSize
	}
	if out.PrefetchLimit == 0 {
		out.PrefetchLimit = DefaultPrefetchLimit
	}
	if out.Platform == (fetch.Platform{}) {
		out.Platform = fetch.CurrentPlatform()
	}
	return out
}

func (c *Config) releaseDir(id string) string {
	return filepath.Join(c.CacheDir, id)
}

func (c *Config) libraryDir() string {
	return filepath.Join(c.CacheDir, "libraries")
}
