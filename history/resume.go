/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Mode selects what Prepare does with an existing branch.
type Mode int

const (
	// Resume continues a branch whose checkpoint matches and aborts otherwise.
	Resume Mode = iota
	// StartOver always recreates the branch.
	StartOver
	// StartOverIfRequired recreates the branch only when its checkpoint does
	// not match.
	StartOverIfRequired
)

// State is the branch state Prepare found.
type State int

const (
	Uninitialized State = iota
	CheckpointValid
	CheckpointInvalid
	StartingOver
)

func (s State) String() string {
	switch s {
	case CheckpointValid:
		return "checkpoint-valid"
	case CheckpointInvalid:
		return "checkpoint-invalid"
	case StartingOver:
		return "start-over"
	default:
		return "uninitialized"
	}
}

// ErrCheckpointMismatch is returned when the branch was generated with a
// different engine or start release and starting over was not requested.
var ErrCheckpointMismatch = errors.New("the starting commit on this branch does not have matching metadata")

// ConsistencyError reports a branch whose last generated release is not part
// of the selected release list.
type ConsistencyError struct {
	Branch  string
	Release string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("branch %s was last generated for %s, which is not in the selected release list", e.Branch, e.Release)
}

// Prepare brings the branch into a state where releases can be appended and
// returns the last release already on it, or "" when none is.
func (r *Repo) Prepare(ctx context.Context, cp Checkpoint, mode Mode) (string, error) {
	log := clog.FromContext(ctx).With("branch", r.branch)

	state, err := r.inspect(cp)
	if err != nil {
		return "", err
	}
	if mode == StartOver || r.orphaned {
		state = StartingOver
	}
	log.Infof("Branch state: %s", state)

	switch state {
	case CheckpointValid:
		return r.LastRelease(ctx)

	case CheckpointInvalid:
		if mode != StartOverIfRequired {
			log.Warn("The starting commit on this branch does not have matching metadata.")
			log.Warn("This could be due to a different Snowblower version or a different starting version.")
			log.Warn("Please choose a different branch with --branch or add the --start-over flag and try again.")
			return "", ErrCheckpointMismatch
		}
		log.Info("Checkpoint does not match, starting over")
		fallthrough

	case StartingOver:
		if err := r.startOver(); err != nil {
			return "", err
		}
	}

	// Releases committed before a checkpoint was ever written still count.
	last, err := r.LastRelease(ctx)
	if err != nil {
		return "", err
	}
	if err := r.initialize(ctx, cp); err != nil {
		return "", err
	}
	return last, nil
}

// inspect classifies the branch against the requested checkpoint.
func (r *Repo) inspect(cp Checkpoint) (State, error) {
	checkpointed := false
	err := r.walk(func(c *object.Commit) error {
		if Classify(c).Kind == KindCheckpoint {
			checkpointed = true
		}
		return nil
	})
	if err != nil {
		return Uninitialized, fmt.Errorf("inspecting %s: %w", r.branch, err)
	}
	switch {
	case !checkpointed:
		return Uninitialized, nil
	case cp.Record().IsValid(r.path(CheckpointFile)):
		return CheckpointValid, nil
	default:
		return CheckpointInvalid, nil
	}
}

// startOver deletes the branch and the generated files, leaving HEAD on an
// unborn branch of the same name.
func (r *Repo) startOver() error {
	for _, name := range cleanupPaths {
		if err := os.RemoveAll(r.path(name)); err != nil {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	return r.orphan()
}

// initialize writes the checkpoint and scaffold and commits them.
func (r *Repo) initialize(ctx context.Context, cp Checkpoint) error {
	if err := cp.Record().Write(r.path(CheckpointFile)); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	paths, err := r.writeScaffold()
	if err != nil {
		return fmt.Errorf("writing scaffold: %w", err)
	}
	hash, err := r.commit(InitialMessage, InitialTime, append([]string{CheckpointFile}, paths...), nil, true)
	if err != nil {
		return fmt.Errorf("committing checkpoint: %w", err)
	}
	r.orphaned = false
	clog.FromContext(ctx).With("commit", hash.String()).Infof("Initialized branch %s starting at %s", r.branch, cp.Start)
	return nil
}

// ResumeIndex returns the position in ids, ordered oldest first, of the first
// release still to generate after last.
func ResumeIndex(branch string, ids []string, last string) (int, error) {
	if last == "" {
		return 0, nil
	}
	i := slices.Index(ids, last)
	if i < 0 {
		return 0, &ConsistencyError{Branch: branch, Release: last}
	}
	return i + 1, nil
}
