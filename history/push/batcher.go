/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultBatchSize bounds both the commits per push and the releases between
// pushes.
const DefaultBatchSize = 10

// Local is the generated branch's own history.
type Local interface {
	// History returns the branch's commits newest first.
	History(ctx context.Context) ([]plumbing.Hash, error)
}

// Batcher pushes the local branch every few generated releases.
type Batcher struct {
	local  Local
	remote Remote
	size   int

	pending int
	pushes  int
}

// NewBatcher returns a Batcher pushing local to remote in batches of size.
func NewBatcher(local Local, remote Remote, size int) (*Batcher, error) {
	switch {
	case local == nil:
		return nil, errors.New("local history cannot be nil")
	case remote == nil:
		return nil, errors.New("remote cannot be nil")
	case size < 1:
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	return &Batcher{local: local, remote: remote, size: size}, nil
}

// Committed records a newly committed release and syncs once a batch worth
// of them has accumulated.
func (b *Batcher) Committed(ctx context.Context) error {
	b.pending++
	if b.pending < b.size {
		return nil
	}
	return b.Sync(ctx)
}

// Sync brings the remote up to date with the local branch.
func (b *Batcher) Sync(ctx context.Context) error {
	b.pending = 0

	local, err := b.local.History(ctx)
	if err != nil {
		return fmt.Errorf("listing local history: %w", err)
	}
	remote, err := b.remote.History(ctx)
	if err != nil {
		return fmt.Errorf("listing remote history: %w", err)
	}

	steps := Plan(local, remote, b.size)
	if len(steps) == 0 {
		clog.FromContext(ctx).Debug("Remote is up to date")
		return nil
	}
	for i, s := range steps {
		clog.FromContext(ctx).Infof("Push %d/%d: %s", i+1, len(steps), s.Tip)
		if err := b.remote.Push(ctx, s.Tip, s.Force); err != nil {
			return err
		}
		b.pushes++
	}
	return nil
}

// Pushes returns how many pushes have succeeded.
func (b *Batcher) Pushes() int { return b.pushes }
