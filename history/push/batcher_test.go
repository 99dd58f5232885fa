/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package push

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-cmp/cmp"
)

type fakeLocal struct {
	hashes []plumbing.Hash
}

func (f *fakeLocal) History(context.Context) ([]plumbing.Hash, error) {
	return f.hashes, nil
}

// fakeRemote mirrors whatever suffix of the local chain was last pushed.
type fakeRemote struct {
	local  *fakeLocal
	hashes []plumbing.Hash
	pushed []Step
	err    error
}

func (f *fakeRemote) History(context.Context) ([]plumbing.Hash, error) {
	return f.hashes, nil
}

func (f *fakeRemote) Push(_ context.Context, tip plumbing.Hash, force bool) error {
	if f.err != nil {
		return f.err
	}
	i := slices.Index(f.local.hashes, tip)
	if i < 0 {
		return errors.New("unknown commit")
	}
	f.hashes = slices.Clone(f.local.hashes[i:])
	f.pushed = append(f.pushed, Step{Tip: tip, Force: force})
	return nil
}

func TestBatcherPushesEveryBatch(t *testing.T) {
	ctx := context.Background()
	all := chain(26)
	local := &fakeLocal{hashes: all[25:]}
	remote := &fakeRemote{local: local, hashes: all[25:]}

	b, err := NewBatcher(local, remote, 10)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	for i := 24; i >= 0; i-- {
		local.hashes = all[i:]
		if err := b.Committed(ctx); err != nil {
			t.Fatalf("Committed: %v", err)
		}
	}
	if err := b.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// The 10th, 20th and 25th generated releases.
	want := []Step{{Tip: all[15]}, {Tip: all[5]}, {Tip: all[0]}}
	if diff := cmp.Diff(want, remote.pushed); diff != "" {
		t.Errorf("pushes (-want +got):\n%s", diff)
	}
	if got := b.Pushes(); got != 3 {
		t.Errorf("Pushes() = %d, want 3", got)
	}

	// Nothing new: no further push.
	if err := b.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := len(remote.pushed); got != 3 {
		t.Errorf("idle sync pushed, now %d pushes", got)
	}
}

func TestBatcherForcesUnrelatedRemote(t *testing.T) {
	ctx := context.Background()
	all := chain(4)
	local := &fakeLocal{hashes: all}
	remote := &fakeRemote{local: local, hashes: []plumbing.Hash{plumbing.NewHash("dddddddddddddddddddddddddddddddddddddddd")}}

	b, err := NewBatcher(local, remote, 2)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	if err := b.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	want := []Step{{Tip: all[0], Force: true}}
	if diff := cmp.Diff(want, remote.pushed); diff != "" {
		t.Errorf("pushes (-want +got):\n%s", diff)
	}
}

func TestBatcherPushFailure(t *testing.T) {
	all := chain(3)
	local := &fakeLocal{hashes: all}
	boom := errors.New("remote rejected")
	remote := &fakeRemote{local: local, hashes: all[2:], err: boom}

	b, err := NewBatcher(local, remote, 1)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	if err := b.Sync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Sync() = %v, want %v", err, boom)
	}
	if len(local.hashes) != 3 {
		t.Error("local history must be left alone")
	}
}

func TestNewBatcherValidation(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{local: local}
	if _, err := NewBatcher(nil, remote, 1); err == nil {
		t.Error("expected error for nil local")
	}
	if _, err := NewBatcher(local, nil, 1); err == nil {
		t.Error("expected error for nil remote")
	}
	if _, err := NewBatcher(local, remote, 0); err == nil {
		t.Error("expected error for zero batch size")
	}
}
