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
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// DefaultBranch is used when a new repository is created without a branch.
const DefaultBranch = "main"

// Repo is the generated branch's repository and working tree.
type Repo struct {
	dir       string
	repo      *git.Repository
	branch    string
	committer Identity
	scaffold  string

	// orphaned is set when Open had to create the branch.
	orphaned bool
}

// Option configures a Repo.
type Option func(*Repo)

// WithBranch selects the branch to generate on. Without it the checked out
// branch is used.
func WithBranch(name string) Option {
	return func(r *Repo) {
		r.branch = name
	}
}

// WithCommitter overrides the committer of generated commits. The author is
// always Reserved.
func WithCommitter(id Identity) Option {
	return func(r *Repo) {
		r.committer = id
	}
}

// WithScaffold names a directory whose gradlew, gradlew.bat and gradle
// entries are copied into a freshly initialized branch.
func WithScaffold(dir string) Option {
	return func(r *Repo) {
		r.scaffold = dir
	}
}

// Open opens the repository at dir, creating it when needed, and switches to
// the requested branch. A branch that does not exist yet is created as an
// orphan.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	r := &Repo{dir: dir, committer: Reserved}
	for _, opt := range opts {
		opt(r)
	}

	switch {
	case r.dir == "":
		return nil, errors.New("output directory cannot be empty")
	case r.committer.Name == "" || r.committer.Email == "":
		return nil, errors.New("committer name and email cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		name := r.branch
		if name == "" {
			name = DefaultBranch
		}
		clog.FromContext(ctx).Infof("Initializing repository in %s on branch %s", dir, name)
		repo, err = git.PlainInitWithOptions(dir, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(name)},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	r.repo = repo

	current, err := r.currentBranch()
	if err != nil {
		return nil, err
	}
	if r.branch == "" {
		r.branch = current
	}
	if r.branch != current {
		if err := r.switchBranch(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Dir returns the working tree root.
func (r *Repo) Dir() string { return r.dir }

// Branch returns the generated branch's name.
func (r *Repo) Branch() string { return r.branch }

// Repository exposes the underlying go-git repository.
func (r *Repo) Repository() *git.Repository { return r.repo }

func (r *Repo) currentBranch() (string, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	switch {
	case head.Type() == plumbing.SymbolicReference && head.Target().IsBranch():
		return head.Target().Short(), nil
	case r.branch != "":
		// Detached HEAD; the requested branch takes over.
		return "", nil
	default:
		return "", errors.New("repository HEAD is not on a branch and no branch was requested")
	}
}

func (r *Repo) switchBranch(ctx context.Context) error {
	ref := plumbing.NewBranchReferenceName(r.branch)
	if _, born, err := r.Head(); err != nil {
		return err
	} else if !born {
		return r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref))
	}

	_, err := r.repo.Reference(ref, true)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		clog.FromContext(ctx).Infof("Creating orphan branch %s", r.branch)
		r.orphaned = true
		return r.orphan()
	case err != nil:
		return fmt.Errorf("resolving branch %s: %w", r.branch, err)
	}

	clog.FromContext(ctx).Infof("Switching to branch %s", r.branch)
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", r.branch, err)
	}
	return nil
}

// orphan points HEAD at an unborn branch and empties the index, leaving the
// working tree alone.
func (r *Repo) orphan() error {
	ref := plumbing.NewBranchReferenceName(r.branch)
	if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
		return fmt.Errorf("pointing HEAD at %s: %w", r.branch, err)
	}
	if err := r.repo.Storer.RemoveReference(ref); err != nil {
		return fmt.Errorf("deleting branch %s: %w", r.branch, err)
	}
	if err := r.repo.Storer.SetIndex(&index.Index{Version: 2}); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	return nil
}

// Head returns the branch tip. born is false while the branch has no commits.
func (r *Repo) Head() (plumbing.Hash, bool, error) {
	ref, err := r.repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return plumbing.ZeroHash, false, nil
	case err != nil:
		return plumbing.ZeroHash, false, fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash(), true, nil
}

// walk visits the branch's commits from the tip backward until fn returns
// storer.ErrStop.
func (r *Repo) walk(fn func(*object.Commit) error) error {
	head, born, err := r.Head()
	if err != nil || !born {
		return err
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()
	if err := iter.ForEach(fn); err != nil && !errors.Is(err, storer.ErrStop) {
		return err
	}
	return nil
}

// History returns the branch's commits, newest first.
func (r *Repo) History(ctx context.Context) ([]plumbing.Hash, error) {
	var hashes []plumbing.Hash
	err := r.walk(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hashes = append(hashes, c.Hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing history of %s: %w", r.branch, err)
	}
	return hashes, nil
}

// LastRelease returns the id of the most recent release commit, or "" when
// the branch holds none.
func (r *Repo) LastRelease(ctx context.Context) (string, error) {
	var last string
	err := r.walk(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if class := Classify(c); class.Kind == KindRelease {
			last = class.Release
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("finding last release: %w", err)
	}
	return last, nil
}

// ResetTo moves the branch to hash and checks it out, discarding local
// modifications to tracked files.
func (r *Repo) ResetTo(ctx context.Context, hash plumbing.Hash) error {
	ref := plumbing.NewBranchReferenceName(r.branch)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(ref, hash)); err != nil {
		return fmt.Errorf("setting branch reference: %w", err)
	}
	if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
		return fmt.Errorf("pointing HEAD at %s: %w", r.branch, err)
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", hash, err)
	}
	r.orphaned = false
	clog.FromContext(ctx).Infof("Branch %s reset to %s", r.branch, hash)
	return nil
}

// CommitRelease stages the given working-tree paths and commits them as
// release id at the release's time. It reports false when there was nothing
// to commit.
func (r *Repo) CommitRelease(ctx context.Context, id string, when time.Time, changed, removed []string) (bool, error) {
	if id == "" {
		return false, errors.New("release id cannot be empty")
	}
	if len(changed) == 0 && len(removed) == 0 {
		clog.FromContext(ctx).Infof("Release %s produced no changes, not committing", id)
		return false, nil
	}
	hash, err := r.commit(id, when, changed, removed, false)
	if errors.Is(err, git.ErrEmptyCommit) {
		clog.FromContext(ctx).Infof("Release %s matches the previous tree, not committing", id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("committing release %s: %w", id, err)
	}
	clog.FromContext(ctx).With("commit", hash.String()).Infof("Committed release %s", id)
	return true, nil
}

func (r *Repo) commit(msg string, when time.Time, changed, removed []string, allowEmpty bool) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting worktree: %w", err)
	}
	for _, p := range changed {
		if err := wt.AddWithOptions(&git.AddOptions{Path: p, SkipStatus: true}); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("staging %s: %w", p, err)
		}
	}
	for _, p := range removed {
		if _, err := wt.Remove(p); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("staging removal of %s: %w", p, err)
		}
	}
	return wt.Commit(msg, &git.CommitOptions{
		Author:            Reserved.signature(when),
		Committer:         r.committer.signature(when),
		AllowEmptyCommits: allowEmpty,
	})
}

func (r *Repo) path(rel string) string {
	return filepath.Join(r.dir, filepath.FromSlash(rel))
}
