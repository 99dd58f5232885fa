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
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

// RemoteName is the name the remote is configured under.
const RemoteName = "origin"

// pushRef is a scratch reference used to push an arbitrary commit.
const pushRef = plumbing.ReferenceName("refs/snowblower/push")

// Remote is the far side of the generated branch.
type Remote interface {
	// History returns the remote branch's commits newest first, or nil when
	// the branch does not exist there.
	History(ctx context.Context) ([]plumbing.Hash, error)
	// Push makes tip the remote branch's head.
	Push(ctx context.Context, tip plumbing.Hash, force bool) error
}

// GitRemote is a Remote reached through go-git.
type GitRemote struct {
	repo        *git.Repository
	url         string
	branch      string
	tokenSource oauth2.TokenSource
}

var _ Remote = (*GitRemote)(nil)

// RemoteOption configures a GitRemote.
type RemoteOption func(*GitRemote)

// WithTokenSource authenticates fetches and pushes with tokens from ts.
func WithTokenSource(ts oauth2.TokenSource) RemoteOption {
	return func(g *GitRemote) {
		g.tokenSource = ts
	}
}

// NewGitRemote configures url as the repository's origin and returns a
// Remote for branch on it.
func NewGitRemote(repo *git.Repository, url, branch string, opts ...RemoteOption) (*GitRemote, error) {
	g := &GitRemote{repo: repo, url: url, branch: branch}
	for _, opt := range opts {
		opt(g)
	}

	switch {
	case g.repo == nil:
		return nil, errors.New("repository cannot be nil")
	case g.url == "":
		return nil, errors.New("remote url cannot be empty")
	case g.branch == "":
		return nil, errors.New("branch cannot be empty")
	}

	if err := g.configure(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GitRemote) configure() error {
	existing, err := g.repo.Remote(RemoteName)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
	case err != nil:
		return fmt.Errorf("reading remote %s: %w", RemoteName, err)
	case len(existing.Config().URLs) > 0 && existing.Config().URLs[0] == g.url:
		return nil
	default:
		if err := g.repo.DeleteRemote(RemoteName); err != nil {
			return fmt.Errorf("replacing remote %s: %w", RemoteName, err)
		}
	}
	_, err = g.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: RemoteName,
		URLs: []string{g.url},
	})
	if err != nil {
		return fmt.Errorf("creating remote %s: %w", RemoteName, err)
	}
	return nil
}

func (g *GitRemote) authForRemote() (transport.AuthMethod, error) {
	if g.tokenSource == nil {
		return nil, nil
	}
	token, err := g.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

// Fetch updates the remote-tracking reference for the branch. It reports
// false when the branch does not exist on the remote.
func (g *GitRemote) Fetch(ctx context.Context) (plumbing.Hash, bool, error) {
	auth, err := g.authForRemote()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	tracking := plumbing.NewRemoteReferenceName(RemoteName, g.branch)
	spec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(g.branch), tracking))
	clog.FromContext(ctx).Debugf("Fetching %s from %s", g.branch, g.url)

	err = g.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: RemoteName,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository), errors.Is(err, git.NoMatchingRefSpecError{}):
		return plumbing.ZeroHash, false, nil
	default:
		return plumbing.ZeroHash, false, fmt.Errorf("fetching %s: %w", g.branch, err)
	}

	ref, err := g.repo.Reference(tracking, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("resolving %s: %w", tracking, err)
	}
	return ref.Hash(), true, nil
}

// History implements Remote.
func (g *GitRemote) History(ctx context.Context) ([]plumbing.Hash, error) {
	tip, ok, err := g.Fetch(ctx)
	if err != nil || !ok {
		return nil, err
	}
	iter, err := g.repo.Log(&git.LogOptions{From: tip})
	if err != nil {
		return nil, fmt.Errorf("reading remote log: %w", err)
	}
	defer iter.Close()

	var hashes []plumbing.Hash
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hashes = append(hashes, c.Hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading remote log: %w", err)
	}
	return hashes, nil
}

// Push implements Remote. The commit is pushed through a scratch reference
// so that any commit, not only a local branch head, can become the tip.
func (g *GitRemote) Push(ctx context.Context, tip plumbing.Hash, force bool) error {
	log := clog.FromContext(ctx).With("tip", tip.String()).With("force", force)

	auth, err := g.authForRemote()
	if err != nil {
		return err
	}
	if err := g.repo.Storer.SetReference(plumbing.NewHashReference(pushRef, tip)); err != nil {
		return fmt.Errorf("setting push reference: %w", err)
	}
	defer func() {
		if err := g.repo.Storer.RemoveReference(pushRef); err != nil {
			log.Warnf("Failed to remove push reference: %v", err)
		}
	}()

	spec := fmt.Sprintf("%s:%s", pushRef, plumbing.NewBranchReferenceName(g.branch))
	if force {
		spec = "+" + spec
	}
	log.Infof("Pushing %s to %s", g.branch, g.url)

	err = g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: RemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(spec)},
		Auth:       auth,
		Force:      force,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		log.Info("Remote already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pushing %s: %w", tip, err)
	}
	return nil
}
