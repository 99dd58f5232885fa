/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package generator

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/snowblower/buildinfo"
	"chainguard.dev/snowblower/descriptor"
	"chainguard.dev/snowblower/fetch"
	"chainguard.dev/snowblower/history"
	"chainguard.dev/snowblower/history/push"
	"chainguard.dev/snowblower/mappings"
	"chainguard.dev/snowblower/selector"
	"chainguard.dev/snowblower/stage"
	"chainguard.dev/snowblower/tools"
	"chainguard.dev/snowblower/treesync"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Remote is the branch's counterpart on the remote.
type Remote interface {
	push.Remote
	// Fetch returns the remote branch tip, and false when it does not exist.
	Fetch(ctx context.Context) (plumbing.Hash, bool, error)
}

// Generator produces the history of one branch.
type Generator struct {
	cfg    Config
	client *fetch.Client
	tools  *tools.Toolchain
	maps   *mappings.Source
	runner *stage.Runner
	tracer trace.Tracer
	inst   *instruments

	newRemote func(repo *git.Repository, branch string) (Remote, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithClient overrides the download client.
func WithClient(c *fetch.Client) Option {
	return func(g *Generator) {
		g.client = c
	}
}

// WithRemote replaces the git remote built from Config.Remote.
func WithRemote(r Remote) Option {
	return func(g *Generator) {
		g.newRemote = func(*git.Repository, string) (Remote, error) { return r, nil }
	}
}

// WithTracer overrides the tracer used for run and release spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Generator) {
		g.tracer = t
	}
}

// New returns a Generator running the external tools through tc.
func New(cfg Config, tc *tools.Toolchain, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if tc == nil {
		return nil, errors.New("toolchain cannot be nil")
	}

	g := &Generator{
		cfg:    cfg.withDefaults(),
		tools:  tc,
		tracer: otel.Tracer("chainguard.dev/snowblower/generator"),
		inst:   newInstruments(),
	}
	g.newRemote = func(repo *git.Repository, branch string) (Remote, error) {
		return push.NewGitRemote(repo, g.cfg.Remote, branch, push.WithTokenSource(g.cfg.TokenSource))
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.client == nil {
		c, err := fetch.New()
		if err != nil {
			return nil, err
		}
		g.client = c
	}
	g.maps = &mappings.Source{Downloader: g.client, ExtraDir: g.cfg.ExtraMappings}
	g.runner = stage.NewRunner(stage.WithObserver(g.inst.observe), stage.WithTracer(g.tracer))
	return g, nil
}

// work is a release still to generate. A release with a skip reason is
// only reported.
type work struct {
	info    fetch.VersionInfo
	version *fetch.Version
	skip    string
}

// Run generates every pending release of the branch. The report is returned
// even when the run fails part way. A branch whose checkpoint does not match
// fails with history.ErrCheckpointMismatch before anything is changed.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	ctx, span := g.tracer.Start(ctx, "generator.Run")
	defer span.End()

	report, err := g.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func (g *Generator) run(ctx context.Context) (*Report, error) {
	report := &Report{Branch: g.cfg.Branch}

	opts := []history.Option{history.WithBranch(g.cfg.Branch)}
	if g.cfg.Committer != nil {
		opts = append(opts, history.WithCommitter(*g.cfg.Committer))
	}
	if g.cfg.ScaffoldDir != "" {
		opts = append(opts, history.WithScaffold(g.cfg.ScaffoldDir))
	}
	repo, err := history.Open(ctx, g.cfg.Output, opts...)
	if err != nil {
		return report, err
	}
	branch := repo.Branch()
	report.Branch = branch
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("branch", branch))
	log := clog.FromContext(ctx).With("branch", branch)
	ctx = clog.WithLogger(ctx, log)

	var remote Remote
	if g.cfg.Remote != "" {
		if remote, err = g.newRemote(repo.Repository(), branch); err != nil {
			return report, err
		}
	}
	if g.cfg.Checkout {
		tip, ok, err := remote.Fetch(ctx)
		if err != nil {
			return report, fmt.Errorf("checking out remote branch: %w", err)
		}
		if ok {
			if err := repo.ResetTo(ctx, tip); err != nil {
				return report, err
			}
		} else {
			log.Infof("Remote has no branch %s, generating from scratch", branch)
		}
	}

	manifest, err := g.client.Manifest(ctx)
	if err != nil {
		return report, err
	}
	sel, err := selector.Select(manifest, g.cfg.Branches.Branch(branch, g.cfg.Selection))
	if err != nil {
		return report, err
	}
	report.Start = sel.Start
	log.Infof("Selected %d releases from %s to %s", len(sel.Versions), sel.Start, sel.End)

	last, err := repo.Prepare(ctx, history.Checkpoint{Engine: buildinfo.Engine(), Start: sel.Start}, g.cfg.Mode)
	if err != nil {
		return report, err
	}
	report.Resumed = last
	next, err := history.ResumeIndex(branch, sel.IDs(), last)
	if err != nil {
		return report, err
	}

	pending, err := g.withMappings(ctx, sel.Versions[next:])
	if err != nil {
		return report, err
	}

	var batcher *push.Batcher
	if g.cfg.Push {
		if batcher, err = push.NewBatcher(repo, remote, g.cfg.BatchSize); err != nil {
			return report, err
		}
		defer func() { g.inst.pushed(branch, batcher.Pushes()) }()
	}

	sync, err := treesync.New(g.cfg.Output,
		treesync.WithIncludes(g.cfg.Includes...),
		treesync.WithExcludes(g.cfg.Excludes...))
	if err != nil {
		return report, err
	}

	for i, w := range pending {
		if w.skip != "" {
			report.add(ReleaseReport{ID: w.info.ID, Outcome: outcomeSkipped, Reason: w.skip})
			g.inst.release(ctx, branch, outcomeSkipped)
			continue
		}
		ctx := clog.WithLogger(ctx, log.With("release", w.info.ID))
		clog.FromContext(ctx).Infof("[%d/%d] Generating %s", i+1, len(pending), w.info.ID)

		rr, err := g.release(ctx, repo, sync, w)
		g.inst.release(ctx, branch, rr.Outcome)
		report.add(rr)
		if err != nil {
			return report, err
		}
		if batcher != nil && rr.Outcome == outcomeCommitted {
			if err := batcher.Committed(ctx); err != nil {
				report.Pushes = batcher.Pushes()
				return report, fmt.Errorf("pushing: %w", err)
			}
		}
	}

	if batcher != nil {
		err := batcher.Sync(ctx)
		report.Pushes = batcher.Pushes()
		if err != nil {
			return report, fmt.Errorf("pushing: %w", err)
		}
	}
	return report, nil
}

// withMappings loads the version documents of infos and marks the releases
// whose maps cannot be obtained as skipped.
func (g *Generator) withMappings(ctx context.Context, infos []fetch.VersionInfo) ([]work, error) {
	versions, err := g.client.Prefetch(ctx, infos, g.cfg.CacheDir, g.cfg.PrefetchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]work, 0, len(infos))
	for i, info := range infos {
		w := work{info: info, version: versions[i]}
		if !g.maps.Available(info, versions[i]) {
			clog.FromContext(ctx).Debugf("Release %s has no mappings, skipping", info.ID)
			w.skip = "no mappings"
		}
		out = append(out, w)
	}
	return out, nil
}

// release generates and commits one release.
func (g *Generator) release(ctx context.Context, repo *history.Repo, sync *treesync.Synchronizer, w work) (ReleaseReport, error) {
	ctx, span := g.tracer.Start(ctx, "generator.release", trace.WithAttributes(
		attribute.String("release.id", w.info.ID),
		attribute.String("release.type", w.info.Type),
	))
	defer span.End()

	start := time.Now()
	rr := ReleaseReport{ID: w.info.ID}
	fail := func(err error) (ReleaseReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rr.Outcome, rr.Reason, rr.Elapsed = outcomeFailed, err.Error(), time.Since(start)
		return rr, err
	}

	res := g.transform(ctx, w.info, w.version)
	switch res.Kind() {
	case stage.KindFatal:
		return fail(res.Err())
	case stage.KindSkip:
		clog.FromContext(ctx).Warnf("Skipping %s: %s", w.info.ID, res.Reason())
		rr.Outcome, rr.Reason, rr.Elapsed = outcomeSkipped, res.Reason(), time.Since(start)
		return rr, nil
	}

	zr, err := zip.OpenReader(res.Artifact())
	if err != nil {
		return fail(fmt.Errorf("opening decompiled sources: %w", err))
	}
	changes, err := sync.Sync(ctx, &zr.Reader)
	zr.Close()
	if err != nil {
		return fail(err)
	}

	updated := append(append([]string(nil), changes.Added...), changes.Updated...)
	wrote, err := descriptor.Write(ctx, g.cfg.Output, w.version, g.cfg.Platform)
	if err != nil {
		return fail(err)
	}
	if wrote {
		updated = append(updated, descriptor.FileName)
	}
	rr.Changes = len(updated) + len(changes.Removed)

	committed, err := repo.CommitRelease(ctx, w.info.ID, w.info.ReleaseTime, updated, changes.Removed)
	if err != nil {
		return fail(err)
	}
	rr.Outcome = outcomeUnchanged
	if committed {
		rr.Outcome = outcomeCommitted
	}
	span.SetAttributes(attribute.Bool("release.committed", committed))
	rr.Elapsed = time.Since(start)
	return rr, nil
}
