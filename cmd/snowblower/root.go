/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chainguard.dev/snowblower/auth"
	"chainguard.dev/snowblower/cache"
	"chainguard.dev/snowblower/fetch"
	"chainguard.dev/snowblower/generator"
	"chainguard.dev/snowblower/history"
	"chainguard.dev/snowblower/history/push"
	"chainguard.dev/snowblower/retry"
	"chainguard.dev/snowblower/selector"
	"chainguard.dev/snowblower/tools"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

// env is read from the environment.
type env struct {
	Auth auth.Config

	Java             string        `env:"SNOWBLOWER_JAVA,default=java"`
	ToolsDir         string        `env:"SNOWBLOWER_TOOLS_DIR,default=tools"`
	DependencyHashes string        `env:"SNOWBLOWER_DEPENDENCY_HASHES"`
	HTTPTimeout      time.Duration `env:"SNOWBLOWER_HTTP_TIMEOUT,default=10m"`
	Retry            retry.Policy  `env:",prefix=SNOWBLOWER_RETRY_"`
}

// flags holds the command line.
type flags struct {
	output        string
	cacheDir      string
	extraMappings string
	startVer      string
	targetVer     string
	branch        string
	releasesOnly  bool
	startOver     bool
	startOverIf   bool
	cfg           string
	remote        string
	checkout      bool
	push          bool
	committer     string
	partialCache  bool
	includes      []string
	excludes      []string
	batchSize     int
	appID         int64
	installRepo   string
	manifestURL   string
	metricsFile   string
	logLevel      string
}

func newCommand() *cobra.Command {
	return command(run)
}

// command builds the root command around fn.
func command(fn func(context.Context, *cobra.Command, *flags) error) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "snowblower",
		Short:         "Generate a git history of decompiled releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
				return fmt.Errorf("invalid log level %q: %w", f.logLevel, err)
			}
			logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fn(cmd.Context(), cmd, &f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.output, "output", "", "Output directory holding the generated repository")
	fs.StringVar(&f.cacheDir, "cache", "cache", "Cache directory for downloads and intermediate artifacts")
	fs.StringVar(&f.extraMappings, "extra-mappings", "", "Directory with <type>/<id>/maps/{client,server}.txt for releases without published mappings")
	fs.StringVar(&f.startVer, "start-ver", "", "Release to start at")
	fs.StringVar(&f.targetVer, "target-ver", "", "Release to stop at")
	fs.StringVar(&f.branch, "branch", "", "Branch to generate (default: the branch checked out in --output)")
	fs.BoolVar(&f.releasesOnly, "releases-only", false, "Only generate full releases")
	fs.BoolVar(&f.startOver, "start-over", false, "Recreate the branch from scratch")
	fs.BoolVar(&f.startOverIf, "start-over-if-required", false, "Recreate the branch only when its checkpoint does not match")
	fs.StringVar(&f.cfg, "cfg", "", "Branch configuration file or URL")
	fs.StringVar(&f.remote, "remote", "", "Remote repository URL")
	fs.BoolVar(&f.checkout, "checkout", false, "Check out the remote branch before generating")
	fs.BoolVar(&f.push, "push", false, "Push generated commits to the remote")
	fs.StringVar(&f.committer, "committer", "", `Committer of generated commits, as "name email"`)
	fs.BoolVar(&f.partialCache, "partial-cache", false, "Delete downloaded jars once they are merged")
	fs.StringArrayVar(&f.includes, "include", nil, "Only generate paths matching this glob (repeatable)")
	fs.StringArrayVar(&f.excludes, "exclude", nil, "Never generate paths matching this glob (repeatable)")
	fs.IntVar(&f.batchSize, "batch-size", push.DefaultBatchSize, "Releases between pushes, and commits per push")
	fs.Int64Var(&f.appID, "github-app-id", 0, "GitHub App id used to push")
	fs.StringVar(&f.installRepo, "github-installation-repo", "", "owner/repo the GitHub App is installed on")
	fs.StringVar(&f.manifestURL, "manifest-url", fetch.DefaultManifestURL, "Version manifest URL")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.MarkFlagRequired("output") //nolint:errcheck
	cmd.MarkFlagsMutuallyExclusive("start-over", "start-over-if-required")
	return cmd
}

func (f *flags) mode() history.Mode {
	switch {
	case f.startOver:
		return history.StartOver
	case f.startOverIf:
		return history.StartOverIfRequired
	default:
		return history.Resume
	}
}

func (f *flags) selection() selector.BranchSpec {
	spec := selector.BranchSpec{Start: f.startVer, End: f.targetVer}
	if f.releasesOnly {
		spec.Type = fetch.TypeRelease
	}
	return spec
}

// config assembles the generator config from the command line and
// environment.
func (f *flags) config(ctx context.Context, e env, client *fetch.Client) (generator.Config, error) {
	cfg := generator.Config{
		Output:        f.output,
		CacheDir:      f.cacheDir,
		ExtraMappings: f.extraMappings,
		Branch:        f.branch,
		Selection:     f.selection(),
		Mode:          f.mode(),
		Remote:        f.remote,
		Checkout:      f.checkout,
		Push:          f.push,
		BatchSize:     f.batchSize,
		PartialCache:  f.partialCache,
		Includes:      f.includes,
		Excludes:      f.excludes,
	}

	if f.committer != "" {
		id, err := history.ParseIdentity(f.committer)
		if err != nil {
			return cfg, err
		}
		cfg.Committer = &id
	}
	if f.cfg != "" {
		branches, err := selector.LoadConfig(ctx, f.cfg, client)
		if err != nil {
			return cfg, err
		}
		cfg.Branches = branches
	}
	if f.remote != "" {
		creds := e.Auth
		creds.AppID = f.appID
		creds.InstallationRepo = f.installRepo
		ts, err := auth.TokenSource(ctx, creds)
		if err != nil {
			return cfg, fmt.Errorf("setting up remote credentials: %w", err)
		}
		cfg.TokenSource = ts
	}
	return cfg, cfg.Validate()
}

func toolchain(e env) (*tools.Toolchain, error) {
	opts := []tools.Option{tools.WithJava(e.Java)}
	if e.DependencyHashes != "" {
		deps, err := cache.LoadDependencyHashes(e.DependencyHashes)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tools.WithDependencyHashes(deps))
	}
	return tools.New(e.ToolsDir, opts...)
}

func run(ctx context.Context, cmd *cobra.Command, f *flags) error {
	var e env
	if err := envconfig.Process(ctx, &e); err != nil {
		return fmt.Errorf("processing environment: %w", err)
	}

	client, err := fetch.New(
		fetch.WithHTTPClient(&http.Client{Timeout: e.HTTPTimeout}),
		fetch.WithRetryPolicy(e.Retry),
		fetch.WithManifestURL(f.manifestURL),
	)
	if err != nil {
		return err
	}
	cfg, err := f.config(ctx, e, client)
	if err != nil {
		return err
	}
	tc, err := toolchain(e)
	if err != nil {
		return err
	}
	g, err := generator.New(cfg, tc, generator.WithClient(client))
	if err != nil {
		return err
	}

	report, err := g.Run(ctx)
	if report != nil && len(report.Releases) > 0 {
		if werr := report.WriteTable(cmd.OutOrStdout()); werr != nil {
			clog.WarnContextf(ctx, "Writing report: %v", werr)
		}
	}
	if f.metricsFile != "" {
		if merr := generator.WriteMetrics(f.metricsFile); merr != nil {
			clog.WarnContextf(ctx, "Writing metrics to %s: %v", f.metricsFile, merr)
		}
	}

	branch := cfg.Branch
	if report != nil && report.Branch != "" {
		branch = report.Branch
	}
	switch {
	case errors.Is(err, history.ErrCheckpointMismatch):
		// The branch is left as it was.
		clog.WarnContextf(ctx, "Not generating branch %s: %v", branch, err)
		return nil
	case err != nil:
		return err
	}
	clog.InfoContextf(ctx, "Generated branch %s", branch)
	return nil
}
