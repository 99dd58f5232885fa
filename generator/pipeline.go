/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chainguard.dev/snowblower/bundler"
	"chainguard.dev/snowblower/cache"
	"chainguard.dev/snowblower/fetch"
	"chainguard.dev/snowblower/mappings"
	"chainguard.dev/snowblower/stage"
	"chainguard.dev/snowblower/tools"
	"github.com/chainguard-dev/clog"
)

// Artifacts in a release cache directory.
const (
	joinedJar     = "joined.jar"
	renamedJar    = "joined-renamed.jar"
	decompiledJar = "joined-decompiled.jar"
	extractedJar  = "server-extracted.jar"
)

// transform runs the stage chain for one release and returns the decompiled
// source archive.
func (g *Generator) transform(ctx context.Context, info fetch.VersionInfo, v *fetch.Version) stage.Result {
	dir := g.cfg.releaseDir(info.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Fatal(err)
	}

	client, ok, err := g.maps.Resolve(ctx, dir, info, v, mappings.Client)
	if err != nil {
		return stage.Fatal(err)
	} else if !ok {
		return stage.Skip("client mappings not found")
	}
	server, ok, err := g.maps.Resolve(ctx, dir, info, v, mappings.Server)
	if err != nil {
		return stage.Fatal(err)
	} else if !ok {
		return stage.Skip("server mappings not found")
	}
	merged, err := mappings.Merge(ctx, g.runner, dir, client, server)
	if err != nil {
		return stage.Fatal(fmt.Errorf("release %s: %w", info.ID, err))
	}

	joined, err := g.joined(ctx, dir, v, merged)
	if err != nil {
		return stage.Fatal(err)
	}
	libs, err := g.client.Libraries(ctx, v, g.cfg.libraryDir())
	if err != nil {
		return stage.Fatal(err)
	}
	renamed, err := g.renamed(ctx, dir, joined, merged, libs)
	if err != nil {
		return stage.Fatal(err)
	}
	decompiled, err := g.decompiled(ctx, dir, renamed, libs)
	if err != nil {
		return stage.Fatal(err)
	}
	return stage.OK(decompiled)
}

// jar downloads the client or server jar. The record starts from the
// published digest so a cache hit needs no hashing; after download it holds
// the digest of the file itself.
func (g *Generator) jar(ctx context.Context, dir string, v *fetch.Version, side string) (string, error) {
	dl, ok := v.Download(side)
	if !ok || dl.SHA1 == "" {
		return "", fmt.Errorf("version document of %s has no %s download", v.ID, side)
	}
	out := filepath.Join(dir, side+".jar")

	rec := cache.NewRecord()
	rec.Put(side, dl.SHA1)
	return g.runner.Run(ctx, stage.Stage{
		Name:   side + "-jar",
		Output: out,
		Record: rec,
		Invoke: func(ctx context.Context) error {
			clog.FromContext(ctx).Infof("Downloading %s jar", side)
			return g.client.Download(ctx, dl.URL, out, dl.SHA1)
		},
		Finalize: func(r *cache.Record) error {
			return r.PutFile(side, out)
		},
	})
}

// serverJar returns the jar holding the server classes, unpacking bundler
// archives.
func (g *Generator) serverJar(ctx context.Context, dir, full string) (string, error) {
	bundle, err := bundler.IsBundle(full)
	if err != nil {
		return "", err
	}
	if !bundle {
		return full, nil
	}

	rec := cache.NewRecord()
	if err := rec.PutFile("server-full", full); err != nil {
		return "", err
	}
	out := filepath.Join(dir, extractedJar)
	return g.runner.Run(ctx, stage.Stage{
		Name:   "bundler",
		Output: out,
		Record: rec,
		Invoke: func(context.Context) error {
			return bundler.Extract(full, out)
		},
	})
}

// joined merges the client and server jars. With a partial cache the jars
// are deleted afterwards, so the joined jar is first checked against the
// published digests, ignoring the extracted server jar it cannot rehash.
func (g *Generator) joined(ctx context.Context, dir string, v *fetch.Version, merged string) (string, error) {
	out := filepath.Join(dir, joinedJar)

	if g.cfg.PartialCache {
		rec := cache.NewRecord()
		if err := g.tools.Fingerprint(rec, tools.MergeTool); err != nil {
			return "", err
		}
		client, _ := v.Download(mappings.Client)
		server, _ := v.Download(mappings.Server)
		rec.Put("client", client.SHA1)
		rec.Put("server-full", server.SHA1)
		if err := rec.PutFile("map", merged); err != nil {
			return "", err
		}
		if g.runner.UpToDate(stage.Stage{Output: out, Record: rec, Keep: func(k string) bool { return k != "server" }}) {
			clog.FromContext(ctx).Debug("Joined jar is up to date, keeping partial cache")
			return out, nil
		}
	}

	clientJar, err := g.jar(ctx, dir, v, mappings.Client)
	if err != nil {
		return "", err
	}
	serverFull, err := g.jar(ctx, dir, v, mappings.Server)
	if err != nil {
		return "", err
	}
	serverJar, err := g.serverJar(ctx, dir, serverFull)
	if err != nil {
		return "", err
	}

	rec := cache.NewRecord()
	if err := g.tools.Fingerprint(rec, tools.MergeTool); err != nil {
		return "", err
	}
	for _, in := range []struct{ key, path string }{
		{"client", clientJar},
		{"server", serverJar},
		{"server-full", serverFull},
		{"map", merged},
	} {
		if err := rec.PutFile(in.key, in.path); err != nil {
			return "", err
		}
	}
	if _, err := g.runner.Run(ctx, stage.Stage{
		Name:   "merge",
		Output: out,
		Record: rec,
		Invoke: func(ctx context.Context) error {
			clog.FromContext(ctx).Info("Merging client and server jars")
			return g.tools.Merge(ctx, clientJar, serverJar, merged, out)
		},
	}); err != nil {
		return "", err
	}

	if g.cfg.PartialCache {
		for _, p := range []string{clientJar, serverFull, serverJar} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("dropping %s: %w", filepath.Base(p), err)
			}
		}
	}
	return out, nil
}

func putLibraries(rec *cache.Record, libs []fetch.LibraryFile) error {
	for _, l := range libs {
		if err := rec.PutFile(l.Key, l.Path); err != nil {
			return err
		}
	}
	return nil
}

func libraryPaths(libs []fetch.LibraryFile) []string {
	out := make([]string, 0, len(libs))
	for _, l := range libs {
		out = append(out, l.Path)
	}
	return out
}

func (g *Generator) renamed(ctx context.Context, dir, joined, merged string, libs []fetch.LibraryFile) (string, error) {
	rec := cache.NewRecord()
	if err := g.tools.Fingerprint(rec, tools.Renamer); err != nil {
		return "", err
	}
	if err := rec.PutFile("joined", joined); err != nil {
		return "", err
	}
	if err := rec.PutFile("map", merged); err != nil {
		return "", err
	}
	if err := putLibraries(rec, libs); err != nil {
		return "", err
	}

	out := filepath.Join(dir, renamedJar)
	return g.runner.Run(ctx, stage.Stage{
		Name:   "rename",
		Output: out,
		Record: rec,
		Invoke: func(ctx context.Context) error {
			clog.FromContext(ctx).Info("Renaming joined jar")
			return g.tools.Rename(ctx, joined, merged, out, libraryPaths(libs))
		},
	})
}

func (g *Generator) decompiled(ctx context.Context, dir, renamed string, libs []fetch.LibraryFile) (string, error) {
	rec := cache.NewRecord()
	if err := g.tools.Fingerprint(rec, tools.Decompiler); err != nil {
		return "", err
	}
	if err := rec.PutFile("renamed", renamed); err != nil {
		return "", err
	}
	rec.Put("decompileArgs", strings.Join(tools.DecompileArgs, " "))
	if err := putLibraries(rec, libs); err != nil {
		return "", err
	}

	out := filepath.Join(dir, decompiledJar)
	return g.runner.Run(ctx, stage.Stage{
		Name:   "decompile",
		Output: out,
		Record: rec,
		Invoke: func(ctx context.Context) error {
			clog.FromContext(ctx).Infof("Decompiling %s", filepath.Base(renamed))
			return g.tools.Decompile(ctx, renamed, out, libraryPaths(libs))
		},
	})
}
