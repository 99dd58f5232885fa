/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mappings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chainguard.dev/snowblower/cache"
	"chainguard.dev/snowblower/fetch"
	"chainguard.dev/snowblower/stage"
	"github.com/chainguard-dev/clog"
)

// Sides of a release that publish a map.
const (
	Client = "client"
	Server = "server"
)

// MergedFile is the merged map artifact in a release cache directory.
const MergedFile = "obf_to_moj.tsrg"

// Downloader fetches a verified file.
type Downloader interface {
	Download(ctx context.Context, url, dest, sha1 string) error
}

// Source locates the maps of a release. Maps under ExtraDir, laid out as
// <type>/<id>/maps/<side>.txt, take precedence over published ones.
type Source struct {
	Downloader Downloader
	ExtraDir   string
}

func (s *Source) extra(info fetch.VersionInfo, side string) string {
	if s.ExtraDir == "" {
		return ""
	}
	return filepath.Join(s.ExtraDir, info.Type, info.ID, "maps", side+".txt")
}

// Available reports whether both maps can be obtained for the release
// without downloading them.
func (s *Source) Available(info fetch.VersionInfo, v *fetch.Version) bool {
	if c, srv := s.extra(info, Client), s.extra(info, Server); c != "" && exists(c) && exists(srv) {
		return true
	}
	_, client := v.Download(Client + "_mappings")
	_, server := v.Download(Server + "_mappings")
	return client && server
}

// Resolve makes sure the map for side is in dir and returns its path. It
// returns false when no map is published for the release.
func (s *Source) Resolve(ctx context.Context, dir string, info fetch.VersionInfo, v *fetch.Version, side string) (string, bool, error) {
	target := filepath.Join(dir, side+"_mappings.txt")
	if exists(target) {
		return target, true, nil
	}

	if extra := s.extra(info, side); extra != "" && exists(extra) {
		clog.FromContext(ctx).Debugf("Using extra %s mappings from %s", side, extra)
		if err := copyFile(extra, target); err != nil {
			return "", false, fmt.Errorf("copying extra %s mappings: %w", side, err)
		}
		return target, true, nil
	}

	dl, ok := v.Download(side + "_mappings")
	if !ok {
		return "", false, nil
	}
	if s.Downloader == nil {
		return "", false, errors.New("no downloader configured")
	}
	clog.FromContext(ctx).Infof("Downloading %s mappings", side)
	if err := s.Downloader.Download(ctx, dl.URL, target, dl.SHA1); err != nil {
		return "", false, fmt.Errorf("downloading %s mappings: %w", side, err)
	}
	return target, true, nil
}

// Merge checks that the client map covers the server map and produces the
// reversed TSRG2 map in dir.
func Merge(ctx context.Context, runner *stage.Runner, dir, clientPath, serverPath string) (string, error) {
	client, err := ParseFile(clientPath)
	if err != nil {
		return "", err
	}
	server, err := ParseFile(serverPath)
	if err != nil {
		return "", err
	}
	if err := CheckSuperset(client, server); err != nil {
		return "", err
	}

	rec := cache.NewRecord()
	if err := rec.PutFile(Client, clientPath); err != nil {
		return "", err
	}
	if err := rec.PutFile(Server, serverPath); err != nil {
		return "", err
	}

	out := filepath.Join(dir, MergedFile)
	return runner.Run(ctx, stage.Stage{
		Name:   "mappings",
		Output: out,
		Record: rec,
		Invoke: func(context.Context) error {
			var buf bytes.Buffer
			if err := client.WriteTSRG2(&buf); err != nil {
				return err
			}
			return os.WriteFile(out, buf.Bytes(), 0o644)
		},
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
