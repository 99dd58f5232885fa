/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package bundler unpacks the server jar from a bundler archive.
//
// Newer server downloads are launchers that carry the real server jar and
// its libraries inside the archive. Such jars declare a Bundler-Format
// attribute in their manifest and list their contents in
// META-INF/versions.list, one "<sha256>\t<id>\t<path>" line per entry, with
// the payload stored at META-INF/versions/<path>.
package bundler

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"chainguard.dev/snowblower/cache"
)

const (
	manifestPath = "META-INF/MANIFEST.MF"
	versionsList = "META-INF/versions.list"
	versionsDir  = "META-INF/versions/"
	formatAttr   = "Bundler-Format"
)

// IsBundle reports whether the jar at path is a bundler archive.
func IsBundle(jar string) (bool, error) {
	zr, err := zip.OpenReader(jar)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", jar, err)
	}
	defer zr.Close()

	f, err := zr.Open(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer f.Close()

	attrs, err := parseManifest(f)
	if err != nil {
		return false, fmt.Errorf("reading manifest of %s: %w", jar, err)
	}
	_, ok := attrs[formatAttr]
	return ok, nil
}

// Entry is a line of versions.list.
type Entry struct {
	SHA256 string
	ID     string
	Path   string
}

// Extract writes the first bundled jar of the archive at jar to out and
// verifies its digest.
func Extract(jar, out string) error {
	zr, err := zip.OpenReader(jar)
	if err != nil {
		return fmt.Errorf("opening %s: %w", jar, err)
	}
	defer zr.Close()

	entries, err := readVersions(&zr.Reader)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%s lists no bundled jars", versionsList)
	}
	entry := entries[0]

	name := path.Clean(versionsDir + entry.Path)
	if !strings.HasPrefix(name, versionsDir) {
		return fmt.Errorf("bundled path %q escapes %s", entry.Path, versionsDir)
	}
	in, err := zr.Open(name)
	if err != nil {
		return fmt.Errorf("opening bundled %s: %w", name, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	h := cache.SHA256.New()
	if _, err := io.Copy(io.MultiWriter(dst, h), in); err != nil {
		dst.Close()
		os.Remove(out)
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(out)
		return err
	}
	if got := fmt.Sprintf("%x", h.Sum(nil)); entry.SHA256 != "" && !strings.EqualFold(got, entry.SHA256) {
		os.Remove(out)
		return fmt.Errorf("bundled %s: sha256 mismatch, expected %s got %s", entry.ID, entry.SHA256, got)
	}
	return nil
}

func readVersions(zr *zip.Reader) ([]Entry, error) {
	f, err := zr.Open(versionsList)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", versionsList, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed %s line %q", versionsList, line)
		}
		entries = append(entries, Entry{SHA256: parts[0], ID: parts[1], Path: parts[2]})
	}
	return entries, sc.Err()
}

// parseManifest reads the main section of a jar manifest, joining
// continuation lines.
func parseManifest(r io.Reader) (map[string]string, error) {
	attrs := make(map[string]string)
	var last string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") {
			if last != "" {
				attrs[last] += line[1:]
			}
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		last = strings.TrimSpace(k)
		attrs[last] = strings.TrimSpace(v)
	}
	return attrs, sc.Err()
}
