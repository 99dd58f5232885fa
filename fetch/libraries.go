/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LibraryFile is a downloaded library artifact.
type LibraryFile struct {
	// Key is the artifact path relative to the library cache, in forward
	// slash form, for use as a fingerprint key.
	Key string
	// Path is the location on disk.
	Path string
}

// Libraries makes sure every library artifact of v is present under dir and
// returns them in document order. Artifacts already on disk are reused
// without re-verification.
func (c *Client) Libraries(ctx context.Context, v *Version, dir string) ([]LibraryFile, error) {
	var out []LibraryFile
	for _, lib := range v.Libraries {
		if lib.Downloads == nil || lib.Downloads.Artifact == nil {
			continue
		}
		art := lib.Downloads.Artifact
		rel, err := cleanRelative(art.Path)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", lib.Name, err)
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))

		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			if err := c.Download(ctx, art.URL, target, art.SHA1); err != nil {
				return nil, fmt.Errorf("library %s: %w", lib.Name, err)
			}
		} else if err != nil {
			return nil, err
		}
		out = append(out, LibraryFile{Key: rel, Path: target})
	}
	return out, nil
}

func cleanRelative(p string) (string, error) {
	if p == "" {
		return "", errors.New("artifact has no path")
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("artifact path %q escapes the library cache", p)
	}
	return clean, nil
}
