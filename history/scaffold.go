/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package history

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	//go:embed scaffold/gitattributes
	gitattributes []byte

	//go:embed scaffold/gitignore
	gitignore []byte
)

// scaffoldEntries are copied from the scaffold directory when present.
var scaffoldEntries = []string{"gradlew", "gradlew.bat", "gradle"}

// cleanupPaths are removed from the working tree when a branch starts over.
var cleanupPaths = []string{
	CheckpointFile, ".gitattributes", ".gitignore",
	"gradlew", "gradlew.bat", "gradle",
	"src", "build.gradle",
}

// writeScaffold writes the checkpoint's companion files and returns their
// working-tree paths.
func (r *Repo) writeScaffold() ([]string, error) {
	paths := []string{".gitattributes", ".gitignore"}
	if err := os.WriteFile(r.path(".gitattributes"), gitattributes, 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.path(".gitignore"), gitignore, 0o644); err != nil {
		return nil, err
	}
	if r.scaffold == "" {
		return paths, nil
	}

	for _, name := range scaffoldEntries {
		src := filepath.Join(r.scaffold, name)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		}
		copied, err := copyTree(src, r.dir, r.scaffold)
		if err != nil {
			return nil, fmt.Errorf("copying %s: %w", name, err)
		}
		paths = append(paths, copied...)
	}
	if info, err := os.Stat(r.path("gradlew")); err == nil {
		if err := os.Chmod(r.path("gradlew"), info.Mode()|0o111); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// copyTree copies src, a file or directory under base, to the same relative
// location under dst.
func copyTree(src, dst, base string) ([]string, error) {
	var copied []string
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		if err := copyFile(p, filepath.Join(dst, rel)); err != nil {
			return err
		}
		copied = append(copied, filepath.ToSlash(rel))
		return nil
	})
	return copied, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
