/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package treesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"chainguard.dev/snowblower/cache"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/chainguard-dev/clog"
)

// Default target roots, relative to the working tree.
const (
	JavaRoot      = "src/main/java"
	ResourcesRoot = "src/main/resources"
)

// Changes lists working-tree paths, relative to the root in forward slash
// form, touched by a Sync.
type Changes struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether nothing changed.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Len returns the total number of changed paths.
func (c *Changes) Len() int {
	return len(c.Added) + len(c.Updated) + len(c.Removed)
}

// Router picks the target root for a generated file.
type Router func(rel string) string

// DefaultRouter sends .java files to JavaRoot and the rest to ResourcesRoot.
func DefaultRouter(rel string) string {
	if strings.HasSuffix(rel, ".java") {
		return JavaRoot
	}
	return ResourcesRoot
}

// Synchronizer owns the target roots of one working tree.
type Synchronizer struct {
	root     string
	roots    []string
	route    Router
	includes []string
	excludes []string
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithRouter overrides routing. Every root the router can return must be
// listed with WithRoots.
func WithRouter(r Router, roots ...string) Option {
	return func(s *Synchronizer) {
		s.route = r
		s.roots = roots
	}
}

// WithIncludes keeps only generated files matching one of the globs.
func WithIncludes(globs ...string) Option {
	return func(s *Synchronizer) {
		s.includes = append(s.includes, globs...)
	}
}

// WithExcludes drops generated files matching any of the globs.
func WithExcludes(globs ...string) Option {
	return func(s *Synchronizer) {
		s.excludes = append(s.excludes, globs...)
	}
}

// New returns a Synchronizer for the working tree at root.
func New(root string, opts ...Option) (*Synchronizer, error) {
	s := &Synchronizer{
		root:  root,
		roots: []string{JavaRoot, ResourcesRoot},
		route: DefaultRouter,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case s.root == "":
		return nil, errors.New("root cannot be empty")
	case s.route == nil:
		return nil, errors.New("router cannot be nil")
	case len(s.roots) == 0:
		return nil, errors.New("at least one target root is required")
	}
	for _, g := range append(append([]string(nil), s.includes...), s.excludes...) {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid glob %q", g)
		}
	}
	return s, nil
}

// Wanted reports whether a generated file passes the include and exclude
// filters.
func (s *Synchronizer) Wanted(rel string) bool {
	for _, g := range s.excludes {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	if len(s.includes) == 0 {
		return true
	}
	for _, g := range s.includes {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// Sync makes the target roots mirror src.
func (s *Synchronizer) Sync(ctx context.Context, src fs.FS) (*Changes, error) {
	known, err := s.known()
	if err != nil {
		return nil, err
	}

	var ch Changes
	err = fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || !s.Wanted(p) {
			return nil
		}

		rel := path.Join(s.route(p), p)
		target, err := s.resolve(rel)
		if err != nil {
			return err
		}
		delete(known, rel)
		return s.place(src, p, rel, target, &ch)
	})
	if err != nil {
		return nil, fmt.Errorf("synchronizing tree: %w", err)
	}

	stale := make([]string, 0, len(known))
	for rel := range known {
		stale = append(stale, rel)
	}
	sort.Strings(stale)
	for _, rel := range stale {
		if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(rel))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing %s: %w", rel, err)
		}
		ch.Removed = append(ch.Removed, rel)
	}
	if err := s.prune(); err != nil {
		return nil, err
	}

	sort.Strings(ch.Added)
	sort.Strings(ch.Updated)
	ch.Removed = slices.DeleteFunc(dedupe(ch.Removed), func(rel string) bool {
		_, added := slices.BinarySearch(ch.Added, rel)
		_, updated := slices.BinarySearch(ch.Updated, rel)
		return added || updated
	})
	clog.FromContext(ctx).Infof("Synchronized tree: %d added, %d updated, %d removed", len(ch.Added), len(ch.Updated), len(ch.Removed))
	return &ch, nil
}

// place writes one generated file and records what happened to it.
func (s *Synchronizer) place(src fs.FS, p, rel, target string, ch *Changes) error {
	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := copyOut(src, p, target); err != nil {
			return err
		}
		ch.Added = append(ch.Added, rel)
		return nil

	case err != nil:
		return err

	case info.Mode()&fs.ModeSymlink != 0:
		// Replace the link with a regular file. A link target under the
		// target roots is left to the stale pass, which keeps it when the
		// new tree still has it.
		if real, err := filepath.EvalSymlinks(target); err == nil {
			r, inside := s.relative(real)
			if !inside || !s.owned(r) {
				if err := os.Remove(real); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("removing symlink target of %s: %w", rel, err)
				}
				if inside {
					ch.Removed = append(ch.Removed, r)
				}
			}
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("removing symlink %s: %w", rel, err)
		}
		if err := copyOut(src, p, target); err != nil {
			return err
		}
		ch.Added = append(ch.Added, rel)
		return nil

	case !info.Mode().IsRegular():
		return fmt.Errorf("%s exists and is not a regular file", rel)
	}

	same, err := sameContent(src, p, target)
	if err != nil {
		return err
	}
	if same {
		return nil
	}
	if err := copyOut(src, p, target); err != nil {
		return err
	}
	ch.Updated = append(ch.Updated, rel)
	return nil
}

// known returns every regular file under the target roots.
func (s *Synchronizer) known() (map[string]struct{}, error) {
	known := make(map[string]struct{})
	for _, r := range s.roots {
		dir := filepath.Join(s.root, filepath.FromSlash(r))
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) && p == dir {
					return filepath.SkipDir
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return err
			}
			known[filepath.ToSlash(rel)] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", r, err)
		}
	}
	return known, nil
}

// resolve maps a working-tree relative path to disk, refusing paths that
// escape the root.
func (s *Synchronizer) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path.Clean(rel)))
	r, err := filepath.Rel(s.root, full)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", rel, err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working tree", rel)
	}
	return full, nil
}

// relative returns p relative to the working tree when p lies inside it.
func (s *Synchronizer) relative(p string) (string, bool) {
	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		root = s.root
	}
	r, err := filepath.Rel(root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// owned reports whether a working-tree relative path lies under one of the
// target roots.
func (s *Synchronizer) owned(rel string) bool {
	for _, r := range s.roots {
		if strings.HasPrefix(rel, r+"/") {
			return true
		}
	}
	return false
}

// prune removes directories left empty under the target roots.
func (s *Synchronizer) prune() error {
	for _, r := range s.roots {
		dir := filepath.Join(s.root, filepath.FromSlash(r))
		removed, err := pruneDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pruning %s: %w", r, err)
		}
		if removed {
			s.pruneParents(path.Dir(r))
		}
	}
	return nil
}

// pruneParents removes empty ancestors of a pruned root, stopping at the
// first one that still has entries.
func (s *Synchronizer) pruneParents(r string) {
	for ; r != "." && r != "/"; r = path.Dir(r) {
		if os.Remove(filepath.Join(s.root, filepath.FromSlash(r))) != nil {
			return
		}
	}
}

func pruneDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	empty := true
	for _, e := range entries {
		if !e.IsDir() {
			empty = false
			continue
		}
		removed, err := pruneDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return false, err
		}
		if !removed {
			empty = false
		}
	}
	if !empty {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}

func sameContent(src fs.FS, p, target string) (bool, error) {
	f, err := src.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	created, err := cache.MD5.Reader(f)
	if err != nil {
		return false, fmt.Errorf("hashing generated %s: %w", p, err)
	}
	existing, err := cache.MD5.File(target)
	if err != nil {
		return false, err
	}
	return created == existing, nil
}

func copyOut(src fs.FS, p, target string) error {
	in, err := src.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return out.Close()
}

func dedupe(s []string) []string {
	slices.Sort(s)
	return slices.Compact(s)
}
