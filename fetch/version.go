/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"chainguard.dev/snowblower/cache"
)

// VersionFile is the name of the cached version document in a release's
// cache directory.
const VersionFile = "version.json"

// Version is a release's version document.
type Version struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Time        time.Time           `json:"time"`
	ReleaseTime time.Time           `json:"releaseTime"`
	Downloads   map[string]Download `json:"downloads"`
	Libraries   []Library           `json:"libraries"`
	JavaVersion *JavaVersion        `json:"javaVersion,omitempty"`
}

// Download is a single downloadable artifact.
type Download struct {
	Path string `json:"path,omitempty"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// JavaVersion is the runtime a release targets.
type JavaVersion struct {
	Component    string `json:"component,omitempty"`
	MajorVersion int    `json:"majorVersion"`
}

// Library is a runtime dependency of a release.
type Library struct {
	Name      string            `json:"name"`
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Rules     []Rule            `json:"rules,omitempty"`
}

// LibraryDownloads holds the main artifact of a library. Native classifiers
// are not used.
type LibraryDownloads struct {
	Artifact *Download `json:"artifact,omitempty"`
}

// Rule gates a library on the host platform.
type Rule struct {
	Action string  `json:"action"`
	OS     *OSRule `json:"os,omitempty"`
}

// OSRule matches a platform. Version and Arch are regular expressions.
type OSRule struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Arch    string `json:"arch,omitempty"`
}

// Platform describes the host for rule evaluation.
type Platform struct {
	Name    string
	Version string
	Arch    string
}

// CurrentPlatform describes the running host.
func CurrentPlatform() Platform {
	p := Platform{Arch: runtime.GOARCH}
	switch runtime.GOOS {
	case "windows":
		p.Name = "windows"
	case "linux", "freebsd", "openbsd", "netbsd":
		p.Name = "linux"
	case "darwin":
		p.Name = "osx"
	default:
		p.Name = "unknown"
	}
	switch runtime.GOARCH {
	case "386":
		p.Arch = "x86"
	case "arm64":
		p.Arch = "aarch64"
	}
	return p
}

// Allowed reports whether the library applies to p. A library without rules
// always applies; otherwise the first allow rule that matches admits it.
func (l Library) Allowed(p Platform) bool {
	if len(l.Rules) == 0 {
		return true
	}
	for _, rule := range l.Rules {
		if rule.Action == "" {
			return false
		}
		if rule.matches(p) && rule.Action == "allow" {
			return true
		}
	}
	return false
}

func (r Rule) matches(p Platform) bool {
	if r.OS == nil {
		return true
	}
	if r.OS.Name != "" && r.OS.Name != p.Name {
		return false
	}
	if r.OS.Version != "" && !find(r.OS.Version, p.Version) {
		return false
	}
	if r.OS.Arch != "" && !find(r.OS.Arch, p.Arch) {
		return false
	}
	return true
}

func find(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// Java returns the major Java version the release targets, at least 8.
func (v *Version) Java() int {
	if v.JavaVersion == nil || v.JavaVersion.MajorVersion < 8 {
		return 8
	}
	return v.JavaVersion.MajorVersion
}

// Download returns the named artifact.
func (v *Version) Download(name string) (Download, bool) {
	d, ok := v.Downloads[name]
	return d, ok && d.URL != ""
}

// LoadVersion reads a cached version document.
func LoadVersion(path string) (*Version, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v Version
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &v, nil
}

// VersionDocument returns the version document for info, downloading it into
// dir unless a copy with the published digest is already there.
func (c *Client) VersionDocument(ctx context.Context, info VersionInfo, dir string) (*Version, error) {
	path := filepath.Join(dir, VersionFile)

	current := false
	if sum, err := cache.SHA1.File(path); err == nil {
		current = info.SHA1 == "" || sum == info.SHA1
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if !current {
		if err := c.Download(ctx, info.URL, path, info.SHA1); err != nil {
			return nil, fmt.Errorf("fetching version document for %s: %w", info.ID, err)
		}
	}
	return LoadVersion(path)
}
