/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package descriptor renders the build descriptor committed next to the
// generated sources.
package descriptor

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"chainguard.dev/snowblower/fetch"
	"github.com/chainguard-dev/clog"
	"github.com/pmezard/go-difflib/difflib"
)

// FileName is the descriptor's path relative to the working tree.
const FileName = "build.gradle"

//go:embed build.gradle.tmpl
var buildGradle string

var tmpl = template.Must(template.New(FileName).Parse(buildGradle))

type data struct {
	Java         int
	Dependencies string
}

// Render returns the descriptor for v, listing the libraries allowed on p.
func Render(v *fetch.Version, p fetch.Platform) ([]byte, error) {
	if v == nil {
		return nil, errors.New("version cannot be nil")
	}
	var names []string
	for _, lib := range v.Libraries {
		if lib.Name != "" && lib.Allowed(p) {
			names = append(names, lib.Name)
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)

	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = fmt.Sprintf("    implementation '%s'", n)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data{Java: v.Java(), Dependencies: strings.Join(lines, "\n")}); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", FileName, err)
	}
	return buf.Bytes(), nil
}

// Write renders the descriptor into dir and reports whether the file changed.
// An unchanged descriptor is left untouched.
func Write(ctx context.Context, dir string, v *fetch.Version, p fetch.Platform) (bool, error) {
	content, err := Render(v, p)
	if err != nil {
		return false, err
	}

	path := filepath.Join(dir, FileName)
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("reading %s: %w", FileName, err)
	case bytes.Equal(existing, content):
		return false, nil
	default:
		if diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(existing)),
			B:        difflib.SplitLines(string(content)),
			FromFile: "a/" + FileName,
			ToFile:   "b/" + FileName,
			Context:  1,
		}); err == nil {
			clog.FromContext(ctx).Debugf("%s changed:\n%s", FileName, diff)
		}
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", FileName, err)
	}
	return true, nil
}
