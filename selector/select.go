/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package selector turns the version manifest and a branch spec into the
// ordered list of releases to generate.
package selector

import (
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/snowblower/fetch"
)

var (
	// ErrBoundNotFound is returned when a named release is not in the
	// manifest.
	ErrBoundNotFound = errors.New("release not found in manifest")
	// ErrBoundOrder is returned when the start release is newer than the end.
	ErrBoundOrder = errors.New("start release is newer than end release")
)

// Selection is the resolved release list, oldest first. Start and End are
// the resolved bounds, which need not be of the selected type.
type Selection struct {
	Start    string
	End      string
	Versions []fetch.VersionInfo
}

// IDs returns the selected release ids, oldest first.
func (s *Selection) IDs() []string {
	ids := make([]string, len(s.Versions))
	for i, v := range s.Versions {
		ids[i] = v.ID
	}
	return ids
}

func (spec BranchSpec) matches(v fetch.VersionInfo) bool {
	return spec.Type == "" || spec.Type == TypeAll || spec.Type == v.Type
}

// Select resolves spec against the manifest, whose versions are listed
// newest first.
func Select(m *fetch.Manifest, spec BranchSpec) (*Selection, error) {
	if m == nil || len(m.Versions) == 0 {
		return nil, errors.New("manifest lists no versions")
	}

	var (
		picked     []int
		start, end string
	)
	if len(spec.Versions) > 0 {
		for _, id := range spec.Versions {
			i := m.Index(id)
			if i < 0 {
				return nil, fmt.Errorf("version %q: %w", id, ErrBoundNotFound)
			}
			picked = append(picked, i)
		}
	} else {
		var err error
		if end, err = target(m, spec); err != nil {
			return nil, err
		}
		if start, err = oldest(m, spec); err != nil {
			return nil, err
		}
		endIdx, startIdx := m.Index(end), m.Index(start)
		switch {
		case endIdx < 0:
			return nil, fmt.Errorf("end version %q: %w", end, ErrBoundNotFound)
		case startIdx < 0:
			return nil, fmt.Errorf("start version %q: %w", start, ErrBoundNotFound)
		case startIdx < endIdx:
			return nil, fmt.Errorf("%s after %s: %w", start, end, ErrBoundOrder)
		}
		for i := endIdx; i <= startIdx; i++ {
			if spec.matches(m.Versions[i]) {
				picked = append(picked, i)
			}
		}
	}

	for _, id := range spec.IncludeVersions {
		i := m.Index(id)
		if i < 0 {
			return nil, fmt.Errorf("included version %q: %w", id, ErrBoundNotFound)
		}
		picked = append(picked, i)
	}
	picked = slices.DeleteFunc(picked, func(i int) bool {
		return slices.Contains(spec.ExcludeVersions, m.Versions[i].ID)
	})

	// Manifest order is newest first, so descending indexes are oldest first.
	slices.Sort(picked)
	picked = slices.Compact(picked)
	slices.Reverse(picked)

	sel := &Selection{Start: start, End: end, Versions: make([]fetch.VersionInfo, 0, len(picked))}
	for _, i := range picked {
		sel.Versions = append(sel.Versions, m.Versions[i])
	}
	if len(sel.Versions) > 0 && sel.Start == "" {
		sel.Start = sel.Versions[0].ID
		sel.End = sel.Versions[len(sel.Versions)-1].ID
	}
	return sel, nil
}

// target returns the explicit end, or the newest release the spec's type
// allows.
func target(m *fetch.Manifest, spec BranchSpec) (string, error) {
	if spec.End != "" {
		return spec.End, nil
	}
	release, rok := m.Find(m.Latest.Release)
	snapshot, sok := m.Find(m.Latest.Snapshot)

	switch spec.Type {
	case "", TypeAll:
	case fetch.TypeRelease:
		if !rok {
			return "", fmt.Errorf("latest release %q: %w", m.Latest.Release, ErrBoundNotFound)
		}
		return release.ID, nil
	default:
		for _, v := range m.Versions {
			if spec.matches(v) {
				return v.ID, nil
			}
		}
		return "", fmt.Errorf("no %s versions: %w", spec.Type, ErrBoundNotFound)
	}

	switch {
	case !rok && !sok:
		return "", fmt.Errorf("latest %q and %q: %w", m.Latest.Release, m.Latest.Snapshot, ErrBoundNotFound)
	case !rok:
		return snapshot.ID, nil
	case !sok:
		return release.ID, nil
	case snapshot.ReleaseTime.After(release.ReleaseTime):
		return snapshot.ID, nil
	default:
		return release.ID, nil
	}
}

// oldest returns the explicit start, or the oldest version of the spec's
// type.
func oldest(m *fetch.Manifest, spec BranchSpec) (string, error) {
	if spec.Start != "" {
		return spec.Start, nil
	}
	for i := len(m.Versions) - 1; i >= 0; i-- {
		if spec.matches(m.Versions[i]) {
			return m.Versions[i].ID, nil
		}
	}
	return "", fmt.Errorf("no %s versions: %w", spec.Type, ErrBoundNotFound)
}
