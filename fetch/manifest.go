/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Release types published in the manifest.
const (
	TypeRelease  = "release"
	TypeSnapshot = "snapshot"
	TypeOldBeta  = "old_beta"
	TypeOldAlpha = "old_alpha"
)

// Manifest lists every published release, newest first.
type Manifest struct {
	Latest   Latest        `json:"latest"`
	Versions []VersionInfo `json:"versions"`
}

// Latest names the newest release and snapshot.
type Latest struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

// VersionInfo is a manifest entry pointing at a release's version document.
type VersionInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	Time        time.Time `json:"time"`
	ReleaseTime time.Time `json:"releaseTime"`
	SHA1        string    `json:"sha1"`
}

// Index returns the position of id in the manifest, or -1.
func (m *Manifest) Index(id string) int {
	for i, v := range m.Versions {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the entry for id.
func (m *Manifest) Find(id string) (VersionInfo, bool) {
	if i := m.Index(id); i >= 0 {
		return m.Versions[i], true
	}
	return VersionInfo{}, false
}

// Manifest downloads and decodes the version manifest.
func (c *Client) Manifest(ctx context.Context) (*Manifest, error) {
	var m Manifest
	if err := c.GetJSON(ctx, c.manifestURL, &m); err != nil {
		return nil, fmt.Errorf("fetching version manifest: %w", err)
	}
	if m.Versions == nil {
		return nil, errors.New("version manifest has no versions listing")
	}
	return &m, nil
}
