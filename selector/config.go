/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package selector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// TypeAll selects every release type.
const TypeAll = "all"

// maxConfigSize bounds a remote config document.
const maxConfigSize = 1 << 20

// Config maps branch names to what each branch holds.
type Config struct {
	Branches map[string]BranchSpec `yaml:"branches" json:"branches"`
}

// BranchSpec describes the releases generated onto one branch.
type BranchSpec struct {
	// Type is a release type from the manifest, or TypeAll.
	Type string `yaml:"type" json:"type"`
	// Start and End bound the range, inclusive. Empty means oldest and
	// latest respectively.
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
	// Versions, when set, replaces the range with an explicit list.
	Versions []string `yaml:"versions,omitempty" json:"versions,omitempty"`
	// IncludeVersions are added to the range regardless of type.
	IncludeVersions []string `yaml:"includeVersions,omitempty" json:"includeVersions,omitempty"`
	// ExcludeVersions are dropped from the result.
	ExcludeVersions []string `yaml:"excludeVersions,omitempty" json:"excludeVersions,omitempty"`
}

// DefaultConfig holds a releases-only "release" branch and a "dev" branch
// with everything.
func DefaultConfig() *Config {
	return &Config{Branches: map[string]BranchSpec{
		"release": {Type: "release"},
		"dev":     {Type: TypeAll},
	}}
}

// Getter fetches a remote document.
type Getter interface {
	GetBytes(ctx context.Context, url string, limit int64) ([]byte, error)
}

// LoadConfig reads a config from a file path, a file:// URL or an http(s)
// URL. JSON documents are accepted as YAML.
func LoadConfig(ctx context.Context, loc string, g Getter) (*Config, error) {
	var (
		data []byte
		err  error
	)
	u, perr := url.Parse(loc)
	switch {
	case perr == nil && (u.Scheme == "http" || u.Scheme == "https"):
		if g == nil {
			return nil, errors.New("no getter for remote config")
		}
		data, err = g.GetBytes(ctx, loc, maxConfigSize)
	case perr == nil && u.Scheme == "file":
		data, err = os.ReadFile(u.Path)
	default:
		data, err = os.ReadFile(loc)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", loc, err)
	}
	cfg, err := ParseConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", loc, err)
	}
	return cfg, nil
}

// ParseConfig decodes a config document.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Branches == nil {
		cfg.Branches = map[string]BranchSpec{}
	}
	for name, spec := range cfg.Branches {
		if spec.Type == "" {
			spec.Type = TypeAll
			cfg.Branches[name] = spec
		}
	}
	return &cfg, nil
}

// Branch resolves the spec for branch. The command line's bounds override the
// config's, and a releases-only command line narrows the type.
func (c *Config) Branch(name string, cli BranchSpec) BranchSpec {
	spec, ok := c.Branches[name]
	if !ok {
		if cli.Type == "" {
			cli.Type = TypeAll
		}
		return cli
	}
	if cli.Start != "" {
		spec.Start = cli.Start
	}
	if cli.End != "" {
		spec.End = cli.End
	}
	if cli.Type != "" && cli.Type != TypeAll {
		spec.Type = cli.Type
	}
	return spec
}
