/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

//go:embed dependency_hashes.txt
var embeddedDependencyHashes []byte

// DependencyHashes maps tool and library coordinates to precomputed digests.
// It is loaded once per process and never mutated afterwards.
type DependencyHashes struct {
	hashes map[string]string
}

// ParseDependencyHashes reads a key=value table. Lines starting with '#' are
// skipped, an inline '#' truncates the line, and the first '=' separates the
// key from the value. Lines without '=' are ignored.
func ParseDependencyHashes(r io.Reader) (*DependencyHashes, error) {
	d := &DependencyHashes{hashes: make(map[string]string)}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		comment := strings.IndexByte(line, '#')
		if comment == 0 {
			continue
		}
		if comment > 0 {
			line = strings.TrimSpace(line[:comment])
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		d.hashes[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading dependency hashes: %w", err)
	}
	return d, nil
}

// LoadDependencyHashes reads a dependency hash table from path.
func LoadDependencyHashes(path string) (*DependencyHashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDependencyHashes(f)
}

// DefaultDependencyHashes returns the table compiled into the binary.
var DefaultDependencyHashes = sync.OnceValue(func() *DependencyHashes {
	d, err := ParseDependencyHashes(bytes.NewReader(embeddedDependencyHashes))
	if err != nil {
		panic(fmt.Sprintf("embedded dependency hashes: %v", err))
	}
	return d
})

// Get returns the digest recorded for key.
func (d *DependencyHashes) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.hashes[key]
	return v, ok
}

// Keys returns the known coordinates, sorted.
func (d *DependencyHashes) Keys() []string {
	keys := make([]string, 0, len(d.hashes))
	for k := range d.hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
