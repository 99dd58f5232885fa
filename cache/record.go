/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
)

// Record is an ordered mapping of fingerprint keys to values with an optional
// comment header. The zero value is an empty record ready for use.
type Record struct {
	comment []string
	keys    []string
	values  map[string]string
}

// NewRecord returns an empty Record carrying the given comment lines.
func NewRecord(comment ...string) *Record {
	r := &Record{}
	r.SetComment(comment...)
	return r
}

// SetComment replaces the comment header. No lines clears it.
func (r *Record) SetComment(lines ...string) {
	if len(lines) == 0 {
		r.comment = nil
		return
	}
	r.comment = append([]string(nil), lines...)
}

// Comment returns the comment header lines.
func (r *Record) Comment() []string {
	return r.comment
}

// Put records value under key. Replacing an existing key keeps its original
// position in the serialized output.
func (r *Record) Put(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// PutFile records the SHA-1 of the file at path under key.
func (r *Record) PutFile(key, path string) error {
	sum, err := SHA1.File(path)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", key, err)
	}
	r.Put(key, sum)
	return nil
}

// PutDependency records the precomputed hash of the dependency named key.
func (r *Record) PutDependency(key string, deps *DependencyHashes) error {
	v, ok := deps.Get(key)
	if !ok {
		return fmt.Errorf("no dependency hash for %q", key)
	}
	r.Put(key, v)
	return nil
}

// Get returns the value stored for key.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of entries.
func (r *Record) Len() int {
	return len(r.keys)
}

// Equal reports whether both records hold the same key/value pairs,
// regardless of insertion order or comment.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return maps.Equal(r.values, other.values)
}

// Filter returns a copy holding only the entries whose key satisfies keep.
func (r *Record) Filter(keep func(string) bool) *Record {
	out := NewRecord(r.comment...)
	for _, k := range r.keys {
		if keep(k) {
			out.Put(k, r.values[k])
		}
	}
	return out
}

// WriteTo serializes the record.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if len(r.comment) > 0 {
		for _, line := range r.comment {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	for _, k := range r.keys {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(r.values[k])
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

// Write persists the record to path, creating parent directories as needed.
func (r *Record) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// IsValid reports whether the sidecar at path holds exactly this record's
// entries. A missing or unreadable sidecar is never valid.
func (r *Record) IsValid(path string) bool {
	return r.IsValidFiltered(path, nil)
}

// IsValidFiltered is IsValid, except that entries read from path whose key
// does not satisfy keep are dropped before the comparison. A nil keep accepts
// every key.
func (r *Record) IsValidFiltered(path string, keep func(string) bool) bool {
	existing, err := Load(path)
	if err != nil {
		return false
	}
	if keep != nil {
		existing = existing.Filter(keep)
	}
	return r.Equal(existing)
}

// Load reads a record from path.
func Load(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a serialized record. Every line that looks like data is an
// entry, wherever it appears. Other lines are ignored, except that leading
// lines up to the first blank line are kept as the comment when the input
// contains one.
func Parse(in io.Reader) (*Record, error) {
	r := NewRecord()
	var (
		lines   []string
		blankAt = -1
	)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" && blankAt < 0 {
			blankAt = len(lines)
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	if blankAt > 0 && !isDataLine(lines[0]) {
		r.SetComment(lines[:blankAt]...)
	}
	for _, line := range lines {
		key, value, ok := splitDataLine(line)
		if !ok {
			continue
		}
		r.Put(key, value)
	}
	return r, nil
}

func isDataLine(line string) bool {
	_, _, ok := splitDataLine(line)
	return ok
}

// splitDataLine recognizes "key: value". The first space must directly
// follow a colon, and the key must be non-empty.
func splitDataLine(line string) (string, string, bool) {
	idx := strings.IndexByte(line, ' ')
	if idx <= 1 || line[idx-1] != ':' {
		return "", "", false
	}
	return line[:idx-1], line[idx+1:], true
}
