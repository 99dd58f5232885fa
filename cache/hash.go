/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"crypto/md5" //nolint:gosec // content comparison, not security
	"crypto/sha1" //nolint:gosec // upstream publishes SHA-1 digests
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// HashFunc identifies one of the digest algorithms used for fingerprints.
type HashFunc int

const (
	MD5 HashFunc = iota
	SHA1
	SHA256
	SHA512
)

// String returns the conventional name of the algorithm.
func (h HashFunc) String() string {
	switch h {
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	default:
		return fmt.Sprintf("HashFunc(%d)", int(h))
	}
}

// New returns a fresh hash.Hash for the algorithm.
func (h HashFunc) New() hash.Hash {
	switch h {
	case MD5:
		return md5.New() //nolint:gosec
	case SHA1:
		return sha1.New() //nolint:gosec
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	default:
		panic(fmt.Sprintf("unknown hash function %d", int(h)))
	}
}

// HexLen is the length of a hex digest produced by the algorithm.
func (h HashFunc) HexLen() int {
	return h.New().Size() * 2
}

// Bytes returns the hex digest of b.
func (h HashFunc) Bytes(b []byte) string {
	d := h.New()
	d.Write(b)
	return hex.EncodeToString(d.Sum(nil))
}

// Sum returns the hex digest of the UTF-8 bytes of s.
func (h HashFunc) Sum(s string) string {
	return h.Bytes([]byte(s))
}

// Reader consumes r and returns its hex digest.
func (h HashFunc) Reader(r io.Reader) (string, error) {
	d := h.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// File returns the hex digest of the file at path.
func (h HashFunc) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := h.Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}
