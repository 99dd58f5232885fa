/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package bundler

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func sha(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestBundle(t *testing.T) {
	dir := t.TempDir()
	const payload = "inner server jar"
	jar := filepath.Join(dir, "server.jar")
	writeZip(t, jar, map[string]string{
		"META-INF/MANIFEST.MF":                    "Manifest-Version: 1.0\r\nMain-Class: net.minecraft.bundler.Main\r\nBundler-Format: 1.0\r\n\r\n",
		"META-INF/versions.list":                  sha(payload) + "\t1.20.1\t1.20.1/server-1.20.1.jar\n",
		"META-INF/versions/1.20.1/server-1.20.1.jar": payload,
	})

	ok, err := IsBundle(jar)
	require.NoError(t, err)
	require.True(t, ok)

	out := filepath.Join(dir, "server-extracted.jar")
	require.NoError(t, Extract(jar, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, payload, string(got))
}

func TestPlainJar(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "server.jar")
	writeZip(t, jar, map[string]string{
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\nMain-Class: net.minecraft.server.Main\n",
		"a.class":              "bytes",
	})
	ok, err := IsBundle(jar)
	require.NoError(t, err)
	require.False(t, ok)

	noManifest := filepath.Join(dir, "bare.jar")
	writeZip(t, noManifest, map[string]string{"a.class": "bytes"})
	ok, err = IsBundle(noManifest)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExtractDigestMismatch(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "server.jar")
	writeZip(t, jar, map[string]string{
		"META-INF/MANIFEST.MF":           "Bundler-Format: 1.0\n",
		"META-INF/versions.list":         sha("other") + "\t1.18\t1.18/server.jar\n",
		"META-INF/versions/1.18/server.jar": "payload",
	})

	out := filepath.Join(dir, "out.jar")
	require.Error(t, Extract(jar, out))
	_, err := os.Stat(out)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseManifestContinuation(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "x.jar")
	writeZip(t, jar, map[string]string{
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\nClass-Path: a.jar\n  b.jar\nBundler-Format: 1.0\n",
	})
	ok, err := IsBundle(jar)
	require.NoError(t, err)
	require.True(t, ok)
}
