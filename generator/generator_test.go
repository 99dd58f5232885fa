/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package generator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chainguard.dev/snowblower/cache"
	"chainguard.dev/snowblower/fetch"
	"chainguard.dev/snowblower/history"
	"chainguard.dev/snowblower/retry"
	"chainguard.dev/snowblower/tools"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

const clientMap = `net.minecraft.Main -> a:
    int ticks -> a
    void run() -> b
net.minecraft.client.Screen -> b:
    void draw() -> a
`

const serverMap = `net.minecraft.Main -> a:
    int ticks -> a
    void run() -> b
`

// upstream serves a manifest, version documents, and artifacts.
type upstream struct {
	srv *httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	requests map[string]int
}

type release struct {
	id       string
	mappings bool
	when     time.Time
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newUpstream(t *testing.T, releases []release) *upstream {
	t.Helper()
	u := &upstream{files: map[string][]byte{}, requests: map[string]int{}}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.requests[r.URL.Path]++
		b, ok := u.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(b) //nolint:errcheck
	}))
	t.Cleanup(u.srv.Close)

	put := func(p string, b []byte) fetch.Download {
		u.files[p] = b
		return fetch.Download{URL: u.srv.URL + p, SHA1: cache.SHA1.Bytes(b), Size: int64(len(b))}
	}

	lib := put("/libraries/com/example/lib/1.0/lib-1.0.jar", []byte("library"))
	lib.Path = "com/example/lib/1.0/lib-1.0.jar"

	var manifest fetch.Manifest
	for _, rel := range releases {
		v := fetch.Version{
			ID:          rel.id,
			Type:        fetch.TypeRelease,
			ReleaseTime: rel.when,
			Downloads: map[string]fetch.Download{
				"client": put("/"+rel.id+"/client.jar", zipBytes(t, map[string]string{"a.class": "client " + rel.id})),
				"server": put("/"+rel.id+"/server.jar", zipBytes(t, map[string]string{"a.class": "server " + rel.id})),
			},
			Libraries: []fetch.Library{{
				Name:      "com.example:lib:1.0",
				Downloads: &fetch.LibraryDownloads{Artifact: &lib},
			}},
			JavaVersion: &fetch.JavaVersion{MajorVersion: 17},
		}
		if rel.mappings {
			v.Downloads["client_mappings"] = put("/"+rel.id+"/client.txt", []byte(clientMap))
			v.Downloads["server_mappings"] = put("/"+rel.id+"/server.txt", []byte(serverMap))
		}
		doc, err := json.Marshal(v)
		require.NoError(t, err)
		d := put("/v/"+rel.id+".json", doc)

		// The manifest lists releases newest first.
		manifest.Versions = append([]fetch.VersionInfo{{
			ID:          rel.id,
			Type:        fetch.TypeRelease,
			URL:         d.URL,
			ReleaseTime: rel.when,
			SHA1:        d.SHA1,
		}}, manifest.Versions...)
	}
	manifest.Latest.Release = releases[len(releases)-1].id
	manifest.Latest.Snapshot = manifest.Latest.Release
	doc, err := json.Marshal(manifest)
	require.NoError(t, err)
	u.files["/manifest.json"] = doc
	return u
}

func (u *upstream) count(p string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[p]
}

func (u *upstream) client(t *testing.T) *fetch.Client {
	t.Helper()
	c, err := fetch.New(
		fetch.WithHTTPClient(u.srv.Client()),
		fetch.WithManifestURL(u.srv.URL+"/manifest.json"),
		fetch.WithRetryPolicy(retry.Policy{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)
	require.NoError(t, err)
	return c
}

// sources is what the fake decompiler emits for each release.
var sources = map[string]map[string]string{
	"1.0": {
		"net/minecraft/Main.java": "class Main {}\n",
		"assets/lang.json":        "{}\n",
	},
	"1.2": {
		"net/minecraft/Main.java":  "class Main { int ticks; }\n",
		"net/minecraft/World.java": "class World {}\n",
	},
	"1.3": {
		"net/minecraft/Main.java":  "class Main { int ticks; }\n",
		"net/minecraft/World.java": "class World {}\n",
	},
}

// fakeTools stands in for the external jar tools.
type fakeTools struct {
	mu    sync.Mutex
	calls map[string]int
}

func flag(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func (f *fakeTools) run(_ context.Context, _ string, args ...string) error {
	tool := filepath.Base(args[1])
	f.mu.Lock()
	f.calls[tool]++
	f.mu.Unlock()

	switch tool {
	case tools.MergeTool.Jar, tools.Renamer.Jar:
		out := flag(args, "--output")
		return os.WriteFile(out, []byte(tool+" "+filepath.Base(filepath.Dir(out))), 0o644)
	case tools.Decompiler.Jar:
		out := args[len(args)-1]
		files, ok := sources[filepath.Base(filepath.Dir(out))]
		if !ok {
			return fmt.Errorf("no sources for %s", out)
		}
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for name, body := range files {
			w, err := zw.Create(name)
			if err != nil {
				return err
			}
			if _, err := w.Write([]byte(body)); err != nil {
				return err
			}
		}
		if err := zw.Close(); err != nil {
			return err
		}
		return os.WriteFile(out, buf.Bytes(), 0o644)
	}
	return fmt.Errorf("unexpected tool %s", tool)
}

func (f *fakeTools) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newToolchain(t *testing.T, f *fakeTools) *tools.Toolchain {
	t.Helper()
	dir := t.TempDir()
	for _, tool := range []tools.Tool{tools.MergeTool, tools.Renamer, tools.Decompiler} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, tool.Jar), []byte("jar"), 0o644))
	}
	tc, err := tools.New(dir, tools.WithExecutor(tools.ExecFunc(f.run)))
	require.NoError(t, err)
	return tc
}

type fixture struct {
	up    *upstream
	tools *fakeTools
	cfg   Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	root := t.TempDir()
	return &fixture{
		up: newUpstream(t, []release{
			{id: "1.0", mappings: true, when: base},
			{id: "1.1", when: base.Add(24 * time.Hour)},
			{id: "1.2", mappings: true, when: base.Add(48 * time.Hour)},
			{id: "1.3", mappings: true, when: base.Add(72 * time.Hour)},
		}),
		tools: &fakeTools{calls: map[string]int{}},
		cfg: Config{
			Output:   filepath.Join(root, "out"),
			CacheDir: filepath.Join(root, "cache"),
			Platform: fetch.Platform{Name: "linux", Arch: "amd64"},
		},
	}
}

func (f *fixture) run(t *testing.T, cfg Config, opts ...Option) (*Report, error) {
	t.Helper()
	g, err := New(cfg, newToolchain(t, f.tools), append([]Option{WithClient(f.up.client(t))}, opts...)...)
	require.NoError(t, err)
	return g.Run(context.Background())
}

func outcomes(r *Report) map[string]string {
	out := map[string]string{}
	for _, rr := range r.Releases {
		out[rr.ID] = rr.Outcome
	}
	return out
}

func commitLog(t *testing.T, dir string) []string {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	require.NoError(t, err)
	var msgs []string
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		msgs = append(msgs, strings.TrimSpace(c.Message))
		return nil
	}))
	return msgs
}

func TestRunGeneratesHistory(t *testing.T) {
	f := newFixture(t)

	report, err := f.run(t, f.cfg)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"1.0": outcomeCommitted,
		"1.1": outcomeSkipped,
		"1.2": outcomeCommitted,
		"1.3": outcomeUnchanged,
	}, outcomes(report))
	var order []string
	for _, rr := range report.Releases {
		order = append(order, rr.ID)
	}
	require.Equal(t, []string{"1.0", "1.1", "1.2", "1.3"}, order)
	require.Equal(t, "1.0", report.Start)
	require.Equal(t, []string{"1.2", "1.0", history.InitialMessage}, commitLog(t, f.cfg.Output))

	out := f.cfg.Output
	require.FileExists(t, filepath.Join(out, "src/main/java/net/minecraft/World.java"))
	require.NoFileExists(t, filepath.Join(out, "src/main/resources/assets/lang.json"))
	require.FileExists(t, filepath.Join(out, history.CheckpointFile))

	gradle, err := os.ReadFile(filepath.Join(out, "build.gradle"))
	require.NoError(t, err)
	require.Contains(t, string(gradle), "JavaLanguageVersion.of(17)")
	require.Contains(t, string(gradle), "implementation 'com.example:lib:1.0'")

	// 3 releases with mappings, 3 tools each.
	require.Equal(t, 9, f.tools.total())
}

func TestRunResumes(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, f.cfg)
	require.NoError(t, err)
	calls := f.tools.total()

	report, err := f.run(t, f.cfg)
	require.NoError(t, err)
	require.Equal(t, "1.2", report.Resumed)
	require.Equal(t, map[string]string{"1.3": outcomeUnchanged}, outcomes(report))
	require.Equal(t, calls, f.tools.total(), "cached stages should not rerun tools")
	require.Equal(t, []string{"1.2", "1.0", history.InitialMessage}, commitLog(t, f.cfg.Output))
}

func TestRunDefaultsToCheckedOutBranch(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg
	cfg.Branch = "feature"
	_, err := f.run(t, cfg)
	require.NoError(t, err)

	report, err := f.run(t, f.cfg)
	require.NoError(t, err)
	require.Equal(t, "feature", report.Branch)
	require.Equal(t, "1.2", report.Resumed)
	require.Equal(t, map[string]string{"1.3": outcomeUnchanged}, outcomes(report))

	repo, err := git.PlainOpen(f.cfg.Output)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, plumbing.NewBranchReferenceName("feature"), head.Name())
	_, err = repo.Reference(plumbing.NewBranchReferenceName(history.DefaultBranch), true)
	require.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestRunCheckpointMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, f.cfg)
	require.NoError(t, err)

	cfg := f.cfg
	cfg.Selection.Start = "1.2"
	_, err = f.run(t, cfg)
	require.ErrorIs(t, err, history.ErrCheckpointMismatch)
	require.Equal(t, []string{"1.2", "1.0", history.InitialMessage}, commitLog(t, f.cfg.Output))

	cfg.Mode = history.StartOverIfRequired
	report, err := f.run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, "1.2", report.Start)
	require.Equal(t, []string{"1.2", history.InitialMessage}, commitLog(t, f.cfg.Output))
}

func TestRunPartialCache(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg
	cfg.PartialCache = true

	_, err := f.run(t, cfg)
	require.NoError(t, err)
	dir := filepath.Join(cfg.CacheDir, "1.0")
	require.NoFileExists(t, filepath.Join(dir, "client.jar"))
	require.NoFileExists(t, filepath.Join(dir, "server.jar"))
	require.FileExists(t, filepath.Join(dir, joinedJar))
	downloads := f.up.count("/1.0/client.jar")
	calls := f.tools.total()

	cfg.Mode = history.StartOver
	report, err := f.run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, report.Committed())
	require.Equal(t, downloads, f.up.count("/1.0/client.jar"), "joined jar should be reused without the client jar")
	require.Equal(t, calls, f.tools.total())
}

func TestRunFiltersPaths(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg
	cfg.Excludes = []string{"**/World.java"}

	_, err := f.run(t, cfg)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cfg.Output, "src/main/java/net/minecraft/Main.java"))
	require.NoFileExists(t, filepath.Join(cfg.Output, "src/main/java/net/minecraft/World.java"))
}

// fakeRemote records pushes and reports the pushed tips as its history.
type fakeRemote struct {
	tips   []plumbing.Hash
	forced []bool
	err    error
}

func (r *fakeRemote) Fetch(context.Context) (plumbing.Hash, bool, error) {
	return plumbing.ZeroHash, false, nil
}

func (r *fakeRemote) History(context.Context) ([]plumbing.Hash, error) {
	out := make([]plumbing.Hash, 0, len(r.tips))
	for i := len(r.tips) - 1; i >= 0; i-- {
		out = append(out, r.tips[i])
	}
	return out, nil
}

func (r *fakeRemote) Push(_ context.Context, tip plumbing.Hash, force bool) error {
	if r.err != nil {
		return r.err
	}
	r.tips = append(r.tips, tip)
	r.forced = append(r.forced, force)
	return nil
}

func TestRunPushes(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg
	cfg.Remote = "https://git.example.com/snowblower.git"
	cfg.Checkout = true
	cfg.Push = true
	cfg.BatchSize = 1

	remote := &fakeRemote{}
	report, err := f.run(t, cfg, WithRemote(remote))
	require.NoError(t, err)
	require.Equal(t, 2, report.Pushes)
	require.Equal(t, []bool{true, false}, remote.forced)

	repo, err := git.PlainOpen(cfg.Output)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, head.Hash(), remote.tips[len(remote.tips)-1])
}

func TestRunPushFailureKeepsCommits(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg
	cfg.Remote = "https://git.example.com/snowblower.git"
	cfg.Push = true

	boom := errors.New("remote rejected")
	report, err := f.run(t, cfg, WithRemote(&fakeRemote{err: boom}))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, report.Pushes)
	require.Equal(t, []string{"1.2", "1.0", history.InitialMessage}, commitLog(t, cfg.Output))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no output", cfg: Config{CacheDir: "c"}},
		{name: "no cache", cfg: Config{Output: "o"}},
		{name: "checkout without remote", cfg: Config{Output: "o", CacheDir: "c", Checkout: true}},
		{name: "push without remote", cfg: Config{Output: "o", CacheDir: "c", Push: true}},
		{name: "bad batch size", cfg: Config{Output: "o", CacheDir: "c", Remote: "r", Push: true, BatchSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
	if err := (&Config{Output: "o", CacheDir: "c"}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestReportAndMetrics(t *testing.T) {
	f := newFixture(t)
	report, err := f.run(t, f.cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteTable(&buf))
	require.Contains(t, buf.String(), "1.2")
	require.Contains(t, buf.String(), "no mappings")
	require.Contains(t, buf.String(), "Branch main: 2 committed, 1 unchanged, 1 skipped, 0 pushes")

	path := filepath.Join(t.TempDir(), "snowblower.prom")
	require.NoError(t, WriteMetrics(path))
	metrics, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "snowblower_releases_total")
	require.Contains(t, string(metrics), "snowblower_stage_runs_total")
}
