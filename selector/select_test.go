/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package selector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chainguard.dev/snowblower/fetch"
	"github.com/google/go-cmp/cmp"
)

func testManifest() *fetch.Manifest {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return &fetch.Manifest{
		Latest: fetch.Latest{Release: "1.2", Snapshot: "24w03a"},
		Versions: []fetch.VersionInfo{
			{ID: "24w03a", Type: fetch.TypeSnapshot, ReleaseTime: day(9)},
			{ID: "1.2", Type: fetch.TypeRelease, ReleaseTime: day(8)},
			{ID: "1.2-rc1", Type: fetch.TypeSnapshot, ReleaseTime: day(7)},
			{ID: "1.1", Type: fetch.TypeRelease, ReleaseTime: day(5)},
			{ID: "24w01a", Type: fetch.TypeSnapshot, ReleaseTime: day(4)},
			{ID: "1.0", Type: fetch.TypeRelease, ReleaseTime: day(2)},
			{ID: "b1.0", Type: fetch.TypeOldBeta, ReleaseTime: day(1)},
		},
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		spec      BranchSpec
		want      []string
		wantStart string
		wantErr   error
	}{{
		name:      "everything",
		spec:      BranchSpec{Type: TypeAll},
		want:      []string{"b1.0", "1.0", "24w01a", "1.1", "1.2-rc1", "1.2", "24w03a"},
		wantStart: "b1.0",
	}, {
		name:      "releases only",
		spec:      BranchSpec{Type: "release"},
		want:      []string{"1.0", "1.1", "1.2"},
		wantStart: "1.0",
	}, {
		name:      "bounded range",
		spec:      BranchSpec{Type: TypeAll, Start: "1.0", End: "1.1"},
		want:      []string{"1.0", "24w01a", "1.1"},
		wantStart: "1.0",
	}, {
		name:      "releases within snapshot bounds",
		spec:      BranchSpec{Type: "release", Start: "24w01a", End: "24w03a"},
		want:      []string{"1.1", "1.2"},
		wantStart: "24w01a",
	}, {
		name:      "include and exclude",
		spec:      BranchSpec{Type: "release", IncludeVersions: []string{"24w01a"}, ExcludeVersions: []string{"1.1"}},
		want:      []string{"1.0", "24w01a", "1.2"},
		wantStart: "1.0",
	}, {
		name:      "explicit versions keep manifest order",
		spec:      BranchSpec{Type: "release", Versions: []string{"1.2", "b1.0", "1.2"}},
		want:      []string{"b1.0", "1.2"},
		wantStart: "b1.0",
	}, {
		name:    "unknown start",
		spec:    BranchSpec{Start: "9.9"},
		wantErr: ErrBoundNotFound,
	}, {
		name:    "unknown explicit version",
		spec:    BranchSpec{Versions: []string{"9.9"}},
		wantErr: ErrBoundNotFound,
	}, {
		name:    "out of order",
		spec:    BranchSpec{Start: "1.2", End: "1.0"},
		wantErr: ErrBoundOrder,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Select(testManifest(), tt.spec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Select() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, sel.IDs()); diff != "" {
				t.Errorf("Select() (-want +got):\n%s", diff)
			}
			if sel.Start != tt.wantStart {
				t.Errorf("Start = %q, want %q", sel.Start, tt.wantStart)
			}
		})
	}
}

func TestTargetDefaults(t *testing.T) {
	m := testManifest()

	got, err := target(m, BranchSpec{Type: TypeAll})
	if err != nil || got != "24w03a" {
		t.Errorf("target(all) = %q, %v; want newer snapshot", got, err)
	}

	got, err = target(m, BranchSpec{Type: "release"})
	if err != nil || got != "1.2" {
		t.Errorf("target(release) = %q, %v; want latest release", got, err)
	}

	got, err = target(m, BranchSpec{Type: fetch.TypeOldBeta})
	if err != nil || got != "b1.0" {
		t.Errorf("target(old_beta) = %q, %v", got, err)
	}

	m.Latest.Snapshot = "gone"
	got, err = target(m, BranchSpec{Type: TypeAll})
	if err != nil || got != "1.2" {
		t.Errorf("target with missing snapshot = %q, %v", got, err)
	}

	m.Latest.Release = "gone"
	if _, err := target(m, BranchSpec{Type: TypeAll}); !errors.Is(err, ErrBoundNotFound) {
		t.Errorf("target with both missing error = %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	for name, doc := range map[string]string{
		"yaml": `
branches:
  release:
    type: release
    start: "1.0"
  dev:
    excludeVersions: ["24w01a"]
`,
		"json": `{"branches": {"release": {"type": "release", "start": "1.0"}, "dev": {"excludeVersions": ["24w01a"]}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := ParseConfig(strings.NewReader(doc))
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			want := map[string]BranchSpec{
				"release": {Type: "release", Start: "1.0"},
				"dev":     {Type: TypeAll, ExcludeVersions: []string{"24w01a"}},
			}
			if diff := cmp.Diff(want, cfg.Branches); diff != "" {
				t.Errorf("branches (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := ParseConfig(strings.NewReader("branches:\n  x:\n    tpye: release\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

type fakeGetter map[string]string

func (f fakeGetter) GetBytes(_ context.Context, url string, _ int64) ([]byte, error) {
	if s, ok := f[url]; ok {
		return []byte(s), nil
	}
	return nil, errors.New("not found")
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snowblower.yaml")
	if err := os.WriteFile(path, []byte("branches:\n  main:\n    type: snapshot\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, loc := range []string{path, "file://" + path} {
		cfg, err := LoadConfig(ctx, loc, nil)
		if err != nil {
			t.Fatalf("LoadConfig(%s): %v", loc, err)
		}
		if got := cfg.Branches["main"].Type; got != "snapshot" {
			t.Errorf("LoadConfig(%s) type = %q", loc, got)
		}
	}

	g := fakeGetter{"https://example.com/cfg.json": `{"branches": {"main": {"type": "release"}}}`}
	cfg, err := LoadConfig(ctx, "https://example.com/cfg.json", g)
	if err != nil {
		t.Fatalf("LoadConfig(remote): %v", err)
	}
	if got := cfg.Branches["main"].Type; got != "release" {
		t.Errorf("remote type = %q", got)
	}

	if _, err := LoadConfig(ctx, "https://example.com/missing", g); err == nil {
		t.Error("expected error for missing remote config")
	}
}

func TestConfigBranch(t *testing.T) {
	cfg := DefaultConfig()

	got := cfg.Branch("release", BranchSpec{Type: TypeAll, Start: "1.1"})
	if diff := cmp.Diff(BranchSpec{Type: "release", Start: "1.1"}, got); diff != "" {
		t.Errorf("configured branch (-want +got):\n%s", diff)
	}

	got = cfg.Branch("dev", BranchSpec{Type: "release"})
	if got.Type != "release" {
		t.Errorf("releases-only must narrow the type, got %q", got.Type)
	}

	got = cfg.Branch("feature", BranchSpec{End: "1.2"})
	if diff := cmp.Diff(BranchSpec{Type: TypeAll, End: "1.2"}, got); diff != "" {
		t.Errorf("unconfigured branch (-want +got):\n%s", diff)
	}
}
