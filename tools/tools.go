/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"chainguard.dev/snowblower/cache"
	"github.com/chainguard-dev/clog"
)

// Tool is an external program identified by its coordinate.
type Tool struct {
	Coordinate string
	Jar        string
}

var (
	MergeTool  = Tool{Coordinate: "net.neoforged:mergetool", Jar: "mergetool.jar"}
	Renamer    = Tool{Coordinate: "net.neoforged:AutoRenamingTool", Jar: "renamer.jar"}
	Decompiler = Tool{Coordinate: "net.minecraftforge:forgeflower", Jar: "forgeflower.jar"}
)

// DecompileArgs are the decompiler options. They are part of the decompile
// stage fingerprint.
var DecompileArgs = []string{
	"-din=1", "-rbr=1", "-dgs=1", "-asc=1", "-rsy=1", "-iec=1",
	"-jvn=1", "-jpr=1", "-isl=0", "-iib=1", "-bsm=1", "-dcl=1",
}

// Executor runs a command to completion.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecFunc adapts a function to Executor.
type ExecFunc func(ctx context.Context, name string, args ...string) error

// Run implements Executor.
func (f ExecFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// osExecutor runs commands with os/exec and reports their output on failure.
type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, name string, args ...string) error {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	clog.FromContext(ctx).Debugf("Running %s %s", name, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w\n%s", filepath.Base(name), err, tail(out.String(), 40))
	}
	return nil
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}

// Toolchain locates and runs the tools.
type Toolchain struct {
	java string
	dir  string
	deps *cache.DependencyHashes
	exec Executor
}

// Option configures a Toolchain.
type Option func(*Toolchain)

// WithJava sets the java binary.
func WithJava(java string) Option {
	return func(t *Toolchain) {
		t.java = java
	}
}

// WithDependencyHashes overrides the tool identity table.
func WithDependencyHashes(d *cache.DependencyHashes) Option {
	return func(t *Toolchain) {
		t.deps = d
	}
}

// WithExecutor overrides how commands are run.
func WithExecutor(e Executor) Option {
	return func(t *Toolchain) {
		t.exec = e
	}
}

// New returns a Toolchain reading tool jars from dir.
func New(dir string, opts ...Option) (*Toolchain, error) {
	t := &Toolchain{
		java: "java",
		dir:  dir,
		deps: cache.DefaultDependencyHashes(),
		exec: osExecutor{},
	}
	for _, opt := range opts {
		opt(t)
	}

	switch {
	case t.dir == "":
		return nil, errors.New("tools directory cannot be empty")
	case t.java == "":
		return nil, errors.New("java binary cannot be empty")
	case t.exec == nil:
		return nil, errors.New("executor cannot be nil")
	}
	for _, tool := range []Tool{MergeTool, Renamer, Decompiler} {
		if _, ok := t.deps.Get(tool.Coordinate); !ok {
			return nil, fmt.Errorf("no dependency hash for %s", tool.Coordinate)
		}
	}
	return t, nil
}

// Fingerprint records the identity of tool in rec.
func (t *Toolchain) Fingerprint(rec *cache.Record, tool Tool) error {
	return rec.PutDependency(tool.Coordinate, t.deps)
}

func (t *Toolchain) run(ctx context.Context, tool Tool, args ...string) error {
	jar := filepath.Join(t.dir, tool.Jar)
	if _, err := os.Stat(jar); err != nil {
		return fmt.Errorf("locating %s: %w", tool.Coordinate, err)
	}
	return t.exec.Run(ctx, t.java, append([]string{"-jar", jar}, args...)...)
}

// Merge combines the client and server jars into out, keeping only the
// classes named in the merged map.
func (t *Toolchain) Merge(ctx context.Context, client, server, mappings, out string) error {
	return t.run(ctx, MergeTool,
		"--client", client,
		"--server", server,
		"--output", out,
		"--whitelist-map", mappings,
		"--ann", "API",
		"--keep-data",
		"--skip-meta",
	)
}

// Rename applies mappings to in, writing out. Libraries are used for
// inheritance resolution.
func (t *Toolchain) Rename(ctx context.Context, in, mappings, out string, libs []string) error {
	args := []string{
		"--input", in,
		"--output", out,
		"--map", mappings,
		"--ann-fix",
		"--ids-fix", "ALL",
		"--src-fix", "JAVA",
		"--record-fix",
		"--strip-sigs", "ALL",
	}
	for _, l := range libs {
		args = append(args, "--lib", l)
	}
	return t.run(ctx, Renamer, args...)
}

// Decompile turns the classes of in into a source archive at out. The
// library list is written next to out for the decompiler to read.
func (t *Toolchain) Decompile(ctx context.Context, in, out string, libs []string) error {
	cfg := strings.TrimSuffix(out, filepath.Ext(out)) + "-libraries.cfg"
	var buf bytes.Buffer
	for _, l := range libs {
		fmt.Fprintf(&buf, "-e=%s\n", l)
	}
	if err := os.WriteFile(cfg, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing decompiler library list: %w", err)
	}

	args := append(append([]string(nil), DecompileArgs...), "-log=ERROR", "-cfg", cfg, in, out)
	return t.run(ctx, Decompiler, args...)
}
