/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package buildinfo resolves the engine identity recorded in every branch
// checkpoint. Release builds set it at link time:
//
//	go build -ldflags "-X chainguard.dev/snowblower/buildinfo.Version=$(git rev-parse HEAD)"
//
// Otherwise the VCS revision stamped by the Go toolchain is used, falling
// back to the main module version.
package buildinfo

import (
	"runtime/debug"
	"sync"
)

// Version is set with -ldflags -X.
var Version string

// Unknown is reported when no identity can be determined.
const Unknown = "unknown"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Engine returns the identity of the running engine. The value is resolved
// once per process.
var Engine = sync.OnceValue(resolve)

func resolve() string {
	if Version != "" {
		return Version
	}

	info, ok := readBuildInfo()
	if !ok {
		return Unknown
	}
	var revision string
	modified := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision != "" {
		if modified {
			return revision + "-dirty"
		}
		return revision
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return Unknown
}
