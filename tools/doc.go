/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package tools drives the external Java programs of the pipeline: the jar
// merger, the symbol renamer, and the decompiler.
//
// Each tool is an executable jar found in a tools directory and launched with
// the configured java binary. Tools are opaque to the engine; what matters
// for caching is their identity, which is the coordinate's entry in the
// dependency hash table. A Toolchain contributes that identity to every
// cache record of a stage that runs the tool, so upgrading a tool invalidates
// exactly the artifacts it produced.
package tools
