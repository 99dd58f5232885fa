/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package treesync mirrors a generated source tree onto a persistent working
// tree with the fewest filesystem edits.
//
// The generated tree is read through an fs.FS (a zip.Reader over the
// decompiled archive in production). Every regular file is routed to a
// target root, src/main/java for sources and src/main/resources for
// everything else, and compared against what is already on disk by MD5.
// Unchanged files are left alone, which keeps timestamps stable and the
// version-control index cheap to refresh. Files under the target roots that
// the generated tree no longer contains are deleted.
//
// Sync reports exactly which working-tree paths were added, updated, or
// removed so the caller can stage them without rescanning the tree. It never
// touches version control itself.
package treesync
