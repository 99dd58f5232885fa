/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package history

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// Kind is the category of a commit on the generated branch.
type Kind int

const (
	// KindForeign is any commit not made by the generator.
	KindForeign Kind = iota
	// KindCheckpoint is the generator's initial commit.
	KindCheckpoint
	// KindRelease is a commit holding one generated release.
	KindRelease
)

func (k Kind) String() string {
	switch k {
	case KindCheckpoint:
		return "checkpoint"
	case KindRelease:
		return "release"
	default:
		return "foreign"
	}
}

// Class is the result of classifying a commit. Release is set only for
// KindRelease.
type Class struct {
	Kind    Kind
	Release string
}

// Classify categorizes a commit by its author and message. The committer is
// not consulted since it may be overridden.
func Classify(c *object.Commit) Class {
	if c == nil || !strings.EqualFold(c.Author.Name, Reserved.Name) {
		return Class{Kind: KindForeign}
	}
	subject, _, _ := strings.Cut(c.Message, "\n")
	subject = strings.TrimSpace(subject)
	switch subject {
	case InitialMessage:
		return Class{Kind: KindCheckpoint}
	case "":
		return Class{Kind: KindForeign}
	}
	return Class{Kind: KindRelease, Release: subject}
}
