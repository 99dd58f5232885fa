/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// Identity is a commit author or committer.
type Identity struct {
	Name  string
	Email string
}

// Reserved is the identity every generated commit is authored under.
var Reserved = Identity{Name: "SnowBlower", Email: "snow@blower.com"}

// InitialMessage is the message of the checkpoint commit.
const InitialMessage = "Initial commit"

// InitialTime is the author and committer time of the checkpoint commit.
var InitialTime = time.UnixMilli(1).UTC()

// ParseIdentity parses "name email".
func ParseIdentity(s string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(s), " ")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Identity{}, fmt.Errorf("committer %q should be in the format 'name email'", s)
	}
	return Identity{Name: parts[0], Email: parts[1]}, nil
}

func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

func (i Identity) signature(when time.Time) *object.Signature {
	return &object.Signature{Name: i.Name, Email: i.Email, When: when}
}
