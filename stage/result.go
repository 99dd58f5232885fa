/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stage

import "fmt"

// Kind discriminates the variants of Result.
type Kind int

const (
	KindOK Kind = iota
	KindSkip
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindSkip:
		return "skip"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of processing one release.
type Result struct {
	kind     Kind
	artifact string
	reason   string
	err      error
}

// OK reports that artifact was produced.
func OK(artifact string) Result {
	return Result{kind: KindOK, artifact: artifact}
}

// Skip reports that the release cannot be generated, for reason.
func Skip(reason string) Result {
	return Result{kind: KindSkip, reason: reason}
}

// Fatal reports an error that must abort the run.
func Fatal(err error) Result {
	if err == nil {
		panic("stage.Fatal called with nil error")
	}
	return Result{kind: KindFatal, err: err}
}

// Kind returns the variant.
func (r Result) Kind() Kind { return r.kind }

// Artifact returns the produced artifact of an OK result.
func (r Result) Artifact() string { return r.artifact }

// Reason returns the explanation of a Skip result.
func (r Result) Reason() string { return r.reason }

// Err returns the error of a Fatal result and nil otherwise.
func (r Result) Err() error { return r.err }

func (r Result) String() string {
	switch r.kind {
	case KindOK:
		return "ok(" + r.artifact + ")"
	case KindSkip:
		return "skip(" + r.reason + ")"
	default:
		return fmt.Sprintf("fatal(%v)", r.err)
	}
}
