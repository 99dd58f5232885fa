/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chainguard.dev/snowblower/cache"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SidecarSuffix is appended to an artifact path to name its record.
const SidecarSuffix = ".cache"

// Outcome classifies a single Run for observers.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// Stage describes one cacheable step.
type Stage struct {
	// Name identifies the stage in logs, spans, and errors.
	Name string
	// Output is the artifact the stage produces.
	Output string
	// Sidecar overrides the record location, Output+".cache" by default.
	Sidecar string
	// Record fingerprints every input of the stage.
	Record *cache.Record
	// Keep filters the keys read back from the sidecar. Nil keeps all.
	Keep func(string) bool
	// Invoke produces Output.
	Invoke func(ctx context.Context) error
	// Finalize may adjust Record after a successful Invoke.
	Finalize func(*cache.Record) error
}

func (s Stage) sidecar() string {
	if s.Sidecar != "" {
		return s.Sidecar
	}
	return s.Output + SidecarSuffix
}

// Error reports a failed stage invocation.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Observer is notified once per Run.
type Observer func(ctx context.Context, name string, outcome Outcome, elapsed time.Duration)

// Runner executes stages.
type Runner struct {
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver installs a callback invoked after every Run.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithTracer overrides the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

// NewRunner returns a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		tracer: otel.Tracer("chainguard.dev/snowblower/stage"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpToDate reports whether s can be skipped.
func (r *Runner) UpToDate(s Stage) bool {
	if s.Record == nil {
		return false
	}
	if _, err := os.Stat(s.Output); err != nil {
		return false
	}
	return s.Record.IsValidFiltered(s.sidecar(), s.Keep)
}

// Run produces s.Output unless it is up to date, and returns its path.
func (r *Runner) Run(ctx context.Context, s Stage) (string, error) {
	switch {
	case s.Name == "":
		return "", errors.New("stage name cannot be empty")
	case s.Output == "":
		return "", fmt.Errorf("stage %s: output cannot be empty", s.Name)
	case s.Record == nil:
		return "", fmt.Errorf("stage %s: record cannot be nil", s.Name)
	case s.Invoke == nil:
		return "", fmt.Errorf("stage %s: invoke cannot be nil", s.Name)
	}

	ctx, span := r.tracer.Start(ctx, "stage."+s.Name, trace.WithAttributes(
		attribute.String("stage.name", s.Name),
		attribute.String("stage.output", s.Output),
	))
	defer span.End()

	start := time.Now()
	log := clog.FromContext(ctx).With("stage", s.Name)

	if r.UpToDate(s) {
		log.Debugf("Cache hit for %s", filepath.Base(s.Output))
		span.SetAttributes(attribute.Bool("stage.cached", true))
		r.observe(ctx, s.Name, OutcomeHit, start)
		return s.Output, nil
	}
	span.SetAttributes(attribute.Bool("stage.cached", false))

	if err := r.invoke(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.observe(ctx, s.Name, OutcomeError, start)
		return "", &Error{Stage: s.Name, Err: err}
	}

	log.Debugf("Produced %s in %s", filepath.Base(s.Output), time.Since(start).Round(time.Millisecond))
	r.observe(ctx, s.Name, OutcomeMiss, start)
	return s.Output, nil
}

func (r *Runner) invoke(ctx context.Context, s Stage) error {
	sidecar := s.sidecar()
	if err := os.Remove(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := s.Invoke(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(s.Output); err != nil {
		return fmt.Errorf("expected output %s: %w", s.Output, err)
	}

	if s.Finalize != nil {
		if err := s.Finalize(s.Record); err != nil {
			return fmt.Errorf("finalizing record: %w", err)
		}
	}
	return s.Record.Write(sidecar)
}

func (r *Runner) observe(ctx context.Context, name string, outcome Outcome, start time.Time) {
	if r.observer != nil {
		r.observer(ctx, name, outcome, time.Since(start))
	}
}
