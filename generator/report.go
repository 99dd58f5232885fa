/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package generator

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// ReleaseReport is what happened to one release.
type ReleaseReport struct {
	ID      string
	Outcome string
	// Reason explains a skipped or failed release.
	Reason string
	// Changes counts the working-tree paths the release touched.
	Changes int
	Elapsed time.Duration
}

// Report summarizes a run.
type Report struct {
	Branch string
	// Start is the release the branch checkpoint names.
	Start string
	// Resumed is the last release already on the branch, if any.
	Resumed  string
	Releases []ReleaseReport
	Pushes   int
}

func (r *Report) add(rr ReleaseReport) {
	r.Releases = append(r.Releases, rr)
}

// Count returns how many releases ended with outcome.
func (r *Report) Count(outcome string) int {
	n := 0
	for _, rr := range r.Releases {
		if rr.Outcome == outcome {
			n++
		}
	}
	return n
}

// Committed returns how many releases produced a commit.
func (r *Report) Committed() int { return r.Count(outcomeCommitted) }

// WriteTable renders the report as a markdown table followed by a one line
// summary.
func (r *Report) WriteTable(w io.Writer) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Behavior: tw.Behavior{TrimSpace: tw.Off},
		}),
		tablewriter.WithHeader([]string{"Release", "Outcome", "Changes", "Time", "Notes"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
	for _, rr := range r.Releases {
		if err := table.Append([]string{
			rr.ID,
			rr.Outcome,
			strconv.Itoa(rr.Changes),
			rr.Elapsed.Round(time.Millisecond).String(),
			rr.Reason,
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nBranch %s: %d committed, %d unchanged, %d skipped, %d pushes\n",
		r.Branch, r.Committed(), r.Count(outcomeUnchanged), r.Count(outcomeSkipped), r.Pushes)
	return err
}
