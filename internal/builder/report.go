package builder

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/calder/dirtree/internal/tree"
)

// Outcome records what the builder did for one node.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeOverwritten Outcome = "overwritten"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeFailed      Outcome = "failed"
)

// NodeResult is the per-node entry of a build report.
type NodeResult struct {
	// Path is the slash-joined relative path after template expansion.
	Path    string
	Kind    tree.Kind
	Outcome Outcome
	// Err holds the failure message for failed outcomes.
	Err string
}

// Report enumerates every node outcome of a build run plus aggregate
// counts. Callers decide whether failed entries constitute an overall
// failure; the builder itself only aborts for fatal errors.
//
// Appends are serialized under an internal lock so parallel sibling
// processing shares one report safely. In the default sequential mode the
// results keep declaration order.
type Report struct {
	RunID      string
	Root       string
	Policy     Policy
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time

	mu      sync.Mutex
	Results []NodeResult

	Created     int
	Skipped     int
	Overwritten int
	Unchanged   int
	Failed      int
}

// add appends one node result and bumps the matching counter.
func (r *Report) add(res NodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeOverwritten:
		r.Overwritten++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeFailed:
		r.Failed++
	}
}

// Total returns the number of recorded node outcomes.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Results)
}

// Duration returns the wall-clock span of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Render writes a human-readable report: one line per node followed by a
// summary block. colorize enables ANSI colors for terminal output.
func (r *Report) Render(w io.Writer, colorize bool) {
	for _, res := range r.Results {
		label := string(res.Outcome)
		if colorize {
			label = colorOutcome(res.Outcome)
		}
		if res.Err != "" {
			fmt.Fprintf(w, "  %-11s %s (%s): %s\n", label, res.Path, res.Kind, res.Err)
		} else {
			fmt.Fprintf(w, "  %-11s %s (%s)\n", label, res.Path, res.Kind)
		}
	}

	header := "Build Summary:"
	if r.DryRun {
		header = "Build Summary (dry-run):"
	}
	if colorize {
		header = color.New(color.Bold).Sprint(header)
	}
	fmt.Fprintf(w, "\n%s\n", header)
	fmt.Fprintf(w, "  Run:         %s\n", r.RunID)
	fmt.Fprintf(w, "  Root:        %s\n", r.Root)
	fmt.Fprintf(w, "  Policy:      %s\n", r.Policy)
	fmt.Fprintf(w, "  Nodes:       %d\n", len(r.Results))
	fmt.Fprintf(w, "  Created:     %d\n", r.Created)
	fmt.Fprintf(w, "  Overwritten: %d\n", r.Overwritten)
	fmt.Fprintf(w, "  Unchanged:   %d\n", r.Unchanged)
	fmt.Fprintf(w, "  Skipped:     %d\n", r.Skipped)
	if r.Failed > 0 && colorize {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgRed).Sprintf("Failed:      %d", r.Failed))
	} else {
		fmt.Fprintf(w, "  Failed:      %d\n", r.Failed)
	}
	fmt.Fprintf(w, "  Duration:    %s\n", r.Duration().Round(time.Millisecond))
}

func colorOutcome(o Outcome) string {
	switch o {
	case OutcomeCreated:
		return color.New(color.FgGreen).Sprint(string(o))
	case OutcomeOverwritten:
		return color.New(color.FgYellow).Sprint(string(o))
	case OutcomeSkipped:
		return color.New(color.FgCyan).Sprint(string(o))
	case OutcomeFailed:
		return color.New(color.FgRed).Sprint(string(o))
	default:
		return string(o)
	}
}
