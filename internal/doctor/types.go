// Package doctor provides a framework for running health checks on an
// xlaude installation: its tools, its state file and the agreement between
// the registry, git and tmux.
package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/leowmjw/xlaude/internal/reconcile"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/session"
	"github.com/leowmjw/xlaude/internal/style"
)

// CheckStatus represents the result status of a health check.
type CheckStatus int

const (
	// StatusOK indicates the check passed.
	StatusOK CheckStatus = iota
	// StatusWarning indicates a non-critical issue.
	StatusWarning
	// StatusError indicates a critical problem.
	StatusError
)

// String returns a human-readable status.
func (s CheckStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "Warning"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// CheckContext carries what checks inspect and, when fixing, mutate.
type CheckContext struct {
	Ctx context.Context

	Store *registry.Store
	// Registry is nil when the state file could not be loaded; LoadErr
	// then says why.
	Registry *registry.Registry
	LoadErr  error

	Sessions   *session.Orchestrator
	Reconciler *reconcile.Reconciler

	Verbose bool
}

// registryReady reports whether registry-dependent checks can run, and
// returns the result to report when they cannot.
func (c *CheckContext) registryReady(name string) (*CheckResult, bool) {
	if c.Registry != nil {
		return nil, true
	}
	return &CheckResult{
		Name:    name,
		Status:  StatusWarning,
		Message: "skipped: state file could not be loaded",
	}, false
}

// CheckResult represents the outcome of a health check.
type CheckResult struct {
	Name    string      // Check name
	Status  CheckStatus // Result status
	Message string      // Primary result message
	Details []string    // Additional information
	FixHint string      // Suggestion if not auto-fixable
}

// Check defines the interface for a health check.
type Check interface {
	// Name returns the check identifier.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Run executes the check and returns a result.
	Run(ctx *CheckContext) *CheckResult

	// Fix attempts to automatically fix the issue.
	// Should only be called if CanFix() returns true.
	Fix(ctx *CheckContext) error

	// CanFix returns true if this check can automatically fix issues.
	CanFix() bool
}

// ReportSummary summarizes the results of all checks.
type ReportSummary struct {
	Total    int
	OK       int
	Warnings int
	Errors   int
	Fixed    int
}

// Report contains all check results and a summary.
type Report struct {
	Timestamp time.Time
	Checks    []*CheckResult
	Summary   ReportSummary
}

// NewReport creates an empty report with the current timestamp.
func NewReport() *Report {
	return &Report{Timestamp: time.Now()}
}

// Add adds a check result to the report and updates the summary.
func (r *Report) Add(result *CheckResult) {
	r.Checks = append(r.Checks, result)
	r.Summary.Total++

	switch result.Status {
	case StatusOK:
		r.Summary.OK++
	case StatusWarning:
		r.Summary.Warnings++
	case StatusError:
		r.Summary.Errors++
	}
}

// HasErrors returns true if any check reported an error.
func (r *Report) HasErrors() bool {
	return r.Summary.Errors > 0
}

// IsHealthy returns true if all checks passed without errors or warnings.
func (r *Report) IsHealthy() bool {
	return r.Summary.Errors == 0 && r.Summary.Warnings == 0
}

// Print outputs the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	for _, check := range r.Checks {
		printCheck(w, check, verbose)
	}
	fmt.Fprintln(w)
	r.printSummary(w)
}

func printCheck(w io.Writer, check *CheckResult, verbose bool) {
	var prefix string
	switch check.Status {
	case StatusOK:
		prefix = style.SuccessPrefix
	case StatusWarning:
		prefix = style.WarningPrefix
	case StatusError:
		prefix = style.ErrorPrefix
	}

	fmt.Fprintf(w, "%s %s: %s\n", prefix, check.Name, check.Message)

	// Details are noise for passing checks unless asked for.
	if verbose || check.Status != StatusOK {
		for _, detail := range check.Details {
			fmt.Fprintf(w, "    %s\n", style.Dim.Render(detail))
		}
	}
	if check.FixHint != "" && check.Status != StatusOK {
		fmt.Fprintf(w, "    %s %s\n", style.ArrowPrefix, check.FixHint)
	}
}

func (r *Report) printSummary(w io.Writer) {
	parts := []string{fmt.Sprintf("%d checks", r.Summary.Total)}

	if r.Summary.OK > 0 {
		parts = append(parts, style.Success.Render(fmt.Sprintf("%d passed", r.Summary.OK)))
	}
	if r.Summary.Fixed > 0 {
		parts = append(parts, style.Success.Render(fmt.Sprintf("%d fixed", r.Summary.Fixed)))
	}
	if r.Summary.Warnings > 0 {
		parts = append(parts, style.Warning.Render(fmt.Sprintf("%d warnings", r.Summary.Warnings)))
	}
	if r.Summary.Errors > 0 {
		parts = append(parts, style.Error.Render(fmt.Sprintf("%d errors", r.Summary.Errors)))
	}

	fmt.Fprintln(w, strings.Join(parts, ", "))
}
