package doctor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/leowmjw/xlaude/internal/deps"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// ToolCheck verifies that an external binary is installed and new enough.
type ToolCheck struct {
	BaseCheck
	tool deps.Tool
}

// NewToolCheck creates a check for t.
func NewToolCheck(t deps.Tool) *ToolCheck {
	return &ToolCheck{
		BaseCheck: BaseCheck{
			CheckName:        t.Name + "-binary",
			CheckDescription: fmt.Sprintf("Check that %s is installed (>= %s)", t.Name, t.MinVersion),
		},
		tool: t,
	}
}

// Run executes the version probe.
func (c *ToolCheck) Run(ctx *CheckContext) *CheckResult {
	res := deps.Check(contextOf(ctx), c.tool)
	result := &CheckResult{Name: c.Name()}

	switch res.Status {
	case deps.StatusOK:
		result.Status = StatusOK
		result.Message = fmt.Sprintf("%s %s", c.tool.Name, res.Version)
	case deps.StatusNotFound:
		result.Status = StatusError
		result.Message = fmt.Sprintf("%s not found in PATH", c.tool.Binary)
		result.FixHint = "Install from " + c.tool.InstallURL
	case deps.StatusTooOld:
		result.Status = StatusError
		result.Message = fmt.Sprintf("%s %s is older than the required %s", c.tool.Name, res.Version, c.tool.MinVersion)
		result.FixHint = "Upgrade from " + c.tool.InstallURL
	case deps.StatusExecFailed:
		result.Status = StatusError
		result.Message = fmt.Sprintf("%s is installed but could not run", c.tool.Name)
		result.Details = []string{res.Detail}
	default:
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("could not parse %s version", c.tool.Name)
		result.Details = []string{res.Detail}
	}
	return result
}

// StateFileCheck verifies that the state file can be read.
type StateFileCheck struct {
	BaseCheck
}

// NewStateFileCheck creates a new state file check.
func NewStateFileCheck() *StateFileCheck {
	return &StateFileCheck{
		BaseCheck: BaseCheck{
			CheckName:        "state-file",
			CheckDescription: "Check that the workspace state file is readable",
		},
	}
}

// Run reports the outcome of the load performed before the checks ran.
func (c *StateFileCheck) Run(ctx *CheckContext) *CheckResult {
	path := ""
	if ctx.Store != nil {
		path = ctx.Store.Path()
	}
	if ctx.LoadErr != nil {
		result := &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "state file could not be loaded",
			Details: []string{ctx.LoadErr.Error()},
		}
		if xerr.Is(ctx.LoadErr, xerr.KindStateCorrupt) {
			result.FixHint = fmt.Sprintf("Move %s aside and re-add workspaces with 'xlaude add'", path)
		}
		return result
	}
	if ctx.Registry == nil {
		return &CheckResult{Name: c.Name(), Status: StatusWarning, Message: "state file not loaded"}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("%d workspace(s) in %s", ctx.Registry.Len(), path),
	}
}

// StaleWorkspaceCheck finds registry entries whose worktree no longer
// exists in git.
type StaleWorkspaceCheck struct {
	FixableCheck
}

// NewStaleWorkspaceCheck creates a new stale workspace check.
func NewStaleWorkspaceCheck() *StaleWorkspaceCheck {
	return &StaleWorkspaceCheck{
		FixableCheck: FixableCheck{
			BaseCheck: BaseCheck{
				CheckName:        "stale-workspaces",
				CheckDescription: "Check for workspaces whose worktree was removed outside xlaude",
			},
		},
	}
}

// Run reconciles a copy of the registry and reports what would be dropped.
func (c *StaleWorkspaceCheck) Run(ctx *CheckContext) *CheckResult {
	if res, ok := ctx.registryReady(c.Name()); !ok {
		return res
	}
	if ctx.Reconciler == nil {
		return &CheckResult{Name: c.Name(), Status: StatusWarning, Message: "skipped: git unavailable"}
	}

	rep := ctx.Reconciler.Run(contextOf(ctx), ctx.Registry.Clone())
	result := &CheckResult{Name: c.Name(), Status: StatusOK}

	for _, key := range rep.Removed {
		result.Details = append(result.Details, "stale: "+key)
	}
	for _, repo := range sortedRepos(rep.Failed) {
		result.Details = append(result.Details, fmt.Sprintf("unreadable: %s: %v", repo, rep.Failed[repo]))
	}

	switch {
	case len(rep.Removed) > 0:
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d stale workspace(s)", len(rep.Removed))
		result.FixHint = "Run 'xlaude doctor --fix' or 'xlaude clean' to drop them"
	case len(rep.Failed) > 0:
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d repository(ies) could not be read", len(rep.Failed))
	default:
		result.Message = "all workspaces have a worktree"
	}
	return result
}

// Fix drops stale entries and saves the registry.
func (c *StaleWorkspaceCheck) Fix(ctx *CheckContext) error {
	if ctx.Registry == nil || ctx.Reconciler == nil || ctx.Store == nil {
		return ErrCannotFix
	}
	rep := ctx.Reconciler.Run(contextOf(ctx), ctx.Registry)
	if len(rep.Removed) == 0 {
		return nil
	}
	if ctx.Sessions != nil {
		for _, key := range rep.Removed {
			ctx.Sessions.Forget(key)
		}
	}
	return ctx.Store.Save(ctx.Registry)
}

// OrphanSessionCheck finds xlaude tmux sessions that no workspace owns,
// typically left behind by a workspace deleted while its agent ran.
type OrphanSessionCheck struct {
	FixableCheck
}

// NewOrphanSessionCheck creates a new orphan session check.
func NewOrphanSessionCheck() *OrphanSessionCheck {
	return &OrphanSessionCheck{
		FixableCheck: FixableCheck{
			BaseCheck: BaseCheck{
				CheckName:        "orphan-sessions",
				CheckDescription: "Check for tmux sessions with no workspace",
			},
		},
	}
}

// Run lists sessions and compares them to the registry.
func (c *OrphanSessionCheck) Run(ctx *CheckContext) *CheckResult {
	if res, ok := ctx.registryReady(c.Name()); !ok {
		return res
	}
	if ctx.Sessions == nil {
		return &CheckResult{Name: c.Name(), Status: StatusWarning, Message: "skipped: tmux unavailable"}
	}

	orphans, err := ctx.Sessions.Orphans(contextOf(ctx), ctx.Registry)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "could not list tmux sessions",
			Details: []string{err.Error()},
		}
	}
	if len(orphans) == 0 {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no orphaned sessions"}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusWarning,
		Message: fmt.Sprintf("%d orphaned session(s)", len(orphans)),
		Details: orphans,
		FixHint: "Run 'xlaude doctor --fix' to kill them",
	}
}

// Fix kills every orphaned session.
func (c *OrphanSessionCheck) Fix(ctx *CheckContext) error {
	if ctx.Registry == nil || ctx.Sessions == nil {
		return ErrCannotFix
	}
	orphans, err := ctx.Sessions.Orphans(contextOf(ctx), ctx.Registry)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range orphans {
		if err := ctx.Sessions.Kill(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func contextOf(ctx *CheckContext) context.Context {
	if ctx.Ctx != nil {
		return ctx.Ctx
	}
	return context.Background()
}

func sortedRepos(m map[string]error) []string {
	repos := make([]string, 0, len(m))
	for r := range m {
		repos = append(repos, r)
	}
	sort.Strings(repos)
	return repos
}
