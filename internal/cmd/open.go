package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/runtime"
	"github.com/leowmjw/xlaude/internal/style"
)

var openCmd = &cobra.Command{
	Use:     "open [name]",
	GroupID: GroupWorkspace,
	Short:   "Run the assistant in a workspace in this terminal",
	Long: `Open a workspace and run the first available AI assistant in the
foreground (opencode, qwen, then claude; see XLAUDE_AGENT_ORDER).

Without a name, the current worktree is used. A worktree not yet managed
by xlaude is offered for registration first. Otherwise a name is read
from piped input, or chosen interactively.

To run the assistant in the background instead, use 'xlaude start'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}

	ws, ok, err := openCurrent(a, reg, args)
	if err != nil {
		return err
	}
	if !ok {
		if ws, err = a.target(reg, args); err != nil {
			return err
		}
	}
	return launchForeground(a, ws)
}

// openCurrent handles `open` without a name inside a linked worktree on a
// non-base branch, registering the tree if the user agrees. ok is false
// when the caller should resolve the workspace the usual way.
func openCurrent(a *app, reg *registry.Registry, args []string) (registry.Workspace, bool, error) {
	if len(args) > 0 {
		return registry.Workspace{}, false, nil
	}
	repo, err := a.currentRepo()
	if err != nil || !repo.isLinkedTree() || constants.IsBaseBranch(repo.branch) {
		return registry.Workspace{}, false, nil
	}
	if ws, ok := reg.FindByPath(repo.root); ok {
		return ws, true, nil
	}
	// A piped name takes precedence over the unmanaged current tree.
	if isPipedInput() {
		return registry.Workspace{}, false, nil
	}

	fmt.Printf("%s The current worktree is not managed by xlaude\n", style.WarningPrefix)
	fmt.Printf("  Worktree: %s/%s\n", repo.name, repo.branch)
	fmt.Printf("  Path:     %s\n", repo.root)
	add, err := confirm("Add it to xlaude and open it?", true)
	if err != nil {
		return registry.Workspace{}, false, err
	}
	if !add {
		return registry.Workspace{}, false, errCancelled
	}
	ws, err := addCurrent(reg, repo, "")
	if err != nil {
		return registry.Workspace{}, false, err
	}
	if err := a.store.Save(reg); err != nil {
		return registry.Workspace{}, false, err
	}
	fmt.Printf("%s Added %s\n", style.SuccessPrefix, ws.Key())
	return ws, true, nil
}

// launchForeground runs the assistant in ws attached to this terminal.
func launchForeground(a *app, ws registry.Workspace) error {
	sel, err := a.resolver.Resolve()
	if err != nil {
		return err
	}
	stdinMode := runtime.StdinInherit
	if isPipedInput() {
		drainStdin()
		stdinMode = runtime.StdinNull
	}

	fmt.Printf("Opening %s with %s...\n", style.Bold.Render(ws.Key()), sel.Tool.Name)
	logger.Debug("launching", "workspace", ws.Key(), "command", sel.Command())
	return runtime.Launch(a.ctx, sel, ws.Path, agentEnv(ws, ""), stdinMode)
}
