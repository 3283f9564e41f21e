package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/xerr"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete [name]",
	Aliases: []string{"rm"},
	GroupID: GroupWorkspace,
	Short:   "Remove a workspace, its worktree and its session",
	Long: `Delete a workspace: stop its tmux session, remove the worktree and
unregister it. The branch is deleted too when it is merged into the
default branch.

Refuses when the worktree has uncommitted changes or unpushed commits
unless --force is given. Asks before deleting a worktree whose branch is
not merged (--yes or XLAUDE_YES=1 answers yes).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete even with uncommitted changes or unpushed commits")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	const op = "delete"
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}
	ws, err := a.target(reg, args)
	if err != nil {
		return err
	}

	if _, err := os.Stat(ws.Path); err != nil {
		// The tree is already gone; only the bookkeeping remains.
		style.PrintWarning("worktree %s no longer exists; removing the entry", ws.Path)
		return forget(a, reg, ws)
	}

	if !deleteForce {
		if err := checkClean(a, ws); err != nil {
			return err
		}
	}

	main, err := a.git.MainWorktree(a.ctx, ws.Path)
	if err != nil {
		return xerr.Wrap(xerr.KindExternalTool, op, err, "locating main worktree")
	}
	merged := false
	if base, err := a.git.DefaultBranch(a.ctx, main); err == nil {
		merged, _ = a.git.IsBranchMerged(a.ctx, main, ws.Branch, base)
		if !merged {
			ok, err := confirm(fmt.Sprintf("Branch %s is not merged into %s. Delete the worktree anyway?", ws.Branch, base), false)
			if err != nil {
				return err
			}
			if !ok {
				return errCancelled
			}
		}
	}

	if err := a.sessions.Stop(a.ctx, ws); err != nil {
		style.PrintWarning("could not stop session: %v", err)
	}
	if err := a.git.RemoveWorktree(a.ctx, main, ws.Path, deleteForce); err != nil {
		return xerr.Wrap(xerr.KindExternalTool, op, err, "removing worktree")
	}
	if merged {
		if err := a.git.DeleteBranch(a.ctx, main, ws.Branch, false); err != nil {
			style.PrintWarning("could not delete branch %s: %v", ws.Branch, err)
		} else {
			fmt.Printf("%s Deleted merged branch %s\n", style.SuccessPrefix, ws.Branch)
		}
	}
	return forget(a, reg, ws)
}

// checkClean refuses to delete a tree holding work that exists nowhere else.
func checkClean(a *app, ws registry.Workspace) error {
	const op = "delete"
	dirty, err := a.git.HasUncommittedChanges(a.ctx, ws.Path)
	if err != nil {
		return xerr.Wrap(xerr.KindExternalTool, op, err, "checking %s for changes", ws.Path)
	}
	if dirty {
		return xerr.Conflict(op, "%s has uncommitted changes", ws.Key()).WithHint("commit or stash them, or pass --force")
	}
	// A branch without an upstream has nothing to compare against.
	if ahead, _, err := a.git.AheadBehind(a.ctx, ws.Path, ws.Branch, ""); err == nil && ahead > 0 {
		return xerr.Conflict(op, "%s has %d unpushed commit(s)", ws.Key(), ahead).WithHint("push them, or pass --force")
	}
	return nil
}

func forget(a *app, reg *registry.Registry, ws registry.Workspace) error {
	reg.Remove(ws.Key())
	a.sessions.Forget(ws.Key())
	if err := a.store.Save(reg); err != nil {
		return err
	}
	fmt.Printf("%s Deleted %s\n", style.SuccessPrefix, ws.Key())
	return nil
}
