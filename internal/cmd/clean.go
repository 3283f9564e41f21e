package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/reconcile"
	"github.com/leowmjw/xlaude/internal/style"
)

var cleanCmd = &cobra.Command{
	Use:     "clean",
	GroupID: GroupWorkspace,
	Short:   "Drop workspaces whose worktree no longer exists",
	Long: `Reconcile the registry with git: every workspace whose worktree was
removed outside xlaude (git worktree remove, rm -rf) is unregistered.

Each repository is handled on its own; one that cannot be read is
reported and left untouched.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}

	rep := reconcile.New(a.git, logger).Run(a.ctx, reg)

	repos := make([]string, 0, len(rep.Failed))
	for repo := range rep.Failed {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	for _, repo := range repos {
		style.PrintWarning("skipped %s: %v", repo, rep.Failed[repo])
	}

	if len(rep.Removed) == 0 {
		fmt.Println("Nothing to clean.")
		return nil
	}
	if err := a.store.Save(reg); err != nil {
		return err
	}
	for _, key := range rep.Removed {
		a.sessions.Forget(key)
		fmt.Printf("  %s removed %s\n", style.ArrowPrefix, key)
	}
	style.PrintSuccess("Removed %d stale workspace(s)", len(rep.Removed))
	return nil
}
