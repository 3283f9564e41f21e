package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/doctor"
	"github.com/leowmjw/xlaude/internal/reconcile"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupDiag,
	Short:   "Check the installation and workspace health",
	Long: `Run health checks:

  git-binary, tmux-binary   installed and new enough
  state-file                the registry can be read
  stale-workspaces          entries whose worktree is gone (fixable)
  orphan-sessions           xlaude tmux sessions with no workspace (fixable)

Use --fix to repair what can be repaired automatically.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Attempt to automatically fix issues")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, loadErr := a.store.Load()

	ctx := &doctor.CheckContext{
		Ctx:        a.ctx,
		Store:      a.store,
		Registry:   reg,
		LoadErr:    loadErr,
		Sessions:   a.sessions,
		Reconciler: reconcile.New(a.git, logger),
		Verbose:    verbose,
	}

	d := doctor.Default()
	var report *doctor.Report
	if doctorFix {
		report = d.Fix(ctx)
	} else {
		report = d.Run(ctx)
	}
	report.Print(os.Stdout, verbose)

	if report.HasErrors() {
		return fmt.Errorf("%d check(s) failed", report.Summary.Errors)
	}
	return nil
}
