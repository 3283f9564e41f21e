package cmd

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/config"
	"github.com/leowmjw/xlaude/internal/dashboard"
	"github.com/leowmjw/xlaude/internal/reconcile"
	"github.com/leowmjw/xlaude/internal/session"
	"github.com/leowmjw/xlaude/internal/xerr"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"ui"},
	GroupID: GroupSession,
	Short:   "Interactive view of all workspaces and their sessions",
	Long: `Open the interactive dashboard.

Keys:
  ↑/k ↓/j    move
  enter/a    attach to the selected session (detach returns here)
  s / x      start / stop the selected session
  p          toggle the output preview
  r          refresh now
  c          drop workspaces whose worktree is gone
  q          quit (sessions keep running)

Logs are written to xlaude.log in the state directory.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return xerr.Invalid("dashboard", "the dashboard needs a terminal")
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	dlog, closeLog, err := dashboardLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	sessions := session.New(a.tmux, a.resolver, session.Options{
		Prefix: a.settings.SessionPrefix,
		Logger: dlog,
	})
	return dashboard.Run(a.ctx, dashboard.Options{
		Store:           a.store.WithLogger(dlog),
		Registry:        reg,
		Sessions:        sessions,
		Reconciler:      reconcile.New(a.git, dlog),
		RefreshInterval: a.settings.RefreshInterval.Duration,
		VCSInterval:     a.settings.VcsRefreshInterval.Duration,
		PreviewLines:    a.settings.PreviewLines,
		Logger:          dlog,
	})
}

func dashboardLogger() (*log.Logger, func(), error) {
	path, err := config.LogPath()
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.KindIO, "dashboard", err, "locating log file")
	}
	dir, err := config.StateDir()
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.KindIO, "dashboard", err, "locating state directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, xerr.Wrap(xerr.KindIO, "dashboard", err, "creating %s", dir)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.KindIO, "dashboard", err, "opening %s", path)
	}
	l := log.NewWithOptions(f, log.Options{
		Level:           logger.GetLevel(),
		ReportTimestamp: true,
	})
	if l.GetLevel() > log.InfoLevel {
		l.SetLevel(log.InfoLevel)
	}
	return l, func() { f.Close() }, nil
}
