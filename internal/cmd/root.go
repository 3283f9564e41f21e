// Package cmd implements the xlaude command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// Command groups shown in help.
const (
	GroupWorkspace = "workspace"
	GroupSession   = "session"
	GroupDiag      = "diag"
)

// Exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitStateCorrupt = 3
)

var (
	verbose bool
	yesFlag bool

	logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
)

var rootCmd = &cobra.Command{
	Use:   "xlaude",
	Short: "Manage git worktrees as AI coding workspaces",
	Long: `xlaude keeps a registry of git worktrees ("workspaces") and runs an AI
coding assistant for each one in its own tmux session.

Create a workspace with 'xlaude create', start its assistant with
'xlaude start', and watch all of them with 'xlaude dashboard'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupWorkspace, Title: "Workspaces:"},
		&cobra.Group{ID: GroupSession, Title: "Sessions:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Answer yes to confirmations (also XLAUDE_YES=1)")
}

// setupLogging applies --verbose and XLAUDE_LOG_LEVEL to the CLI logger.
func setupLogging() error {
	if verbose {
		logger.SetLevel(log.DebugLevel)
		return nil
	}
	if lvl := os.Getenv(constants.EnvLogLevel); lvl != "" {
		level, err := log.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return xerr.Invalid("config", "%s: %v", constants.EnvLogLevel, err)
		}
		logger.SetLevel(level)
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errCancelled) {
		fmt.Fprintln(os.Stderr, xerr.Format(err))
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, errCancelled):
		return exitOK
	case xerr.IsFatal(err):
		return exitStateCorrupt
	default:
		return exitError
	}
}

// errCancelled ends a command the user declined to confirm.
var errCancelled = errors.New("cancelled")
