package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/session"
	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/xerr"
)

var (
	startAttach bool
	statusJSON  bool
)

var startCmd = &cobra.Command{
	Use:     "start [name]",
	GroupID: GroupSession,
	Short:   "Start the assistant for a workspace in a tmux session",
	Long: `Start the first available AI assistant for a workspace in a detached
tmux session. Starting a workspace whose session already runs does
nothing.

The session sees XLAUDE_WORKSPACE, XLAUDE_REPO, XLAUDE_BRANCH and
XLAUDE_SESSION in its environment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:     "stop [name]",
	GroupID: GroupSession,
	Short:   "Stop a workspace's tmux session",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runStop,
}

var attachCmd = &cobra.Command{
	Use:     "attach [name]",
	GroupID: GroupSession,
	Short:   "Attach the terminal to a workspace's session",
	Long: `Attach this terminal to the workspace's tmux session. Detach with the
tmux prefix key followed by d. Inside tmux the session opens in a popup.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAttach,
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupSession,
	Short:   "Show the session state of every workspace",
	Long: `Show each workspace's tmux session and whether it is running.

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	startCmd.Flags().BoolVarP(&startAttach, "attach", "a", false, "Attach after starting")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(startCmd, stopCmd, attachCmd, statusCmd)
}

// sessionTarget loads the registry and resolves the workspace argument.
func sessionTarget(cmd *cobra.Command, args []string) (*app, registry.Workspace, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, registry.Workspace{}, err
	}
	reg, err := a.store.Load()
	if err != nil {
		return nil, registry.Workspace{}, err
	}
	ws, err := a.target(reg, args)
	if err != nil {
		return nil, registry.Workspace{}, err
	}
	return a, ws, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	a, ws, err := sessionTarget(cmd, args)
	if err != nil {
		return err
	}
	if err := startSession(a, ws); err != nil {
		return err
	}
	if startAttach {
		return attach(a, ws)
	}
	return nil
}

func startSession(a *app, ws registry.Workspace) error {
	before := a.sessions.Status(a.ctx, ws)
	ls, err := a.sessions.Start(a.ctx, ws)
	if err != nil {
		return err
	}
	if before == session.Running {
		fmt.Printf("%s already running in %s\n", ws.Key(), ls.SessionName)
		return nil
	}
	style.PrintSuccess("Started %s in tmux session %s", ws.Key(), ls.SessionName)
	fmt.Printf("  %s xlaude attach %s\n", style.ArrowPrefix, ws.Name)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	a, ws, err := sessionTarget(cmd, args)
	if err != nil {
		return err
	}
	if err := a.sessions.Stop(a.ctx, ws); err != nil {
		return err
	}
	style.PrintSuccess("Stopped %s", ws.Key())
	return nil
}

func runAttach(cmd *cobra.Command, args []string) error {
	a, ws, err := sessionTarget(cmd, args)
	if err != nil {
		return err
	}
	return attach(a, ws)
}

func attach(a *app, ws registry.Workspace) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return xerr.Invalid("attach", "attaching needs a terminal")
	}
	return a.sessions.Attach(a.ctx, ws, session.Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}

	live, liveErr := a.sessions.Live(a.ctx, reg)
	if liveErr != nil {
		style.PrintWarning("tmux could not be queried: %v", liveErr)
	}

	if statusJSON {
		if live == nil {
			live = []session.LiveSession{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(live)
	}

	if len(live) == 0 {
		fmt.Println("No workspaces.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKSPACE\tSTATE\tSESSION")
	for _, ls := range live {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ls.WorkspaceKey, ls.State.Label(), ls.SessionName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if liveErr == nil {
		if orphans, err := a.sessions.Orphans(a.ctx, reg); err == nil && len(orphans) > 0 {
			fmt.Println()
			style.PrintWarning("%d tmux session(s) belong to no workspace; run 'xlaude doctor --fix'", len(orphans))
		}
	}
	return nil
}
