package cmd

import (
	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/xerr"
)

var renameCmd = &cobra.Command{
	Use:     "rename <old> <new>",
	GroupID: GroupWorkspace,
	Short:   "Rename a workspace",
	Long: `Rename a workspace. Only the registry name changes; the branch and
worktree directory stay as they are.

A workspace whose session is running must be stopped first, since the
tmux session name is derived from the workspace name.`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	const op = "rename"
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}
	ws, err := a.lookup(reg, args[0])
	if err != nil {
		return err
	}
	if err := validateName(args[1]); err != nil {
		return err
	}
	if state := a.sessions.Status(a.ctx, ws); state.Live() {
		return xerr.Conflict(op, "%s has a %s session", ws.Key(), state).
			WithHint("stop it first: xlaude stop " + ws.Name)
	}

	renamed, err := reg.Rename(ws.Key(), args[1])
	if err != nil {
		return err
	}
	if err := a.store.Save(reg); err != nil {
		return err
	}
	a.sessions.Forget(ws.Key())
	style.PrintSuccess("Renamed %s to %s", ws.Key(), renamed.Key())
	return nil
}
