package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dirCmd = &cobra.Command{
	Use:     "dir [name]",
	GroupID: GroupWorkspace,
	Short:   "Print a workspace's directory",
	Long: `Print the worktree path of a workspace, for use with cd:

  cd "$(xlaude dir auth-fix)"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDir,
}

func init() {
	rootCmd.AddCommand(dirCmd)
}

func runDir(cmd *cobra.Command, args []string) error {
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
	fmt.Println(ws.Path)
	return nil
}
