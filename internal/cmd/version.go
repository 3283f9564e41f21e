package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/git"
	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/tmux"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: GroupDiag,
	Short:   "Print version information",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("xlaude %s\n", Version)
		if v, err := git.New().Version(cmd.Context()); err == nil {
			fmt.Printf("  git  %s\n", v)
		} else {
			fmt.Printf("  git  %s\n", style.Dim.Render("not found"))
		}
		if v, err := tmux.NewTmux().Version(); err == nil {
			fmt.Printf("  tmux %s\n", v)
		} else {
			fmt.Printf("  tmux %s\n", style.Dim.Render("not found"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
