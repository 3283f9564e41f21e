package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/xerr"
)

var addCmd = &cobra.Command{
	Use:     "add [name]",
	GroupID: GroupWorkspace,
	Short:   "Register the current worktree as a workspace",
	Long: `Register an existing worktree (the current directory) with xlaude.

The name defaults to the checked-out branch with "/" replaced by "-".
Base branches (main, master, develop) cannot be added.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	repo, err := a.currentRepo()
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	ws, err := addCurrent(reg, repo, name)
	if err != nil {
		return err
	}
	if err := a.store.Save(reg); err != nil {
		return err
	}
	fmt.Printf("%s Added %s (%s)\n", style.SuccessPrefix, ws.Key(), ws.Path)
	return nil
}

// addCurrent registers the current worktree in reg.
func addCurrent(reg *registry.Registry, repo *repoContext, name string) (registry.Workspace, error) {
	const op = "add"
	if constants.IsBaseBranch(repo.branch) {
		return registry.Workspace{}, xerr.Invalid(op, "%s is a base branch", repo.branch).
			WithHint("create a workspace with 'xlaude create' instead")
	}
	if existing, ok := reg.FindByPath(repo.root); ok {
		return registry.Workspace{}, xerr.Conflict(op, "%s is already registered as %s", repo.root, existing.Key())
	}
	if name == "" {
		name = nameFromBranch(repo.branch)
	}
	if err := validateName(name); err != nil {
		return registry.Workspace{}, err
	}

	ws := registry.Workspace{
		Name:      name,
		Branch:    repo.branch,
		Path:      repo.root,
		RepoName:  repo.name,
		CreatedAt: time.Now().UTC(),
	}
	if err := reg.Insert(ws); err != nil {
		return registry.Workspace{}, err
	}
	return ws, nil
}
