package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/xerr"
)

var createStart bool

var createCmd = &cobra.Command{
	Use:     "create [name]",
	GroupID: GroupWorkspace,
	Short:   "Create a worktree and register it as a workspace",
	Long: `Create a new git worktree on a new branch and register it.

The branch is named after the workspace and starts from the main
worktree's HEAD. The worktree is placed according to worktree_dir in
config.toml (default "../{repo}-{name}", relative to the main worktree).
Without a name a random one is chosen.

Examples:
  xlaude create auth-fix
  xlaude create auth-fix --start   # also start its assistant in tmux`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().BoolVar(&createStart, "start", false, "Start the assistant session after creating")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	const op = "create"
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	repo, err := a.currentRepo()
	if err != nil {
		return err
	}

	name := randomName()
	if len(args) > 0 {
		name = args[0]
	}
	if err := validateName(name); err != nil {
		return err
	}

	reg, err := a.store.Load()
	if err != nil {
		return err
	}
	key := registry.MakeKey(repo.name, name)
	if _, ok := reg.Find(key); ok {
		return xerr.Conflict(op, "workspace %s already exists", key)
	}
	path := a.settings.WorktreePath(repo.main, repo.name, name)
	if _, err := os.Stat(path); err == nil {
		return xerr.Conflict(op, "%s already exists", path)
	}

	fmt.Printf("Creating worktree %s on branch %s...\n", style.Bold.Render(key), name)
	ws := registry.Workspace{
		Name:      name,
		Branch:    name,
		Path:      path,
		RepoName:  repo.name,
		CreatedAt: time.Now().UTC(),
	}
	if err := addAndRegister(a.ctx, a.git, a.store, reg, repo.main, ws); err != nil {
		return err
	}
	fmt.Printf("%s Created %s at %s\n", style.SuccessPrefix, key, path)

	if createStart {
		return startSession(a, ws)
	}
	fmt.Printf("  %s xlaude open %s   or   xlaude start %s\n", style.ArrowPrefix, name, name)
	return nil
}

type worktreeAdder interface {
	AddWorktree(ctx context.Context, repoDir, branch, path string) error
	RemoveWorktree(ctx context.Context, repoDir, path string, force bool) error
}

type registrySaver interface {
	Save(reg *registry.Registry) error
}

// addAndRegister creates ws's worktree and records it. When the entry
// cannot be recorded the new worktree is removed again so that no
// unregistered tree is left behind.
func addAndRegister(ctx context.Context, vcs worktreeAdder, store registrySaver, reg *registry.Registry, repoMain string, ws registry.Workspace) error {
	const op = "create"
	if err := vcs.AddWorktree(ctx, repoMain, ws.Branch, ws.Path); err != nil {
		return xerr.Wrap(xerr.KindExternalTool, op, err, "adding worktree")
	}

	err := reg.Insert(ws)
	if err == nil {
		if err = store.Save(reg); err != nil {
			reg.Remove(ws.Key())
		}
	}
	if err == nil {
		return nil
	}
	if rmErr := vcs.RemoveWorktree(ctx, repoMain, ws.Path, true); rmErr != nil {
		logger.Warn("removing unregistered worktree", "path", ws.Path, "err", rmErr)
		return errors.Join(err, xerr.Wrap(xerr.KindExternalTool, op, rmErr, "worktree %s left on disk", ws.Path))
	}
	return err
}
