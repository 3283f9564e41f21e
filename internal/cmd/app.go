package cmd

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/config"
	"github.com/leowmjw/xlaude/internal/git"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/runtime"
	"github.com/leowmjw/xlaude/internal/session"
	"github.com/leowmjw/xlaude/internal/tmux"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// app bundles the collaborators a command needs.
type app struct {
	ctx      context.Context
	settings *config.Settings
	store    *registry.Store
	git      *git.Git
	tmux     *tmux.Tmux
	resolver *runtime.Resolver
	sessions *session.Orchestrator
}

func newApp(cmd *cobra.Command) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	statePath, err := config.StatePath()
	if err != nil {
		return nil, xerr.Wrap(xerr.KindIO, "config", err, "locating state file")
	}

	t := tmux.NewTmux()
	resolver := runtime.NewResolver(settings.AgentOrder)
	return &app{
		ctx:      cmd.Context(),
		settings: settings,
		store:    registry.NewStore(statePath).WithLogger(logger),
		git:      git.New(),
		tmux:     t,
		resolver: resolver,
		sessions: session.New(t, resolver, session.Options{
			Prefix: settings.SessionPrefix,
			Logger: logger,
		}),
	}, nil
}

// repoContext describes the git repository the current directory is in.
type repoContext struct {
	root   string // top of the current working tree
	main   string // main worktree
	name   string
	branch string
}

func (a *app) currentRepo() (*repoContext, error) {
	const op = "repo"
	cwd, err := os.Getwd()
	if err != nil {
		return nil, xerr.Wrap(xerr.KindIO, op, err, "reading working directory")
	}
	root, err := a.git.RepoRoot(a.ctx, cwd)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInvalid, op, err, "not in a git repository")
	}
	main, err := a.git.MainWorktree(a.ctx, cwd)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindExternalTool, op, err, "locating main worktree")
	}
	name, err := a.git.RepoName(a.ctx, cwd)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindExternalTool, op, err, "reading repository name")
	}
	branch, err := a.git.CurrentBranch(a.ctx, cwd)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindExternalTool, op, err, "reading current branch")
	}
	return &repoContext{root: root, main: main, name: name, branch: branch}, nil
}

// isLinkedTree reports whether the current tree is a linked worktree
// rather than the main one.
func (r *repoContext) isLinkedTree() bool {
	return filepath.Clean(r.root) != filepath.Clean(r.main)
}

// lookup resolves a workspace argument: "repo/name", or a bare name that
// is unique or belongs to the current repository.
func (a *app) lookup(reg *registry.Registry, arg string) (registry.Workspace, error) {
	const op = "lookup"
	if strings.Contains(arg, registry.KeySeparator) {
		if ws, ok := reg.Find(arg); ok {
			return ws, nil
		}
		return registry.Workspace{}, notFound(op, arg)
	}

	matches := reg.FindByName(arg)
	switch len(matches) {
	case 0:
		return registry.Workspace{}, notFound(op, arg)
	case 1:
		return matches[0], nil
	}
	if repo, err := a.currentRepo(); err == nil {
		if ws, ok := reg.Find(registry.MakeKey(repo.name, arg)); ok {
			return ws, nil
		}
	}
	keys := make([]string, len(matches))
	for i, ws := range matches {
		keys[i] = ws.Key()
	}
	return registry.Workspace{}, xerr.Conflict(op, "%q is ambiguous: %s", arg, strings.Join(keys, ", ")).
		WithHint("use the repo/name form")
}

func notFound(op, arg string) error {
	return xerr.NotFound(op, "workspace %q not found", arg).WithHint("run 'xlaude list' to see workspaces")
}

// current returns the workspace registered for the working directory.
func (a *app) current(reg *registry.Registry) (registry.Workspace, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return registry.Workspace{}, false
	}
	root, err := a.git.RepoRoot(a.ctx, cwd)
	if err != nil {
		return registry.Workspace{}, false
	}
	return reg.FindByPath(root)
}

// target resolves the workspace a command acts on: the argument, else the
// current directory's workspace, else a name piped on stdin, else an
// interactive choice.
func (a *app) target(reg *registry.Registry, args []string) (registry.Workspace, error) {
	if len(args) > 0 {
		return a.lookup(reg, args[0])
	}
	if ws, ok := a.current(reg); ok {
		return ws, nil
	}
	if reg.Len() == 0 {
		return registry.Workspace{}, xerr.NotFound("lookup", "no workspaces").
			WithHint("create one with 'xlaude create'")
	}
	if isPipedInput() {
		name, err := readPipedLine()
		if err != nil {
			return registry.Workspace{}, err
		}
		if name != "" {
			return a.lookup(reg, name)
		}
	}
	return selectWorkspace(reg.All())
}

var validNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func validateName(name string) error {
	if !validNameRe.MatchString(name) {
		return xerr.Invalid("name", "invalid workspace name %q", name).
			WithHint("use letters, digits, '.', '_' and '-'")
	}
	return nil
}

// nameFromBranch derives a workspace name from a branch.
func nameFromBranch(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// randomName returns a short unique workspace name.
func randomName() string {
	return "ws-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// agentEnv is the environment given to an assistant in ws.
func agentEnv(ws registry.Workspace, sessionName string) map[string]string {
	return config.AgentEnv(config.AgentEnvConfig{
		WorkspaceKey: ws.Key(),
		Repo:         ws.RepoName,
		Branch:       ws.Branch,
		SessionName:  sessionName,
	})
}
