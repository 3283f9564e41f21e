package reconcile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/leowmjw/xlaude/internal/git"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// VCS is the subset of the git gateway reconciliation needs.
// *git.Git implements it.
type VCS interface {
	MainWorktree(ctx context.Context, dir string) (string, error)
	ListWorktrees(ctx context.Context, repoDir string) ([]git.Worktree, error)
}

var _ VCS = (*git.Git)(nil)

// Report summarizes a Run.
type Report struct {
	// Removed holds the dropped keys, sorted.
	Removed []string
	// Failed maps a repository name to the error that prevented its
	// reconciliation. Its entries were left untouched.
	Failed map[string]error
}

// Reconciler reconciles every repository in a registry against git.
type Reconciler struct {
	vcs    VCS
	logger *log.Logger
}

// New returns a Reconciler. A nil logger discards output.
func New(vcs VCS, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Reconciler{vcs: vcs, logger: logger.WithPrefix("reconcile")}
}

// Run reconciles each repository independently. A repository whose git
// state cannot be read is recorded in Report.Failed and keeps the entries
// it could not check; the other repositories are still reconciled.
func (r *Reconciler) Run(ctx context.Context, reg *registry.Registry) Report {
	rep := Report{Failed: make(map[string]error)}
	for _, repo := range reg.Repositories() {
		if err := ctx.Err(); err != nil {
			rep.Failed[repo] = err
			continue
		}
		dropped, err := r.RunRepo(ctx, reg, repo)
		rep.Removed = append(rep.Removed, dropped...)
		if err != nil {
			r.logger.Warn("skipping repository", "repo", repo, "err", err)
			rep.Failed[repo] = err
		}
	}
	sort.Strings(rep.Removed)
	return rep
}

// RunRepo reconciles the entries named repo and returns the dropped keys.
//
// Distinct repositories can share a name, so entries are grouped by the
// main worktree their directory resolves to and each group is checked only
// against its own repository's worktree list. A group whose list cannot
// be read keeps its entries. Entries whose directory is gone are dropped
// unless some group still lists them; they are kept whenever any lookup
// for the name failed. When no entry's directory exists the repository is
// unreachable and every one of its trees is gone.
func (r *Reconciler) RunRepo(ctx context.Context, reg *registry.Registry, repo string) ([]string, error) {
	const op = "reconcile"

	groups := make(map[string][]registry.Workspace)
	var missing []registry.Workspace
	var errs []error
	for _, ws := range reg.InRepository(repo) {
		if !pathExists(ws.Path) {
			missing = append(missing, ws)
			continue
		}
		main, err := r.vcs.MainWorktree(ctx, ws.Path)
		if err != nil {
			errs = append(errs, xerr.Wrap(xerr.KindExternalTool, op, err, "locating repository of %s", ws.Key()))
			continue
		}
		main = filepath.Clean(main)
		groups[main] = append(groups[main], ws)
	}

	var drop []string
	listed := NewSnapshot()
	for _, main := range sortedMains(groups) {
		members := groups[main]
		trees, err := r.vcs.ListWorktrees(ctx, main)
		if err != nil {
			errs = append(errs, xerr.Wrap(xerr.KindExternalTool, op, err, "listing worktrees of %s", main))
			continue
		}
		snapshot := NewSnapshot()
		for _, t := range trees {
			if t.Prunable || t.Bare {
				continue
			}
			snapshot.Add(t.Path)
			listed.Add(t.Path)
		}
		aliasSymlinks(snapshot, members)
		drop = append(drop, plan(members, snapshot).ToDrop...)
	}

	if len(groups) == 0 && len(errs) == 0 {
		r.logger.Info("repository unreachable, all trees gone", "repo", repo)
	}
	if len(errs) == 0 {
		drop = append(drop, plan(missing, listed).ToDrop...)
	}

	sort.Strings(drop)
	Apply(RepairPlan{ToDrop: drop}, reg)
	for _, key := range drop {
		r.logger.Info("dropped stale workspace", "key", key)
	}
	return drop, errors.Join(errs...)
}

func sortedMains(groups map[string][]registry.Workspace) []string {
	mains := make([]string, 0, len(groups))
	for main := range groups {
		mains = append(mains, main)
	}
	sort.Strings(mains)
	return mains
}

// aliasSymlinks adds a workspace's registered path to the snapshot when it
// resolves to a listed tree (e.g. /tmp vs /private/tmp on macOS).
func aliasSymlinks(snapshot Snapshot, workspaces []registry.Workspace) {
	for _, ws := range workspaces {
		if snapshot.Has(ws.Path) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(ws.Path)
		if err != nil {
			continue
		}
		if snapshot.Has(resolved) {
			snapshot.Add(ws.Path)
		}
	}
}

// pathExists is swapped in tests.
var pathExists = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
