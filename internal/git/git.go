// Package git provides a wrapper for the git worktree and branch queries
// xlaude needs, via subprocess.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leowmjw/xlaude/internal/constants"
)

// Common errors
var (
	ErrNotARepo       = errors.New("not a git repository")
	ErrBranchNotFound = errors.New("branch not found")
	ErrNoUpstream     = errors.New("no upstream configured")
)

// Error is a failed git invocation.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	cmd := "git"
	if len(e.Args) > 0 {
		cmd += " " + e.Args[0]
	}
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", cmd, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Worktree is one entry of `git worktree list --porcelain`.
type Worktree struct {
	Path     string
	Branch   string // short branch name; empty when detached
	Head     string
	Bare     bool
	Detached bool
	Prunable bool // git knows the directory is gone
}

// Git runs git subcommands.
type Git struct {
	binary string
}

// New returns a Git that runs the git binary found in PATH.
func New() *Git {
	return &Git{binary: "git"}
}

// run executes git in dir and returns trimmed stdout.
func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.GitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", g.wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// wrapError wraps git errors with context.
func (g *Git) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)
	if strings.Contains(stderr, "not a git repository") {
		return &Error{Args: args, Stderr: stderr, Err: ErrNotARepo}
	}
	if strings.Contains(stderr, "unknown revision") ||
		strings.Contains(stderr, "not a valid ref") ||
		(strings.Contains(stderr, "branch '") && strings.Contains(stderr, "not found")) {
		return &Error{Args: args, Stderr: stderr, Err: ErrBranchNotFound}
	}
	if strings.Contains(stderr, "no upstream configured") {
		return &Error{Args: args, Stderr: stderr, Err: ErrNoUpstream}
	}
	return &Error{Args: args, Stderr: stderr, Err: err}
}

// IsAvailable checks if git is installed and can be invoked.
func (g *Git) IsAvailable() bool {
	return exec.Command(g.binary, "--version").Run() == nil
}

// Version returns the git version string, e.g. "2.43.0".
func (g *Git) Version(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "", "--version")
	if err != nil {
		return "", err
	}
	// "git version 2.43.0" or "git version 2.39.3 (Apple Git-145)"
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return "", fmt.Errorf("unexpected git version output %q", out)
	}
	return fields[2], nil
}

// RepoRoot returns the top-level directory of the working tree containing dir.
func (g *Git) RepoRoot(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "rev-parse", "--show-toplevel")
}

// CommonDir returns the absolute path of the shared .git directory for dir.
// For a linked worktree this is the main repository's .git directory.
func (g *Git) CommonDir(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(dir, out)
	}
	return filepath.Clean(out), nil
}

// MainWorktree returns the main working tree of the repository containing dir.
func (g *Git) MainWorktree(ctx context.Context, dir string) (string, error) {
	common, err := g.CommonDir(ctx, dir)
	if err != nil {
		return "", err
	}
	if filepath.Base(common) == ".git" {
		return filepath.Dir(common), nil
	}
	// Bare repository: the common dir is the repository itself.
	return common, nil
}

// RepoName returns the repository name, taken from the main worktree's
// directory name so every linked tree of one repository agrees on it.
func (g *Git) RepoName(ctx context.Context, dir string) (string, error) {
	main, err := g.MainWorktree(ctx, dir)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(filepath.Base(main), ".git"), nil
}

// IsInWorktree reports whether dir is inside a git working tree.
func (g *Git) IsInWorktree(ctx context.Context, dir string) (bool, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		if errors.Is(err, ErrNotARepo) {
			return false, nil
		}
		return false, err
	}
	return out == "true", nil
}

// CurrentBranch returns the branch checked out in dir.
func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// DefaultBranch returns the branch origin/HEAD points to, falling back to
// the first existing base branch.
func (g *Git) DefaultBranch(ctx context.Context, dir string) (string, error) {
	if out, err := g.run(ctx, dir, "symbolic-ref", "--short", "refs/remotes/origin/HEAD"); err == nil && out != "" {
		return strings.TrimPrefix(out, "origin/"), nil
	}
	for _, b := range constants.BaseBranches {
		if g.BranchExists(ctx, dir, b) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: no default branch", ErrBranchNotFound)
}

// BranchExists reports whether a local branch exists.
func (g *Git) BranchExists(ctx context.Context, dir, branch string) bool {
	_, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// ListWorktrees lists the linked trees of the repository containing repoDir.
func (g *Git) ListWorktrees(ctx context.Context, repoDir string) ([]Worktree, error) {
	out, err := g.run(ctx, repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

// ParseWorktreeList parses `git worktree list --porcelain` output.
func ParseWorktreeList(out string) []Worktree {
	var res []Worktree
	var cur *Worktree

	flush := func() {
		if cur != nil && cur.Path != "" {
			res = append(res, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		if key == "worktree" {
			flush()
			cur = &Worktree{Path: filepath.Clean(value)}
			continue
		}
		if cur == nil {
			continue
		}
		switch key {
		case "HEAD":
			cur.Head = value
		case "branch":
			cur.Branch = strings.TrimPrefix(value, "refs/heads/")
		case "bare":
			cur.Bare = true
		case "detached":
			cur.Detached = true
		case "prunable":
			cur.Prunable = true
		}
	}
	flush()
	return res
}

// AddWorktree creates a linked tree at path checked out on branch,
// creating the branch from HEAD when it does not exist.
func (g *Git) AddWorktree(ctx context.Context, repoDir, branch, path string) error {
	args := []string{"worktree", "add"}
	if g.BranchExists(ctx, repoDir, branch) {
		args = append(args, path, branch)
	} else {
		args = append(args, "-b", branch, path)
	}
	_, err := g.run(ctx, repoDir, args...)
	return err
}

// RemoveWorktree removes the linked tree at path.
func (g *Git) RemoveWorktree(ctx context.Context, repoDir, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.run(ctx, repoDir, args...)
	return err
}

// PruneWorktrees drops administrative data for trees whose directory is gone.
func (g *Git) PruneWorktrees(ctx context.Context, repoDir string) error {
	_, err := g.run(ctx, repoDir, "worktree", "prune")
	return err
}

// DeleteBranch deletes a local branch.
func (g *Git) DeleteBranch(ctx context.Context, repoDir, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := g.run(ctx, repoDir, "branch", flag, branch)
	return err
}

// IsBranchMerged reports whether branch is merged into into.
func (g *Git) IsBranchMerged(ctx context.Context, repoDir, branch, into string) (bool, error) {
	out, err := g.run(ctx, repoDir, "branch", "--merged", into, "--format=%(refname:short)")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == branch {
			return true, nil
		}
	}
	return false, nil
}

// AheadBehind returns how many commits branch is ahead of and behind upstream.
// An empty upstream means the branch's configured upstream (branch@{upstream}).
func (g *Git) AheadBehind(ctx context.Context, dir, branch, upstream string) (ahead, behind int, err error) {
	if upstream == "" {
		upstream = branch + "@{upstream}"
	}
	out, err := g.run(ctx, dir, "rev-list", "--left-right", "--count", branch+"..."+upstream)
	if err != nil {
		return 0, 0, err
	}
	return parseAheadBehind(out)
}

func parseAheadBehind(out string) (int, int, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing ahead count %q: %w", fields[0], err)
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing behind count %q: %w", fields[1], err)
	}
	return ahead, behind, nil
}

// HasUncommittedChanges reports whether the tree at path has staged,
// unstaged or untracked changes.
func (g *Git) HasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	out, err := g.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Exists reports whether path exists on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
