package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/leowmjw/xlaude/internal/git"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/xerr"
)

func TestExitCode(t *testing.T) {
	corrupt := xerr.New(xerr.KindStateCorrupt, "registry.load", "bad state")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"cancelled", errCancelled, exitOK},
		{"state corrupt", fmt.Errorf("loading: %w", corrupt), exitStateCorrupt},
		{"not found", xerr.NotFound("lookup", "missing"), exitError},
		{"plain", errors.New("boom"), exitError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%s) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestCommandsAreGrouped(t *testing.T) {
	groups := map[string]bool{GroupWorkspace: true, GroupSession: true, GroupDiag: true}
	for _, c := range rootCmd.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		if !groups[c.GroupID] {
			t.Errorf("command %q has group %q", c.Name(), c.GroupID)
		}
	}
}

func TestArgValidators(t *testing.T) {
	if err := renameCmd.Args(renameCmd, []string{"only-one"}); err == nil {
		t.Error("rename should require two arguments")
	}
	if err := startCmd.Args(startCmd, []string{"a", "b"}); err == nil {
		t.Error("start should take at most one argument")
	}
	if err := listCmd.Args(listCmd, []string{"x"}); err == nil {
		t.Error("list should take no arguments")
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"auth-fix", "v1.2", "a_b", "X"} {
		if err := validateName(name); err != nil {
			t.Errorf("validateName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", "a/b", "-lead", "has space", ".hidden"} {
		if err := validateName(name); !xerr.Is(err, xerr.KindInvalid) {
			t.Errorf("validateName(%q) = %v, want Invalid", name, err)
		}
	}
}

func TestRandomNameIsValid(t *testing.T) {
	a, b := randomName(), randomName()
	if err := validateName(a); err != nil {
		t.Errorf("randomName() = %q: %v", a, err)
	}
	if a == b {
		t.Errorf("randomName() repeated %q", a)
	}
}

func TestAddCurrent(t *testing.T) {
	reg := registry.New()
	repo := &repoContext{root: "/src/app-feat", main: "/src/app", name: "app", branch: "feature/login"}

	ws, err := addCurrent(reg, repo, "")
	if err != nil {
		t.Fatalf("addCurrent: %v", err)
	}
	if ws.Key() != "app/feature-login" || ws.Branch != "feature/login" || ws.Path != "/src/app-feat" {
		t.Errorf("added %+v", ws)
	}

	if _, err := addCurrent(reg, repo, "other"); !xerr.Is(err, xerr.KindConflict) {
		t.Errorf("re-adding the same path = %v, want Conflict", err)
	}

	base := &repoContext{root: "/src/app", main: "/src/app", name: "app", branch: "main"}
	if _, err := addCurrent(reg, base, ""); !xerr.Is(err, xerr.KindInvalid) {
		t.Errorf("adding a base branch = %v, want Invalid", err)
	}
}

func TestLookup(t *testing.T) {
	wd, wdErr := os.Getwd()
	if wdErr != nil {
		t.Fatal(wdErr)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	reg := registry.New()
	for _, ws := range []registry.Workspace{
		{Name: "fix", Branch: "fix", Path: "/src/a-fix", RepoName: "a"},
		{Name: "fix", Branch: "fix", Path: "/src/b-fix", RepoName: "b"},
		{Name: "solo", Branch: "solo", Path: "/src/a-solo", RepoName: "a"},
	} {
		if err := reg.Insert(ws); err != nil {
			t.Fatal(err)
		}
	}
	a := &app{ctx: context.Background(), git: git.New()}

	if ws, err := a.lookup(reg, "solo"); err != nil || ws.Key() != "a/solo" {
		t.Errorf("lookup(solo) = %v, %v", ws.Key(), err)
	}
	if ws, err := a.lookup(reg, "b/fix"); err != nil || ws.Path != "/src/b-fix" {
		t.Errorf("lookup(b/fix) = %v, %v", ws.Key(), err)
	}
	_, err := a.lookup(reg, "fix")
	if !xerr.Is(err, xerr.KindConflict) || !strings.Contains(err.Error(), "a/fix") {
		t.Errorf("lookup(fix) outside a repo = %v, want ambiguous Conflict", err)
	}
	if _, err := a.lookup(reg, "nope"); !xerr.Is(err, xerr.KindNotFound) {
		t.Errorf("lookup(nope) = %v, want NotFound", err)
	}
}

func TestSetupLoggingLevel(t *testing.T) {
	orig := logger.GetLevel()
	t.Cleanup(func() { logger.SetLevel(orig) })

	t.Setenv("XLAUDE_LOG_LEVEL", "INFO")
	if err := setupLogging(); err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	if logger.GetLevel() != log.InfoLevel {
		t.Errorf("level = %v, want info", logger.GetLevel())
	}

	t.Setenv("XLAUDE_LOG_LEVEL", "loud")
	if err := setupLogging(); !xerr.Is(err, xerr.KindInvalid) {
		t.Errorf("invalid level = %v, want Invalid", err)
	}
}

func TestConfirmAutoYes(t *testing.T) {
	t.Setenv("XLAUDE_YES", "1")
	ok, err := confirm("Proceed?", false)
	if err != nil || !ok {
		t.Errorf("confirm with XLAUDE_YES=1 = %v, %v", ok, err)
	}
}

type fakeWorktrees struct {
	added, removed []string
}

func (f *fakeWorktrees) AddWorktree(_ context.Context, _, _, path string) error {
	f.added = append(f.added, path)
	return nil
}

func (f *fakeWorktrees) RemoveWorktree(_ context.Context, _, path string, _ bool) error {
	f.removed = append(f.removed, path)
	return nil
}

type failingSaver struct{ err error }

func (s failingSaver) Save(*registry.Registry) error { return s.err }

func TestAddAndRegisterRollsBack(t *testing.T) {
	ws := registry.Workspace{Name: "feat", Branch: "feat", Path: "/src/app-feat", RepoName: "app"}

	t.Run("save fails", func(t *testing.T) {
		vcs := &fakeWorktrees{}
		reg := registry.New()
		saveErr := xerr.New(xerr.KindIO, "registry.save", "disk full")
		err := addAndRegister(context.Background(), vcs, failingSaver{err: saveErr}, reg, "/src/app", ws)
		if !xerr.Is(err, xerr.KindIO) {
			t.Fatalf("err = %v, want IO", err)
		}
		if len(vcs.removed) != 1 || vcs.removed[0] != ws.Path {
			t.Errorf("removed = %v, want the new worktree", vcs.removed)
		}
		if reg.Len() != 0 {
			t.Errorf("registry kept %v after a failed save", reg.Keys())
		}
	})

	t.Run("insert fails", func(t *testing.T) {
		vcs := &fakeWorktrees{}
		reg := registry.New()
		if err := reg.Insert(ws); err != nil {
			t.Fatal(err)
		}
		err := addAndRegister(context.Background(), vcs, failingSaver{}, reg, "/src/app", ws)
		if !xerr.Is(err, xerr.KindConflict) {
			t.Fatalf("err = %v, want Conflict", err)
		}
		if len(vcs.removed) != 1 {
			t.Errorf("removed = %v, want the new worktree", vcs.removed)
		}
	})

	t.Run("success", func(t *testing.T) {
		vcs := &fakeWorktrees{}
		reg := registry.New()
		if err := addAndRegister(context.Background(), vcs, failingSaver{}, reg, "/src/app", ws); err != nil {
			t.Fatalf("addAndRegister: %v", err)
		}
		if len(vcs.removed) != 0 || reg.Len() != 1 {
			t.Errorf("removed = %v, registry = %v", vcs.removed, reg.Keys())
		}
	})
}
