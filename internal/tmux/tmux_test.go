package tmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func hasTmux() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// TestMain runs every test against a private tmux server so the user's
// sessions are never touched.
func TestMain(m *testing.M) {
	socket := fmt.Sprintf("xlaude-test-%d", os.Getpid())
	SetDefaultSocket(socket)
	code := m.Run()
	if hasTmux() {
		_ = NewTmuxWithSocket(socket).KillServer()
	}
	os.Exit(code)
}

func TestValidateSessionName(t *testing.T) {
	for _, name := range []string{"xlaude-repo-foo-0123abcd", "a", "A_b-9"} {
		if err := ValidateSessionName(name); err != nil {
			t.Errorf("ValidateSessionName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "has.dot", "has:colon", "has space", "semi;colon", "x/y"} {
		if err := ValidateSessionName(name); !errors.Is(err, ErrInvalidSessionName) {
			t.Errorf("ValidateSessionName(%q) = %v, want ErrInvalidSessionName", name, err)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tmux 3.3a\n", "3.3"},
		{"tmux 3.2", "3.2"},
		{"tmux next-3.5", "3.5"},
		{"tmux 2.9a", "2.9"},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if err != nil {
			t.Errorf("ParseVersion(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseVersion("tmux master"); err == nil {
		t.Error("expected error for version without digits")
	}
}

func TestWrapError(t *testing.T) {
	tm := NewTmux()

	tests := []struct {
		stderr string
		want   error
	}{
		{"no server running on /tmp/tmux-...", ErrNoServer},
		{"error connecting to /tmp/tmux-...", ErrNoServer},
		{"duplicate session: test", ErrSessionExists},
		{"session not found: test", ErrSessionNotFound},
		{"can't find session: test", ErrSessionNotFound},
	}

	for _, tt := range tests {
		err := tm.wrapError(nil, tt.stderr, []string{"test"})
		if err != tt.want {
			t.Errorf("wrapError(%q) = %v, want %v", tt.stderr, err, tt.want)
		}
	}

	err := tm.wrapError(errors.New("exit status 1"), "something odd", []string{"list-sessions"})
	if err == nil || !strings.Contains(err.Error(), "something odd") {
		t.Errorf("unclassified stderr should be kept, got %v", err)
	}
}

func TestSessionSetNil(t *testing.T) {
	var nilSet *SessionSet
	if nilSet.Has("anything") {
		t.Error("nil SessionSet.Has() = true, want false")
	}
	if nilSet.Names() != nil {
		t.Error("nil SessionSet.Names() should be nil")
	}

	set := NewSessionSet([]string{"b", "", "a"})
	if got := set.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", got)
	}
}

func TestAttachCommand(t *testing.T) {
	t.Setenv("TMUX", "")
	tm := NewTmuxWithSocket("sock")
	cmd, err := tm.AttachCommand("xlaude-repo-foo-00000000")
	if err != nil {
		t.Fatalf("AttachCommand: %v", err)
	}
	got := strings.Join(cmd.Args, " ")
	want := "tmux -u -L sock attach-session -t =xlaude-repo-foo-00000000"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}

	t.Setenv("TMUX", "/tmp/tmux-1000/default,1,0")
	cmd, err = tm.AttachCommand("xlaude-repo-foo-00000000")
	if err != nil {
		t.Fatalf("AttachCommand inside tmux: %v", err)
	}
	if cmd.Args[1] != "display-popup" {
		t.Errorf("inside tmux expected a popup, got %v", cmd.Args)
	}

	if _, err := tm.AttachCommand("bad.name"); !errors.Is(err, ErrInvalidSessionName) {
		t.Errorf("AttachCommand(bad.name) = %v, want ErrInvalidSessionName", err)
	}
}

func TestListSessionsNoServer(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := NewTmuxWithSocket(fmt.Sprintf("xlaude-empty-%d", os.Getpid()))
	sessions, err := tm.ListSessions()
	// Should not error even if no server running
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %v", sessions)
	}

	has, err := tm.HasSession("nonexistent-session-xyz")
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if has {
		t.Error("expected session to not exist")
	}

	if err := tm.KillSession("nonexistent-session-xyz"); err != nil {
		t.Errorf("KillSession without server should be a no-op, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := NewTmux()
	sessionName := "xlaude-test-lifecycle"
	_ = tm.KillSession(sessionName)

	workDir := t.TempDir()
	env := map[string]string{"XLAUDE_WORKSPACE": "repo/foo"}
	if err := tm.NewSessionWithCommandAndEnv(sessionName, workDir, "sh -c 'echo ws=$XLAUDE_WORKSPACE; sleep 30'", env); err != nil {
		t.Fatalf("NewSessionWithCommandAndEnv: %v", err)
	}
	defer func() { _ = tm.KillSession(sessionName) }()

	has, err := tm.HasSession(sessionName)
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if !has {
		t.Fatal("expected session to exist after creation")
	}

	set, err := tm.GetSessionSet()
	if err != nil {
		t.Fatalf("GetSessionSet: %v", err)
	}
	if !set.Has(sessionName) {
		t.Errorf("SessionSet.Has(%q) = false, want true", sessionName)
	}

	// Output may take a moment to reach the pane.
	var lines []string
	for i := 0; i < 20; i++ {
		lines, err = tm.CapturePaneLines(sessionName, 10)
		if err == nil && strings.Contains(strings.Join(lines, "\n"), "ws=repo/foo") {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "ws=repo/foo") {
		t.Errorf("pane output %q does not show the session environment", lines)
	}

	if err := tm.NewSessionWithCommandAndEnv(sessionName, workDir, "sleep 30", nil); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate create = %v, want ErrSessionExists", err)
	}

	if err := tm.KillSession(sessionName); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	if err := tm.KillSession(sessionName); err != nil {
		t.Errorf("second KillSession should be idempotent, got %v", err)
	}
	has, _ = tm.HasSession(sessionName)
	if has {
		t.Error("expected session to be gone after kill")
	}
}

func TestNewSessionCommandFailsFast(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := NewTmux()
	name := "xlaude-test-failfast"
	_ = tm.KillSession(name)

	err := tm.NewSessionWithCommandAndEnv(name, t.TempDir(), "sh -c 'exit 3'", nil)
	if err == nil {
		_ = tm.KillSession(name)
		t.Fatal("expected error for a command that exits non-zero immediately")
	}
	if has, _ := tm.HasSession(name); has {
		t.Error("failed session should be cleaned up")
	}
}

func TestNewSessionBadWorkDir(t *testing.T) {
	tm := NewTmux()
	err := tm.NewSessionWithCommandAndEnv("xlaude-test-baddir", "/nonexistent/xlaude/dir", "true", nil)
	if err == nil {
		t.Fatal("expected error for missing work directory")
	}
}
