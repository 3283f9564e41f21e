// Package tmux provides a wrapper for tmux session operations via subprocess.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leowmjw/xlaude/internal/constants"
)

// validSessionNameRe validates session names to prevent shell injection
var validSessionNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Common errors
var (
	ErrNoServer           = errors.New("no tmux server running")
	ErrSessionExists      = errors.New("session already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidSessionName = errors.New("invalid session name")
	ErrTimeout            = errors.New("tmux command timed out")
)

// ValidateSessionName checks that a session name contains only safe characters.
// Returns ErrInvalidSessionName if the name contains dots, colons, or other
// characters that cause tmux to silently fail or produce cryptic errors.
func ValidateSessionName(name string) error {
	if name == "" || !validSessionNameRe.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidSessionName, name, validSessionNameRe.String())
	}
	return nil
}

// defaultSocket is the tmux socket name (-L flag) for isolation.
// Access is protected by defaultSocketMu for concurrent test safety.
var (
	defaultSocket   string
	defaultSocketMu sync.RWMutex
)

// SetDefaultSocket sets the package-level default tmux socket name.
func SetDefaultSocket(name string) {
	defaultSocketMu.Lock()
	defaultSocket = name
	defaultSocketMu.Unlock()
}

// GetDefaultSocket returns the current default tmux socket name.
func GetDefaultSocket() string {
	defaultSocketMu.RLock()
	defer defaultSocketMu.RUnlock()
	return defaultSocket
}

// Tmux wraps tmux operations.
type Tmux struct {
	socketName string // tmux socket name (-L flag), empty = default socket
	timeout    time.Duration
}

// NewTmux creates a Tmux wrapper on the default socket. The socket can be
// overridden with SetDefaultSocket or the XLAUDE_TMUX_SOCKET variable;
// otherwise the user's default tmux server is used.
func NewTmux() *Tmux {
	sock := GetDefaultSocket()
	if sock == "" {
		sock = os.Getenv(constants.EnvTmuxSocket)
	}
	return &Tmux{socketName: sock, timeout: constants.TmuxTimeout}
}

// NewTmuxWithSocket creates a Tmux wrapper that targets a named socket.
// Primarily used in tests to get an isolated tmux server.
func NewTmuxWithSocket(socket string) *Tmux {
	return &Tmux{socketName: socket, timeout: constants.TmuxTimeout}
}

// Socket returns the socket name, empty for the default server.
func (t *Tmux) Socket() string {
	return t.socketName
}

func (t *Tmux) globalArgs() []string {
	// -u forces UTF-8 regardless of locale; -L must precede the subcommand.
	args := []string{"-u"}
	if t.socketName != "" {
		args = append(args, "-L", t.socketName)
	}
	return args
}

// run executes a tmux command and returns stdout.
func (t *Tmux) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", append(t.globalArgs(), args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("tmux %s: %w", args[0], ErrTimeout)
	}
	if err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// wrapError wraps tmux errors with context.
func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	// Detect specific error types
	if strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "error connecting to") ||
		strings.Contains(stderr, "server exited unexpectedly") {
		return ErrNoServer
	}
	if strings.Contains(stderr, "duplicate session") {
		return ErrSessionExists
	}
	if strings.Contains(stderr, "session not found") ||
		strings.Contains(stderr, "can't find session") {
		return ErrSessionNotFound
	}

	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// IsAvailable checks if tmux is installed and can be invoked.
func (t *Tmux) IsAvailable() bool {
	cmd := exec.Command("tmux", "-V")
	return cmd.Run() == nil
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// Version returns the tmux version as "X.Y", e.g. "3.3" for "tmux 3.3a".
func (t *Tmux) Version() (string, error) {
	out, err := exec.Command("tmux", "-V").Output()
	if err != nil {
		return "", fmt.Errorf("tmux -V: %w", err)
	}
	return ParseVersion(string(out))
}

// ParseVersion extracts "X.Y" from `tmux -V` output.
func ParseVersion(out string) (string, error) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("unrecognized tmux version %q", strings.TrimSpace(out))
	}
	return m[1] + "." + m[2], nil
}

// NewSessionWithCommandAndEnv creates a detached session whose pane runs
// command in workDir. env is applied with -e flags so the command's
// process inherits it rather than the tmux server's environment.
//
// Validates workDir exists. After creation, performs a brief health check
// so that immediate command failures (binary not found, syntax errors)
// surface as an error instead of a silently dead session.
// Requires tmux >= 3.2.
func (t *Tmux) NewSessionWithCommandAndEnv(name, workDir, command string, env map[string]string) error {
	if err := ValidateSessionName(name); err != nil {
		return err
	}
	if workDir != "" {
		info, err := os.Stat(workDir)
		if err != nil {
			return fmt.Errorf("invalid work directory %q: %w", workDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("work directory %q is not a directory", workDir)
		}
	}

	args := []string{"new-session", "-d", "-s", name}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}
	if _, err := t.run(args...); err != nil {
		return err
	}

	// tmux 3.3+ sets window-size=manual on detached sessions, which locks
	// the window at 80x24 even after a client attaches.
	_, _ = t.run("set-option", "-wt", name, "window-size", "latest")

	// Keep the pane around if the command dies so its exit status can be read.
	_, _ = t.run("set-option", "-t", name, "remain-on-exit", "on")

	respawnArgs := []string{"respawn-pane", "-k", "-t", name}
	if workDir != "" {
		respawnArgs = append(respawnArgs, "-c", workDir)
	}
	respawnArgs = append(respawnArgs, command)
	if _, err := t.run(respawnArgs...); err != nil {
		_ = t.KillSession(name)
		return fmt.Errorf("failed to start command in session %q: %w", name, err)
	}

	return t.checkSessionAfterCreate(name, command)
}

// checkSessionAfterCreate verifies that a newly created session's command
// didn't fail immediately. Expects remain-on-exit to already be enabled.
// Only returns an error for non-zero exits, not clean exits.
func (t *Tmux) checkSessionAfterCreate(name, command string) error {
	time.Sleep(constants.StartupCheckDelay)

	paneDead, _ := t.run("display-message", "-p", "-t", name, "#{pane_dead}")
	if strings.TrimSpace(paneDead) == "1" {
		exitStatus, _ := t.run("display-message", "-p", "-t", name, "#{pane_dead_status}")
		_ = t.KillSession(name)
		if status := strings.TrimSpace(exitStatus); status != "" && status != "0" {
			return fmt.Errorf("session %q: command exited with status %s: %s", name, status, command)
		}
		return nil
	}

	// Pane is alive; dead panes should not linger from now on.
	_, _ = t.run("set-option", "-t", name, "remain-on-exit", "off")
	return nil
}

// KillSession terminates a tmux session. Idempotent: returns nil if the
// session is already gone or there is no tmux server.
func (t *Tmux) KillSession(name string) error {
	_, err := t.run("kill-session", "-t", "="+name)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return nil
	}
	return err
}

// HasSession checks if a session exists (exact match).
// Uses "=" prefix for exact matching, preventing prefix matches.
func (t *Tmux) HasSession(name string) (bool, error) {
	_, err := t.run("has-session", "-t", "="+name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns all session names.
func (t *Tmux) ListSessions() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil // No server = no sessions
		}
		return nil, err
	}

	if out == "" {
		return nil, nil
	}

	return strings.Split(out, "\n"), nil
}

// SessionSet provides O(1) session existence checks by caching session names.
// Use this when you need to check multiple sessions to avoid N+1 subprocess calls.
type SessionSet struct {
	sessions map[string]struct{}
}

// NewSessionSet creates a SessionSet from a list of session names.
func NewSessionSet(names []string) *SessionSet {
	set := &SessionSet{
		sessions: make(map[string]struct{}, len(names)),
	}
	for _, name := range names {
		if name != "" {
			set.sessions[name] = struct{}{}
		}
	}
	return set
}

// GetSessionSet returns a SessionSet containing all current sessions.
func (t *Tmux) GetSessionSet() (*SessionSet, error) {
	names, err := t.ListSessions()
	if err != nil {
		return nil, err
	}
	return NewSessionSet(names), nil
}

// Has returns true if the session exists in the set.
func (s *SessionSet) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.sessions[name]
	return ok
}

// Names returns all session names in the set, sorted.
func (s *SessionSet) Names() []string {
	if s == nil || len(s.sessions) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CapturePane captures the last lines of a pane's content.
func (t *Tmux) CapturePane(session string, lines int) (string, error) {
	return t.run("capture-pane", "-p", "-J", "-t", "="+session+":", "-S", fmt.Sprintf("-%d", lines))
}

// CapturePaneLines captures the last N lines of a pane as a slice.
// Trailing blank lines (unused pane rows) are dropped.
func (t *Tmux) CapturePaneLines(session string, lines int) ([]string, error) {
	out, err := t.CapturePane(session, lines)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	res := strings.Split(out, "\n")
	if len(res) > lines {
		res = res[len(res)-lines:]
	}
	return res, nil
}

// AttachCommand returns the command that hands the terminal to session
// until the user detaches. Outside tmux this is attach-session. Inside
// tmux a nested client would fight the outer one, so the session is
// opened in a popup that closes on detach.
func (t *Tmux) AttachCommand(session string) (*exec.Cmd, error) {
	if err := ValidateSessionName(session); err != nil {
		return nil, err
	}
	target := "=" + session
	if !IsInsideTmux() {
		return exec.Command("tmux", append(t.globalArgs(), "attach-session", "-t", target)...), nil
	}
	inner := strings.Join(append([]string{"tmux"}, append(t.globalArgs(), "attach-session", "-t", target)...), " ")
	popup := []string{"display-popup", "-E", "-w", "95%", "-h", "95%", inner}
	// The popup belongs to the client we are running in, i.e. the outer server.
	return exec.Command("tmux", popup...), nil
}

// AttachSession attaches the current terminal to session and blocks until
// the user detaches.
func (t *Tmux) AttachSession(session string) error {
	cmd, err := t.AttachCommand(session)
	if err != nil {
		return err
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// SetEnvironment sets an environment variable in the session.
func (t *Tmux) SetEnvironment(session, key, value string) error {
	_, err := t.run("set-environment", "-t", session, key, value)
	return err
}

// GetEnvironment gets an environment variable from the session.
func (t *Tmux) GetEnvironment(session, key string) (string, error) {
	out, err := t.run("show-environment", "-t", session, key)
	if err != nil {
		return "", err
	}
	// Output format: KEY=value
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return "", nil
	}
	return value, nil
}

// IsInsideTmux checks if the current process is running inside a tmux session.
// This is detected by the presence of the TMUX environment variable.
func IsInsideTmux() bool {
	return os.Getenv("TMUX") != ""
}

// KillServer terminates the tmux server on this wrapper's socket.
func (t *Tmux) KillServer() error {
	_, err := t.run("kill-server")
	if errors.Is(err, ErrNoServer) {
		return nil
	}
	return err
}
