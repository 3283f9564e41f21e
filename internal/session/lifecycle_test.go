package session

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/runtime"
	"github.com/leowmjw/xlaude/internal/tmux"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// fakeMux is an in-memory tmux server.
type fakeMux struct {
	mu       sync.Mutex
	sessions map[string]fakeSession
	creates  int
	listErr  error
	newErr   error
	// sticky sessions survive KillSession, simulating a hung process.
	sticky map[string]bool
	pane   []string
}

type fakeSession struct {
	workDir string
	command string
	env     map[string]string
}

func newFakeMux() *fakeMux {
	return &fakeMux{sessions: make(map[string]fakeSession), sticky: make(map[string]bool)}
}

func (f *fakeMux) ListSessions() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for n := range f.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeMux) NewSessionWithCommandAndEnv(name, workDir, command string, env map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return f.newErr
	}
	if _, ok := f.sessions[name]; ok {
		return tmux.ErrSessionExists
	}
	f.creates++
	f.sessions[name] = fakeSession{workDir: workDir, command: command, env: env}
	return nil
}

func (f *fakeMux) KillSession(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sticky[name] {
		delete(f.sessions, name)
	}
	return nil
}

func (f *fakeMux) AttachCommand(name string) (*exec.Cmd, error) {
	return exec.Command("true", name), nil
}

func (f *fakeMux) CapturePaneLines(name string, lines int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[name]; !ok {
		return nil, tmux.ErrSessionNotFound
	}
	return f.pane, nil
}

// externalKill removes a session behind the orchestrator's back.
func (f *fakeMux) externalKill(name string) {
	f.mu.Lock()
	delete(f.sessions, name)
	f.mu.Unlock()
}

type fixedResolver struct {
	sel runtime.Selection
	err error
}

func (r fixedResolver) Resolve() (runtime.Selection, error) { return r.sel, r.err }

var claude = fixedResolver{sel: runtime.Selection{Tool: runtime.Tools()[2]}}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestOrchestrator(mux *fakeMux) (*Orchestrator, *clock) {
	o := New(mux, claude, Options{StopTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond})
	c := &clock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	o.now = c.now
	return o, c
}

var fooWS = registry.Workspace{
	Name:     "foo",
	Branch:   "feature/foo",
	Path:     "/tmp/repo-foo",
	RepoName: "repo",
}

func TestSessionNameDeterministic(t *testing.T) {
	a := SessionName("xlaude", "repo/foo")
	assert.Equal(t, a, SessionName("xlaude", "repo/foo"))
	assert.True(t, strings.HasPrefix(a, "xlaude-repo-foo-"), a)
	assert.Len(t, strings.TrimPrefix(a, "xlaude-repo-foo-"), 8)
	require.NoError(t, tmux.ValidateSessionName(a))

	// Keys that sanitize identically still differ by hash.
	b := SessionName("xlaude", "repo/foo.bar")
	c := SessionName("xlaude", "repo/foo:bar")
	assert.NotEqual(t, b, c)
	require.NoError(t, tmux.ValidateSessionName(b))

	long := SessionName("xlaude", "repo/"+strings.Repeat("x", 200))
	assert.Less(t, len(long), 80)
}

func TestStartTwiceCreatesOneSession(t *testing.T) {
	mux := newFakeMux()
	o, _ := newTestOrchestrator(mux)
	ctx := context.Background()

	first, err := o.Start(ctx, fooWS)
	require.NoError(t, err)
	assert.Equal(t, Running, first.State)

	second, err := o.Start(ctx, fooWS)
	require.NoError(t, err)
	assert.Equal(t, first.SessionName, second.SessionName)
	assert.Equal(t, 1, mux.creates)

	// A fresh orchestrator (another process) rediscovers the session.
	other, _ := newTestOrchestrator(mux)
	_, err = other.Start(ctx, fooWS)
	require.NoError(t, err)
	assert.Equal(t, 1, mux.creates)
}

func TestStartPassesWorkspaceContext(t *testing.T) {
	mux := newFakeMux()
	o, _ := newTestOrchestrator(mux)

	ls, err := o.Start(context.Background(), fooWS)
	require.NoError(t, err)

	s := mux.sessions[ls.SessionName]
	assert.Equal(t, fooWS.Path, s.workDir)
	assert.Equal(t, "claude --dangerously-skip-permissions", s.command)
	assert.Equal(t, "repo/foo", s.env["XLAUDE_WORKSPACE"])
	assert.Equal(t, "feature/foo", s.env["XLAUDE_BRANCH"])
	assert.Equal(t, ls.SessionName, s.env["XLAUDE_SESSION"])
}

func TestStartFailures(t *testing.T) {
	ctx := context.Background()

	mux := newFakeMux()
	mux.newErr = errors.New("no such directory")
	o, _ := newTestOrchestrator(mux)
	_, err := o.Start(ctx, fooWS)
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.KindExternalTool))
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.Equal(t, NoSession, o.Status(ctx, fooWS), "failed start leaves no pending state")

	o = New(newFakeMux(), fixedResolver{err: xerr.NotFound("runtime", "no AI assistant found")}, Options{})
	_, err = o.Start(ctx, fooWS)
	assert.True(t, xerr.Is(err, xerr.KindNotFound))
}

func TestStartNamingCollision(t *testing.T) {
	o, _ := newTestOrchestrator(newFakeMux())
	o.bound[o.SessionName(fooWS.Key())] = "other/foo"

	_, err := o.Start(context.Background(), fooWS)
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.KindConflict))
}

// A session killed outside xlaude is reported as NoSession on the next
// refresh, and stopping it afterwards succeeds.
func TestExternalKill(t *testing.T) {
	mux := newFakeMux()
	o, _ := newTestOrchestrator(mux)
	ctx := context.Background()

	ls, err := o.Start(ctx, fooWS)
	require.NoError(t, err)
	assert.Equal(t, Running, o.Status(ctx, fooWS))

	mux.externalKill(ls.SessionName)
	require.NoError(t, o.Refresh(ctx))
	assert.Equal(t, NoSession, o.Status(ctx, fooWS))

	require.NoError(t, o.Stop(ctx, fooWS))
	assert.Equal(t, Stopped, o.Status(ctx, fooWS))
}

func TestStopNeverStarted(t *testing.T) {
	o, _ := newTestOrchestrator(newFakeMux())
	require.NoError(t, o.Stop(context.Background(), fooWS))
}

func TestStopTimeout(t *testing.T) {
	mux := newFakeMux()
	o, c := newTestOrchestrator(mux)
	ctx := context.Background()

	ls, err := o.Start(ctx, fooWS)
	require.NoError(t, err)
	mux.sticky[ls.SessionName] = true

	// Move the clock past the deadline on every poll.
	o.now = func() time.Time { c.advance(time.Second); return c.t }
	err = o.Stop(ctx, fooWS)
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.KindExternalTool))
	assert.ErrorIs(t, err, ErrStopTimeout)
}

func TestStatusCacheTTL(t *testing.T) {
	mux := newFakeMux()
	o, c := newTestOrchestrator(mux)
	ctx := context.Background()

	assert.Equal(t, NoSession, o.Status(ctx, fooWS))

	// Created behind the cache's back.
	name := o.SessionName(fooWS.Key())
	require.NoError(t, mux.NewSessionWithCommandAndEnv(name, "/tmp", "sh", nil))
	assert.Equal(t, NoSession, o.Status(ctx, fooWS), "cached result within TTL")

	c.advance(o.ttl)
	assert.Equal(t, Running, o.Status(ctx, fooWS), "stale cache is re-queried")

	mux.externalKill(name)
	o.Invalidate()
	assert.Equal(t, NoSession, o.Status(ctx, fooWS), "invalidate forces a re-query")
}

func TestStatusUnknownOnTmuxError(t *testing.T) {
	mux := newFakeMux()
	o, c := newTestOrchestrator(mux)
	ctx := context.Background()

	_, err := o.Start(ctx, fooWS)
	require.NoError(t, err)

	mux.listErr = errors.New("server exited unexpectedly")
	c.advance(o.ttl)
	assert.Equal(t, Unknown, o.Status(ctx, fooWS))

	reg := registry.New()
	require.NoError(t, reg.Insert(fooWS))
	live, err := o.Live(ctx, reg)
	require.Error(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, Unknown, live[0].State)

	// Recovers on the next refresh.
	mux.listErr = nil
	require.NoError(t, o.Refresh(ctx))
	assert.Equal(t, Running, o.Status(ctx, fooWS))
}

func TestAttach(t *testing.T) {
	mux := newFakeMux()
	o, _ := newTestOrchestrator(mux)
	ctx := context.Background()

	_, err := o.AttachCommand(ctx, fooWS)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.True(t, xerr.Is(err, xerr.KindNotFound))

	ls, err := o.Start(ctx, fooWS)
	require.NoError(t, err)
	cmd, err := o.AttachCommand(ctx, fooWS)
	require.NoError(t, err)
	assert.Equal(t, ls.SessionName, cmd.Args[1])

	mux.listErr = errors.New("boom")
	_, err = o.AttachCommand(ctx, fooWS)
	assert.ErrorIs(t, err, ErrAttachFailed)
}

func TestPreview(t *testing.T) {
	mux := newFakeMux()
	mux.pane = []string{"> hello", "working..."}
	o, _ := newTestOrchestrator(mux)
	ctx := context.Background()

	assert.Empty(t, o.Preview(ctx, fooWS, 10), "no session means no preview")

	_, err := o.Start(ctx, fooWS)
	require.NoError(t, err)
	assert.Equal(t, mux.pane, o.Preview(ctx, fooWS, 10))
}

func TestOrphans(t *testing.T) {
	mux := newFakeMux()
	o, _ := newTestOrchestrator(mux)
	ctx := context.Background()

	reg := registry.New()
	require.NoError(t, reg.Insert(fooWS))
	_, err := o.Start(ctx, fooWS)
	require.NoError(t, err)

	stale := SessionName("xlaude", "repo/gone")
	require.NoError(t, mux.NewSessionWithCommandAndEnv(stale, "/tmp", "sh", nil))
	require.NoError(t, mux.NewSessionWithCommandAndEnv("unrelated", "/tmp", "sh", nil))

	orphans, err := o.Orphans(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, orphans)

	require.NoError(t, o.Kill(stale))
	orphans, err = o.Orphans(ctx, reg)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "No Session", NoSession.Label())
	assert.Equal(t, "Running", Running.Label())
	assert.True(t, Running.Live())
	assert.False(t, Stopped.Live())
}
