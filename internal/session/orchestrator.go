// Package session binds workspaces to long-running assistant sessions in
// tmux and tracks their lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/runtime"
	"github.com/leowmjw/xlaude/internal/tmux"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// Common errors
var (
	ErrNotRunning   = errors.New("session not running")
	ErrLaunchFailed = errors.New("launch failed")
	ErrAttachFailed = errors.New("attach failed")
	ErrStopTimeout  = errors.New("session did not exit")
)

// Mux is the subset of the tmux gateway the orchestrator drives.
// *tmux.Tmux implements it.
type Mux interface {
	ListSessions() ([]string, error)
	NewSessionWithCommandAndEnv(name, workDir, command string, env map[string]string) error
	KillSession(name string) error
	AttachCommand(name string) (*exec.Cmd, error)
	CapturePaneLines(name string, lines int) ([]string, error)
}

var _ Mux = (*tmux.Tmux)(nil)

// CommandResolver picks the assistant command for a new session.
// *runtime.Resolver implements it.
type CommandResolver interface {
	Resolve() (runtime.Selection, error)
}

// Options configures an Orchestrator. Zero values take the defaults.
type Options struct {
	Prefix       string
	CacheTTL     time.Duration
	StopTimeout  time.Duration
	PollInterval time.Duration
	Logger       *log.Logger
}

// Orchestrator starts, stops and observes the tmux session bound to each
// workspace. Session listings are cached for CacheTTL; Start, Stop and
// Attach always consult tmux directly.
//
// The mutex only serializes access to the cache and bindings, so that
// commands run concurrently by the dashboard see a consistent view.
type Orchestrator struct {
	mux      Mux
	resolver CommandResolver
	logger   *log.Logger
	now      func() time.Time

	prefix       string
	ttl          time.Duration
	stopTimeout  time.Duration
	pollInterval time.Duration

	mu        sync.Mutex
	live      *tmux.SessionSet
	liveErr   error
	fetchedAt time.Time
	bound     map[string]string // session name -> workspace key
	pending   map[string]State  // workspace key -> Starting, Stopping or Stopped
}

// New returns an Orchestrator over mux.
func New(mux Mux, resolver CommandResolver, opts Options) *Orchestrator {
	o := &Orchestrator{
		mux:          mux,
		resolver:     resolver,
		logger:       opts.Logger,
		now:          time.Now,
		prefix:       opts.Prefix,
		ttl:          opts.CacheTTL,
		stopTimeout:  opts.StopTimeout,
		pollInterval: opts.PollInterval,
		bound:        make(map[string]string),
		pending:      make(map[string]State),
	}
	if o.logger == nil {
		o.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.logger = o.logger.WithPrefix("session")
	if o.prefix == "" {
		o.prefix = constants.SessionPrefix
	}
	if o.ttl <= 0 {
		o.ttl = constants.LiveCacheTTL
	}
	if o.stopTimeout <= 0 {
		o.stopTimeout = constants.StopTimeout
	}
	if o.pollInterval <= 0 {
		o.pollInterval = constants.PollInterval
	}
	return o
}

// SessionName returns the tmux session name for a workspace key.
func (o *Orchestrator) SessionName(key string) string {
	return SessionName(o.prefix, key)
}

// Refresh re-lists tmux sessions into the cache.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.listLocked()
	return err
}

// Invalidate forces the next status query to go back to tmux.
func (o *Orchestrator) Invalidate() {
	o.mu.Lock()
	o.fetchedAt = time.Time{}
	o.mu.Unlock()
}

// listLocked queries tmux and replaces the cache.
func (o *Orchestrator) listLocked() (*tmux.SessionSet, error) {
	names, err := o.mux.ListSessions()
	o.fetchedAt = o.now()
	if err != nil {
		o.logger.Debug("listing sessions failed", "err", err)
		o.live, o.liveErr = nil, xerr.Wrap(xerr.KindExternalTool, "session.list", err, "listing tmux sessions")
		return nil, o.liveErr
	}
	o.live, o.liveErr = tmux.NewSessionSet(names), nil
	return o.live, nil
}

// cachedLocked returns the cached listing, refreshing it when older than
// the TTL. A nil set with a nil error never occurs.
func (o *Orchestrator) cachedLocked() (*tmux.SessionSet, error) {
	if !o.fetchedAt.IsZero() && o.now().Sub(o.fetchedAt) < o.ttl {
		if o.liveErr != nil {
			return nil, o.liveErr
		}
		return o.live, nil
	}
	return o.listLocked()
}

// Status returns the state of ws's session from the cache. Any tmux error
// yields Unknown.
func (o *Orchestrator) Status(ctx context.Context, ws registry.Workspace) State {
	if ctx.Err() != nil {
		return Unknown
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	set, err := o.cachedLocked()
	if err != nil {
		return Unknown
	}
	return o.stateLocked(ws.Key(), set)
}

func (o *Orchestrator) stateLocked(key string, set *tmux.SessionSet) State {
	present := set.Has(o.SessionName(key))
	switch p := o.pending[key]; {
	case p == Starting || p == Stopping:
		return p
	case present:
		return Running
	case p == Stopped:
		return Stopped
	default:
		return NoSession
	}
}

// Live returns the session of every workspace in reg, in registry order.
// When tmux cannot be queried every state is Unknown and the error is
// returned alongside.
func (o *Orchestrator) Live(ctx context.Context, reg *registry.Registry) ([]LiveSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	set, err := o.cachedLocked()

	all := reg.All()
	res := make([]LiveSession, 0, len(all))
	for _, ws := range all {
		ls := LiveSession{WorkspaceKey: ws.Key(), SessionName: o.SessionName(ws.Key()), State: Unknown}
		if err == nil {
			ls.State = o.stateLocked(ws.Key(), set)
		}
		res = append(res, ls)
	}
	return res, err
}

// Orphans returns xlaude-prefixed tmux sessions that belong to no
// workspace in reg.
func (o *Orchestrator) Orphans(ctx context.Context, reg *registry.Registry) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	set, err := o.listLocked()
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	owned := make(map[string]bool, reg.Len())
	for _, ws := range reg.All() {
		owned[o.SessionName(ws.Key())] = true
	}
	var orphans []string
	for _, name := range set.Names() {
		if hasPrefix(o.prefix, name) && !owned[name] {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

// Kill terminates a session by name. Used to clean up orphans.
func (o *Orchestrator) Kill(name string) error {
	if err := o.mux.KillSession(name); err != nil {
		return xerr.Wrap(xerr.KindExternalTool, "session.kill", err, "killing %s", name)
	}
	o.Invalidate()
	return nil
}

// AttachCommand returns the command that attaches the terminal to ws's
// session. The dashboard hands it to tea.ExecProcess.
func (o *Orchestrator) AttachCommand(ctx context.Context, ws registry.Workspace) (*exec.Cmd, error) {
	const op = "session.attach"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := o.SessionName(ws.Key())

	o.mu.Lock()
	set, err := o.listLocked()
	o.mu.Unlock()
	if err != nil {
		return nil, xerr.Wrap(xerr.KindExternalTool, op, fmt.Errorf("%w: %w", ErrAttachFailed, err), "cannot attach to %s", ws.Key())
	}
	if !set.Has(name) {
		return nil, &xerr.Error{
			Kind:    xerr.KindNotFound,
			Op:      op,
			Message: ws.Key(),
			Hint:    "start it with: xlaude start " + ws.Name,
			Err:     ErrNotRunning,
		}
	}

	cmd, err := o.mux.AttachCommand(name)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindExternalTool, op, fmt.Errorf("%w: %w", ErrAttachFailed, err), "cannot attach to %s", ws.Key())
	}
	return cmd, nil
}

// Attach hands the terminal to ws's session and blocks until the user
// detaches. The cache is invalidated afterwards since anything may have
// happened to the session in the meantime.
func (o *Orchestrator) Attach(ctx context.Context, ws registry.Workspace, stdio Stdio) error {
	cmd, err := o.AttachCommand(ctx, ws)
	if err != nil {
		return err
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdio.In, stdio.Out, stdio.Err
	defer o.Invalidate()
	if err := cmd.Run(); err != nil {
		return xerr.Wrap(xerr.KindExternalTool, "session.attach", fmt.Errorf("%w: %w", ErrAttachFailed, err), "attaching to %s", ws.Key())
	}
	return nil
}

// Stdio is the terminal an attach runs on.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Preview returns the last lines of ws's pane, or nil on any error.
func (o *Orchestrator) Preview(ctx context.Context, ws registry.Workspace, lines int) []string {
	if ctx.Err() != nil || lines <= 0 {
		return nil
	}
	out, err := o.mux.CapturePaneLines(o.SessionName(ws.Key()), lines)
	if err != nil {
		o.logger.Debug("preview unavailable", "workspace", ws.Key(), "err", err)
		return nil
	}
	return out
}
