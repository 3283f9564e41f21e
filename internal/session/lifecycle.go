package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leowmjw/xlaude/internal/config"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/runtime"
	"github.com/leowmjw/xlaude/internal/tmux"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// Start ensures an assistant session is running for ws.
//
// The live tmux list is consulted, not the cache, so two Starts in a row
// create at most one session. If the session already exists Start is a
// no-op that returns its identity. The assistant command is resolved at
// this point, so environment overrides changed since the last launch
// take effect.
func (o *Orchestrator) Start(ctx context.Context, ws registry.Workspace) (LiveSession, error) {
	const op = "session.start"
	key := ws.Key()
	name := o.SessionName(key)
	ls := LiveSession{WorkspaceKey: key, SessionName: name}

	if err := ctx.Err(); err != nil {
		return ls, err
	}

	o.mu.Lock()
	if owner, ok := o.bound[name]; ok && owner != key {
		o.mu.Unlock()
		return ls, xerr.Conflict(op, "session name %s is already bound to %s", name, owner)
	}
	if o.pending[key] == Starting {
		o.mu.Unlock()
		ls.State = Starting
		return ls, nil
	}
	set, err := o.listLocked()
	if err != nil {
		o.mu.Unlock()
		return ls, err
	}
	if set.Has(name) {
		o.bound[name] = key
		delete(o.pending, key)
		o.mu.Unlock()
		ls.State = Running
		return ls, nil
	}
	o.pending[key] = Starting
	o.mu.Unlock()

	sel, err := o.resolver.Resolve()
	if err != nil {
		o.clearPending(key)
		return ls, err
	}
	err = o.launch(ws, name, sel)

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, key)
	o.fetchedAt = time.Time{}
	if err != nil {
		return ls, xerr.Wrap(xerr.KindExternalTool, op, fmt.Errorf("%w: %w", ErrLaunchFailed, err), "starting %s", key)
	}
	o.bound[name] = key
	ls.State = Running
	return ls, nil
}

// launch creates the tmux session running the resolved assistant. It runs
// without the lock held since session creation includes a startup check.
func (o *Orchestrator) launch(ws registry.Workspace, name string, sel runtime.Selection) error {
	env := config.AgentEnv(config.AgentEnvConfig{
		WorkspaceKey: ws.Key(),
		Repo:         ws.RepoName,
		Branch:       ws.Branch,
		SessionName:  name,
	})

	o.logger.Info("starting session", "workspace", ws.Key(), "session", name, "tool", sel.Tool.ID)
	err := o.mux.NewSessionWithCommandAndEnv(name, ws.Path, sel.Command(), env)
	if errors.Is(err, tmux.ErrSessionExists) {
		// Another process won the race; the session is live either way.
		return nil
	}
	return err
}

// Stop kills ws's session and waits, bounded by the stop timeout, until
// tmux no longer lists it. A session that is already gone, or was never
// started, stops successfully.
func (o *Orchestrator) Stop(ctx context.Context, ws registry.Workspace) error {
	const op = "session.stop"
	key := ws.Key()
	name := o.SessionName(key)

	if err := ctx.Err(); err != nil {
		return err
	}

	o.setPending(key, Stopping)
	o.logger.Info("stopping session", "workspace", key, "session", name)

	err := o.mux.KillSession(name)
	if err != nil {
		err = xerr.Wrap(xerr.KindExternalTool, op, err, "killing %s", name)
	} else if err = o.waitForExit(ctx, name); errors.Is(err, ErrStopTimeout) {
		err = xerr.Wrap(xerr.KindExternalTool, op, err, "%s still running after %s", name, o.stopTimeout)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetchedAt = time.Time{}
	if err != nil {
		delete(o.pending, key)
		return err
	}
	delete(o.bound, name)
	o.pending[key] = Stopped
	return nil
}

// waitForExit polls tmux until name is gone, the stop timeout elapses or
// ctx is cancelled.
func (o *Orchestrator) waitForExit(ctx context.Context, name string) error {
	deadline := o.now().Add(o.stopTimeout)
	for {
		o.mu.Lock()
		set, err := o.listLocked()
		o.mu.Unlock()
		if err != nil {
			return err
		}
		if !set.Has(name) {
			return nil
		}
		if !o.now().Before(deadline) {
			return ErrStopTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

func (o *Orchestrator) setPending(key string, s State) {
	o.mu.Lock()
	o.pending[key] = s
	o.mu.Unlock()
}

func (o *Orchestrator) clearPending(key string) {
	o.mu.Lock()
	delete(o.pending, key)
	o.mu.Unlock()
}

// Forget drops the in-process binding for a workspace that was removed
// from the registry, so its session name can be reused.
func (o *Orchestrator) Forget(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.bound, o.SessionName(key))
	delete(o.pending, key)
}
