// Package dashboard is the interactive workspace view: a list of workspaces
// with their session state, from which sessions are started, stopped and
// attached.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/reconcile"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/session"
)

// Sessions is the part of the orchestrator the dashboard drives.
// *session.Orchestrator implements it.
type Sessions interface {
	Live(ctx context.Context, reg *registry.Registry) ([]session.LiveSession, error)
	Start(ctx context.Context, ws registry.Workspace) (session.LiveSession, error)
	Stop(ctx context.Context, ws registry.Workspace) error
	AttachCommand(ctx context.Context, ws registry.Workspace) (*exec.Cmd, error)
	Preview(ctx context.Context, ws registry.Workspace, lines int) []string
	Invalidate()
	Forget(key string)
}

// Reconciler prunes registry entries whose worktree is gone.
// *reconcile.Reconciler implements it.
type Reconciler interface {
	Run(ctx context.Context, reg *registry.Registry) reconcile.Report
}

// Store persists the registry. *registry.Store implements it.
type Store interface {
	Load() (*registry.Registry, error)
	Save(reg *registry.Registry) error
	Path() string
}

var (
	_ Sessions   = (*session.Orchestrator)(nil)
	_ Reconciler = (*reconcile.Reconciler)(nil)
	_ Store      = (*registry.Store)(nil)
)

// Mode is the dashboard's top-level state.
type Mode int

const (
	// Listing shows the workspace list and accepts keys.
	Listing Mode = iota
	// Attached means the terminal belongs to a tmux session until detach.
	Attached
)

// Options configures a Model. Zero durations take the defaults.
type Options struct {
	Store      Store
	Registry   *registry.Registry
	Sessions   Sessions
	Reconciler Reconciler

	RefreshInterval time.Duration
	VCSInterval     time.Duration
	PreviewLines    int

	Logger *log.Logger
}

type action int

const (
	actStart action = iota
	actStop
	actAttach
	actClean
)

func (a action) String() string {
	switch a {
	case actStart:
		return "start"
	case actStop:
		return "stop"
	case actAttach:
		return "attach"
	default:
		return "clean"
	}
}

// request is an action the user asked for while another was in flight.
type request struct {
	act action
	key string
}

type (
	tickMsg      time.Time
	refreshedMsg struct {
		states map[string]session.State
		err    error
	}
	previewMsg struct {
		key   string
		lines []string
	}
	actionDoneMsg struct {
		act action
		key string
		err error
	}
	attachReadyMsg struct {
		key string
		cmd *exec.Cmd
		err error
	}
	attachDoneMsg struct{ err error }
	reconciledMsg struct {
		reg    *registry.Registry
		report reconcile.Report
		manual bool
		err    error
	}
	registryLoadedMsg struct {
		reg *registry.Registry
		err error
	}
	clearStatusMsg struct{ id int }
)

// Model is the bubbletea model of the dashboard.
//
// m.reg is never mutated in place: commands running off the update loop
// may still be reading it, so changes arrive as a replacement registry.
type Model struct {
	ctx        context.Context
	store      Store
	reg        *registry.Registry
	sessions   Sessions
	reconciler Reconciler
	watcher    *stateWatcher
	logger     *log.Logger
	now        func() time.Time

	refreshInterval time.Duration
	vcsInterval     time.Duration
	previewLines    int

	mode      Mode
	workspace []registry.Workspace
	states    map[string]session.State
	cursor    int

	inFlight bool
	pending  []request
	lastVCS  time.Time

	showPreview bool
	preview     viewport.Model

	status    string
	statusErr bool
	statusID  int

	keys   KeyMap
	help   help.Model
	width  int
	height int
}

// New returns a dashboard model. Call Close when the program exits.
func New(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:             ctx,
		store:           opts.Store,
		reg:             opts.Registry,
		sessions:        opts.Sessions,
		reconciler:      opts.Reconciler,
		logger:          opts.Logger,
		now:             time.Now,
		refreshInterval: opts.RefreshInterval,
		vcsInterval:     opts.VCSInterval,
		previewLines:    opts.PreviewLines,
		states:          make(map[string]session.State),
		preview:         viewport.New(80, constants.DefaultPreviewLines),
		keys:            DefaultKeyMap(),
		help:            help.New(),
	}
	if m.logger == nil {
		m.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	m.logger = m.logger.WithPrefix("dashboard")
	if m.reg == nil {
		m.reg = registry.New()
	}
	if m.refreshInterval <= 0 {
		m.refreshInterval = constants.DashboardRefresh
	}
	if m.vcsInterval <= 0 {
		m.vcsInterval = constants.VcsRefreshInterval
	}
	if m.previewLines <= 0 {
		m.previewLines = constants.DefaultPreviewLines
	}
	m.workspace = m.reg.All()

	if m.store != nil {
		w, err := newStateWatcher(m.store.Path(), m.logger)
		if err != nil {
			m.logger.Warn("not watching state file", "err", err)
		} else {
			m.watcher = w
		}
	}
	return m
}

// Close releases the state file watcher.
func (m *Model) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

// Mode reports whether the dashboard is listing or attached.
func (m *Model) Mode() Mode { return m.mode }

// Init starts the refresh timer, the first refresh and a reconciliation.
// The reconciliation counts as the action in flight, so keys pressed
// before it returns are queued behind it.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick(), m.refresh(), m.reconcile(false)}
	m.lastVCS = m.now()
	if m.watcher != nil {
		cmds = append(cmds, m.watcher.wait())
	}
	return tea.Batch(cmds...)
}

// Update applies one message. Completed actions hand over to the next
// queued request before anything else; keys come next; the timer only
// refreshes when nothing is queued or running.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.preview.Width = msg.Width
		return m, nil

	case actionDoneMsg:
		m.inFlight = false
		cmds := []tea.Cmd{m.refresh()}
		if msg.err != nil {
			m.logger.Warn("action failed", "action", msg.act, "workspace", msg.key, "err", msg.err)
			cmds = append(cmds, m.setStatus(fmt.Sprintf("%s %s: %v", msg.act, msg.key, msg.err), true))
		} else {
			cmds = append(cmds, m.setStatus(fmt.Sprintf("%s %s", pastTense(msg.act), msg.key), false))
		}
		cmds = append(cmds, m.next())
		return m, tea.Batch(cmds...)

	case reconciledMsg:
		m.inFlight = false
		cmds := []tea.Cmd{m.applyReconcile(msg)}
		cmds = append(cmds, m.next())
		return m, tea.Batch(cmds...)

	case attachReadyMsg:
		if msg.err != nil {
			m.inFlight = false
			return m, tea.Batch(m.setStatus(fmt.Sprintf("attach %s: %v", msg.key, msg.err), true), m.next())
		}
		m.mode = Attached
		return m, tea.ExecProcess(msg.cmd, func(err error) tea.Msg { return attachDoneMsg{err: err} })

	case attachDoneMsg:
		m.mode = Listing
		m.inFlight = false
		m.sessions.Invalidate()
		cmds := []tea.Cmd{m.refresh()}
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(fmt.Sprintf("attach: %v", msg.err), true))
		}
		cmds = append(cmds, m.next())
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.mode == Attached {
			return m, nil
		}
		return m.handleKey(msg)

	case tickMsg:
		cmds := []tea.Cmd{m.tick()}
		if m.mode == Listing && !m.inFlight && len(m.pending) == 0 {
			cmds = append(cmds, m.refresh())
			if m.now().Sub(m.lastVCS) >= m.vcsInterval {
				m.lastVCS = m.now()
				cmds = append(cmds, m.reconcile(false))
			}
		}
		return m, tea.Batch(cmds...)

	case refreshedMsg:
		if msg.err != nil {
			m.logger.Debug("refresh failed", "err", msg.err)
		}
		m.states = msg.states
		return m, m.fetchPreview()

	case previewMsg:
		if ws, ok := m.selected(); ok && ws.Key() == msg.key {
			m.setPreview(msg.lines)
		}
		return m, nil

	case stateChangedMsg:
		return m, tea.Batch(m.reload(), m.watcher.wait())

	case registryLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("reloading state file", "err", msg.err)
			return m, m.setStatus(fmt.Sprintf("reload: %v", msg.err), true)
		}
		m.setRegistry(msg.reg)
		return m, m.refresh()

	case clearStatusMsg:
		if msg.id == m.statusID {
			m.status = ""
			m.statusErr = false
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.fetchPreview()
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.workspace)-1 {
			m.cursor++
		}
		return m, m.fetchPreview()
	case key.Matches(msg, m.keys.Preview):
		m.showPreview = !m.showPreview
		return m, m.fetchPreview()
	case key.Matches(msg, m.keys.Refresh):
		m.sessions.Invalidate()
		return m, m.refresh()
	case key.Matches(msg, m.keys.Clean):
		return m, m.request(actClean, "")
	}

	var act action
	switch {
	case key.Matches(msg, m.keys.Attach):
		act = actAttach
	case key.Matches(msg, m.keys.Start):
		act = actStart
	case key.Matches(msg, m.keys.Stop):
		act = actStop
	default:
		return m, nil
	}
	ws, ok := m.selected()
	if !ok {
		return m, nil
	}
	if act == actAttach && m.states[ws.Key()] != session.Running {
		return m, m.setStatus(fmt.Sprintf("%s is not running; press s to start it", ws.Key()), true)
	}
	return m, m.request(act, ws.Key())
}

// request runs an action now, or queues it behind the one in flight.
func (m *Model) request(act action, key string) tea.Cmd {
	if m.inFlight {
		m.pending = append(m.pending, request{act: act, key: key})
		return nil
	}
	return m.run(request{act: act, key: key})
}

// next starts the oldest queued request, if any.
func (m *Model) next() tea.Cmd {
	for len(m.pending) > 0 && !m.inFlight {
		r := m.pending[0]
		m.pending = m.pending[1:]
		if cmd := m.run(r); cmd != nil {
			return cmd
		}
	}
	return nil
}

func (m *Model) run(r request) tea.Cmd {
	if r.act == actClean {
		m.lastVCS = m.now()
		return m.reconcile(true)
	}
	ws, ok := m.reg.Find(r.key)
	if !ok {
		// Removed since it was requested.
		return nil
	}
	m.inFlight = true
	ctx, sessions := m.ctx, m.sessions
	switch r.act {
	case actStart:
		return func() tea.Msg {
			_, err := sessions.Start(ctx, ws)
			return actionDoneMsg{act: actStart, key: r.key, err: err}
		}
	case actStop:
		return func() tea.Msg {
			return actionDoneMsg{act: actStop, key: r.key, err: sessions.Stop(ctx, ws)}
		}
	default:
		return func() tea.Msg {
			cmd, err := sessions.AttachCommand(ctx, ws)
			return attachReadyMsg{key: r.key, cmd: cmd, err: err}
		}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) refresh() tea.Cmd {
	ctx, sessions, reg := m.ctx, m.sessions, m.reg
	return func() tea.Msg {
		live, err := sessions.Live(ctx, reg)
		states := make(map[string]session.State, len(live))
		for _, ls := range live {
			states[ls.WorkspaceKey] = ls.State
		}
		return refreshedMsg{states: states, err: err}
	}
}

// reconcile marks itself in flight and prunes stale entries off the
// registry's current on-disk state, so saves made by other processes while
// it ran are not lost. Without a store it works on a copy of the registry.
func (m *Model) reconcile(manual bool) tea.Cmd {
	if m.reconciler == nil {
		return nil
	}
	m.inFlight = true
	ctx, rec, store, reg := m.ctx, m.reconciler, m.store, m.reg.Clone()
	return func() tea.Msg {
		if store != nil {
			fresh, err := store.Load()
			if err != nil {
				return reconciledMsg{manual: manual, err: err}
			}
			reg = fresh
		}
		rep := rec.Run(ctx, reg)
		var err error
		if len(rep.Removed) > 0 && store != nil {
			err = store.Save(reg)
		}
		return reconciledMsg{reg: reg, report: rep, manual: manual, err: err}
	}
}

func (m *Model) applyReconcile(msg reconciledMsg) tea.Cmd {
	if msg.err != nil {
		m.logger.Warn("reconciling registry", "err", msg.err)
		return m.setStatus(fmt.Sprintf("clean: %v", msg.err), true)
	}
	for _, key := range msg.report.Removed {
		m.sessions.Forget(key)
	}
	for repo, err := range msg.report.Failed {
		m.logger.Warn("reconcile skipped repository", "repo", repo, "err", err)
	}
	if len(msg.report.Removed) > 0 {
		m.setRegistry(msg.reg)
	}

	var status tea.Cmd
	switch {
	case len(msg.report.Removed) > 0:
		status = m.setStatus(fmt.Sprintf("removed %d stale workspace(s)", len(msg.report.Removed)), false)
	case len(msg.report.Failed) > 0 && msg.manual:
		status = m.setStatus(fmt.Sprintf("%d repository(ies) could not be read", len(msg.report.Failed)), true)
	case msg.manual:
		status = m.setStatus("nothing to clean", false)
	}
	return tea.Batch(status, m.refresh())
}

func (m *Model) reload() tea.Cmd {
	if m.store == nil {
		return nil
	}
	store := m.store
	return func() tea.Msg {
		reg, err := store.Load()
		return registryLoadedMsg{reg: reg, err: err}
	}
}

// setRegistry replaces the registry, keeping the cursor on the same
// workspace when it still exists.
func (m *Model) setRegistry(reg *registry.Registry) {
	var current string
	if ws, ok := m.selected(); ok {
		current = ws.Key()
	}
	m.reg = reg
	m.workspace = reg.All()
	m.cursor = 0
	for i, ws := range m.workspace {
		if ws.Key() == current {
			m.cursor = i
			break
		}
	}
}

func (m *Model) fetchPreview() tea.Cmd {
	ws, ok := m.selected()
	if !m.showPreview || !ok {
		return nil
	}
	if m.states[ws.Key()] != session.Running {
		m.setPreview(nil)
		return nil
	}
	ctx, sessions, lines := m.ctx, m.sessions, m.previewLines
	return func() tea.Msg {
		return previewMsg{key: ws.Key(), lines: sessions.Preview(ctx, ws, lines)}
	}
}

func (m *Model) selected() (registry.Workspace, bool) {
	if m.cursor < 0 || m.cursor >= len(m.workspace) {
		return registry.Workspace{}, false
	}
	return m.workspace[m.cursor], true
}

// setStatus shows a transient message and schedules its removal.
func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusID++
	m.status = text
	m.statusErr = isErr
	id := m.statusID
	return tea.Tick(constants.StatusLineTTL, func(time.Time) tea.Msg { return clearStatusMsg{id: id} })
}

func pastTense(a action) string {
	switch a {
	case actStart:
		return "started"
	case actStop:
		return "stopped"
	default:
		return a.String()
	}
}

// Run starts the dashboard and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
