package dashboard

import (
	"io"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// stateChangedMsg reports that another process rewrote the state file.
type stateChangedMsg struct{}

// stateWatcher notifies when the state file changes on disk. Saves replace
// the file by rename, so the parent directory is watched and events are
// filtered by name.
type stateWatcher struct {
	w      *fsnotify.Watcher
	name   string
	events chan struct{}
	done   chan struct{}
	logger *log.Logger
}

func newStateWatcher(path string, logger *log.Logger) (*stateWatcher, error) {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	sw := &stateWatcher{
		w:      w,
		name:   filepath.Clean(path),
		events: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go sw.loop()
	return sw, nil
}

func (sw *stateWatcher) loop() {
	for {
		select {
		case <-sw.done:
			return
		case ev, ok := <-sw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != sw.name || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			// Coalesce bursts; one pending notification is enough.
			select {
			case sw.events <- struct{}{}:
			default:
			}
		case err, ok := <-sw.w.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("state watcher error", "err", err)
		}
	}
}

// wait returns a command that blocks until the next change.
func (sw *stateWatcher) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-sw.events:
			return stateChangedMsg{}
		case <-sw.done:
			return nil
		}
	}
}

func (sw *stateWatcher) Close() error {
	close(sw.done)
	return sw.w.Close()
}
