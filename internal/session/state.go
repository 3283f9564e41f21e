package session

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State is the lifecycle state of a workspace's assistant session.
//
//	NoSession -> Starting -> Running -> Stopping -> Stopped
//	Running -> Unknown when tmux cannot be queried; the next refresh retries.
type State int

const (
	NoSession State = iota
	Starting
	Running
	Stopping
	Stopped
	Unknown
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no session"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Label is the display form, e.g. "No Session".
func (s State) Label() string {
	// A Caser is stateful and must not be shared across goroutines.
	return cases.Title(language.English).String(s.String())
}

// Live reports whether a tmux session exists for the state.
func (s State) Live() bool {
	return s == Running || s == Stopping
}

// LiveSession binds a workspace to its tmux session. It is rebuilt from
// tmux on every refresh and never persisted.
type LiveSession struct {
	WorkspaceKey string `json:"workspace"`
	SessionName  string `json:"session"`
	State        State  `json:"state"`
}

// MarshalText lets State appear as a string in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
