package dashboard

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines dashboard keybindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Attach  key.Binding
	Start   key.Binding
	Stop    key.Binding
	Preview key.Binding
	Refresh key.Binding
	Clean   key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Attach:  key.NewBinding(key.WithKeys("enter", "a"), key.WithHelp("enter/a", "attach")),
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Preview: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Clean:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clean")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Attach, k.Start, k.Stop, k.Preview, k.Refresh, k.Clean, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Attach, k.Start, k.Stop},
		{k.Preview, k.Refresh, k.Clean, k.Quit},
	}
}
