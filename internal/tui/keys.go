package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the annotation keybindings. Class choices are the digits
// 1-9 and are matched separately.
type KeyMap struct {
	Next    key.Binding
	Back    key.Binding
	Ignore  key.Binding
	Comment key.Binding
	Save    key.Binding
	Zoom    key.Binding
	Home    key.Binding
	Quit    key.Binding
	Submit  key.Binding
	Cancel  key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("enter", "right", "l"),
			key.WithHelp("enter/→", "next"),
		),
		Back: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←", "back"),
		),
		Ignore: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "ignore"),
		),
		Comment: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "comment"),
		),
		Save: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save"),
		),
		Zoom: key.NewBinding(
			key.WithKeys("z"),
			key.WithHelp("z", "zoom"),
		),
		Home: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "save & home"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit without saving"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "keep comment"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "discard"),
		),
	}
}

// ShortHelp lists the bindings shown under the target
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Back, k.Ignore, k.Comment, k.Zoom, k.Save, k.Home, k.Quit}
}
