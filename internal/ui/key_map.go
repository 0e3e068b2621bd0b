package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	search  key.Binding
	enter   key.Binding
	back    key.Binding
	remove  key.Binding
	clear   key.Binding
	tab     key.Binding
	start   key.Binding
	toggle  key.Binding
	skip    key.Binding
	like    key.Binding
	unlike  key.Binding
	louder  key.Binding
	quieter key.Binding
	auto    key.Binding
	save    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add seed")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		remove:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove seed")),
		clear:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear seeds")),
		tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch view")),
		start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		toggle:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
		skip:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "skip")),
		like:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "like")),
		unlike:  key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unlike")),
		louder:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume up")),
		quieter: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "volume down")),
		auto:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "skip on like")),
		save:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save liked")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.tab, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.search, k.enter, k.remove, k.clear},
		{k.start, k.toggle, k.skip, k.like, k.unlike},
		{k.louder, k.quieter, k.auto, k.save},
		{k.tab, k.back, k.quit},
	}
}
