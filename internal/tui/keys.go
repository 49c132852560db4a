package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Check  key.Binding
	Next   key.Binding
	Prev   key.Binding
	Reveal key.Binding
	Mark   key.Binding
	Reload key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Check:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "check / next")),
		Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next")),
		Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev")),
		Reveal: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reveal")),
		Mark:   key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "mark")),
		Reload: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "reload")),
		Help:   key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
		Quit:   key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Check, k.Next, k.Reveal, k.Mark, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Check, k.Next, k.Prev},
		{k.Reveal, k.Mark, k.Reload},
		{k.Help, k.Quit},
	}
}
