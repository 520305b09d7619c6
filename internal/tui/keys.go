package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding

	Toggle      key.Binding
	Play        key.Binding
	TempoUp     key.Binding
	TempoDown   key.Binding
	NoteUp      key.Binding
	NoteDown    key.Binding
	ChannelUp   key.Binding
	ChannelDown key.Binding
	AddTrack    key.Binding
	RemoveTrack key.Binding
	ClearTrack  key.Binding

	Outputs  key.Binding
	Connect  key.Binding
	Refresh  key.Binding
	Select   key.Binding
	TestNote key.Binding
	Dismiss  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func binding(help string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help))
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),

		Toggle:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle step")),
		Play:        binding("play/stop", "p"),
		TempoUp:     binding("tempo +5", "+", "="),
		TempoDown:   binding("tempo -5", "-", "_"),
		NoteUp:      binding("note up", "w"),
		NoteDown:    binding("note down", "s"),
		ChannelUp:   binding("channel up", "]"),
		ChannelDown: binding("channel down", "["),
		AddTrack:    binding("add track", "a"),
		RemoveTrack: binding("remove track", "x"),
		ClearTrack:  binding("clear track", "c"),

		Outputs:  binding("MIDI output", "o"),
		Connect:  binding("connect MIDI", "m"),
		Refresh:  binding("refresh", "r"),
		Select:   binding("select", "enter"),
		TestNote: binding("test note", "t"),
		Dismiss:  binding("dismiss", "esc"),
		Help:     binding("help", "?"),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Play, k.TempoUp, k.TempoDown, k.Outputs, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Toggle, k.NoteUp, k.NoteDown, k.ChannelUp, k.ChannelDown},
		{k.AddTrack, k.RemoveTrack, k.ClearTrack},
		{k.Play, k.TempoUp, k.TempoDown, k.TestNote},
		{k.Outputs, k.Connect, k.Refresh, k.Dismiss, k.Help, k.Quit},
	}
}

// pickerHelp is the key map shown while choosing an output.
type pickerHelp struct{ k keyMap }

func (p pickerHelp) ShortHelp() []key.Binding {
	return []key.Binding{p.k.Up, p.k.Down, p.k.Select, p.k.Refresh, p.k.Dismiss}
}

func (p pickerHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{p.ShortHelp()}
}
