// Package tui is the terminal front end of the sequencer.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/icco/stepseq/internal/note"
	"github.com/icco/stepseq/internal/pattern"
	"github.com/icco/stepseq/internal/sequencer"
)

const (
	tempoStep     = 5
	accessTimeout = 10 * time.Second
)

type viewMode int

const (
	gridMode viewMode = iota
	outputMode
)

// updateMsg means the sequencer has a new snapshot.
type updateMsg struct{}

// accessMsg carries the result of the initial MIDI access request.
type accessMsg struct {
	err error
}

// Model is the bubbletea model driving a Sequencer.
type Model struct {
	seq  *sequencer.Sequencer
	snap sequencer.Snapshot

	keys keyMap
	help help.Model

	mode      viewMode
	cursorX   int // step
	cursorY   int // track index
	outCursor int
	width     int
	height    int

	// preferred is an output name to select once access is granted.
	preferred string
}

// Option configures a Model.
type Option func(*Model)

// WithPreferredOutput selects the output with this name after access is
// granted, when it exists.
func WithPreferredOutput(name string) Option {
	return func(m *Model) { m.preferred = name }
}

// New returns a model over seq.
func New(seq *sequencer.Sequencer, opts ...Option) Model {
	m := Model{
		seq:  seq,
		snap: seq.Snapshot(),
		keys: defaultKeyMap(),
		help: help.New(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.seq), requestAccess(m.seq))
}

func waitForUpdate(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		<-seq.Updates()
		return updateMsg{}
	}
}

func requestAccess(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), accessTimeout)
		defer cancel()
		_, err := seq.RequestAccess(ctx)
		return accessMsg{err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case updateMsg:
		m.setSnapshot(m.seq.Snapshot())
		return m, waitForUpdate(m.seq)

	case accessMsg:
		if msg.err == nil && m.preferred != "" {
			m.selectPreferred()
		}
		m.setSnapshot(m.seq.Snapshot())
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.seq.Stop()
			return m, tea.Quit
		}
		if m.mode == outputMode {
			return m.updateOutputs(msg)
		}
		return m.updateGrid(msg)
	}
	return m, nil
}

func (m *Model) selectPreferred() {
	for _, o := range m.seq.Snapshot().Devices.Outputs {
		if o.Name == m.preferred {
			_, _ = m.seq.SelectOutput(o.ID)
			return
		}
	}
}

// setSnapshot stores snap and keeps the cursor inside the grid.
func (m *Model) setSnapshot(snap sequencer.Snapshot) {
	m.snap = snap
	if n := snap.Pattern.Len(); m.cursorY >= n {
		m.cursorY = max(n-1, 0)
	}
}

func (m Model) currentTrack() (*pattern.Track, bool) {
	if m.snap.Pattern.Len() == 0 {
		return nil, false
	}
	return m.snap.Pattern.At(m.cursorY), true
}

func (m Model) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	track, ok := m.currentTrack()

	switch {
	case key.Matches(msg, k.Left):
		if m.cursorX > 0 {
			m.cursorX--
		}
	case key.Matches(msg, k.Right):
		if m.cursorX < pattern.Resolution-1 {
			m.cursorX++
		}
	case key.Matches(msg, k.Up):
		if m.cursorY > 0 {
			m.cursorY--
		}
	case key.Matches(msg, k.Down):
		if m.cursorY < m.snap.Pattern.Len()-1 {
			m.cursorY++
		}
	case key.Matches(msg, k.Toggle):
		if ok {
			m.setSnapshot(m.seq.ToggleStep(track.ID(), m.cursorX))
		}
	case key.Matches(msg, k.NoteUp, k.NoteDown):
		if ok {
			delta := 1
			if key.Matches(msg, k.NoteDown) {
				delta = -1
			}
			snap, _ := m.seq.UpdateTrack(track.ID(), note.Step(track.Note(), delta), track.Channel())
			m.setSnapshot(snap)
		}
	case key.Matches(msg, k.ChannelUp, k.ChannelDown):
		if ok {
			ch := track.Channel() + 1
			if key.Matches(msg, k.ChannelDown) {
				ch = track.Channel() - 1
			}
			ch = min(max(ch, pattern.MinChannel), pattern.MaxChannel)
			snap, _ := m.seq.UpdateTrack(track.ID(), track.Note(), ch)
			m.setSnapshot(snap)
		}
	case key.Matches(msg, k.AddTrack):
		m.setSnapshot(m.seq.AddTrack())
		m.cursorY = m.snap.Pattern.Len() - 1
	case key.Matches(msg, k.RemoveTrack):
		if ok {
			m.setSnapshot(m.seq.RemoveTrack(track.ID()))
		}
	case key.Matches(msg, k.ClearTrack):
		if ok {
			m.setSnapshot(m.seq.ClearTrack(track.ID()))
		}
	case key.Matches(msg, k.Play):
		snap, _ := m.seq.TogglePlay()
		m.setSnapshot(snap)
	case key.Matches(msg, k.TempoUp):
		m.setSnapshot(m.seq.SetTempo(m.snap.Transport.BPM + tempoStep))
	case key.Matches(msg, k.TempoDown):
		m.setSnapshot(m.seq.SetTempo(m.snap.Transport.BPM - tempoStep))
	case key.Matches(msg, k.TestNote):
		snap, _ := m.seq.SendTestNote()
		m.setSnapshot(snap)
	case key.Matches(msg, k.Connect):
		return m, requestAccess(m.seq)
	case key.Matches(msg, k.Outputs):
		snap, _ := m.seq.RefreshDevices(context.Background())
		m.setSnapshot(snap)
		m.mode = outputMode
		m.outCursor = 0
		for i, o := range snap.Devices.Outputs {
			if snap.Devices.HasSelected && o.ID == snap.Devices.Selected.ID {
				m.outCursor = i
			}
		}
	case key.Matches(msg, k.Dismiss):
		m.setSnapshot(m.seq.DismissNotice())
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) updateOutputs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	outs := m.snap.Devices.Outputs

	switch {
	case key.Matches(msg, k.Up):
		if m.outCursor > 0 {
			m.outCursor--
		}
	case key.Matches(msg, k.Down):
		if m.outCursor < len(outs)-1 {
			m.outCursor++
		}
	case key.Matches(msg, k.Select):
		if m.outCursor < len(outs) {
			snap, _ := m.seq.SelectOutput(outs[m.outCursor].ID)
			m.setSnapshot(snap)
		}
		m.mode = gridMode
	case key.Matches(msg, k.Refresh):
		snap, _ := m.seq.RefreshDevices(context.Background())
		m.setSnapshot(snap)
		if m.outCursor >= len(snap.Devices.Outputs) {
			m.outCursor = max(len(snap.Devices.Outputs)-1, 0)
		}
	case key.Matches(msg, k.Dismiss, k.Outputs):
		m.mode = gridMode
	}
	return m, nil
}

func (m Model) View() string {
	if m.mode == outputMode {
		return m.viewOutputs()
	}
	return m.viewGrid()
}

func statusLine(snap sequencer.Snapshot) string {
	d := snap.Devices
	switch {
	case d.Unsupported():
		return "MIDI Out: not supported on this system"
	case !d.AccessGranted:
		return "MIDI Out: not connected (press 'm' to connect)"
	case !d.HasSelected:
		return "MIDI Out: none selected (press 'o' to select)"
	default:
		return fmt.Sprintf("MIDI Out: %s ✓", d.Selected.Name)
	}
}
