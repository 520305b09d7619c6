package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/icco/stepseq/internal/device"
	"github.com/icco/stepseq/internal/pattern"
	"github.com/icco/stepseq/internal/sched"
	"github.com/icco/stepseq/internal/sequencer"
)

// memGateway is a Gateway over a fixed list of outputs that drops messages.
type memGateway struct {
	mu      sync.Mutex
	outputs []device.Output
	sent    int
}

func (g *memGateway) RequestAccess(context.Context) error { return nil }

func (g *memGateway) Outputs(context.Context) ([]device.Output, error) {
	return g.outputs, nil
}

func (g *memGateway) Send(device.Output, []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent++
	return nil
}

func (g *memGateway) Changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (g *memGateway) Close() error { return nil }

func newTestModel(t *testing.T, outputs ...string) (Model, *sequencer.Sequencer) {
	t.Helper()
	gw := &memGateway{outputs: device.UniqueOutputs(outputs)}
	seq := sequencer.New(gw, sched.NewSim(), sequencer.WithPattern(pattern.MustNew("C4", "E4")))
	return New(seq), seq
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m
}

func connect(t *testing.T, m Model, seq *sequencer.Sequencer) Model {
	t.Helper()
	if _, err := seq.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	next, _ := m.Update(accessMsg{})
	return next.(Model)
}

func TestToggleStepAtCursor(t *testing.T) {
	m, seq := newTestModel(t)
	m = press(m, "right", "right", "down", " ")

	p := seq.Snapshot().Pattern
	if !p.At(1).Active(2) {
		t.Errorf("Expected track 2 step 2 on, got %s", p.At(1))
	}
	if p.At(0).Steps() != (pattern.Steps{}) {
		t.Errorf("Expected track 1 untouched, got %s", p.At(0))
	}

	// The cursor stops at the edges.
	m = press(m, "down", "down", "left", "left", "left", " ")
	if !seq.Snapshot().Pattern.At(1).Active(0) {
		t.Errorf("Expected cursor clamped to track 2 step 0")
	}
}

func TestEditTrack(t *testing.T) {
	m, seq := newTestModel(t)
	m = press(m, "w", "w", "]", "]", "]")
	tr := seq.Snapshot().Pattern.At(0)
	if tr.Note() != "D4" || tr.Channel() != 4 {
		t.Errorf("Expected D4 on channel 4, got %s", tr)
	}

	m = press(m, "s", "[", "[", "[", "[", "[")
	tr = seq.Snapshot().Pattern.At(0)
	if tr.Note() != "C#4" || tr.Channel() != 1 {
		t.Errorf("Expected C#4 on channel 1, got %s", tr)
	}

	m = press(m, "a")
	if n := seq.Snapshot().Pattern.Len(); n != 3 || m.cursorY != 2 {
		t.Errorf("Expected 3 tracks with the cursor on the new one, got %d, %d", n, m.cursorY)
	}
	m = press(m, "x")
	if n := seq.Snapshot().Pattern.Len(); n != 2 || m.cursorY != 1 {
		t.Errorf("Expected 2 tracks with the cursor on the last one, got %d, %d", n, m.cursorY)
	}

	m = press(m, " ", "c")
	if seq.Snapshot().Pattern.At(1).Steps() != (pattern.Steps{}) {
		t.Error("Expected the track cleared")
	}
}

func TestPlayNeedsOutput(t *testing.T) {
	m, seq := newTestModel(t)
	m = press(m, "p")
	if seq.Snapshot().Transport.Playing {
		t.Fatal("Expected play rejected without MIDI")
	}
	if m.snap.Notice == nil || !strings.Contains(m.View(), m.snap.Notice.Title) {
		t.Error("Expected the notice in the view")
	}

	m, seq = newTestModel(t, "Synth")
	m = connect(t, m, seq)
	m = press(m, "p")
	if !seq.Snapshot().Transport.Playing || !m.snap.Transport.Playing {
		t.Error("Expected playback to start")
	}
	m = press(m, "p")
	if seq.Snapshot().Transport.Playing {
		t.Error("Expected playback to stop")
	}
}

func TestTempoKeys(t *testing.T) {
	m, seq := newTestModel(t)
	m = press(m, "+", "+", "-")
	if bpm := seq.Snapshot().Transport.BPM; bpm != 125 {
		t.Errorf("Expected 125 bpm, got %d", bpm)
	}
	for i := 0; i < 30; i++ {
		m = press(m, "+")
	}
	if bpm := m.snap.Transport.BPM; bpm != 180 {
		t.Errorf("Expected tempo clamped to 180, got %d", bpm)
	}
}

func TestOutputPicker(t *testing.T) {
	m, seq := newTestModel(t, "Port A", "Port B")
	m = connect(t, m, seq)

	m = press(m, "o")
	if m.mode != outputMode {
		t.Fatal("Expected the output picker")
	}
	if !strings.Contains(m.View(), "Port B") {
		t.Error("Expected outputs listed")
	}
	m = press(m, "down", "enter")
	if m.mode != gridMode {
		t.Error("Expected to return to the grid")
	}
	if sel := seq.Snapshot().Devices.Selected; sel.Name != "Port B" {
		t.Errorf("Expected Port B selected, got %q", sel.Name)
	}

	m = press(m, "o", "esc")
	if m.mode != gridMode {
		t.Error("Expected esc to close the picker")
	}
}

func TestPreferredOutput(t *testing.T) {
	gw := &memGateway{outputs: device.UniqueOutputs([]string{"Port A", "Port B"})}
	seq := sequencer.New(gw, sched.NewSim())
	m := New(seq, WithPreferredOutput("Port B"))
	m = connect(t, m, seq)
	if sel := m.snap.Devices.Selected; sel.Name != "Port B" {
		t.Errorf("Expected Port B selected, got %q", sel.Name)
	}
}

func TestUpdateMsgRefreshesSnapshot(t *testing.T) {
	m, seq := newTestModel(t)
	seq.AddTrack()
	next, cmd := m.Update(updateMsg{})
	m = next.(Model)
	if m.snap.Pattern.Len() != 3 {
		t.Errorf("Expected the new track in the snapshot, got %d tracks", m.snap.Pattern.Len())
	}
	if cmd == nil {
		t.Error("Expected to keep waiting for updates")
	}
}

func TestDismissNotice(t *testing.T) {
	m, seq := newTestModel(t)
	m = press(m, "t")
	if seq.Snapshot().Notice == nil {
		t.Fatal("Expected a notice for a test note without output")
	}
	m = press(m, "esc")
	if m.snap.Notice != nil {
		t.Errorf("Expected the notice dismissed, got %+v", m.snap.Notice)
	}
}

func TestQuitStops(t *testing.T) {
	m, seq := newTestModel(t, "Synth")
	m = connect(t, m, seq)
	m = press(m, "p")
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if seq.Snapshot().Transport.Playing {
		t.Error("Expected playback stopped on quit")
	}
}

func TestViewShowsGrid(t *testing.T) {
	m, _ := newTestModel(t)
	v := m.View()
	for _, want := range []string{"Step Sequencer", "BPM: 120", "C4", "E4", "not connected"} {
		if !strings.Contains(v, want) {
			t.Errorf("Expected %q in view", want)
		}
	}
}
