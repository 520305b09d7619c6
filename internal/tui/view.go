package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/icco/stepseq/internal/pattern"
	"github.com/icco/stepseq/internal/sequencer"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00FF00"))

	noticeStyles = map[sequencer.Level]lipgloss.Style{
		sequencer.Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF")),
		sequencer.Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		sequencer.Failure: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
	}
)

// Gradient from cyan to magenta, one color per step.
var clockColors = [pattern.Resolution]string{
	"#00FFFF", "#00E5FF", "#00CCFF", "#00B2FF",
	"#0099FF", "#0080FF", "#0066FF", "#1A4DFF",
	"#3333FF", "#4D1AFF", "#6600FF", "#8000FF",
	"#9900FF", "#B300FF", "#CC00FF", "#FF00FF",
}

// labelWidth is the width of the track label column: "Note Ch  ".
const labelWidth = 14

func (m Model) viewGrid() string {
	s := m.snap
	var b strings.Builder

	b.WriteString(titleStyle.Render("Step Sequencer") + "\n\n")
	b.WriteString(fmt.Sprintf("BPM: %d\n", s.Transport.BPM))
	if s.Devices.Ready() {
		b.WriteString(okStyle.Render(statusLine(s)) + "\n\n")
	} else {
		b.WriteString(statusLine(s) + "\n\n")
	}

	b.WriteString(renderClockBar(s.Transport.Playing, s.Transport.Step) + "\n\n")

	b.WriteString(fmt.Sprintf("%-*s", labelWidth, "Note  Ch"))
	hexDigits := "0123456789ABCDEF"
	for i := 0; i < pattern.Resolution; i++ {
		b.WriteString(fmt.Sprintf(" %c ", hexDigits[i]))
	}
	b.WriteString("\n")

	if s.Pattern.Len() == 0 {
		b.WriteString(dimStyle.Render("No tracks. Press 'a' to add one.") + "\n")
	}
	for y, t := range s.Pattern.Tracks() {
		label := fmt.Sprintf("%-5s %-*d", t.Note(), labelWidth-6, t.Channel())
		if y == m.cursorY {
			label = selectedStyle.Render(label)
		}
		b.WriteString(label)
		for x := 0; x < pattern.Resolution; x++ {
			b.WriteString(m.renderCell(t, x, y))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if n := s.Notice; n != nil {
		b.WriteString(noticeStyles[n.Level].Render(n.Title+": "+n.Text) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) renderCell(t *pattern.Track, x, y int) string {
	cell := " · "
	style := lipgloss.NewStyle().Width(3).Foreground(lipgloss.Color("#666666"))
	if t.Active(x) {
		cell = " ● "
		style = style.Foreground(lipgloss.Color("#FFD700"))
	}
	if m.snap.Transport.Playing && x == m.snap.Transport.Step {
		style = style.Bold(true)
		if t.Active(x) {
			style = style.Foreground(lipgloss.Color("#00FF00"))
		}
	}
	if x == m.cursorX && y == m.cursorY {
		style = style.Background(lipgloss.Color("#7D56F4"))
	}
	return style.Render(cell)
}

func renderClockBar(playing bool, step int) string {
	var bar strings.Builder
	bar.WriteString(fmt.Sprintf("%-*s", labelWidth, "Clock"))

	for i := 0; i < pattern.Resolution; i++ {
		var (
			cell  string
			style lipgloss.Style
		)
		switch {
		case playing && i == step:
			cell = " ▶ "
			style = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color(clockColors[i])).
				Bold(true)
		case playing && i < step:
			cell = " █ "
			style = lipgloss.NewStyle().Foreground(lipgloss.Color(clockColors[i]))
		default:
			cell = " · "
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
		}
		bar.WriteString(style.Render(cell))
	}

	if playing {
		bar.WriteString(okStyle.Bold(true).Render(" Playing"))
	} else {
		bar.WriteString(dimStyle.Render(" Stopped"))
	}
	return bar.String()
}

func (m Model) viewOutputs() string {
	d := m.snap.Devices
	var b strings.Builder

	b.WriteString(titleStyle.Render("Select MIDI Output") + "\n\n")

	switch {
	case !d.AccessGranted:
		b.WriteString("MIDI is not connected. Press esc, then 'm' to connect.\n")
	case len(d.Outputs) == 0:
		b.WriteString("No MIDI output ports found.\n\n")
		b.WriteString("Make sure your MIDI interface is connected, then press 'r'.\n")
	default:
		for i, o := range d.Outputs {
			cursor := "  "
			if i == m.outCursor {
				cursor = "> "
			}
			connected := ""
			if d.HasSelected && d.Selected.ID == o.ID {
				connected = " (selected)"
			}
			line := cursor + o.Name + connected
			if i == m.outCursor {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	if d.Err != nil {
		b.WriteString("\n" + noticeStyles[sequencer.Failure].Render(d.Err.Error()) + "\n")
	}
	b.WriteString("\n" + m.help.View(pickerHelp{m.keys}))
	return b.String()
}
