// Package note maps note names such as "C4" or "F#-1" to MIDI note numbers.
package note

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

const (
	minOctave      = -1
	maxOctave      = 9
	notesPerOctave = 12
	maxNumber      = 127
)

// ErrInvalid is returned for a name that is not in the lookup table.
var ErrInvalid = errors.New("invalid note")

// pitchClasses uses sharps only, as the note pickers do.
var pitchClasses = [notesPerOctave]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// table covers C-1 (0) through G9 (127). Middle C is C4 = 60.
var table = func() map[string]uint8 {
	t := make(map[string]uint8, maxNumber+1)
	for octave := minOctave; octave <= maxOctave; octave++ {
		for pc, name := range pitchClasses {
			n := (octave+1)*notesPerOctave + pc
			if n > maxNumber {
				break
			}
			t[name+strconv.Itoa(octave)] = uint8(n) //nolint:gosec // n is bounded by maxNumber
		}
	}
	return t
}()

// Number resolves a note name to its MIDI note number.
func Number(name string) (uint8, error) {
	n, ok := table[name]
	if !ok {
		return 0, errors.Wrapf(ErrInvalid, "%q", name)
	}
	return n, nil
}

// Valid reports whether name is in the lookup table.
func Valid(name string) bool {
	_, ok := table[name]
	return ok
}

// Name returns the note name for a MIDI note number.
func Name(n uint8) string {
	if n > maxNumber {
		return ""
	}
	octave := int(n)/notesPerOctave - 1
	return fmt.Sprintf("%s%d", pitchClasses[int(n)%notesPerOctave], octave)
}

// Step moves a note name by delta semitones, staying inside the table.
// An invalid name is returned unchanged.
func Step(name string, delta int) string {
	n, err := Number(name)
	if err != nil {
		return name
	}
	next := int(n) + delta
	if next < 0 {
		next = 0
	}
	if next > maxNumber {
		next = maxNumber
	}
	return Name(uint8(next)) //nolint:gosec // next is clamped to [0, 127]
}
