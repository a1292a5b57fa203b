package pitch

import (
	"fmt"
	"math"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// MIDIFromFrequency returns the fractional MIDI note number of f (A4 = 440 Hz = 69).
func MIDIFromFrequency(f float64) float64 {
	return 69 + 12*math.Log2(f/440)
}

// NearestNote rounds f to the closest MIDI note.
func NearestNote(f float64) int {
	return int(math.Round(MIDIFromFrequency(f)))
}

// FrequencyFromMIDI returns the equal-tempered frequency of note.
func FrequencyFromMIDI(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}

// NoteName formats a MIDI note as pitch class and octave, with middle C (60) as C4.
func NoteName(note int) string {
	if note < 0 || note > 127 {
		return "--"
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12-1)
}
