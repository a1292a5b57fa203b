package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/pitch"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

var (
	noteColor  = color.New(color.FgCyan, color.Bold)
	midiColor  = color.New(color.FgMagenta, color.Bold)
	freqColor  = color.New(color.FgYellow)
	pedalColor = color.New(color.FgGreen, color.Bold)
)

// statusLine renders one display event for the live status line.
func statusLine(ev contracts.DisplayEvent, cfg config.Config) string {
	var b strings.Builder
	if ev.IsSounding {
		b.WriteString(noteColor.Sprintf("%-4s", pitch.NoteName(ev.CurrentNote)))
		b.WriteString(" | MIDI ")
		b.WriteString(midiColor.Sprintf("%3d", ev.CurrentNote))
	} else {
		b.WriteString(dim.Sprint("--  "))
		b.WriteString(" | MIDI ")
		b.WriteString(dim.Sprint(" --"))
	}

	obs := ev.Observation
	b.WriteString(" | ")
	if obs.HasPitch() {
		b.WriteString(freqColor.Sprintf("%6.1f Hz", obs.FrequencyHz))
	} else {
		b.WriteString(dim.Sprint("    -- Hz"))
	}
	fmt.Fprintf(&b, " | conf %.2f", obs.Confidence)

	if ev.PedalHeld {
		b.WriteString(" | ")
		b.WriteString(pedalColor.Sprint("PEDAL"))
	}
	if obs.HasPitch() {
		n := pitch.NearestNote(obs.FrequencyHz) + cfg.Transpose
		if n < cfg.MinMIDINote || n > cfg.MaxMIDINote {
			b.WriteString(warning.Sprint(" | outside the note range, try -transpose (e.g. -12 for one octave down)"))
		}
	}
	return b.String()
}
