// Package notes turns per-chunk pitch observations into a monophonic stream of
// NoteOn/NoteOff events.
package notes

import (
	"fmt"
	"math"
	"time"

	"github.com/leandrodaf/voicemidi/internal/pitch"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// Params configures the state machine.
type Params struct {
	Sensitivity float64 // Minimum observation confidence that counts as voiced.
	Velocity    int     // Fixed NoteOn velocity, 1..127.
	MinNote     int     // Lowest note emitted.
	MaxNote     int     // Highest note emitted.
	Debounce    int     // Unvoiced chunks tolerated before NoteOff.
	Tolerance   float64 // Extra semitones beyond 0.5 still treated as the current note.
	Transpose   int     // Semitones added to every detected note.
	Channel     int     // MIDI channel, 0..15.
}

// DefaultParams returns the defaults used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Sensitivity: 0.8,
		Velocity:    64,
		MinNote:     36,
		MaxNote:     84,
		Debounce:    3,
		Tolerance:   0,
		Channel:     0,
	}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.Velocity < 1 || p.Velocity > 127 {
		return fmt.Errorf("velocity must be in [1,127], got %d", p.Velocity)
	}
	if p.MinNote < 0 || p.MaxNote > 127 || p.MinNote > p.MaxNote {
		return fmt.Errorf("note range [%d,%d] must lie within [0,127] with min <= max", p.MinNote, p.MaxNote)
	}
	if p.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0, got %d", p.Debounce)
	}
	if p.Tolerance < 0 || p.Tolerance >= 0.5 {
		return fmt.Errorf("tolerance must be in [0,0.5), got %g", p.Tolerance)
	}
	if p.Channel < 0 || p.Channel > 15 {
		return fmt.Errorf("channel must be in [0,15], got %d", p.Channel)
	}
	return nil
}

// State is the externally visible state of a Machine.
type State struct {
	CurrentNote          int // -1 when silent
	Sounding             bool
	FramesBelowThreshold int
	PedalHeld            bool
}

// Machine is the note state machine. It is driven from a single goroutine.
type Machine struct {
	params  Params
	state   State
	channel int // channel the sounding note was started on
}

// New returns a silent machine.
func New(p Params) (*Machine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Machine{params: p, state: State{CurrentNote: -1}}, nil
}

// SetParams replaces the tuning. A sounding note keeps sounding.
func (m *Machine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.params = p
	return nil
}

// Params returns the current tuning.
func (m *Machine) Params() Params { return m.params }

// State returns a copy of the current state.
func (m *Machine) State() State { return m.state }

// Step advances the machine by one observation and appends any emitted events to out.
func (m *Machine) Step(obs contracts.PitchObservation, pedalHeld bool, now time.Time, out []contracts.NoteEvent) []contracts.NoteEvent {
	m.state.PedalHeld = pedalHeld
	note, exact, voiced := m.noteOf(obs)

	if !m.state.Sounding {
		if voiced {
			out = m.on(note, now, out)
		}
		return out
	}

	if pedalHeld {
		m.state.FramesBelowThreshold = 0
		return out
	}

	if voiced {
		m.state.FramesBelowThreshold = 0
		if math.Abs(exact-float64(m.state.CurrentNote)) <= 0.5+m.params.Tolerance {
			return out
		}
		out = m.off(now, out)
		return m.on(note, now, out)
	}

	m.state.FramesBelowThreshold++
	if m.state.FramesBelowThreshold >= m.params.Debounce {
		out = m.off(now, out)
	}
	return out
}

// Flush ends a sounding note, regardless of pedal, and resets the machine.
func (m *Machine) Flush(now time.Time, out []contracts.NoteEvent) []contracts.NoteEvent {
	if m.state.Sounding {
		out = m.off(now, out)
	}
	m.state = State{CurrentNote: -1}
	return out
}

// noteOf maps an observation to a transposed note. voiced is false for silence, low
// confidence and notes outside the configured range.
func (m *Machine) noteOf(obs contracts.PitchObservation) (note int, exact float64, voiced bool) {
	if !obs.HasPitch() || obs.Confidence < m.params.Sensitivity {
		return 0, 0, false
	}
	exact = pitch.MIDIFromFrequency(obs.FrequencyHz) + float64(m.params.Transpose)
	if math.IsNaN(exact) || math.IsInf(exact, 0) {
		return 0, 0, false
	}
	note = int(math.Round(exact))
	if note < m.params.MinNote || note > m.params.MaxNote {
		return 0, 0, false
	}
	return note, exact, true
}

func (m *Machine) on(note int, now time.Time, out []contracts.NoteEvent) []contracts.NoteEvent {
	m.state.CurrentNote = note
	m.state.Sounding = true
	m.state.FramesBelowThreshold = 0
	m.channel = m.params.Channel
	return append(out, contracts.NoteEvent{
		Kind:      contracts.NoteOnEvent,
		Note:      note,
		Velocity:  m.params.Velocity,
		Channel:   m.params.Channel,
		Timestamp: now,
	})
}

func (m *Machine) off(now time.Time, out []contracts.NoteEvent) []contracts.NoteEvent {
	out = append(out, contracts.NoteEvent{
		Kind:      contracts.NoteOffEvent,
		Note:      m.state.CurrentNote,
		Channel:   m.channel,
		Timestamp: now,
	})
	m.state.CurrentNote = -1
	m.state.Sounding = false
	m.state.FramesBelowThreshold = 0
	return out
}
