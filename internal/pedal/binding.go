// Package pedal learns which MIDI message a sustain pedal sends and tracks its
// pressed state from incoming messages.
package pedal

import (
	"sync/atomic"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// DefaultMidpoint splits controller values into pressed and released halves.
const DefaultMidpoint = 64

// Action is the effect of a message on the pedal state.
type Action int

const (
	// ActionNone leaves the pedal state unchanged.
	ActionNone Action = iota
	// ActionPress presses the pedal.
	ActionPress
	// ActionRelease releases the pedal.
	ActionRelease
	// ActionToggle flips the pedal state.
	ActionToggle
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionPress:
		return "press"
	case ActionRelease:
		return "release"
	case ActionToggle:
		return "toggle"
	}
	return "none"
}

// PressRange returns the controller values treated as pressed when value was
// observed while learning. Pedals that send low values when pressed get an
// inverted range.
func PressRange(value, midpoint int) contracts.ValueRange {
	if value >= midpoint {
		return contracts.ValueRange{Min: value, Max: 127}
	}
	return contracts.ValueRange{Min: 0, Max: value}
}

// BindingFor builds the binding recorded for a learned message.
func BindingFor(msg contracts.MIDI, portStableKey string, midpoint int) contracts.PedalBinding {
	b := contracts.PedalBinding{
		PortStableKey: portStableKey,
		Channel:       msg.Channel(),
		Data1:         int(msg.Data1),
	}
	if msg.Status >= 0xF0 {
		b.Channel = contracts.AnyChannel
	}

	switch cmd := msg.Command(); {
	case cmd == 0xB0:
		b.MessageType = contracts.ControlChange
		b.Midpoint = midpoint
		r := PressRange(int(msg.Data2), midpoint)
		b.Data2Range = &r
	case cmd == 0x90 && msg.Data2 > 0:
		b.MessageType = contracts.NoteOnMessage
	case cmd == 0x80 || cmd == 0x90:
		b.MessageType = contracts.NoteOffMessage
	default:
		b.MessageType = contracts.OtherMessage
		b.Status = msg.Status
	}
	return b
}

// Classify reports what msg does to a pedal bound by b.
func Classify(b contracts.PedalBinding, msg contracts.MIDI) Action {
	if msg.IsRealtime() {
		return ActionNone
	}
	if b.Channel != contracts.AnyChannel && msg.Status < 0xF0 && msg.Channel() != b.Channel {
		return ActionNone
	}
	if int(msg.Data1) != b.Data1 {
		return ActionNone
	}

	cmd := msg.Command()
	switch b.MessageType {
	case contracts.ControlChange:
		if cmd != 0xB0 {
			return ActionNone
		}
		return classifyController(b, int(msg.Data2))

	case contracts.NoteOnMessage, contracts.NoteOffMessage:
		var down bool
		switch {
		case cmd == 0x90 && msg.Data2 > 0:
			down = true
		case cmd == 0x80 || cmd == 0x90:
			down = false
		default:
			return ActionNone
		}
		// A pedal learned from its note-off sends note-off when pressed.
		if b.MessageType == contracts.NoteOffMessage {
			down = !down
		}
		if down {
			return ActionPress
		}
		return ActionRelease

	case contracts.OtherMessage:
		if msg.Status == b.Status {
			return ActionToggle
		}
	}
	return ActionNone
}

func classifyController(b contracts.PedalBinding, v int) Action {
	mid := b.Midpoint
	if mid == 0 {
		mid = DefaultMidpoint
	}
	r := contracts.ValueRange{Min: mid, Max: 127}
	if b.Data2Range != nil {
		r = *b.Data2Range
	}

	if r.Contains(v) {
		return ActionPress
	}
	inverted := r.Max < mid
	if (inverted && v >= mid) || (!inverted && v < mid) {
		return ActionRelease
	}
	return ActionNone
}

// Tracker holds the pedal state for one binding. Apply is called from the input
// goroutine while Held may be read from any goroutine.
type Tracker struct {
	binding contracts.PedalBinding
	held    atomic.Bool
}

// NewTracker returns a tracker with the pedal released.
func NewTracker(b contracts.PedalBinding) *Tracker {
	return &Tracker{binding: b}
}

// Apply updates the state from msg and reports the new state and whether it changed.
func (t *Tracker) Apply(msg contracts.MIDI) (held, changed bool) {
	prev := t.held.Load()
	next := prev
	switch Classify(t.binding, msg) {
	case ActionPress:
		next = true
	case ActionRelease:
		next = false
	case ActionToggle:
		next = !prev
	}
	t.held.Store(next)
	return next, next != prev
}

// Held reports whether the pedal is pressed.
func (t *Tracker) Held() bool { return t.held.Load() }

// Reset releases the pedal.
func (t *Tracker) Reset() { t.held.Store(false) }
