package contracts

import (
	"errors"
	"time"
)

// ErrPortNotFound is returned by MIDI services when no port matches the requested stable key.
var ErrPortNotFound = errors.New("MIDI port not found")

// MIDI represents a raw short MIDI message received from an input port.
type MIDI struct {
	Timestamp uint64 // Timestamp indicates the time the event occurred, in Unix nanoseconds.
	Status    byte   // Status is the full status byte (command and channel).
	Data1     byte   // Data1 is the note or controller number.
	Data2     byte   // Data2 is the velocity or controller value.
}

// Command returns the status byte with the channel nibble cleared.
func (m MIDI) Command() byte {
	if m.Status >= 0xF0 {
		return m.Status
	}
	return m.Status & 0xF0
}

// Channel returns the zero-based MIDI channel of a channel voice message.
func (m MIDI) Channel() int {
	return int(m.Status & 0x0F)
}

// IsRealtime reports whether the message is a system real-time byte (clock, active sensing, ...).
func (m MIDI) IsRealtime() bool {
	return m.Status >= 0xF8
}

// ClientMIDI defines an interface for MIDI input client operations.
type ClientMIDI interface {
	Stop() error                         // Stops capturing and disconnects the selected port.
	ListDevices() ([]DeviceInfo, error)  // Lists all available MIDI input ports.
	SelectDevice(stableKey string) error // Connects to the input port identified by stableKey.
	StartCapture(eventChannel chan MIDI) // Starts capturing MIDI events and sends them to the specified channel.
}

// NoteKind distinguishes note-on from note-off events.
type NoteKind int

const (
	// NoteOnEvent starts a note.
	NoteOnEvent NoteKind = iota + 1
	// NoteOffEvent ends a note.
	NoteOffEvent
)

// String implements fmt.Stringer.
func (k NoteKind) String() string {
	switch k {
	case NoteOnEvent:
		return "NoteOn"
	case NoteOffEvent:
		return "NoteOff"
	}
	return "Unknown"
}

// NoteEvent is a note-on or note-off produced by the note state machine.
type NoteEvent struct {
	Kind      NoteKind
	Note      int // 0..127
	Velocity  int // 1..127 for NoteOn, 0 for NoteOff
	Channel   int // 0..15
	Timestamp time.Time
}

// NoteSink accepts note events for delivery to a MIDI output port.
type NoteSink interface {
	// Send enqueues ev without blocking and reports whether it was accepted.
	Send(ev NoteEvent) bool
	// Failed is closed once a write to the port fails. A failed sink delivers nothing more
	// and should be closed and replaced.
	Failed() <-chan struct{}
	// Close flushes queued events, silences the port and releases it.
	Close() error
}

// MIDIOutputService enumerates and opens MIDI output ports.
type MIDIOutputService interface {
	ListPorts() ([]DeviceInfo, error)
	OpenOutput(stableKey string) (NoteSink, error)
	Close() error
}

// MessageType classifies a learned pedal message.
type MessageType string

const (
	// ControlChange is a 0xBn controller message.
	ControlChange MessageType = "control_change"
	// NoteOnMessage is a 0x9n message with velocity > 0.
	NoteOnMessage MessageType = "note_on"
	// NoteOffMessage is a 0x8n message or 0x9n with velocity 0.
	NoteOffMessage MessageType = "note_off"
	// OtherMessage is any other channel or system message.
	OtherMessage MessageType = "other"
)

// AnyChannel in a pedal binding matches messages on every channel.
const AnyChannel = -1

// ValueRange is an inclusive range of data2 values.
type ValueRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether v lies in the range.
func (r ValueRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// PedalBinding describes which incoming MIDI message acts as the sustain pedal.
type PedalBinding struct {
	PortStableKey string      `json:"port_stable_key"`
	MessageType   MessageType `json:"message_type"`
	Status        byte        `json:"status,omitempty"` // Raw status byte, Other bindings only.
	Channel       int         `json:"channel"`
	Data1         int         `json:"data1"`
	Data2Range    *ValueRange `json:"data2_range,omitempty"` // Press range, ControlChange only.
	Midpoint      int         `json:"midpoint,omitempty"`    // Press/release split, ControlChange only.
}
