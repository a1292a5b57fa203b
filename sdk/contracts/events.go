package contracts

import "time"

// PitchObservation is the estimator output for one audio chunk.
type PitchObservation struct {
	FrequencyHz float64 // Fundamental frequency, 0 when no pitch was found.
	Confidence  float64 // Normalised autocorrelation peak height in [0,1].
	RMS         float64 // Root mean square level of the chunk.
}

// HasPitch reports whether the observation carries a frequency.
func (o PitchObservation) HasPitch() bool {
	return o.FrequencyHz > 0
}

// DisplayEvent is published to front ends once per processed chunk.
type DisplayEvent struct {
	Observation PitchObservation
	CurrentNote int // Sounding MIDI note, -1 when silent.
	IsSounding  bool
	PedalHeld   bool
	Notes       []NoteEvent // Note events emitted for this chunk, if any.
	Timestamp   time.Time
}

// ParamUpdate changes live tuning parameters. Nil fields are left untouched.
type ParamUpdate struct {
	Sensitivity *float64
	Velocity    *int
}

// Pipeline is a restartable voice-to-MIDI session.
type Pipeline interface {
	Start() error
	Stop() error
	Running() bool
	// Subscribe returns a channel of display events and a function that cancels the subscription.
	Subscribe(buffer int) (<-chan DisplayEvent, func())
	UpdateParams(update ParamUpdate) error
	// OutputConnected reports whether note events reach a MIDI port.
	OutputConnected() bool
}
