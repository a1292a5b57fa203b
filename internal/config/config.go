// Package config holds the persisted voicemidi configuration and its on-disk store.
package config

import (
	"fmt"

	"github.com/leandrodaf/voicemidi/internal/notes"
	"github.com/leandrodaf/voicemidi/internal/pitch"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// Audio backends accepted in AudioBackend.
const (
	BackendPortAudio = "portaudio"
	BackendMiniaudio = "miniaudio"
)

// Config is the persisted configuration.
type Config struct {
	AudioInput   *contracts.DeviceSelection `json:"audio_input,omitempty"`
	MIDIOutput   *contracts.DeviceSelection `json:"midi_output,omitempty"`
	MIDIPedal    *contracts.DeviceSelection `json:"midi_pedal,omitempty"`
	PedalBinding *contracts.PedalBinding    `json:"pedal_binding,omitempty"`

	Sensitivity float64 `json:"sensitivity"`
	Velocity    int     `json:"velocity"`
	ChunkSize   int     `json:"chunk_size"`
	MinMIDINote int     `json:"min_midi_note"`
	MaxMIDINote int     `json:"max_midi_note"`
	SampleRate  int     `json:"sample_rate"`

	MinFreq      float64 `json:"min_freq"`
	MaxFreq      float64 `json:"max_freq"`
	SilenceFloor float64 `json:"silence_floor"`
	Debounce     int     `json:"debounce_chunks"`
	Tolerance    float64 `json:"semitone_tolerance"`
	Transpose    int     `json:"transpose"`
	MIDIChannel  int     `json:"midi_channel"`
	AudioBackend string  `json:"audio_backend"`
}

// Default returns the configuration used on first run.
func Default() Config {
	pp := pitch.DefaultParams()
	np := notes.DefaultParams()
	return Config{
		Sensitivity:  pp.Sensitivity,
		Velocity:     np.Velocity,
		ChunkSize:    1024,
		MinMIDINote:  np.MinNote,
		MaxMIDINote:  np.MaxNote,
		SampleRate:   44100,
		MinFreq:      pp.MinFreq,
		MaxFreq:      pp.MaxFreq,
		SilenceFloor: pp.SilenceFloor,
		Debounce:     np.Debounce,
		Tolerance:    np.Tolerance,
		Transpose:    0,
		MIDIChannel:  np.Channel,
		AudioBackend: BackendPortAudio,
	}
}

// Validate checks every field range.
func (c Config) Validate() error {
	if c.Sensitivity < 0.1 || c.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be in [0.1,1.0], got %g", c.Sensitivity)
	}
	if c.Velocity < 1 || c.Velocity > 127 {
		return fmt.Errorf("velocity must be in [1,127], got %d", c.Velocity)
	}
	if c.ChunkSize < 256 || c.ChunkSize > 8192 || c.ChunkSize&(c.ChunkSize-1) != 0 {
		return fmt.Errorf("chunk_size must be a power of two in [256,8192], got %d", c.ChunkSize)
	}
	if c.MinMIDINote < 0 || c.MinMIDINote > 127 {
		return fmt.Errorf("min_midi_note must be in [0,127], got %d", c.MinMIDINote)
	}
	if c.MaxMIDINote < 0 || c.MaxMIDINote > 127 {
		return fmt.Errorf("max_midi_note must be in [0,127], got %d", c.MaxMIDINote)
	}
	if c.MinMIDINote > c.MaxMIDINote {
		return fmt.Errorf("min_midi_note %d must not exceed max_midi_note %d", c.MinMIDINote, c.MaxMIDINote)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be in [8000,192000], got %d", c.SampleRate)
	}
	if c.MinFreq <= 0 || c.MaxFreq <= c.MinFreq {
		return fmt.Errorf("frequency range [%g,%g] must be positive and increasing", c.MinFreq, c.MaxFreq)
	}
	if c.MaxFreq >= float64(c.SampleRate)/2 {
		return fmt.Errorf("max_freq %g must be below the Nyquist frequency %d", c.MaxFreq, c.SampleRate/2)
	}
	if c.SilenceFloor < 0 || c.SilenceFloor >= 1 {
		return fmt.Errorf("silence_floor must be in [0,1), got %g", c.SilenceFloor)
	}
	if c.Debounce < 0 || c.Debounce > 100 {
		return fmt.Errorf("debounce_chunks must be in [0,100], got %d", c.Debounce)
	}
	if c.Tolerance < 0 || c.Tolerance >= 0.5 {
		return fmt.Errorf("semitone_tolerance must be in [0,0.5), got %g", c.Tolerance)
	}
	if c.Transpose < -24 || c.Transpose > 24 {
		return fmt.Errorf("transpose must be in [-24,24], got %d", c.Transpose)
	}
	if c.MIDIChannel < 0 || c.MIDIChannel > 15 {
		return fmt.Errorf("midi_channel must be in [0,15], got %d", c.MIDIChannel)
	}
	if c.AudioBackend != BackendPortAudio && c.AudioBackend != BackendMiniaudio {
		return fmt.Errorf("audio_backend must be %q or %q, got %q", BackendPortAudio, BackendMiniaudio, c.AudioBackend)
	}
	for _, s := range []struct {
		sel  *contracts.DeviceSelection
		kind contracts.DeviceKind
	}{{c.AudioInput, contracts.AudioInput}, {c.MIDIOutput, contracts.MIDIOutput}, {c.MIDIPedal, contracts.MIDIPedal}} {
		if s.sel != nil && s.sel.Kind != s.kind {
			return fmt.Errorf("%s selection has kind %q", s.kind, s.sel.Kind)
		}
	}
	if c.PedalBinding != nil {
		if err := validateBinding(*c.PedalBinding); err != nil {
			return fmt.Errorf("pedal_binding: %w", err)
		}
	}
	return nil
}

func validateBinding(b contracts.PedalBinding) error {
	switch b.MessageType {
	case contracts.ControlChange, contracts.NoteOnMessage, contracts.NoteOffMessage, contracts.OtherMessage:
	default:
		return fmt.Errorf("unknown message type %q", b.MessageType)
	}
	if b.Channel < contracts.AnyChannel || b.Channel > 15 {
		return fmt.Errorf("channel must be in [0,15] or %d, got %d", contracts.AnyChannel, b.Channel)
	}
	if b.Data1 < 0 || b.Data1 > 127 {
		return fmt.Errorf("data1 must be in [0,127], got %d", b.Data1)
	}
	if r := b.Data2Range; r != nil && (r.Min < 0 || r.Max > 127 || r.Min > r.Max) {
		return fmt.Errorf("data2 range [%d,%d] must lie within [0,127] with min <= max", r.Min, r.Max)
	}
	if b.Midpoint < 0 || b.Midpoint > 127 {
		return fmt.Errorf("midpoint must be in [0,127], got %d", b.Midpoint)
	}
	return nil
}

// PitchParams derives estimator parameters.
func (c Config) PitchParams() pitch.Params {
	p := pitch.DefaultParams()
	p.Sensitivity = c.Sensitivity
	p.SilenceFloor = c.SilenceFloor
	p.MinFreq = c.MinFreq
	p.MaxFreq = c.MaxFreq
	return p
}

// NoteParams derives state machine parameters.
func (c Config) NoteParams() notes.Params {
	return notes.Params{
		Sensitivity: c.Sensitivity,
		Velocity:    c.Velocity,
		MinNote:     c.MinMIDINote,
		MaxNote:     c.MaxMIDINote,
		Debounce:    c.Debounce,
		Tolerance:   c.Tolerance,
		Transpose:   c.Transpose,
		Channel:     c.MIDIChannel,
	}
}

// HasDevices reports whether the mandatory audio input and MIDI output are selected.
func (c Config) HasDevices() bool {
	return c.AudioInput != nil && c.MIDIOutput != nil
}
