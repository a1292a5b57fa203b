package contracts

// DeviceKind identifies the role a device plays in the pipeline.
type DeviceKind string

const (
	// AudioInput is a capture device delivering mono samples.
	AudioInput DeviceKind = "audio_input"
	// MIDIOutput is the port receiving generated note events.
	MIDIOutput DeviceKind = "midi_output"
	// MIDIPedal is a MIDI input port carrying sustain pedal messages.
	MIDIPedal DeviceKind = "midi_pedal"
)

// Valid reports whether k is one of the known device kinds.
func (k DeviceKind) Valid() bool {
	switch k {
	case AudioInput, MIDIOutput, MIDIPedal:
		return true
	}
	return false
}

// DeviceInfo contains information about an audio or MIDI device as reported by a service.
type DeviceInfo struct {
	Kind              DeviceKind // Role of the device.
	Name              string     // Device name as presented to the user.
	StableKey         string     // Normalised identifier that survives re-enumeration.
	Manufacturer      string     // Device manufacturer, when known.
	EntityName        string     // Name of the entity to which the device belongs.
	HostAPI           string     // Audio host API (e.g. ALSA, CoreAudio, WASAPI).
	MaxChannels       int        // Maximum input channels for audio devices.
	DefaultSampleRate float64    // Default sample rate for audio devices.
	Virtual           bool       // Port is a software/virtual MIDI port (IAC, loopMIDI, ...).
}

// DeviceSelection is the persisted choice of a device.
type DeviceSelection struct {
	Kind        DeviceKind        `json:"kind"`
	DisplayName string            `json:"display_name"`
	StableKey   string            `json:"stable_key"`
	ExtraParams map[string]string `json:"extra_params"`
}
