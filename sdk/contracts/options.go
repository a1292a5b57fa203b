package contracts

// MIDICommand represents the types of MIDI commands for event filtering.
type MIDICommand byte

const (
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80
	// ControlChangeCommand is the MIDI command for a Control Change event (0xB0).
	ControlChangeCommand MIDICommand = 0xB0
)

// MIDIEventFilter allows users to specify which MIDI commands to capture.
type MIDIEventFilter struct {
	Commands []MIDICommand // List of MIDI commands to filter.
}

// Allows reports whether a message with the given command passes the filter. A nil filter allows everything.
func (f *MIDIEventFilter) Allows(command byte) bool {
	if f == nil {
		return true
	}
	for _, allowed := range f.Commands {
		if command == byte(allowed) {
			return true
		}
	}
	return false
}

// CoreMIDIConfig holds configuration for CoreMIDI.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client.
}

// ClientOptions defines the configuration options shared by the SDK constructors.
type ClientOptions struct {
	Logger          Logger            // Logger for logging events and errors.
	LogLevel        LogLevel          // Level of logging to use.
	LogFilePath     string            // File path for logging if file logging is enabled.
	MIDIEventFilter *MIDIEventFilter  // Optional filter for MIDI events to capture.
	CoreMIDIConfig  *CoreMIDIConfig   // Configuration specific to CoreMIDI.
	PortableMIDI    bool              // Use the rtmidi input client instead of the native one.
	AudioBackend    string            // Capture backend name ("portaudio" or "miniaudio").
	AudioCapture    AudioCapture      // Capture service, overrides AudioBackend.
	MIDIOutput      MIDIOutputService // Output service.

	// MIDIInput constructs pedal input clients.
	MIDIInput func() (ClientMIDI, error)
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs log output to the given file.
func WithLogFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithMIDIEventFilter sets the MIDI event filter for MIDI input clients.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *ClientOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithCoreMIDIConfig sets the CoreMIDI configuration for the MIDI client.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *ClientOptions) {
		opts.CoreMIDIConfig = &config
	}
}

// WithPortableMIDI forces the rtmidi input client on every platform.
func WithPortableMIDI() Option {
	return func(opts *ClientOptions) {
		opts.PortableMIDI = true
	}
}

// WithAudioBackend selects the capture backend by name.
func WithAudioBackend(name string) Option {
	return func(opts *ClientOptions) {
		opts.AudioBackend = name
	}
}

// WithAudioCapture injects a capture service.
func WithAudioCapture(c AudioCapture) Option {
	return func(opts *ClientOptions) {
		opts.AudioCapture = c
	}
}

// WithMIDIOutput injects a MIDI output service.
func WithMIDIOutput(o MIDIOutputService) Option {
	return func(opts *ClientOptions) {
		opts.MIDIOutput = o
	}
}

// WithMIDIInput injects the constructor used for pedal input clients.
func WithMIDIInput(newClient func() (ClientMIDI, error)) Option {
	return func(opts *ClientOptions) {
		opts.MIDIInput = newClient
	}
}
