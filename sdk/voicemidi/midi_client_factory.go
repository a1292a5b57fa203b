package voicemidi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/voicemidi/internal/midi/mididarwin"
	"github.com/leandrodaf/voicemidi/internal/midi/midirt"
	"github.com/leandrodaf/voicemidi/internal/midi/midiwindows"
	"github.com/leandrodaf/voicemidi/internal/midi/portlock"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// ErrUnsupportedOS is returned when no MIDI input client exists for the operating system.
var ErrUnsupportedOS = errors.New("unsupported operating system")

type clientInitializer func(*contracts.ClientOptions) (contracts.ClientMIDI, error)

// clientInitializers maps OS names to their native MIDI input clients.
var clientInitializers = map[string]clientInitializer{
	"darwin":  mididarwin.NewMIDIClient,  // CoreMIDI
	"windows": midiwindows.NewMIDIClient, // winmm
}

// portableOS lists systems served by the rtmidi client.
var portableOS = map[string]bool{
	"linux":   true,
	"freebsd": true,
	"openbsd": true,
	"netbsd":  true,
}

func initializerFor(goos string, portable bool) (clientInitializer, error) {
	if !portable {
		if initializer, exists := clientInitializers[goos]; exists {
			return initializer, nil
		}
	}
	if portable || portableOS[goos] {
		return midirt.NewMIDIClient, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
}

// NewClient initializes a MIDI input client for the current operating system:
// the native client on macOS and Windows, rtmidi elsewhere or when
// PortableMIDI is set. The client refuses ports already open in this process.
func NewClient(opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	initializer, err := initializerFor(runtime.GOOS, opts.PortableMIDI)
	if err != nil {
		return nil, err
	}
	client, err := initializer(opts)
	if err != nil {
		return nil, err
	}
	return portlock.Wrap(client), nil
}
