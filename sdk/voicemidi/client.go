// Package voicemidi is the public entry point: it builds the audio, MIDI and
// pipeline services from functional options.
package voicemidi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/voicemidi/internal/audio/miniaudio"
	"github.com/leandrodaf/voicemidi/internal/audio/portaudio"
	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/midi/midirt"
	"github.com/leandrodaf/voicemidi/internal/pedal"
	"github.com/leandrodaf/voicemidi/internal/pipeline"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"go.uber.org/multierr"
)

// ErrUnknownBackend is returned for an audio backend name that is not supported.
var ErrUnknownBackend = errors.New("unknown audio backend")

// NewMIDIClient creates a MIDI input client, used for pedals and MIDI learn.
//
// opts ...contracts.Option: A variadic list of option functions to customize the client configuration.
//
// Returns:
//   - contracts.ClientMIDI: An instance of the MIDI client.
//   - error: An error, if any occurred during the creation of the client.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(&options)
}

// NewMIDIOutput opens the rtmidi output service.
func NewMIDIOutput(opts ...contracts.Option) (contracts.MIDIOutputService, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	out, err := midirt.NewOutput(options.Logger, 0)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NewAudioCapture opens the capture service named by WithAudioBackend.
func NewAudioCapture(opts ...contracts.Option) (contracts.AudioCapture, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	return newCapture(&options)
}

func newCapture(options *contracts.ClientOptions) (contracts.AudioCapture, error) {
	var (
		capture contracts.AudioCapture
		err     error
	)
	switch options.AudioBackend {
	case config.BackendPortAudio:
		capture, err = portaudio.New(options.Logger)
	case config.BackendMiniaudio:
		capture, err = miniaudio.New(options.Logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, options.AudioBackend)
	}
	if err != nil {
		return nil, err
	}
	return capture, nil
}

// Session is a pipeline together with the services created for it.
type Session struct {
	*pipeline.Pipeline

	once    sync.Once
	closers []func() error
}

// Close stops the pipeline and closes the services the session created.
// Injected services are left open.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Pipeline.Stop()
		for i := len(s.closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, s.closers[i]())
		}
	})
	return err
}

// NewPipeline builds a stopped session for cfg. The capture backend defaults to
// cfg.AudioBackend. A MIDI output that cannot be opened leaves the session
// display-only.
func NewPipeline(cfg config.Config, opts ...contracts.Option) (*Session, error) {
	opts = append([]contracts.Option{contracts.WithAudioBackend(cfg.AudioBackend)}, opts...)
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	log := options.Logger
	s := &Session{}

	capture := options.AudioCapture
	if capture == nil {
		if capture, err = newCapture(&options); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, capture.Close)
	}

	output := options.MIDIOutput
	if output == nil {
		out, err := midirt.NewOutput(log, 0)
		if err != nil {
			log.Warn("MIDI output service unavailable", log.Field().Error("error", err))
		} else {
			output = out
			s.closers = append(s.closers, out.Close)
		}
	}

	newInput := options.MIDIInput
	if newInput == nil {
		newInput = func() (contracts.ClientMIDI, error) { return NewClient(&options) }
	}

	p, err := pipeline.New(cfg, pipeline.Deps{
		Capture:       capture,
		Output:        output,
		NewPedalInput: newInput,
	}, log)
	if err != nil {
		for i := len(s.closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, s.closers[i]())
		}
		return nil, err
	}
	s.Pipeline = p
	return s, nil
}

// LearnPedal opens the MIDI input port with the given stable key and returns a
// binding for the next message received on it.
func LearnPedal(ctx context.Context, portStableKey string, timeout time.Duration, opts ...contracts.Option) (contracts.PedalBinding, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return contracts.PedalBinding{}, err
	}
	newInput := options.MIDIInput
	if newInput == nil {
		newInput = func() (contracts.ClientMIDI, error) { return NewClient(&options) }
	}
	client, err := newInput()
	if err != nil {
		return contracts.PedalBinding{}, fmt.Errorf("%w: %v", pedal.ErrPortUnavailable, err)
	}
	return pedal.NewLearner(client, options.Logger).Learn(ctx, portStableKey, timeout)
}
