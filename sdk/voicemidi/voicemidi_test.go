package voicemidi

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/logger"
	"github.com/leandrodaf/voicemidi/internal/midi/midirt"
	"github.com/leandrodaf/voicemidi/internal/pedal"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

func TestApplyDefaultOptions(t *testing.T) {
	options, err := applyDefaultOptions()
	if err != nil {
		t.Fatalf("applyDefaultOptions: %v", err)
	}
	if options.Logger == nil || options.LogLevel != contracts.InfoLevel {
		t.Fatalf("logger defaults not applied: %+v", options)
	}
	if options.CoreMIDIConfig == nil || options.CoreMIDIConfig.ClientName != "voicemidi" {
		t.Fatalf("CoreMIDIConfig = %+v", options.CoreMIDIConfig)
	}
	if options.AudioBackend != config.BackendPortAudio {
		t.Fatalf("AudioBackend = %q", options.AudioBackend)
	}

	log := logger.NewNopLogger()
	options, _ = applyDefaultOptions(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.DebugLevel),
		contracts.WithPortableMIDI(),
		contracts.WithAudioBackend(config.BackendMiniaudio),
	)
	if options.Logger != log || options.LogLevel != contracts.DebugLevel || !options.PortableMIDI {
		t.Fatalf("explicit options overridden: %+v", options)
	}
	if options.AudioBackend != config.BackendMiniaudio {
		t.Fatalf("AudioBackend = %q", options.AudioBackend)
	}
}

func sameFunc(a, b clientInitializer) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func TestInitializerFor(t *testing.T) {
	rt := clientInitializer(midirt.NewMIDIClient)

	for _, goos := range []string{"darwin", "windows"} {
		native, err := initializerFor(goos, false)
		if err != nil {
			t.Fatalf("initializerFor(%s): %v", goos, err)
		}
		if !sameFunc(native, clientInitializers[goos]) {
			t.Fatalf("%s should use its native client", goos)
		}
		portable, err := initializerFor(goos, true)
		if err != nil || !sameFunc(portable, rt) {
			t.Fatalf("%s with PortableMIDI should use rtmidi (err %v)", goos, err)
		}
	}

	linux, err := initializerFor("linux", false)
	if err != nil || !sameFunc(linux, rt) {
		t.Fatalf("linux should use rtmidi (err %v)", err)
	}

	if _, err := initializerFor("plan9", false); !errors.Is(err, ErrUnsupportedOS) {
		t.Fatalf("plan9 error = %v, want ErrUnsupportedOS", err)
	}
}

func TestUnknownBackend(t *testing.T) {
	_, err := NewAudioCapture(contracts.WithLogger(logger.NewNopLogger()), contracts.WithAudioBackend("jack"))
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("NewAudioCapture error = %v, want ErrUnknownBackend", err)
	}
}

type stubCapture struct{ closed bool }

func (c *stubCapture) ListInputs() ([]contracts.DeviceInfo, error) { return nil, nil }

func (c *stubCapture) OpenInput(string, int, int, contracts.ChunkHandler) (contracts.CaptureStream, error) {
	return nil, errors.New("no device")
}

func (c *stubCapture) Close() error {
	c.closed = true
	return nil
}

type stubOutput struct{}

func (stubOutput) ListPorts() ([]contracts.DeviceInfo, error)    { return nil, nil }
func (stubOutput) OpenOutput(string) (contracts.NoteSink, error) { return nil, errors.New("no port") }
func (stubOutput) Close() error                                  { return nil }

func TestSessionLeavesInjectedServicesOpen(t *testing.T) {
	capture := &stubCapture{}
	s, err := NewPipeline(config.Default(),
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithAudioCapture(capture),
		contracts.WithMIDIOutput(stubOutput{}),
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if s.Running() {
		t.Fatalf("new session is running")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if capture.closed {
		t.Fatalf("injected capture service was closed")
	}
}

type silentInput struct{}

func (silentInput) ListDevices() ([]contracts.DeviceInfo, error) { return nil, nil }
func (silentInput) SelectDevice(string) error                    { return nil }
func (silentInput) StartCapture(chan contracts.MIDI)             {}
func (silentInput) Stop() error                                  { return nil }

func TestLearnPedalTimeout(t *testing.T) {
	_, err := LearnPedal(context.Background(), "pedal", 200*time.Millisecond,
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithMIDIInput(func() (contracts.ClientMIDI, error) { return silentInput{}, nil }),
	)
	if !errors.Is(err, pedal.ErrLearnTimeout) {
		t.Fatalf("LearnPedal error = %v, want ErrLearnTimeout", err)
	}
}

func TestLearnPedalInputFailure(t *testing.T) {
	_, err := LearnPedal(context.Background(), "pedal", time.Second,
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithMIDIInput(func() (contracts.ClientMIDI, error) { return nil, errors.New("no driver") }),
	)
	if !errors.Is(err, pedal.ErrPortUnavailable) {
		t.Fatalf("LearnPedal error = %v, want ErrPortUnavailable", err)
	}
}
