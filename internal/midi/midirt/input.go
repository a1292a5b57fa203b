package midirt

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/multierr"
)

// ErrNoMIDIDevices is returned when no input port is present.
var ErrNoMIDIDevices = errors.New("no MIDI input ports found")

// ClientMid is a portable MIDI input client built on rtmidi.
type ClientMid struct {
	logger          contracts.Logger
	drv             *rtmididrv.Driver
	midiEventFilter *contracts.MIDIEventFilter
	eventChannel    atomic.Value // chan contracts.MIDI
	mu              sync.Mutex
	port            drivers.In
	stopListening   func()
}

// NewMIDIClient opens the rtmidi driver for input.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	options.Logger.Debug("rtmidi input client created")
	return &ClientMid{
		logger:          options.Logger,
		drv:             drv,
		midiEventFilter: options.MIDIEventFilter,
	}, nil
}

// ListDevices returns the input ports currently present.
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	ins, err := m.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs: %w", err)
	}
	if len(ins) == 0 {
		return nil, ErrNoMIDIDevices
	}
	list := make([]contracts.DeviceInfo, 0, len(ins))
	for _, in := range ins {
		list = append(list, portInfo(contracts.MIDIPedal, in.String()))
	}
	return list, nil
}

// SelectDevice opens and starts listening to the port with the given stable key.
// A previously selected port is closed first.
func (m *ClientMid) SelectDevice(stableKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ins, err := m.drv.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}
	var found drivers.In
	for _, in := range ins {
		if devices.StableKey(in.String()) == stableKey {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w: %s", contracts.ErrPortNotFound, stableKey)
	}

	if err := m.disconnect(); err != nil {
		m.logger.Warn("Failed to close previous MIDI input", m.logger.Field().Error("error", err))
	}

	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", found.String(), err)
	}
	name := found.String()
	stop, err := midi.ListenTo(found, m.handleMessage, midi.HandleError(func(listenErr error) {
		m.logger.Warn("MIDI listener error",
			m.logger.Field().String("port", name),
			m.logger.Field().Error("error", listenErr))
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	m.port = found
	m.stopListening = stop
	m.logger.Info("MIDI input connected", m.logger.Field().String("port", name))
	return nil
}

func (m *ClientMid) handleMessage(msg midi.Message, _ int32) {
	if len(msg) == 0 {
		return
	}
	eventChannel, _ := m.eventChannel.Load().(chan contracts.MIDI)
	if eventChannel == nil {
		return
	}

	event := contracts.MIDI{Timestamp: uint64(time.Now().UTC().UnixNano()), Status: msg[0]}
	if len(msg) > 1 {
		event.Data1 = msg[1]
	}
	if len(msg) > 2 {
		event.Data2 = msg[2]
	}
	if !m.midiEventFilter.Allows(event.Command()) {
		return
	}

	select {
	case eventChannel <- event:
	default:
		m.logger.Warn("Event buffer full; dropping MIDI event")
	}
}

// StartCapture directs incoming messages to eventChannel.
func (m *ClientMid) StartCapture(eventChannel chan contracts.MIDI) {
	if eventChannel == nil {
		m.logger.Error("StartCapture called with nil eventChannel")
		return
	}
	m.eventChannel.Store(eventChannel)
}

// Stop stops listening, closes the port and the driver.
func (m *ClientMid) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventChannel.Store((chan contracts.MIDI)(nil))
	return multierr.Append(m.disconnect(), m.drv.Close())
}

func (m *ClientMid) disconnect() error {
	if m.stopListening != nil {
		m.stopListening()
		m.stopListening = nil
	}
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}
