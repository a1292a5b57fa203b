//go:build darwin
// +build darwin

package mididarwin

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrNoMIDIDevices        = errors.New("no MIDI devices found")
	ErrMIDIConnectionError  = errors.New("error connecting to MIDI device")
	ErrCreateInputPort      = errors.New("error creating input port")
	ErrIncompleteMIDIPacket = errors.New("incomplete MIDI packet")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// ClientMid manages MIDI input on Darwin (macOS) systems through CoreMIDI.
type ClientMid struct {
	logger          contracts.Logger
	eventChannel    atomic.Value               // Atomic storage for the event channel to ensure thread safety.
	client          coremidi.Client            // CoreMIDI client instance for MIDI operations.
	inputPort       coremidi.InputPort         // Input port for receiving MIDI events, created once.
	hasInputPort    bool                       // inputPort has been created.
	portConn        internalPortConnection     // Connection to the MIDI source.
	midiEventFilter *contracts.MIDIEventFilter // Filter for specific MIDI events.
	mu              sync.Mutex                 // Mutex for thread safety on shared resources.
	gate            deliveryGate               // Admits packet handlers between SelectDevice and Stop.
}

// NewMIDIClient initializes a new ClientMid for handling MIDI events on macOS.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, err
	}
	options.Logger.Debug("CoreMIDI client created")

	return &ClientMid{
		logger:          options.Logger,
		client:          client,
		midiEventFilter: options.MIDIEventFilter,
	}, nil
}

// ListDevices retrieves and returns available MIDI sources.
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}
	if len(sources) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	list := make([]contracts.DeviceInfo, len(sources))
	for i, source := range sources {
		list[i] = sourceInfo(source)
	}
	return list, nil
}

func sourceInfo(source coremidi.Source) contracts.DeviceInfo {
	entity := source.Entity()
	return contracts.DeviceInfo{
		Kind:         contracts.MIDIPedal,
		Name:         source.Name(),
		StableKey:    devices.StableKey(source.Name()),
		EntityName:   entity.Name(),
		Manufacturer: entity.Manufacturer(),
		Virtual:      devices.IsVirtual(source.Name()),
	}
}

// SelectDevice connects to the MIDI source with the given stable key.
// If a source is already connected, it disconnects first.
func (m *ClientMid) SelectDevice(stableKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI sources: %w", err)
	}
	index := -1
	for i, source := range sources {
		if devices.StableKey(source.Name()) == stableKey {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("%w: %s", contracts.ErrPortNotFound, stableKey)
	}

	if m.portConn != nil {
		m.portConn.Disconnect()
		m.portConn = nil
	}

	source := sources[index]
	if !m.hasInputPort {
		m.inputPort, err = coremidi.NewInputPort(m.client, "Pedal Input", m.handleMIDIMessage)
		if err != nil {
			m.logger.Error(ErrCreateInputPort.Error())
			return fmt.Errorf("%w: %v", ErrCreateInputPort, err)
		}
		m.hasInputPort = true
	}

	m.portConn, err = m.inputPort.Connect(source)
	if err != nil {
		m.logger.Error(ErrMIDIConnectionError.Error())
		return fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}

	m.gate.open()
	m.logger.Info("MIDI input connected", m.logger.Field().String("port", source.Name()))
	return nil
}

// handleMIDIMessage splits a CoreMIDI packet into short messages and forwards
// those passing the filter. Running status is expanded.
func (m *ClientMid) handleMIDIMessage(source coremidi.Source, packet coremidi.Packet) {
	if !m.gate.enter() {
		return
	}
	defer m.gate.leave()

	eventChannel, _ := m.eventChannel.Load().(chan contracts.MIDI)
	if eventChannel == nil {
		return
	}

	now := uint64(time.Now().UTC().UnixNano())
	data := packet.Data
	var status byte
	for len(data) > 0 {
		if data[0]&0x80 != 0 {
			status = data[0]
			data = data[1:]
		} else if status == 0 {
			m.logger.Warn(ErrIncompleteMIDIPacket.Error())
			return
		}
		if status == 0xF0 {
			// System exclusive: skip to the terminating 0xF7.
			end := bytes.IndexByte(data, 0xF7)
			if end < 0 {
				return
			}
			data = data[end+1:]
			status = 0
			continue
		}

		n := dataLength(status)
		if len(data) < n {
			m.logger.Warn(ErrIncompleteMIDIPacket.Error())
			return
		}
		event := contracts.MIDI{Timestamp: now, Status: status}
		if n > 0 {
			event.Data1 = data[0]
		}
		if n > 1 {
			event.Data2 = data[1]
		}
		data = data[n:]
		if status >= 0xF0 {
			status = 0
		}

		if !m.midiEventFilter.Allows(event.Command()) {
			continue
		}
		select {
		case eventChannel <- event:
		default:
			m.logger.Warn("Event buffer full; dropping MIDI event")
		}
	}
}

// dataLength returns the number of data bytes following status.
func dataLength(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	case 0xF0:
		switch status {
		case 0xF1, 0xF3:
			return 1
		case 0xF2:
			return 2
		}
		return 0
	}
	return 2
}

// StartCapture begins capturing MIDI events by storing the event channel.
func (m *ClientMid) StartCapture(eventChannel chan contracts.MIDI) {
	if eventChannel == nil {
		m.logger.Error("StartCapture called with nil eventChannel")
		return
	}
	m.logger.Debug("Starting MIDI event capture")
	m.eventChannel.Store(eventChannel)
}

// Stop halts MIDI event capturing and disconnects from the source. When it
// returns no packet handler is still delivering to the event channel.
func (m *ClientMid) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.portConn != nil {
		m.portConn.Disconnect()
		m.portConn = nil
	}

	m.gate.close()
	m.eventChannel.Store((chan contracts.MIDI)(nil))

	m.logger.Debug("MIDI capture stopped")
	return nil
}
