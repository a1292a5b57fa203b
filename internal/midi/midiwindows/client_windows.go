//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type HMIDIIN windows.Handle

// Constants for callback flags
const (
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

// ErrNoMIDIDevices is returned when winmm reports no input devices.
var ErrNoMIDIDevices = errors.New("no MIDI devices found")

// Struct representing MIDI device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

// ClientMid manages MIDI input on Windows through winmm.
type ClientMid struct {
	logger          contracts.Logger
	eventChannel    atomic.Value // chan contracts.MIDI
	handle          HMIDIIN
	portConn        bool
	started         bool
	mu              sync.Mutex
	midiEventFilter *contracts.MIDIEventFilter
}

// Load the winmm.dll library and required functions
var (
	winmm                = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen       = winmm.NewProc("midiInOpen")
	procMidiInStart      = winmm.NewProc("midiInStart")
	procMidiInStop       = winmm.NewProc("midiInStop")
	procMidiInClose      = winmm.NewProc("midiInClose")
)

// callback is shared by every client; windows.NewCallback slots are never freed.
var callback = windows.NewCallback(midiInCallback)

// NewMIDIClient creates a MIDI client for Windows
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	options.Logger.Debug("winmm MIDI client created")

	return &ClientMid{
		logger:          options.Logger,
		midiEventFilter: options.MIDIEventFilter,
	}, nil
}

// ListDevices lists the available MIDI input devices
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	names := deviceNames(m.logger)
	if len(names) == 0 {
		m.logger.Warn("No MIDI devices found")
		return nil, ErrNoMIDIDevices
	}

	list := make([]contracts.DeviceInfo, 0, len(names))
	for _, d := range names {
		list = append(list, contracts.DeviceInfo{
			Kind:         contracts.MIDIPedal,
			Name:         d.name,
			StableKey:    devices.StableKey(d.name),
			EntityName:   d.name,
			Manufacturer: d.manufacturer,
			Virtual:      devices.IsVirtual(d.name),
		})
	}
	return list, nil
}

type winDevice struct {
	id           uint32
	name         string
	manufacturer string
}

func deviceNames(logger contracts.Logger) []winDevice {
	r0, _, _ := procMidiInGetNumDevs.Call()
	numDevices := uint32(r0)

	list := make([]winDevice, 0, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			logger.Warn("Failed to get information for MIDI device", logger.Field().Int("device", int(i)))
			continue
		}
		list = append(list, winDevice{
			id:           i,
			name:         windows.UTF16ToString(caps.szPname[:]),
			manufacturer: fmt.Sprintf("MID: %d PID: %d", caps.wMid, caps.wPid),
		})
	}
	return list
}

// SelectDevice opens the MIDI input device with the given stable key
func (m *ClientMid) SelectDevice(stableKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deviceID := -1
	var name string
	for _, d := range deviceNames(m.logger) {
		if devices.StableKey(d.name) == stableKey {
			deviceID, name = int(d.id), d.name
			break
		}
	}
	if deviceID < 0 {
		return fmt.Errorf("%w: %s", contracts.ErrPortNotFound, stableKey)
	}

	if m.portConn {
		if err := m.stopCapture(); err != nil {
			return fmt.Errorf("failed to stop previous MIDI capture: %w", err)
		}
	}

	fdwOpen := CALLBACK_FUNCTION | MIDI_IO_STATUS
	r1, _, err := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&m.handle)),
		uintptr(deviceID),
		callback,
		uintptr(unsafe.Pointer(m)),
		uintptr(fdwOpen),
	)
	if r1 != 0 {
		m.logger.Error("Failed to open MIDI device", m.logger.Field().String("port", name), m.logger.Field().Error("error", err))
		return fmt.Errorf("failed to open MIDI device %q: %v", name, err)
	}

	m.portConn = true
	m.logger.Info("MIDI input connected", m.logger.Field().String("port", name))
	return nil
}

// StartCapture initializes MIDI event capture
func (m *ClientMid) StartCapture(eventChannel chan contracts.MIDI) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventChannel == nil {
		m.logger.Error("StartCapture called with nil eventChannel")
		return
	}
	if !m.portConn || m.handle == 0 {
		m.logger.Error("Cannot start capture: No MIDI device selected")
		return
	}
	m.eventChannel.Store(eventChannel)
	if m.started {
		return
	}

	r1, _, err := procMidiInStart.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to start MIDI capture", m.logger.Field().Error("error", err))
		return
	}
	m.started = true
	m.logger.Debug("MIDI capture started")
}

// midiInCallback processes incoming MIDI messages
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	m := (*ClientMid)(unsafe.Pointer(dwInstance))

	switch wMsg {
	case MIM_OPEN, MIM_CLOSE:
	case MIM_DATA:
		midiEvent := contracts.MIDI{
			Timestamp: uint64(time.Now().UTC().UnixNano()),
			Status:    byte(dwParam1 & 0xFF),
			Data1:     byte((dwParam1 >> 8) & 0xFF),
			Data2:     byte((dwParam1 >> 16) & 0xFF),
		}

		if !m.midiEventFilter.Allows(midiEvent.Command()) {
			return 0
		}

		if ch, ok := m.eventChannel.Load().(chan contracts.MIDI); ok && ch != nil {
			select {
			case ch <- midiEvent:
			default:
				m.logger.Warn("MIDI event channel is full; event discarded")
			}
		}
	case MIM_ERROR, MIM_LONGERROR:
		m.logger.Error("MIDI error", m.logger.Field().Int("msg", int(wMsg)))
	case MIM_MOREDATA:
		m.logger.Debug("Received MIM_MOREDATA message; ignored")
	default:
		m.logger.Warn("Unknown MIDI message", m.logger.Field().Int("msg", int(wMsg)))
	}

	return 0
}

// Stop terminates MIDI event capture and closes the device
func (m *ClientMid) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.portConn {
		return nil
	}
	if err := m.stopCapture(); err != nil {
		return fmt.Errorf("failed to stop MIDI capture: %w", err)
	}
	m.logger.Debug("MIDI capture stopped and device closed")
	return nil
}

// stopCapture stops the capture and releases the handle
func (m *ClientMid) stopCapture() error {
	if m.handle == 0 {
		return fmt.Errorf("invalid MIDI device handle")
	}

	m.eventChannel.Store((chan contracts.MIDI)(nil))
	if m.started {
		r1, _, err := procMidiInStop.Call(uintptr(m.handle))
		if r1 != 0 {
			m.logger.Error("Failed to stop MIDI capture", m.logger.Field().Error("error", err))
			return err
		}
		m.started = false
	}

	r1, _, err := procMidiInClose.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to close MIDI device", m.logger.Field().Error("error", err))
		return err
	}

	m.portConn = false
	m.handle = 0
	return nil
}
