// Package portaudio implements audio capture on PortAudio.
package portaudio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// Capture lists and opens PortAudio input devices. PortAudio stays initialised
// until Close.
type Capture struct {
	logger contracts.Logger
	mu     sync.Mutex
	closed bool
}

// New initialises PortAudio.
func New(logger contracts.Logger) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	logger.Debug("PortAudio initialised", logger.Field().String("version", portaudio.VersionText()))
	return &Capture{logger: logger}, nil
}

// ListInputs returns every device with at least one input channel.
func (c *Capture) ListInputs() ([]contracts.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing audio devices: %w", err)
	}
	var list []contracts.DeviceInfo
	for _, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		list = append(list, deviceInfo(d))
	}
	return list, nil
}

func deviceInfo(d *portaudio.DeviceInfo) contracts.DeviceInfo {
	host := ""
	if d.HostApi != nil {
		host = d.HostApi.Name
	}
	return contracts.DeviceInfo{
		Kind:              contracts.AudioInput,
		Name:              d.Name,
		StableKey:         devices.StableKey(host, d.Name),
		HostAPI:           host,
		MaxChannels:       d.MaxInputChannels,
		DefaultSampleRate: d.DefaultSampleRate,
	}
}

// OpenInput opens a mono callback stream of chunkSize frames on the device with
// the given stable key.
func (c *Capture) OpenInput(stableKey string, sampleRate, chunkSize int, handler contracts.ChunkHandler) (contracts.CaptureStream, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing audio devices: %w", err)
	}
	var dev *portaudio.DeviceInfo
	for _, d := range devs {
		if d.MaxInputChannels > 0 && deviceInfo(d).StableKey == stableKey {
			dev = d
			break
		}
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: audio input %s", devices.ErrDeviceNotFound, stableKey)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = chunkSize

	stream, err := portaudio.OpenStream(params, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		handler(in, statusFromFlags(flags))
	})
	if err != nil {
		return nil, fmt.Errorf("opening %q at %d Hz: %w", dev.Name, sampleRate, err)
	}
	c.logger.Info("Audio input opened",
		c.logger.Field().String("device", dev.Name),
		c.logger.Field().Int("sampleRate", sampleRate),
		c.logger.Field().Int("chunkSize", chunkSize))
	return stream, nil
}

func statusFromFlags(flags portaudio.StreamCallbackFlags) contracts.CaptureStatus {
	var st contracts.CaptureStatus
	if flags&portaudio.InputUnderflow != 0 {
		st |= contracts.CaptureUnderrun
	}
	if flags&portaudio.InputOverflow != 0 {
		st |= contracts.CaptureOverrun
	}
	return st
}

// Close terminates PortAudio.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return portaudio.Terminate()
}
