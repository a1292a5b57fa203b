// Package miniaudio implements audio capture on miniaudio through malgo.
package miniaudio

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

const hostAPI = "miniaudio"

// Capture lists and opens miniaudio capture devices.
type Capture struct {
	ctx    *malgo.AllocatedContext
	logger contracts.Logger
}

// New initialises a miniaudio context with the default backend order.
func New(logger contracts.Logger) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", logger.Field().String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: %w", err)
	}
	return &Capture{ctx: ctx, logger: logger}, nil
}

// ListInputs returns the capture devices.
func (c *Capture) ListInputs() ([]contracts.DeviceInfo, error) {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	list := make([]contracts.DeviceInfo, 0, len(infos))
	for i := range infos {
		list = append(list, deviceInfo(infos[i].Name()))
	}
	return list, nil
}

func deviceInfo(name string) contracts.DeviceInfo {
	return contracts.DeviceInfo{
		Kind:      contracts.AudioInput,
		Name:      name,
		StableKey: devices.StableKey(hostAPI, name),
		HostAPI:   hostAPI,
	}
}

// OpenInput initialises a mono f32 capture device. miniaudio delivers periods of
// roughly chunkSize frames; the caller re-frames them.
func (c *Capture) OpenInput(stableKey string, sampleRate, chunkSize int, handler contracts.ChunkHandler) (contracts.CaptureStream, error) {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	s := &stream{}
	found := false
	for i := range infos {
		if deviceInfo(infos[i].Name()).StableKey == stableKey {
			s.info = infos[i]
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: audio input %s", devices.ErrDeviceNotFound, stableKey)
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = 1
	config.Capture.DeviceID = s.info.ID.Pointer()
	config.SampleRate = uint32(sampleRate)
	config.PeriodSizeInFrames = uint32(chunkSize)
	config.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) < 4 {
				return
			}
			handler(float32View(input), 0)
		},
	}
	s.device, err = malgo.InitDevice(c.ctx.Context, config, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init device %q: %w", s.info.Name(), err)
	}
	c.logger.Info("Audio input opened",
		c.logger.Field().String("device", s.info.Name()),
		c.logger.Field().Int("sampleRate", sampleRate),
		c.logger.Field().Int("chunkSize", chunkSize))
	return s, nil
}

// float32View reinterprets little-endian f32 sample bytes without copying.
func float32View(b []byte) []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Close releases the context.
func (c *Capture) Close() error {
	err := c.ctx.Uninit()
	c.ctx.Free()
	return err
}

type stream struct {
	info   malgo.DeviceInfo // keeps the device ID referenced by the config alive
	device *malgo.Device
}

func (s *stream) Start() error { return s.device.Start() }

func (s *stream) Stop() error { return s.device.Stop() }

func (s *stream) Close() error {
	s.device.Uninit()
	return nil
}
