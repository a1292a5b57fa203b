// Package midirt implements the MIDI services on top of rtmidi through gomidi.
package midirt

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/multierr"
)

// allNotesOff is the channel mode controller that silences every note on a channel.
const allNotesOff = 123

// Output lists and opens rtmidi output ports.
type Output struct {
	drv       *rtmididrv.Driver
	logger    contracts.Logger
	queueSize int
}

// NewOutput opens the rtmidi driver. queueSize bounds the events waiting to be written per port.
func NewOutput(logger contracts.Logger, queueSize int) (*Output, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Output{drv: drv, logger: logger, queueSize: queueSize}, nil
}

// ListPorts returns the output ports currently present.
func (o *Output) ListPorts() ([]contracts.DeviceInfo, error) {
	outs, err := o.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI outputs: %w", err)
	}
	list := make([]contracts.DeviceInfo, 0, len(outs))
	for _, out := range outs {
		list = append(list, portInfo(contracts.MIDIOutput, out.String()))
	}
	return list, nil
}

// OpenOutput opens the port with the given stable key and starts its writer.
func (o *Output) OpenOutput(stableKey string) (contracts.NoteSink, error) {
	outs, err := o.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI outputs: %w", err)
	}
	var found drivers.Out
	for _, out := range outs {
		if devices.StableKey(out.String()) == stableKey {
			found = out
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", contracts.ErrPortNotFound, stableKey)
	}
	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("open %q: %w", found.String(), err)
	}
	send, err := midi.SendTo(found)
	if err != nil {
		_ = found.Close()
		return nil, fmt.Errorf("send to %q: %w", found.String(), err)
	}

	s := newSink(found.String(), send, found.Close, o.queueSize, o.logger)
	o.logger.Info("MIDI output connected", o.logger.Field().String("port", found.String()))
	return s, nil
}

// Close releases the driver.
func (o *Output) Close() error {
	return o.drv.Close()
}

func portInfo(kind contracts.DeviceKind, name string) contracts.DeviceInfo {
	return contracts.DeviceInfo{
		Kind:      kind,
		Name:      name,
		StableKey: devices.StableKey(name),
		Virtual:   devices.IsVirtual(name),
	}
}

// Sink delivers note events to one port from a single writer goroutine, which
// keeps them in emission order.
type Sink struct {
	name    string
	send    func(midi.Message) error
	release func() error
	logger  contracts.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan contracts.NoteEvent
	done    chan struct{}
	failed  chan struct{}
	dropped atomic.Uint64

	// owned by the writer goroutine
	channels uint16 // channels written to
	broken   bool   // a write failed, later events are discarded
}

func newSink(name string, send func(midi.Message) error, release func() error, size int, logger contracts.Logger) *Sink {
	s := &Sink{
		name:    name,
		send:    send,
		release: release,
		logger:  logger,
		queue:   make(chan contracts.NoteEvent, size),
		done:    make(chan struct{}),
		failed:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Send enqueues ev. It never blocks; a full queue or closed sink drops the event.
func (s *Sink) Send(ev contracts.NoteEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Failed is closed after the first failed write.
func (s *Sink) Failed() <-chan struct{} { return s.failed }

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if s.broken {
			continue
		}
		if err := s.send(encode(ev)); err != nil {
			s.logger.Warn("Failed to write MIDI event, output disconnected",
				s.logger.Field().String("port", s.name),
				s.logger.Field().Error("error", err))
			s.broken = true
			close(s.failed)
			continue
		}
		s.channels |= 1 << uint(ev.Channel&0x0F)
	}
}

// Close drains the queue, sends all-notes-off on every channel used and closes the
// port. A failed port is only closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done

	var err error
	for ch := 0; ch < 16 && !s.broken; ch++ {
		if s.channels&(1<<uint(ch)) == 0 {
			continue
		}
		err = multierr.Append(err, s.send(midi.ControlChange(uint8(ch), allNotesOff, 0)))
	}
	err = multierr.Append(err, s.release())
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("MIDI events dropped on full queue",
			s.logger.Field().String("port", s.name),
			s.logger.Field().Uint64("count", n))
	}
	if err != nil {
		return fmt.Errorf("closing MIDI output %q: %w", s.name, err)
	}
	return nil
}

// encode converts a note event to a channel voice message.
func encode(ev contracts.NoteEvent) midi.Message {
	ch := uint8(ev.Channel & 0x0F)
	key := uint8(ev.Note & 0x7F)
	if ev.Kind == contracts.NoteOnEvent {
		return midi.NoteOn(ch, key, uint8(ev.Velocity&0x7F))
	}
	return midi.NoteOff(ch, key)
}
