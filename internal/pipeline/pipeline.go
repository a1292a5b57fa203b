// Package pipeline runs a voice-to-MIDI session: captured audio is re-framed,
// pitch-tracked and turned into note events for a MIDI sink and any number of
// display subscribers.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/voicemidi/internal/audio/framebuf"
	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/internal/notes"
	"github.com/leandrodaf/voicemidi/internal/pedal"
	"github.com/leandrodaf/voicemidi/internal/pitch"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"go.uber.org/multierr"
)

// ErrAlreadyRunning is returned by Start on a running pipeline.
var ErrAlreadyRunning = errors.New("pipeline already running")

const (
	// dropWarnAfter consecutive dropped chunks produce a warning.
	dropWarnAfter = 8
	dropWarnEvery = 5 * time.Second
	pedalBuffer   = 64

	// reconnectEvery bounds the delay between attempts to reopen a lost MIDI output.
	reconnectEvery = 2 * time.Second
)

// Deps are the services a pipeline runs on. Output and NewPedalInput are optional.
type Deps struct {
	Capture       contracts.AudioCapture
	Output        contracts.MIDIOutputService
	NewPedalInput func() (contracts.ClientMIDI, error)
}

// Stats counts chunks since the pipeline was created.
type Stats struct {
	Chunks    uint64 // analysed windows
	Dropped   uint64 // capture blocks discarded on underrun or overrun
	SinkDrops uint64 // note events the MIDI sink refused
}

type tuning struct {
	pitch pitch.Params
	notes notes.Params
}

type subscriber struct {
	ch chan contracts.DisplayEvent
}

// Pipeline implements contracts.Pipeline.
type Pipeline struct {
	deps   Deps
	logger contracts.Logger

	// mu serialises the control path.
	mu        sync.Mutex
	cfg       config.Config
	stream    contracts.CaptureStream
	pedalIn   contracts.ClientMIDI
	pedalStop chan struct{}
	pedalWG   sync.WaitGroup

	outputStop chan struct{}
	outputWG   sync.WaitGroup
	retryEvery time.Duration

	running   atomic.Bool
	connected atomic.Bool
	tuning    atomic.Pointer[tuning]

	subsMu sync.Mutex
	subs   atomic.Pointer[[]*subscriber]

	// audioMu guards everything the capture callback touches.
	audioMu   sync.Mutex
	frames    *framebuf.Buffer
	estimator *pitch.Estimator
	machine   *notes.Machine
	applied   *tuning
	sink      contracts.NoteSink
	tracker   *pedal.Tracker
	events    []contracts.NoteEvent
	dropRun   int
	lastWarn  time.Time
	now       func() time.Time

	chunks    atomic.Uint64
	dropped   atomic.Uint64
	sinkDrops atomic.Uint64
}

// New validates cfg and prepares a stopped pipeline.
func New(cfg config.Config, deps Deps, logger contracts.Logger) (*Pipeline, error) {
	if deps.Capture == nil {
		return nil, errors.New("pipeline: audio capture service is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	frames, err := framebuf.New(cfg.ChunkSize, 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	machine, err := notes.New(cfg.NoteParams())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		deps:       deps,
		logger:     logger,
		cfg:        cfg,
		frames:     frames,
		estimator:  pitch.NewEstimator(),
		machine:    machine,
		events:     make([]contracts.NoteEvent, 0, 4),
		now:        time.Now,
		retryEvery: reconnectEvery,
	}
	t := &tuning{pitch: cfg.PitchParams(), notes: cfg.NoteParams()}
	p.tuning.Store(t)
	p.applied = t
	p.subs.Store(&[]*subscriber{})
	return p, nil
}

// Start opens the MIDI output, the pedal input and the audio stream. Only a
// failing audio stream is fatal; without an output the pipeline runs display-only.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return ErrAlreadyRunning
	}

	inputKey, err := p.resolveInput()
	if err != nil {
		return err
	}

	sink := p.openOutput()
	tracker := p.openPedal()

	p.audioMu.Lock()
	p.frames.Reset()
	p.machine.Flush(p.now(), nil)
	p.sink = sink
	p.tracker = tracker
	p.dropRun = 0
	p.audioMu.Unlock()

	if sink != nil {
		p.outputStop = make(chan struct{})
		p.outputWG.Add(1)
		go p.watchOutput(sink, p.cfg.MIDIOutput, p.outputStop)
	}

	p.running.Store(true)
	stream, err := p.deps.Capture.OpenInput(inputKey, p.cfg.SampleRate, p.cfg.ChunkSize, p.HandleSamples)
	if err == nil {
		if err = stream.Start(); err != nil {
			err = multierr.Append(fmt.Errorf("starting audio input: %w", err), stream.Close())
		}
	} else {
		err = fmt.Errorf("opening audio input: %w", err)
	}
	if err != nil {
		p.running.Store(false)
		return multierr.Append(err, p.teardown())
	}
	p.stream = stream

	p.logger.Info("Pipeline started",
		p.logger.Field().String("input", p.cfg.AudioInput.DisplayName),
		p.logger.Field().Bool("midiOutput", p.connected.Load()),
		p.logger.Field().Bool("pedal", tracker != nil),
		p.logger.Field().Int("sampleRate", p.cfg.SampleRate),
		p.logger.Field().Int("chunkSize", p.cfg.ChunkSize))
	return nil
}

func (p *Pipeline) resolveInput() (string, error) {
	inputs, err := p.deps.Capture.ListInputs()
	if err != nil {
		return "", fmt.Errorf("listing audio inputs: %w", err)
	}
	dev, err := devices.Resolve(contracts.AudioInput, p.cfg.AudioInput, inputs)
	if err != nil {
		return "", err
	}
	return dev.StableKey, nil
}

func (p *Pipeline) openOutput() contracts.NoteSink {
	if p.deps.Output == nil || p.cfg.MIDIOutput == nil {
		p.logger.Warn("No MIDI output configured, running display-only")
		return nil
	}
	sink, err := p.tryOutput(p.cfg.MIDIOutput)
	if err != nil {
		p.logger.Warn("MIDI output unavailable, running display-only",
			p.logger.Field().String("port", p.cfg.MIDIOutput.DisplayName),
			p.logger.Field().Error("error", err))
		return nil
	}
	p.connected.Store(true)
	return sink
}

func (p *Pipeline) tryOutput(sel *contracts.DeviceSelection) (contracts.NoteSink, error) {
	ports, err := p.deps.Output.ListPorts()
	if err != nil {
		return nil, err
	}
	dev, err := devices.Resolve(contracts.MIDIOutput, sel, ports)
	if err != nil {
		return nil, err
	}
	return p.deps.Output.OpenOutput(dev.StableKey)
}

// watchOutput replaces the sink after a failed write. The port is resolved
// again on every attempt, so it may come back under a new name or index.
func (p *Pipeline) watchOutput(sink contracts.NoteSink, sel *contracts.DeviceSelection, stop <-chan struct{}) {
	defer p.outputWG.Done()
	for {
		select {
		case <-stop:
			return
		case <-sink.Failed():
		}

		p.connected.Store(false)
		p.audioMu.Lock()
		if p.sink == sink {
			p.sink = nil
		}
		p.audioMu.Unlock()
		if err := sink.Close(); err != nil {
			p.logger.Debug("Closing lost MIDI output", p.logger.Field().Error("error", err))
		}
		p.logger.Warn("MIDI output lost, reconnecting", p.logger.Field().String("port", sel.DisplayName))

		next, ok := p.reconnect(sel, stop)
		if !ok {
			return
		}
		p.audioMu.Lock()
		p.sink = next
		p.audioMu.Unlock()
		p.connected.Store(true)
		p.logger.Info("MIDI output reconnected", p.logger.Field().String("port", sel.DisplayName))
		sink = next
	}
}

// reconnect retries with a doubling delay capped at retryEvery until the port
// opens or stop is closed.
func (p *Pipeline) reconnect(sel *contracts.DeviceSelection, stop <-chan struct{}) (contracts.NoteSink, bool) {
	delay := p.retryEvery / 4
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		sink, err := p.tryOutput(sel)
		if err == nil {
			return sink, true
		}
		p.logger.Debug("MIDI output still unavailable",
			p.logger.Field().Int("attempt", attempt),
			p.logger.Field().Error("error", err))
		if delay *= 2; delay > p.retryEvery {
			delay = p.retryEvery
		}
	}
}

func (p *Pipeline) openPedal() *pedal.Tracker {
	b := p.cfg.PedalBinding
	if b == nil || p.deps.NewPedalInput == nil {
		return nil
	}
	in, err := p.deps.NewPedalInput()
	if err == nil {
		err = in.SelectDevice(p.pedalKey(in, *b))
		if err != nil {
			_ = in.Stop()
		}
	}
	if err != nil {
		p.logger.Warn("Pedal input unavailable, pedal disabled", p.logger.Field().Error("error", err))
		return nil
	}

	tracker := pedal.NewTracker(*b)
	events := make(chan contracts.MIDI, pedalBuffer)
	in.StartCapture(events)
	p.pedalIn = in
	p.pedalStop = make(chan struct{})
	p.pedalWG.Add(1)
	go p.listenPedal(events, p.pedalStop, tracker)
	return tracker
}

// pedalKey prefers the port of the persisted pedal selection when it can be
// resolved, and the key recorded in the binding otherwise.
func (p *Pipeline) pedalKey(in contracts.ClientMIDI, b contracts.PedalBinding) string {
	if p.cfg.MIDIPedal == nil {
		return b.PortStableKey
	}
	ports, err := in.ListDevices()
	if err != nil {
		return b.PortStableKey
	}
	dev, err := devices.Resolve(contracts.MIDIPedal, p.cfg.MIDIPedal, ports)
	if err != nil {
		return b.PortStableKey
	}
	return dev.StableKey
}

func (p *Pipeline) listenPedal(events <-chan contracts.MIDI, stop <-chan struct{}, tracker *pedal.Tracker) {
	defer p.pedalWG.Done()
	for {
		select {
		case <-stop:
			return
		case msg := <-events:
			if held, changed := tracker.Apply(msg); changed {
				p.logger.Debug("Pedal changed", p.logger.Field().Bool("held", held))
			}
		}
	}
}

// Stop stops capture, ends a sounding note and releases the session's devices.
// A stopped pipeline can be started again.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return nil
	}

	var err error
	if p.stream != nil {
		err = multierr.Append(err, p.stream.Stop())
		err = multierr.Append(err, p.stream.Close())
		p.stream = nil
	}
	p.running.Store(false)

	p.audioMu.Lock()
	now := p.now()
	p.events = p.machine.Flush(now, p.events[:0])
	p.deliver(contracts.PitchObservation{}, now)
	p.frames.Reset()
	p.audioMu.Unlock()

	err = multierr.Append(err, p.teardown())
	p.logger.Info("Pipeline stopped", p.logger.Field().Uint64("chunks", p.chunks.Load()))
	return err
}

// teardown closes the pedal input and the sink. Callers hold mu.
func (p *Pipeline) teardown() error {
	var err error
	if p.outputStop != nil {
		close(p.outputStop)
		p.outputWG.Wait()
		p.outputStop = nil
	}
	if p.pedalIn != nil {
		close(p.pedalStop)
		p.pedalWG.Wait()
		err = multierr.Append(err, p.pedalIn.Stop())
		p.pedalIn = nil
	}

	p.audioMu.Lock()
	sink := p.sink
	p.sink = nil
	if p.tracker != nil {
		p.tracker.Reset()
		p.tracker = nil
	}
	p.audioMu.Unlock()

	if sink != nil {
		err = multierr.Append(err, sink.Close())
	}
	p.connected.Store(false)
	return err
}

// HandleSamples is the capture callback. Blocks reported with an underrun or
// overrun are discarded together with any partial window.
func (p *Pipeline) HandleSamples(samples []float32, status contracts.CaptureStatus) {
	if !p.running.Load() {
		return
	}
	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p.frames.Reset()
			p.logger.Error("Recovered from panic in audio callback", p.logger.Field().String("panic", fmt.Sprint(r)))
		}
	}()

	if status.Dropped() {
		p.frames.Reset()
		p.noteDrop(status)
		return
	}
	p.dropRun = 0
	p.frames.Push(samples, p.process)
}

func (p *Pipeline) noteDrop(status contracts.CaptureStatus) {
	p.dropped.Add(1)
	p.dropRun++
	if p.dropRun < dropWarnAfter {
		return
	}
	now := p.now()
	if now.Sub(p.lastWarn) < dropWarnEvery {
		return
	}
	p.lastWarn = now
	p.logger.Warn("Audio input is dropping chunks",
		p.logger.Field().Int("consecutive", p.dropRun),
		p.logger.Field().Bool("underrun", status&contracts.CaptureUnderrun != 0),
		p.logger.Field().Bool("overrun", status&contracts.CaptureOverrun != 0),
		p.logger.Field().Uint64("total", p.dropped.Load()))
}

// process analyses one window. Called with audioMu held.
func (p *Pipeline) process(window []float64) {
	t := p.tuning.Load()
	if t != p.applied {
		if err := p.machine.SetParams(t.notes); err != nil {
			p.logger.Error("Rejected note parameters", p.logger.Field().Error("error", err))
		}
		p.applied = t
	}

	obs := p.estimator.Estimate(window, p.cfg.SampleRate, t.pitch)
	held := p.tracker != nil && p.tracker.Held()
	now := p.now()
	p.events = p.machine.Step(obs, held, now, p.events[:0])
	p.chunks.Add(1)
	p.deliver(obs, now)
}

// deliver sends p.events to the sink and publishes a display event. Called with
// audioMu held.
func (p *Pipeline) deliver(obs contracts.PitchObservation, now time.Time) {
	if p.sink != nil {
		for _, ev := range p.events {
			if !p.sink.Send(ev) {
				p.sinkDrops.Add(1)
			}
		}
	}

	subs := *p.subs.Load()
	if len(subs) == 0 {
		return
	}
	st := p.machine.State()
	de := contracts.DisplayEvent{
		Observation: obs,
		CurrentNote: st.CurrentNote,
		IsSounding:  st.Sounding,
		PedalHeld:   st.PedalHeld,
		Timestamp:   now,
	}
	if len(p.events) > 0 {
		de.Notes = append([]contracts.NoteEvent(nil), p.events...)
	}
	for _, s := range subs {
		select {
		case s.ch <- de:
		default:
		}
	}
}

// Subscribe registers a display event subscriber. Events are dropped when its
// buffer is full. The returned function unsubscribes and closes the channel.
func (p *Pipeline) Subscribe(buffer int) (<-chan contracts.DisplayEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	s := &subscriber{ch: make(chan contracts.DisplayEvent, buffer)}

	p.subsMu.Lock()
	cur := *p.subs.Load()
	next := make([]*subscriber, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, s)
	p.subs.Store(&next)
	p.subsMu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { p.unsubscribe(s) })
	}
}

func (p *Pipeline) unsubscribe(s *subscriber) {
	p.subsMu.Lock()
	cur := *p.subs.Load()
	next := make([]*subscriber, 0, len(cur))
	for _, o := range cur {
		if o != s {
			next = append(next, o)
		}
	}
	p.subs.Store(&next)
	p.subsMu.Unlock()

	// A publish in progress may still hold the old list.
	p.audioMu.Lock()
	close(s.ch)
	p.audioMu.Unlock()
}

// UpdateParams publishes new live tuning, applied from the next chunk.
func (p *Pipeline) UpdateParams(u contracts.ParamUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := *p.tuning.Load()
	cfg := p.cfg
	if u.Sensitivity != nil {
		s := *u.Sensitivity
		if s < 0.1 || s > 1 {
			return fmt.Errorf("sensitivity must be in [0.1,1.0], got %g", s)
		}
		next.pitch.Sensitivity = s
		next.notes.Sensitivity = s
		cfg.Sensitivity = s
	}
	if u.Velocity != nil {
		next.notes.Velocity = *u.Velocity
		cfg.Velocity = *u.Velocity
	}
	if err := next.notes.Validate(); err != nil {
		return err
	}

	p.cfg = cfg
	p.tuning.Store(&next)
	p.logger.Debug("Tuning updated",
		p.logger.Field().Float64("sensitivity", next.notes.Sensitivity),
		p.logger.Field().Int("velocity", next.notes.Velocity))
	return nil
}

// Config returns the session configuration including live tuning changes.
func (p *Pipeline) Config() config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Running reports whether audio is being captured.
func (p *Pipeline) Running() bool { return p.running.Load() }

// OutputConnected reports whether note events reach a MIDI port.
func (p *Pipeline) OutputConnected() bool { return p.connected.Load() }

// PedalHeld reports the live pedal state.
func (p *Pipeline) PedalHeld() bool {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	return p.tracker != nil && p.tracker.Held()
}

// State returns the note machine state after the last processed chunk.
func (p *Pipeline) State() notes.State {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	return p.machine.State()
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Chunks:    p.chunks.Load(),
		Dropped:   p.dropped.Load(),
		SinkDrops: p.sinkDrops.Load(),
	}
}

var _ contracts.Pipeline = (*Pipeline)(nil)
