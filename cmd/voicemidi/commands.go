package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/pedal"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"github.com/leandrodaf/voicemidi/sdk/voicemidi"
	"go.uber.org/multierr"
)

// statusEvery limits how often the live status line is redrawn.
const statusEvery = 100 * time.Millisecond

// overrides are tuning flags shared by run and config.
type overrides struct {
	fs         *flag.FlagSet
	transpose  *int
	minFreq    *float64
	maxFreq    *float64
	confidence *float64
	chunkSize  *int
}

func addOverrides(fs *flag.FlagSet) *overrides {
	return &overrides{
		fs:         fs,
		transpose:  fs.Int("transpose", 0, "transpose output in semitones (e.g. -12 for one octave down)"),
		minFreq:    fs.Float64("min-freq", 0, "minimum frequency for pitch detection in Hz"),
		maxFreq:    fs.Float64("max-freq", 0, "maximum frequency for pitch detection in Hz"),
		confidence: fs.Float64("confidence", 0, "minimum pitch confidence from 0.1 to 1.0 (same as sensitivity)"),
		chunkSize:  fs.Int("chunk-size", 0, "audio chunk size, a power of two such as 1024 or 2048"),
	}
}

// apply copies the flags set on the command line into cfg.
func (o *overrides) apply(cfg *config.Config) (changed bool, err error) {
	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transpose":
			cfg.Transpose = *o.transpose
		case "min-freq":
			cfg.MinFreq = *o.minFreq
		case "max-freq":
			cfg.MaxFreq = *o.maxFreq
		case "confidence":
			cfg.Sensitivity = *o.confidence
		case "chunk-size":
			cfg.ChunkSize = *o.chunkSize
		default:
			return
		}
		changed = true
	})
	if changed {
		err = cfg.Validate()
	}
	return changed, err
}

func cmdRun(a *app, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(a.out)
	choose := fs.Bool("choose-devices", false, "choose audio and MIDI devices before starting")
	ov := addOverrides(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, fresh, err := a.load()
	if err != nil {
		return err
	}
	if _, err := ov.apply(&cfg); err != nil {
		return err
	}
	force := fresh || *choose
	if force {
		heading.Fprintln(a.out, "\nVoice to MIDI")
		fmt.Fprintln(a.out, "Captures your voice and converts it to MIDI notes in real time.")
		fmt.Fprintln(a.out, "Make sure a microphone is connected and a MIDI output is available.")
		fmt.Fprintln(a.out)
	}

	capture, err := voicemidi.NewAudioCapture(a.options(contracts.WithAudioBackend(cfg.AudioBackend))...)
	if err != nil {
		return err
	}
	defer capture.Close()

	inputs, err := capture.ListInputs()
	if err != nil {
		return err
	}
	if cfg.AudioInput, err = a.selectDevice(contracts.AudioInput, inputs, cfg.AudioInput, force); err != nil {
		return err
	}

	extra := []contracts.Option{contracts.WithAudioCapture(capture)}
	output, err := voicemidi.NewMIDIOutput(a.options()...)
	if err != nil {
		warning.Fprintf(a.out, "MIDI output unavailable (%v), notes will only be displayed.\n", err)
	} else {
		defer output.Close()
		extra = append(extra, contracts.WithMIDIOutput(output))
		ports, err := output.ListPorts()
		if err != nil {
			return err
		}
		if cfg.MIDIOutput, err = a.selectDevice(contracts.MIDIOutput, ports, cfg.MIDIOutput, force); err != nil {
			return err
		}
	}
	if err := a.save(cfg); err != nil {
		return err
	}

	session, err := voicemidi.NewPipeline(cfg, a.options(extra...)...)
	if err != nil {
		return err
	}
	events, cancel := session.Subscribe(16)
	defer cancel()
	if err := session.Start(); err != nil {
		return multierr.Append(fmt.Errorf("starting pipeline: %w", err), session.Close())
	}

	fmt.Fprintf(a.out, "%s %d semitones\n", midiColor.Sprint("Transpose:"), cfg.Transpose)
	fmt.Fprintf(a.out, "%s %g Hz\n", midiColor.Sprint("Min frequency:"), cfg.MinFreq)
	fmt.Fprintf(a.out, "%s %g Hz\n", midiColor.Sprint("Max frequency:"), cfg.MaxFreq)
	fmt.Fprintf(a.out, "%s %.2f\n", midiColor.Sprint("Confidence:"), cfg.Sensitivity)
	fmt.Fprintf(a.out, "%s %d\n", midiColor.Sprint("Chunk size:"), cfg.ChunkSize)
	if !session.OutputConnected() {
		warning.Fprintln(a.out, "No MIDI output connected, notes will only be displayed.")
	}
	fmt.Fprintln(a.out, "Listening... Press Ctrl+C to stop.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.display(ctx, events, cfg)

	warning.Fprintln(a.out, "\nStopping...")
	stats := session.Stats()
	err = session.Close()
	a.log.Debug("Session ended",
		a.log.Field().Uint64("chunks", stats.Chunks),
		a.log.Field().Uint64("dropped", stats.Dropped),
		a.log.Field().Uint64("sinkDrops", stats.SinkDrops))
	return err
}

// display redraws the status line until ctx is done or events is closed.
func (a *app) display(ctx context.Context, events <-chan contracts.DisplayEvent, cfg config.Config) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if len(ev.Notes) == 0 && ev.Timestamp.Sub(last) < statusEvery {
				continue
			}
			last = ev.Timestamp
			fmt.Fprintf(a.out, "\r%s\x1b[K", statusLine(ev, cfg))
		}
	}
}

func cmdConfig(a *app, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.out)
	advanced := fs.Bool("advanced", false, "edit detector and audio settings")
	audio := fs.Bool("audio", false, "choose the audio input")
	midiOut := fs.Bool("midi", false, "choose the MIDI output")
	tune := fs.Bool("pitch", false, "edit sensitivity, velocity, transpose and note range")
	pedalSetup := fs.Bool("pedal", false, "choose a MIDI pedal and learn its message")
	maxNote := fs.Int("max-midi-note", -1, "highest MIDI note to emit (e.g. 84 for C6)")
	timeout := fs.Duration("pedal-timeout", 10*time.Second, "how long to wait for the pedal while learning")
	ov := addOverrides(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*advanced && !*audio && !*midiOut && !*tune && !*pedalSetup {
		*audio, *midiOut = true, true
	}

	cfg, _, err := a.load()
	if err != nil {
		return err
	}
	heading.Fprintln(a.out, "\nChoose your devices and settings")

	changed, err := ov.apply(&cfg)
	if err != nil {
		return err
	}
	if *maxNote >= 0 {
		cfg.MaxMIDINote = *maxNote
		if err := cfg.Validate(); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		if err := a.save(cfg); err != nil {
			return err
		}
	}

	steps := []struct {
		enabled bool
		run     func(*config.Config) error
	}{
		{*audio, a.configureAudio},
		{*midiOut, a.configureOutput},
		{*tune, a.configureTuning},
		{*advanced, a.configureAdvanced},
		{*pedalSetup, func(cfg *config.Config) error { return a.configurePedal(cfg, *timeout) }},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := step.run(&cfg); err != nil {
			return err
		}
		if err := a.save(cfg); err != nil {
			return err
		}
	}
	success.Fprintln(a.out, "\nDevices and settings saved!")
	return nil
}

func (a *app) configureAudio(cfg *config.Config) error {
	capture, err := voicemidi.NewAudioCapture(a.options(contracts.WithAudioBackend(cfg.AudioBackend))...)
	if err != nil {
		return err
	}
	defer capture.Close()
	inputs, err := capture.ListInputs()
	if err != nil {
		return err
	}
	cfg.AudioInput, err = a.selectDevice(contracts.AudioInput, inputs, cfg.AudioInput, true)
	return err
}

func (a *app) configureOutput(cfg *config.Config) error {
	output, err := voicemidi.NewMIDIOutput(a.options()...)
	if err != nil {
		return err
	}
	defer output.Close()
	ports, err := output.ListPorts()
	if err != nil {
		return err
	}
	cfg.MIDIOutput, err = a.selectDevice(contracts.MIDIOutput, ports, cfg.MIDIOutput, true)
	return err
}

func (a *app) configureTuning(cfg *config.Config) error {
	p := a.prompt
	var err error
	if cfg.Sensitivity, err = p.float("Sensitivity", cfg.Sensitivity, 0.1, 1); err != nil {
		return err
	}
	if cfg.Velocity, err = p.integer("Velocity", cfg.Velocity, 1, 127); err != nil {
		return err
	}
	if cfg.Transpose, err = p.integer("Transpose (semitones)", cfg.Transpose, -24, 24); err != nil {
		return err
	}
	if cfg.MinMIDINote, err = p.integer("Lowest MIDI note", cfg.MinMIDINote, 0, 127); err != nil {
		return err
	}
	maxDefault := cfg.MaxMIDINote
	if maxDefault < cfg.MinMIDINote {
		maxDefault = cfg.MinMIDINote
	}
	cfg.MaxMIDINote, err = p.integer("Highest MIDI note", maxDefault, cfg.MinMIDINote, 127)
	return err
}

var chunkSizes = []int{256, 512, 1024, 2048, 4096, 8192}

func (a *app) configureAdvanced(cfg *config.Config) error {
	p := a.prompt
	backends := []string{config.BackendPortAudio, config.BackendMiniaudio}
	def := 0
	if cfg.AudioBackend == config.BackendMiniaudio {
		def = 1
	}
	idx, err := p.choose("Audio backend:", backends, def)
	if err != nil {
		return err
	}
	cfg.AudioBackend = backends[idx]

	if cfg.SampleRate, err = p.integer("Sample rate (Hz)", cfg.SampleRate, 8000, 192000); err != nil {
		return err
	}

	labels := make([]string, len(chunkSizes))
	def = 2
	for i, n := range chunkSizes {
		labels[i] = fmt.Sprintf("%d samples (%.1f ms)", n, 1000*float64(n)/float64(cfg.SampleRate))
		if n == cfg.ChunkSize {
			def = i
		}
	}
	if idx, err = p.choose("Chunk size:", labels, def); err != nil {
		return err
	}
	cfg.ChunkSize = chunkSizes[idx]

	nyquist := float64(cfg.SampleRate)/2 - 1
	if cfg.MinFreq, err = p.float("Minimum frequency (Hz)", cfg.MinFreq, 20, nyquist-1); err != nil {
		return err
	}
	maxDefault := cfg.MaxFreq
	if maxDefault <= cfg.MinFreq || maxDefault > nyquist {
		maxDefault = nyquist
	}
	if cfg.MaxFreq, err = p.float("Maximum frequency (Hz)", maxDefault, cfg.MinFreq+1, nyquist); err != nil {
		return err
	}
	if cfg.SilenceFloor, err = p.float("Silence floor (RMS)", cfg.SilenceFloor, 0, 0.5); err != nil {
		return err
	}
	if cfg.Debounce, err = p.integer("Silent chunks before note off", cfg.Debounce, 0, 100); err != nil {
		return err
	}
	if cfg.Tolerance, err = p.float("Extra semitone tolerance", cfg.Tolerance, 0, 0.49); err != nil {
		return err
	}
	channel, err := p.integer("MIDI channel", cfg.MIDIChannel+1, 1, 16)
	if err != nil {
		return err
	}
	cfg.MIDIChannel = channel - 1
	return nil
}

func (a *app) configurePedal(cfg *config.Config, timeout time.Duration) error {
	client, err := voicemidi.NewMIDIClient(a.options()...)
	if err != nil {
		return fmt.Errorf("%w: %v", pedal.ErrPortUnavailable, err)
	}
	ports, err := client.ListDevices()
	if stopErr := client.Stop(); err == nil {
		err = stopErr
	}
	if err != nil {
		return err
	}
	sel, err := a.selectDevice(contracts.MIDIPedal, ports, cfg.MIDIPedal, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	heading.Fprintf(a.out, "Press and release the pedal on %s within %s...\n", sel.DisplayName, timeout)
	b, err := voicemidi.LearnPedal(ctx, sel.StableKey, timeout, a.options()...)
	switch {
	case errors.Is(err, pedal.ErrLearnTimeout):
		warning.Fprintln(a.out, "No pedal message received, pedal not configured.")
		return err
	case err != nil:
		return err
	}
	cfg.MIDIPedal = sel
	cfg.PedalBinding = &b
	success.Fprintf(a.out, "Pedal learned: %s\n", describeBinding(b))
	return nil
}

func describeBinding(b contracts.PedalBinding) string {
	ch := "any channel"
	if b.Channel != contracts.AnyChannel {
		ch = fmt.Sprintf("channel %d", b.Channel+1)
	}
	switch b.MessageType {
	case contracts.ControlChange:
		s := fmt.Sprintf("control change %d on %s", b.Data1, ch)
		if r := b.Data2Range; r != nil {
			s += fmt.Sprintf(", pressed at %d-%d", r.Min, r.Max)
		}
		return s
	case contracts.NoteOnMessage, contracts.NoteOffMessage:
		return fmt.Sprintf("%s %d on %s", b.MessageType, b.Data1, ch)
	}
	return fmt.Sprintf("status 0x%02X data %d", b.Status, b.Data1)
}

func cmdList(a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.out)
	backend := fs.String("backend", "", "audio backend to query (default: configured backend)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *backend == "" {
		cfg, _, err := a.load()
		if err != nil {
			return err
		}
		*backend = cfg.AudioBackend
	}

	var errs error
	heading.Fprintln(a.out, "\nAudio input devices:")
	if capture, err := voicemidi.NewAudioCapture(a.options(contracts.WithAudioBackend(*backend))...); err != nil {
		errs = multierr.Append(errs, a.listFailed(err))
	} else {
		inputs, err := capture.ListInputs()
		errs = multierr.Append(errs, a.printDevices(inputs, err))
		errs = multierr.Append(errs, capture.Close())
	}

	heading.Fprintln(a.out, "\nMIDI output ports:")
	if output, err := voicemidi.NewMIDIOutput(a.options()...); err != nil {
		errs = multierr.Append(errs, a.listFailed(err))
	} else {
		ports, err := output.ListPorts()
		errs = multierr.Append(errs, a.printDevices(ports, err))
		errs = multierr.Append(errs, output.Close())
	}

	heading.Fprintln(a.out, "\nMIDI input ports (pedals):")
	if client, err := voicemidi.NewMIDIClient(a.options()...); err != nil {
		errs = multierr.Append(errs, a.listFailed(err))
	} else {
		ports, err := client.ListDevices()
		errs = multierr.Append(errs, a.printDevices(ports, err))
		errs = multierr.Append(errs, client.Stop())
	}
	return errs
}

func (a *app) listFailed(err error) error {
	failure.Fprintf(a.out, "  unavailable: %v\n", err)
	return err
}

func (a *app) printDevices(list []contracts.DeviceInfo, err error) error {
	if err != nil {
		return a.listFailed(err)
	}
	if len(list) == 0 {
		warning.Fprintln(a.out, "  none found")
	}
	for i, d := range list {
		fmt.Fprintf(a.out, "  %2d: %s %s\n", i, success.Sprint(deviceLabel(d)), dim.Sprintf("key=%s", d.StableKey))
	}
	return nil
}

func cmdShow(a *app, args []string) error {
	if !a.store.Exists() {
		failure.Fprintln(a.out, "No config found.")
		return nil
	}
	cfg, _, err := a.load()
	if err != nil {
		return err
	}

	heading.Fprintln(a.out, "Current config:")
	row := func(key string, value any) {
		fmt.Fprintf(a.out, "  %-20s %s\n", key+":", success.Sprint(value))
	}
	selection := func(sel *contracts.DeviceSelection) string {
		if sel == nil {
			return "(not selected)"
		}
		return fmt.Sprintf("%s (key %s)", sel.DisplayName, sel.StableKey)
	}
	row("file", a.store.Path())
	row("audio input", selection(cfg.AudioInput))
	row("MIDI output", selection(cfg.MIDIOutput))
	row("MIDI pedal", selection(cfg.MIDIPedal))
	if cfg.PedalBinding != nil {
		row("pedal binding", describeBinding(*cfg.PedalBinding))
	}
	row("audio backend", cfg.AudioBackend)
	row("sample rate", cfg.SampleRate)
	row("chunk size", cfg.ChunkSize)
	row("sensitivity", cfg.Sensitivity)
	row("velocity", cfg.Velocity)
	row("transpose", cfg.Transpose)
	row("MIDI channel", cfg.MIDIChannel+1)
	row("note range", fmt.Sprintf("%d-%d", cfg.MinMIDINote, cfg.MaxMIDINote))
	row("frequency range", fmt.Sprintf("%g-%g Hz", cfg.MinFreq, cfg.MaxFreq))
	row("silence floor", cfg.SilenceFloor)
	row("debounce chunks", cfg.Debounce)
	row("tolerance", cfg.Tolerance)
	return nil
}

func cmdReset(a *app, args []string) error {
	if !a.store.Exists() {
		warning.Fprintln(a.out, "No config file found.")
		return nil
	}
	if err := a.store.Reset(); err != nil {
		return err
	}
	success.Fprintln(a.out, "Config file deleted. You will be prompted to select devices next time.")
	return nil
}
