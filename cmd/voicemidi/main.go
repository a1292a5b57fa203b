// Command voicemidi turns a voice or monophonic instrument into MIDI notes in real time.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/logger"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

type command struct {
	name    string
	summary string
	run     func(a *app, args []string) error
}

var commands = []command{
	{"run", "Start converting audio input to MIDI", cmdRun},
	{"config", "Choose devices, tuning and pedal interactively", cmdConfig},
	{"list", "List audio inputs, MIDI outputs and MIDI inputs", cmdList},
	{"show", "Show the saved configuration", cmdShow},
	{"reset", "Delete the saved configuration", cmdReset},
}

// app carries what every command needs.
type app struct {
	store  *config.Store
	log    contracts.Logger
	level  contracts.LogLevel
	prompt *prompter
	out    io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			failure.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	global := flag.NewFlagSet("voicemidi", flag.ContinueOnError)
	global.SetOutput(out)
	path := global.String("config", "", "config file path (default: per-user config directory)")
	debug := global.Bool("debug", false, "enable debug logging")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage(global)
		return errors.New("missing command")
	}

	if *path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		*path = p
	}

	a := &app{
		log:    logger.NewStandardLogger(),
		level:  contracts.InfoLevel,
		prompt: newPrompter(in, out),
		out:    out,
	}
	if *debug {
		a.level = contracts.DebugLevel
	}
	a.log.SetLevel(a.level)
	a.store = config.NewStore(*path, a.log)

	name := global.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(a, global.Args()[1:])
		}
	}
	usage(global)
	return fmt.Errorf("unknown command %q", name)
}

func usage(global *flag.FlagSet) {
	w := global.Output()
	fmt.Fprintln(w, "Usage: voicemidi [-config path] [-debug] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	global.PrintDefaults()
}

// options returns the SDK options shared by every service the CLI creates.
func (a *app) options(extra ...contracts.Option) []contracts.Option {
	return append([]contracts.Option{
		contracts.WithLogger(a.log),
		contracts.WithLogLevel(a.level),
		contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{
			Commands: []contracts.MIDICommand{contracts.ControlChangeCommand, contracts.NoteOn, contracts.NoteOff},
		}),
	}, extra...)
}

// load reads the saved configuration. fresh reports that there was no usable file.
func (a *app) load() (cfg config.Config, fresh bool, err error) {
	cfg, err = a.store.Load()
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		return cfg, true, nil
	case errors.Is(err, config.ErrConfigCorrupt):
		warning.Fprintf(a.out, "The config file %s is corrupt and will be replaced.\n", a.store.Path())
		return cfg, true, nil
	case err != nil:
		return cfg, false, err
	}
	return cfg, false, nil
}

func (a *app) save(cfg config.Config) error {
	if err := a.store.Save(cfg); err != nil {
		return err
	}
	dim.Fprintf(a.out, "Saved %s\n", a.store.Path())
	return nil
}
