package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/logger"
	"github.com/leandrodaf/voicemidi/internal/pitch"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"github.com/leandrodaf/voicemidi/sdk/voicemidi"
)

func main() {
	log := logger.NewStandardLogger()

	path, err := config.DefaultPath()
	if err != nil {
		log.Error("Failed to locate config", log.Field().Error("error", err))
		return
	}
	cfg, err := config.NewStore(path, log).Load()
	if err != nil || !cfg.HasDevices() {
		log.Error("Run `voicemidi config` first to select devices", log.Field().Error("error", err))
		return
	}

	session, err := voicemidi.NewPipeline(cfg,
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{
			Commands: []contracts.MIDICommand{contracts.ControlChangeCommand, contracts.NoteOn, contracts.NoteOff},
		}),
	)
	if err != nil {
		log.Error("Failed to initialize pipeline", log.Field().Error("error", err))
		return
	}
	defer session.Close()

	events, cancel := session.Subscribe(32)
	defer cancel()

	if err := session.Start(); err != nil {
		log.Error("Failed to start pipeline", log.Field().Error("error", err))
		return
	}

	go func() {
		for event := range events {
			for _, n := range event.Notes {
				log.Info("Note",
					log.Field().String("Kind", n.Kind.String()),
					log.Field().String("Name", pitch.NoteName(n.Note)),
					log.Field().Int("Note", n.Note),
					log.Field().Int("Velocity", n.Velocity),
					log.Field().Float64("Hz", event.Observation.FrequencyHz),
				)
			}
		}
	}()

	fmt.Println("Sing into the microphone... Press Ctrl+C to exit.")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
}
