package main

import (
	"bytes"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leandrodaf/voicemidi/internal/config"
	"github.com/leandrodaf/voicemidi/internal/logger"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

func runCLI(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, strings.NewReader(input), &out)
	return out.String(), err
}

func tempConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestUnknownCommand(t *testing.T) {
	out, err := runCLI(t, "", "-config", tempConfig(t), "bogus")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("err = %v, want unknown command", err)
	}
	if !strings.Contains(out, "Commands:") {
		t.Fatalf("usage not printed:\n%s", out)
	}
	if _, err := runCLI(t, "", "-config", tempConfig(t)); err == nil {
		t.Fatalf("missing command accepted")
	}
}

func TestShowAndReset(t *testing.T) {
	path := tempConfig(t)
	out, err := runCLI(t, "", "-config", path, "show")
	if err != nil || !strings.Contains(out, "No config found.") {
		t.Fatalf("show without config = %q, %v", out, err)
	}

	cfg := config.Default()
	cfg.AudioInput = &contracts.DeviceSelection{Kind: contracts.AudioInput, DisplayName: "USB Mic", StableKey: "usb mic"}
	cfg.PedalBinding = &contracts.PedalBinding{
		PortStableKey: "fs-5u",
		MessageType:   contracts.ControlChange,
		Data1:         64,
		Data2Range:    &contracts.ValueRange{Min: 64, Max: 127},
		Midpoint:      64,
	}
	if err := config.NewStore(path, logger.NewNopLogger()).Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err = runCLI(t, "", "-config", path, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"USB Mic (key usb mic)", "(not selected)", "control change 64 on channel 1, pressed at 64-127", "36-84"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "", "-config", path, "reset")
	if err != nil || !strings.Contains(out, "Config file deleted") {
		t.Fatalf("reset = %q, %v", out, err)
	}
	out, err = runCLI(t, "", "-config", path, "reset")
	if err != nil || !strings.Contains(out, "No config file found.") {
		t.Fatalf("second reset = %q, %v", out, err)
	}
}

func TestConfigTuning(t *testing.T) {
	path := tempConfig(t)
	answers := "0.6\n100\n-12\n\n\n"
	if out, err := runCLI(t, answers, "-config", path, "config", "-pitch", "-max-midi-note", "96"); err != nil {
		t.Fatalf("config -pitch: %v\n%s", err, out)
	}
	cfg, err := config.NewStore(path, logger.NewNopLogger()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensitivity != 0.6 || cfg.Velocity != 100 || cfg.Transpose != -12 {
		t.Fatalf("tuning not saved: %+v", cfg)
	}
	if cfg.MinMIDINote != 36 || cfg.MaxMIDINote != 96 {
		t.Fatalf("note range = %d-%d, want 36-96", cfg.MinMIDINote, cfg.MaxMIDINote)
	}
}

func TestConfigRejectsInvalidOverride(t *testing.T) {
	cases := [][]string{
		{"-chunk-size", "1000"},
		{"-max-freq", "30000"},
		{"-max-freq", "50"},
		{"-confidence", "0"},
		{"-confidence", "1.5"},
	}
	for _, flags := range cases {
		path := tempConfig(t)
		args := append([]string{"-config", path, "config", "-pitch"}, flags...)
		if _, err := runCLI(t, "", args...); err == nil {
			t.Fatalf("%v accepted", flags)
		}
		if config.NewStore(path, logger.NewNopLogger()).Exists() {
			t.Fatalf("%v: invalid override was saved", flags)
		}
	}
}

func TestOverridesApplyOnlySetFlags(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	ov := addOverrides(fs)
	if err := fs.Parse([]string{"-max-freq", "1200", "-confidence", "0.5"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg := config.Default()
	changed, err := ov.apply(&cfg)
	if err != nil || !changed {
		t.Fatalf("apply = %v, %v", changed, err)
	}
	if cfg.MaxFreq != 1200 || cfg.Sensitivity != 0.5 {
		t.Fatalf("max_freq %g, sensitivity %g", cfg.MaxFreq, cfg.Sensitivity)
	}
	if def := config.Default(); cfg.MinFreq != def.MinFreq || cfg.ChunkSize != def.ChunkSize || cfg.Transpose != 0 {
		t.Fatalf("unset flags changed the config: %+v", cfg)
	}
}

func TestConfigAbortedInput(t *testing.T) {
	path := tempConfig(t)
	if _, err := runCLI(t, "0.5\n", "-config", path, "config", "-pitch"); err == nil {
		t.Fatalf("config with truncated input succeeded")
	}
}

func TestDescribeBinding(t *testing.T) {
	cases := []struct {
		b    contracts.PedalBinding
		want string
	}{
		{contracts.PedalBinding{MessageType: contracts.NoteOnMessage, Data1: 60, Channel: 9}, "note_on 60 on channel 10"},
		{contracts.PedalBinding{MessageType: contracts.ControlChange, Data1: 67, Channel: contracts.AnyChannel}, "control change 67 on any channel"},
		{contracts.PedalBinding{MessageType: contracts.OtherMessage, Status: 0xFA, Data1: 0}, "status 0xFA data 0"},
	}
	for _, tc := range cases {
		if got := describeBinding(tc.b); got != tc.want {
			t.Fatalf("describeBinding(%+v) = %q, want %q", tc.b, got, tc.want)
		}
	}
}
