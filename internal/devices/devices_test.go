package devices

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

func midiOut(name string) contracts.DeviceInfo {
	return contracts.DeviceInfo{Kind: contracts.MIDIOutput, Name: name, StableKey: StableKey(name)}
}

func TestStableKeyNormalisesVolatileParts(t *testing.T) {
	cases := []struct{ a, b string }{
		{"Midi Through:Midi Through Port-0 14:0", "midi through:midi through port-0 20:0"},
		{"  USB   Audio  Device ", "usb audio device"},
		{"IAC Driver Bus 1", "iac driver  bus 1"},
	}
	for _, c := range cases {
		if StableKey(c.a) != StableKey(c.b) {
			t.Fatalf("StableKey(%q)=%q differs from StableKey(%q)=%q", c.a, StableKey(c.a), c.b, StableKey(c.b))
		}
	}
	if StableKey("ALSA", "USB Mic") == StableKey("PulseAudio", "USB Mic") {
		t.Fatalf("host API not part of the key")
	}
	if got := StableKey("", "Mic"); got != "mic" {
		t.Fatalf("empty part not skipped: %q", got)
	}
}

func TestResolvePrefersStableKey(t *testing.T) {
	list := []contracts.DeviceInfo{
		{Kind: contracts.MIDIOutput, Name: "Synth", StableKey: "other"},
		midiOut("loopMIDI Port"),
	}
	sel := &contracts.DeviceSelection{Kind: contracts.MIDIOutput, DisplayName: "Synth", StableKey: StableKey("loopMIDI Port")}

	got, err := Resolve(contracts.MIDIOutput, sel, list)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Name != "loopMIDI Port" {
		t.Fatalf("resolved %q, want the stable key match", got.Name)
	}
}

func TestResolveFallsBackToDisplayName(t *testing.T) {
	list := []contracts.DeviceInfo{midiOut("Synth A"), {Kind: contracts.MIDIOutput, Name: "Synth B", StableKey: "renamed"}}
	sel := &contracts.DeviceSelection{DisplayName: "Synth B", StableKey: "stale"}

	got, err := Resolve(contracts.MIDIOutput, sel, list)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Name != "Synth B" {
		t.Fatalf("resolved %q", got.Name)
	}

	// Display names compare case-sensitively.
	sel.DisplayName = "synth b"
	if _, err := Resolve(contracts.MIDIOutput, sel, list); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound for case mismatch, got %v", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	list := []contracts.DeviceInfo{midiOut("Synth A")}
	sel := &contracts.DeviceSelection{DisplayName: "Gone", StableKey: "gone"}
	if _, err := Resolve(contracts.MIDIOutput, sel, list); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := Resolve(contracts.MIDIOutput, nil, list); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound for nil selection, got %v", err)
	}
	if _, err := Resolve(contracts.MIDIOutput, sel, nil); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound for empty list, got %v", err)
	}
}

func TestResolveIgnoresOtherKinds(t *testing.T) {
	list := []contracts.DeviceInfo{{Kind: contracts.MIDIPedal, Name: "Keystation", StableKey: "keystation"}}
	sel := &contracts.DeviceSelection{DisplayName: "Keystation", StableKey: "keystation"}
	if _, err := Resolve(contracts.MIDIOutput, sel, list); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("input port resolved as output: %v", err)
	}
}

func TestResolveIsOrderIndependent(t *testing.T) {
	base := []contracts.DeviceInfo{
		midiOut("Synth A"), midiOut("Synth B"), midiOut("IAC Driver Bus 1"),
		midiOut("loopMIDI Port"), midiOut("Midi Through:Midi Through Port-0 14:0"),
	}
	sels := []*contracts.DeviceSelection{
		{DisplayName: "whatever", StableKey: StableKey("IAC Driver Bus 1")},
		{DisplayName: "Synth B", StableKey: "stale"},
		{DisplayName: "Midi Through:Midi Through Port-0 20:0", StableKey: StableKey("Midi Through:Midi Through Port-0 20:0")},
	}
	rng := rand.New(rand.NewSource(3))
	for _, sel := range sels {
		want, err := Resolve(contracts.MIDIOutput, sel, base)
		if err != nil {
			t.Fatalf("Resolve(%+v): %v", sel, err)
		}
		for i := 0; i < 50; i++ {
			perm := append([]contracts.DeviceInfo(nil), base...)
			rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
			got, err := Resolve(contracts.MIDIOutput, sel, perm)
			if err != nil || got != want {
				t.Fatalf("permutation %d resolved %+v (%v), want %+v", i, got, err, want)
			}
		}
	}
}

func TestSelectionRoundTripsThroughResolve(t *testing.T) {
	d := contracts.DeviceInfo{Kind: contracts.AudioInput, Name: "USB Mic", HostAPI: "ALSA", StableKey: StableKey("ALSA", "USB Mic")}
	sel := Selection(d)
	if sel.ExtraParams["host_api"] != "ALSA" {
		t.Fatalf("host api not recorded: %+v", sel)
	}
	got, err := Resolve(contracts.AudioInput, &sel, []contracts.DeviceInfo{d})
	if err != nil || got != d {
		t.Fatalf("Resolve(Selection(d)) = %+v, %v", got, err)
	}
	if s := Selection(midiOut("Synth")); s.ExtraParams != nil {
		t.Fatalf("expected nil extra params, got %v", s.ExtraParams)
	}
}

func TestIsVirtual(t *testing.T) {
	for _, name := range []string{"IAC Driver Bus 1", "loopMIDI Port", "Midi Through Port-0", "Virtual Raw MIDI 1-0"} {
		if !IsVirtual(name) {
			t.Fatalf("%q not detected as virtual", name)
		}
	}
	if IsVirtual("Roland UM-ONE") {
		t.Fatalf("hardware port detected as virtual")
	}
}
