package pedal

import (
	"testing"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

func msg(status, d1, d2 byte) contracts.MIDI {
	return contracts.MIDI{Status: status, Data1: d1, Data2: d2}
}

func TestBindingForClassifiesByStatus(t *testing.T) {
	cases := []struct {
		name string
		in   contracts.MIDI
		typ  contracts.MessageType
		ch   int
	}{
		{"sustain cc", msg(0xB0, 64, 127), contracts.ControlChange, 0},
		{"cc channel 3", msg(0xB3, 66, 100), contracts.ControlChange, 3},
		{"note on", msg(0x91, 36, 90), contracts.NoteOnMessage, 1},
		{"note on zero velocity", msg(0x90, 36, 0), contracts.NoteOffMessage, 0},
		{"note off", msg(0x85, 36, 40), contracts.NoteOffMessage, 5},
		{"program change", msg(0xC2, 7, 0), contracts.OtherMessage, 2},
	}
	for _, c := range cases {
		b := BindingFor(c.in, "port", DefaultMidpoint)
		if b.MessageType != c.typ || b.Channel != c.ch || b.Data1 != int(c.in.Data1) || b.PortStableKey != "port" {
			t.Fatalf("%s: got %+v", c.name, b)
		}
	}
}

func TestBindingForControllerPolarity(t *testing.T) {
	b := BindingFor(msg(0xB0, 64, 127), "p", DefaultMidpoint)
	if b.Data2Range == nil || *b.Data2Range != (contracts.ValueRange{Min: 127, Max: 127}) {
		t.Fatalf("normal pedal range = %+v", b.Data2Range)
	}
	b = BindingFor(msg(0xB0, 64, 0), "p", DefaultMidpoint)
	if b.Data2Range == nil || *b.Data2Range != (contracts.ValueRange{Min: 0, Max: 0}) {
		t.Fatalf("inverted pedal range = %+v", b.Data2Range)
	}
	if b.Midpoint != DefaultMidpoint {
		t.Fatalf("midpoint not recorded: %+v", b)
	}
}

func TestClassifyController(t *testing.T) {
	normal := BindingFor(msg(0xB0, 64, 127), "p", DefaultMidpoint)
	inverted := BindingFor(msg(0xB0, 64, 0), "p", DefaultMidpoint)

	cases := []struct {
		name string
		b    contracts.PedalBinding
		in   contracts.MIDI
		want Action
	}{
		{"normal press", normal, msg(0xB0, 64, 127), ActionPress},
		{"normal release", normal, msg(0xB0, 64, 0), ActionRelease},
		{"normal half pedal", normal, msg(0xB0, 64, 100), ActionNone},
		{"inverted press", inverted, msg(0xB0, 64, 0), ActionPress},
		{"inverted release", inverted, msg(0xB0, 64, 127), ActionRelease},
		{"inverted between", inverted, msg(0xB0, 64, 30), ActionNone},
		{"other controller", normal, msg(0xB0, 1, 127), ActionNone},
		{"other channel", normal, msg(0xB1, 64, 127), ActionNone},
		{"note with same number", normal, msg(0x90, 64, 127), ActionNone},
		{"clock", normal, msg(0xF8, 0, 0), ActionNone},
	}
	for _, c := range cases {
		if got := Classify(c.b, c.in); got != c.want {
			t.Fatalf("%s: Classify = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestClassifyNotePedals(t *testing.T) {
	on := BindingFor(msg(0x90, 36, 100), "p", DefaultMidpoint)
	off := BindingFor(msg(0x80, 36, 0), "p", DefaultMidpoint)

	cases := []struct {
		name string
		b    contracts.PedalBinding
		in   contracts.MIDI
		want Action
	}{
		{"on press", on, msg(0x90, 36, 20), ActionPress},
		{"on release via note off", on, msg(0x80, 36, 0), ActionRelease},
		{"on release via zero velocity", on, msg(0x90, 36, 0), ActionRelease},
		{"on wrong note", on, msg(0x90, 37, 100), ActionNone},
		{"off-learned press", off, msg(0x80, 36, 0), ActionPress},
		{"off-learned release", off, msg(0x90, 36, 100), ActionRelease},
	}
	for _, c := range cases {
		if got := Classify(c.b, c.in); got != c.want {
			t.Fatalf("%s: Classify = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestClassifyAnyChannel(t *testing.T) {
	b := contracts.PedalBinding{MessageType: contracts.ControlChange, Channel: contracts.AnyChannel, Data1: 64, Midpoint: 64,
		Data2Range: &contracts.ValueRange{Min: 127, Max: 127}}
	if got := Classify(b, msg(0xB7, 64, 127)); got != ActionPress {
		t.Fatalf("any-channel binding ignored channel 7: %v", got)
	}
}

func TestTrackerTogglesOtherMessages(t *testing.T) {
	tr := NewTracker(BindingFor(msg(0xC0, 5, 0), "p", DefaultMidpoint))

	if held, changed := tr.Apply(msg(0xC0, 5, 0)); !held || !changed {
		t.Fatalf("first toggle: held=%v changed=%v", held, changed)
	}
	if held, _ := tr.Apply(msg(0xC0, 6, 0)); !held {
		t.Fatalf("non-matching message changed state")
	}
	if held, changed := tr.Apply(msg(0xC0, 5, 0)); held || !changed {
		t.Fatalf("second toggle: held=%v changed=%v", held, changed)
	}
}

func TestTrackerPressRelease(t *testing.T) {
	tr := NewTracker(BindingFor(msg(0xB0, 64, 127), "p", DefaultMidpoint))
	tr.Apply(msg(0xB0, 64, 127))
	if !tr.Held() {
		t.Fatalf("pedal not held after press")
	}
	if _, changed := tr.Apply(msg(0xB0, 64, 127)); changed {
		t.Fatalf("repeated press reported a change")
	}
	tr.Apply(msg(0xB0, 64, 0))
	if tr.Held() {
		t.Fatalf("pedal held after release")
	}
	tr.Apply(msg(0xB0, 64, 127))
	tr.Reset()
	if tr.Held() {
		t.Fatalf("Reset did not release")
	}
}
