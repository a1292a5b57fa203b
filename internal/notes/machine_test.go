package notes

import (
	"math/rand"
	"testing"
	"time"

	"github.com/leandrodaf/voicemidi/internal/pitch"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

func voiced(note float64) contracts.PitchObservation {
	return contracts.PitchObservation{FrequencyHz: pitch.FrequencyFromMIDI(note), Confidence: 0.95, RMS: 0.3}
}

var silent = contracts.PitchObservation{}

func newMachine(t *testing.T, mutate func(*Params)) *Machine {
	t.Helper()
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	m, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNoteOnThenDebouncedOff(t *testing.T) {
	m := newMachine(t, nil)
	now := time.Now()

	events := m.Step(voiced(57), false, now, nil)
	if len(events) != 1 || events[0].Kind != contracts.NoteOnEvent || events[0].Note != 57 || events[0].Velocity != 64 {
		t.Fatalf("unexpected first events: %+v", events)
	}

	for i := 1; i < m.Params().Debounce; i++ {
		if ev := m.Step(silent, false, now, nil); len(ev) != 0 {
			t.Fatalf("silent chunk %d emitted %+v before debounce elapsed", i, ev)
		}
		if !m.State().Sounding {
			t.Fatalf("note released after %d silent chunks", i)
		}
	}

	events = m.Step(silent, false, now, nil)
	if len(events) != 1 || events[0].Kind != contracts.NoteOffEvent || events[0].Note != 57 || events[0].Velocity != 0 {
		t.Fatalf("expected NoteOff 57, got %+v", events)
	}
	if st := m.State(); st.Sounding || st.CurrentNote != -1 {
		t.Fatalf("state after release: %+v", st)
	}
}

func TestRetriggerEmitsOffBeforeOn(t *testing.T) {
	m := newMachine(t, nil)
	now := time.Now()

	m.Step(voiced(60), false, now, nil)
	events := m.Step(voiced(64), false, now, nil)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Kind != contracts.NoteOffEvent || events[0].Note != 60 {
		t.Fatalf("first event must release 60, got %+v", events[0])
	}
	if events[1].Kind != contracts.NoteOnEvent || events[1].Note != 64 {
		t.Fatalf("second event must start 64, got %+v", events[1])
	}
}

func TestSameNoteWithinHalfSemitoneIsSustained(t *testing.T) {
	m := newMachine(t, nil)
	now := time.Now()
	m.Step(voiced(60), false, now, nil)

	for _, n := range []float64{60.2, 59.7, 60.45, 60} {
		if ev := m.Step(voiced(n), false, now, nil); len(ev) != 0 {
			t.Fatalf("pitch %.2f retriggered: %+v", n, ev)
		}
	}
}

func TestToleranceWidensSameNoteWindow(t *testing.T) {
	m := newMachine(t, func(p *Params) { p.Tolerance = 0.3 })
	now := time.Now()
	m.Step(voiced(60), false, now, nil)

	// 60.7 rounds to 61 but stays within 0.5+0.3 of 60.
	if ev := m.Step(voiced(60.7), false, now, nil); len(ev) != 0 {
		t.Fatalf("tolerance ignored: %+v", ev)
	}
	if ev := m.Step(voiced(61), false, now, nil); len(ev) != 2 {
		t.Fatalf("a full semitone step should retrigger, got %+v", ev)
	}
}

func TestPedalHoldsNoteUntilRelease(t *testing.T) {
	m := newMachine(t, nil)
	now := time.Now()
	m.Step(voiced(57), false, now, nil)

	// Neither silence nor a new pitch changes anything while the pedal is down.
	for i, obs := range []contracts.PitchObservation{silent, silent, voiced(64), silent, silent, silent, voiced(50)} {
		if ev := m.Step(obs, true, now, nil); len(ev) != 0 {
			t.Fatalf("chunk %d under pedal emitted %+v", i, ev)
		}
		if st := m.State(); !st.Sounding || st.CurrentNote != 57 || !st.PedalHeld {
			t.Fatalf("chunk %d under pedal changed state: %+v", i, st)
		}
	}

	// After release the note ends within one debounce window of silence.
	var events []contracts.NoteEvent
	for i := 0; i < m.Params().Debounce; i++ {
		events = m.Step(silent, false, now, events)
	}
	if len(events) != 1 || events[0].Kind != contracts.NoteOffEvent || events[0].Note != 57 {
		t.Fatalf("expected NoteOff 57 after pedal release, got %+v", events)
	}
}

func TestPedalWhileSilentDoesNotBlockNoteOn(t *testing.T) {
	m := newMachine(t, nil)
	events := m.Step(voiced(62), true, time.Now(), nil)
	if len(events) != 1 || events[0].Kind != contracts.NoteOnEvent {
		t.Fatalf("expected NoteOn with pedal held from silence, got %+v", events)
	}
}

func TestOutOfRangeAndLowConfidenceCountAsSilence(t *testing.T) {
	m := newMachine(t, func(p *Params) { p.MaxNote = 72 })
	now := time.Now()

	if ev := m.Step(voiced(80), false, now, nil); len(ev) != 0 {
		t.Fatalf("note above max started: %+v", ev)
	}
	if ev := m.Step(voiced(20), false, now, nil); len(ev) != 0 {
		t.Fatalf("note below min started: %+v", ev)
	}
	weak := voiced(60)
	weak.Confidence = 0.5
	if ev := m.Step(weak, false, now, nil); len(ev) != 0 {
		t.Fatalf("low confidence note started: %+v", ev)
	}

	m.Step(voiced(60), false, now, nil)
	var events []contracts.NoteEvent
	events = m.Step(voiced(80), false, now, events)
	events = m.Step(weak, false, now, events)
	events = m.Step(silent, false, now, events)
	if len(events) != 1 || events[0].Kind != contracts.NoteOffEvent {
		t.Fatalf("out-of-range and weak chunks should debounce to NoteOff, got %+v", events)
	}
}

func TestVoicedChunkResetsDebounce(t *testing.T) {
	m := newMachine(t, nil)
	now := time.Now()
	m.Step(voiced(60), false, now, nil)

	var events []contracts.NoteEvent
	for i := 0; i < 10; i++ {
		events = m.Step(silent, false, now, events)
		events = m.Step(silent, false, now, events)
		events = m.Step(voiced(60), false, now, events)
	}
	if len(events) != 0 {
		t.Fatalf("gaps shorter than the debounce window released the note: %+v", events)
	}
}

func TestTransposeAndChannel(t *testing.T) {
	m := newMachine(t, func(p *Params) {
		p.Transpose = 12
		p.Channel = 9
	})
	events := m.Step(voiced(57), false, time.Now(), nil)
	if len(events) != 1 || events[0].Note != 69 || events[0].Channel != 9 {
		t.Fatalf("expected transposed note 69 on channel 9, got %+v", events)
	}
}

func TestFlushReleasesEvenWithPedal(t *testing.T) {
	m := newMachine(t, nil)
	now := time.Now()
	m.Step(voiced(57), false, now, nil)
	m.Step(silent, true, now, nil)

	events := m.Flush(now, nil)
	if len(events) != 1 || events[0].Kind != contracts.NoteOffEvent || events[0].Note != 57 {
		t.Fatalf("Flush emitted %+v", events)
	}
	if ev := m.Flush(now, nil); len(ev) != 0 {
		t.Fatalf("second Flush emitted %+v", ev)
	}
	if st := m.State(); st != (State{CurrentNote: -1}) {
		t.Fatalf("state not reset: %+v", st)
	}
}

func TestMonophonicInvariantUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := newMachine(t, func(p *Params) { p.Debounce = 2 })
	now := time.Now()

	sounding := -1
	for i := 0; i < 20000; i++ {
		var obs contracts.PitchObservation
		switch rng.Intn(4) {
		case 0:
			obs = silent
		case 1:
			obs = voiced(float64(30 + rng.Intn(60)))
			obs.Confidence = rng.Float64()
		default:
			obs = voiced(40 + rng.Float64()*40)
		}
		pedal := rng.Intn(5) == 0

		for _, ev := range m.Step(obs, pedal, now, nil) {
			switch ev.Kind {
			case contracts.NoteOnEvent:
				if sounding != -1 {
					t.Fatalf("step %d: NoteOn %d while %d sounds", i, ev.Note, sounding)
				}
				sounding = ev.Note
			case contracts.NoteOffEvent:
				if ev.Note != sounding {
					t.Fatalf("step %d: NoteOff %d but %d sounds", i, ev.Note, sounding)
				}
				sounding = -1
			}
		}
		if st := m.State(); st.CurrentNote != sounding || st.Sounding != (sounding != -1) {
			t.Fatalf("step %d: state %+v disagrees with emitted events (sounding %d)", i, st, sounding)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	bad := []func(*Params){
		func(p *Params) { p.Velocity = 0 },
		func(p *Params) { p.Velocity = 128 },
		func(p *Params) { p.MinNote = 90 },
		func(p *Params) { p.MaxNote = 128 },
		func(p *Params) { p.Debounce = -1 },
		func(p *Params) { p.Tolerance = 0.5 },
		func(p *Params) { p.Channel = 16 },
	}
	for i, mutate := range bad {
		p := DefaultParams()
		mutate(&p)
		if _, err := New(p); err == nil {
			t.Fatalf("case %d: invalid params accepted: %+v", i, p)
		}
	}
}
