package framebuf

import "testing"

func ramp(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestPushEmitsNonOverlappingWindows(t *testing.T) {
	b, err := New(4, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got [][]float64
	collect := func(w []float64) {
		got = append(got, append([]float64(nil), w...))
	}

	b.Push(ramp(3, 0), collect)
	if len(got) != 0 {
		t.Fatalf("emitted %d windows before the first was complete", len(got))
	}
	b.Push(ramp(6, 3), collect)

	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	want := [][]float64{{0, 1, 2, 3}, {4, 5, 6, 7}}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("window %d = %v, want %v", i, got[i], want[i])
			}
		}
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 pending sample, got %d", b.Len())
	}
}

func TestPushWithHopOverlaps(t *testing.T) {
	b, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var firsts []float64
	b.Push(ramp(8, 0), func(w []float64) { firsts = append(firsts, w[0]) })

	want := []float64{0, 2, 4}
	if len(firsts) != len(want) {
		t.Fatalf("got %d windows, want %d", len(firsts), len(want))
	}
	for i := range want {
		if firsts[i] != want[i] {
			t.Fatalf("window %d starts at %v, want %v", i, firsts[i], want[i])
		}
	}
}

func TestResetDropsPartialWindow(t *testing.T) {
	b, _ := New(4, 0)
	calls := 0
	b.Push(ramp(3, 0), func([]float64) { calls++ })
	b.Reset()
	b.Push(ramp(3, 10), func([]float64) { calls++ })
	if calls != 0 {
		t.Fatalf("expected no window after reset, got %d", calls)
	}
	b.Push(ramp(1, 13), func(w []float64) {
		calls++
		if w[0] != 10 {
			t.Fatalf("window mixes samples from before reset: %v", w)
		}
	})
	if calls != 1 {
		t.Fatalf("expected 1 window, got %d", calls)
	}
}

func TestNewRejectsBadHop(t *testing.T) {
	if _, err := New(4, 5); err == nil {
		t.Fatalf("expected error for hop > size")
	}
	if _, err := New(0, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
}
