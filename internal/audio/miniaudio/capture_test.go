package miniaudio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFloat32View(t *testing.T) {
	want := []float32{0, 0.5, -1, 0.25}
	buf := make([]byte, 4*len(want))
	for i, v := range want {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	got := float32View(buf)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDeviceInfoKey(t *testing.T) {
	info := deviceInfo("Built-in  Microphone")
	if info.StableKey != "miniaudio|built-in microphone" {
		t.Fatalf("StableKey = %q", info.StableKey)
	}
}
