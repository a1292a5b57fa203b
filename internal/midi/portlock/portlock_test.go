package portlock

import (
	"errors"
	"testing"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

type nopClient struct {
	selectErr error
	selects   int
}

func (n *nopClient) Stop() error                                  { return nil }
func (n *nopClient) ListDevices() ([]contracts.DeviceInfo, error) { return nil, nil }
func (n *nopClient) StartCapture(chan contracts.MIDI)             {}
func (n *nopClient) SelectDevice(string) error {
	n.selects++
	return n.selectErr
}

func TestSecondClientOnSamePortIsRefused(t *testing.T) {
	a := Wrap(&nopClient{})
	b := Wrap(&nopClient{})

	if err := a.SelectDevice("pedal"); err != nil {
		t.Fatalf("first select: %v", err)
	}
	if err := b.SelectDevice("pedal"); !errors.Is(err, ErrPortBusy) {
		t.Fatalf("expected ErrPortBusy, got %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := b.SelectDevice("pedal"); err != nil {
		t.Fatalf("select after release: %v", err)
	}
	_ = b.Stop()
}

func TestFailedSelectReleasesPort(t *testing.T) {
	failing := Wrap(&nopClient{selectErr: errors.New("gone")})
	if err := failing.SelectDevice("synth"); err == nil {
		t.Fatalf("expected error")
	}
	ok := Wrap(&nopClient{})
	if err := ok.SelectDevice("synth"); err != nil {
		t.Fatalf("port stayed locked after failed select: %v", err)
	}
	_ = ok.Stop()
}

func TestReselectMovesLock(t *testing.T) {
	inner := &nopClient{}
	c := Wrap(inner)
	_ = c.SelectDevice("a")
	_ = c.SelectDevice("a")
	if inner.selects != 1 {
		t.Fatalf("reselecting the held port reconnected (%d selects)", inner.selects)
	}
	_ = c.SelectDevice("b")
	if err := Acquire("a"); err != nil {
		t.Fatalf("old port not released: %v", err)
	}
	Release("a")
	_ = c.Stop()
}
