// Package portlock keeps a process-wide record of the MIDI input ports in use.
package portlock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// ErrPortBusy is returned when a port is already held by another client in this process.
var ErrPortBusy = errors.New("MIDI port already in use")

var (
	mu   sync.Mutex
	held = map[string]struct{}{}
)

// Acquire marks key in use.
func Acquire(key string) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := held[key]; ok {
		return fmt.Errorf("%w: %s", ErrPortBusy, key)
	}
	held[key] = struct{}{}
	return nil
}

// Release frees key. Releasing a free key is a no-op.
func Release(key string) {
	mu.Lock()
	defer mu.Unlock()
	delete(held, key)
}

// Client wraps a MIDI input client so that only one client at a time can hold a port.
type Client struct {
	contracts.ClientMIDI
	mu  sync.Mutex
	key string
}

// Wrap returns c guarded by the process-wide port registry.
func Wrap(c contracts.ClientMIDI) *Client {
	return &Client{ClientMIDI: c}
}

// SelectDevice acquires the port before connecting to it.
func (c *Client) SelectDevice(stableKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key == stableKey {
		return nil
	}
	if err := Acquire(stableKey); err != nil {
		return err
	}
	if err := c.ClientMIDI.SelectDevice(stableKey); err != nil {
		Release(stableKey)
		return err
	}
	if c.key != "" {
		Release(c.key)
	}
	c.key = stableKey
	return nil
}

// Stop disconnects and releases the port.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ClientMIDI.Stop()
	if c.key != "" {
		Release(c.key)
		c.key = ""
	}
	return err
}
