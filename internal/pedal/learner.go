package pedal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// Error definitions for pedal learning.
var (
	ErrLearnTimeout    = errors.New("no pedal message received before the timeout")
	ErrPortUnavailable = errors.New("pedal port unavailable")
)

// Learner records the next message arriving on a MIDI input port as the pedal binding.
type Learner struct {
	client   contracts.ClientMIDI
	logger   contracts.Logger
	midpoint int
	settle   time.Duration
	buffer   int
}

// LearnerOption configures a Learner.
type LearnerOption func(*Learner)

// WithMidpoint sets the controller value that separates pressed from released.
func WithMidpoint(m int) LearnerOption {
	return func(l *Learner) {
		l.midpoint = m
	}
}

// WithSettle sets how long messages already in flight are discarded before listening.
func WithSettle(d time.Duration) LearnerOption {
	return func(l *Learner) {
		l.settle = d
	}
}

// NewLearner returns a learner reading from client.
func NewLearner(client contracts.ClientMIDI, logger contracts.Logger, opts ...LearnerOption) *Learner {
	l := &Learner{
		client:   client,
		logger:   logger,
		midpoint: DefaultMidpoint,
		settle:   150 * time.Millisecond,
		buffer:   64,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Learn opens the port, discards stale messages, and waits up to timeout for the
// next non real-time message. The returned binding is not persisted.
func (l *Learner) Learn(ctx context.Context, portStableKey string, timeout time.Duration) (contracts.PedalBinding, error) {
	if err := l.client.SelectDevice(portStableKey); err != nil {
		return contracts.PedalBinding{}, fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}

	events := make(chan contracts.MIDI, l.buffer)
	l.client.StartCapture(events)
	defer func() {
		if err := l.client.Stop(); err != nil {
			l.logger.Warn("Failed to close pedal port", l.logger.Field().Error("error", err))
		}
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	settle := time.NewTimer(l.settle)
	defer settle.Stop()

	discarded := 0
drain:
	for {
		select {
		case <-events:
			discarded++
		case <-settle.C:
			break drain
		case <-deadline.C:
			return contracts.PedalBinding{}, ErrLearnTimeout
		case <-ctx.Done():
			return contracts.PedalBinding{}, ctx.Err()
		}
	}
	if discarded > 0 {
		l.logger.Debug("Discarded stale pedal messages", l.logger.Field().Int("count", discarded))
	}

	for {
		select {
		case msg := <-events:
			if msg.IsRealtime() {
				continue
			}
			b := BindingFor(msg, portStableKey, l.midpoint)
			l.logger.Info("Pedal learned",
				l.logger.Field().String("type", string(b.MessageType)),
				l.logger.Field().Int("channel", b.Channel),
				l.logger.Field().Int("data1", b.Data1))
			return b, nil
		case <-deadline.C:
			return contracts.PedalBinding{}, ErrLearnTimeout
		case <-ctx.Done():
			return contracts.PedalBinding{}, ctx.Err()
		}
	}
}
