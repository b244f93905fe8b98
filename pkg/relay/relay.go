// Package relay drives the door's relay board: momentary pulses on the
// open, close and stop contacts, the buzzer, and the GPIO lines behind them.
package relay

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clock"
)

// DefaultPulseDuration is how long a contact is held for a momentary press.
const DefaultPulseDuration = 500 * time.Millisecond

// Output is a relay contact.
type Output int

const (
	Open Output = iota
	Close
	Stop
	numOutputs
)

func (o Output) String() string {
	switch o {
	case Open:
		return "open"
	case Close:
		return "close"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// Driver is what the door controller needs from the relay board.
type Driver interface {
	// Pulse asserts out and releases it after the pulse duration.
	Pulse(out Output) error
	// Hold asserts out until StopAll or an interlocked output clears it.
	Hold(out Output) error
	// StopAll releases every output. Safe to call at any time.
	StopAll() error
}

// Line is a single digital output.
type Line interface {
	SetValue(value int) error
}

// Lines groups the outputs of a board.
type Lines struct {
	Open  Line
	Close Line
	Stop  Line
}

// Board is a pulse-based Driver. Open and Close are interlocked: asserting
// one always releases the other first. A pulse releases itself even if the
// caller never comes back, so a hung controller cannot leave a contact closed.
type Board struct {
	mu     sync.Mutex
	clock  clock.Clock
	pulse  time.Duration
	lines  [numOutputs]Line
	levels [numOutputs]int
	clears [numOutputs]clock.Timer
	gens   [numOutputs]uint64
}

var _ Driver = &Board{}

func NewBoard(c clock.Clock, lines Lines, pulse time.Duration) *Board {
	if pulse <= 0 {
		pulse = DefaultPulseDuration
	}
	return &Board{
		clock: c,
		pulse: pulse,
		lines: [numOutputs]Line{lines.Open, lines.Close, lines.Stop},
	}
}

func (b *Board) Pulse(out Output) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.assert(out); err != nil {
		return err
	}

	b.gens[out]++
	gen := b.gens[out]
	b.clears[out] = b.clock.AfterFunc(b.pulse, func() {
		b.release(out, gen)
	})
	return nil
}

func (b *Board) Hold(out Output) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assert(out)
}

func (b *Board) StopAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for out := Output(0); out < numOutputs; out++ {
		if err := b.clear(out); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Asserted reports whether out is currently driven.
func (b *Board) Asserted(out Output) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[out] != 0
}

// assert must be called with b.mu held.
func (b *Board) assert(out Output) error {
	if out < 0 || out >= numOutputs {
		return pkgerrors.Errorf("invalid relay output %d", out)
	}

	switch out {
	case Open:
		if err := b.clear(Close); err != nil {
			return err
		}
	case Close:
		if err := b.clear(Open); err != nil {
			return err
		}
	}

	b.cancel(out)
	return b.set(out, 1)
}

// clear must be called with b.mu held.
func (b *Board) clear(out Output) error {
	b.cancel(out)
	if b.levels[out] == 0 {
		return nil
	}
	return b.set(out, 0)
}

func (b *Board) cancel(out Output) {
	if b.clears[out] != nil {
		b.clears[out].Stop()
		b.clears[out] = nil
	}
	b.gens[out]++
}

func (b *Board) release(out Output, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gens[out] {
		return
	}
	b.clears[out] = nil
	if err := b.set(out, 0); err != nil {
		logrus.WithError(err).WithField("output", out).Error("failed to release relay")
	}
}

func (b *Board) set(out Output, v int) error {
	line := b.lines[out]
	if line == nil {
		return pkgerrors.Errorf("relay output %s is not wired", out)
	}
	logrus.WithFields(logrus.Fields{
		"output": out,
		"value":  v,
	}).Trace("set relay")
	if err := line.SetValue(v); err != nil {
		return pkgerrors.Wrapf(err, "failed to set relay %s to %d", out, v)
	}
	b.levels[out] = v
	return nil
}
