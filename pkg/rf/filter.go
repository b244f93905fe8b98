// Package rf receives decoded 433 MHz remote codes from an external receiver
// and forwards them to the door controller.
package rf

import (
	"sync"
	"time"

	"github.com/smartgate/doorctl/pkg/clock"
)

// DefaultRepeatWindow is how long a code must be silent before the same code
// counts as a new press. Remotes retransmit continuously while held.
const DefaultRepeatWindow = 500 * time.Millisecond

// Filter drops retransmissions of the same code.
type Filter struct {
	clock  clock.Clock
	window time.Duration

	mu     sync.Mutex
	last   uint32
	seenAt time.Time
}

func NewFilter(c clock.Clock, window time.Duration) *Filter {
	if window <= 0 {
		window = DefaultRepeatWindow
	}
	return &Filter{clock: c, window: window}
}

// Accept reports whether code is a new press. Every receipt, accepted or
// not, extends the repeat window of that code.
func (f *Filter) Accept(code uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	repeat := code == f.last && !f.seenAt.IsZero() && now.Sub(f.seenAt) < f.window
	f.last = code
	f.seenAt = now
	return !repeat
}
