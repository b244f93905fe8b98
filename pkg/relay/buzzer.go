package relay

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clock"
)

// Buzzer sounds a beeper line for a given duration.
type Buzzer struct {
	mu    sync.Mutex
	clock clock.Clock
	line  Line
	timer clock.Timer
	gen   uint64
}

func NewBuzzer(c clock.Clock, line Line) *Buzzer {
	return &Buzzer{clock: c, line: line}
}

// Beep turns the buzzer on for d. A beep in progress is extended, not queued.
func (z *Buzzer) Beep(d time.Duration) {
	if z == nil || z.line == nil {
		return
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if z.timer != nil {
		z.timer.Stop()
	}
	if err := z.line.SetValue(1); err != nil {
		logrus.WithError(err).Warn("failed to start buzzer")
		return
	}
	z.gen++
	gen := z.gen
	z.timer = z.clock.AfterFunc(d, func() {
		z.mu.Lock()
		defer z.mu.Unlock()
		if gen != z.gen {
			return
		}
		z.timer = nil
		if err := z.line.SetValue(0); err != nil {
			logrus.WithError(err).Warn("failed to stop buzzer")
		}
	})
}
