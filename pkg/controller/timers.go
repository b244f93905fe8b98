package controller

import (
	"time"

	"github.com/smartgate/doorctl/pkg/clock"
)

// timerSlot is a single-shot timer owned by the controller goroutine. Each
// arm bumps gen; an expiry carrying an older gen is dropped, so a cancel
// that races with a fire already in flight always wins.
type timerSlot struct {
	t   clock.Timer
	gen uint64
}

func (s *timerSlot) armed() bool {
	return s.t != nil
}

// arm (re)starts s. onFire runs on the controller goroutine.
func (c *Controller) arm(s *timerSlot, d time.Duration, onFire func()) {
	c.disarm(s)
	gen := s.gen
	s.t = c.clock.AfterFunc(d, func() {
		_ = c.call(func() {
			if s.gen != gen || s.t == nil {
				return
			}
			s.t = nil
			onFire()
		})
	})
}

func (c *Controller) disarm(s *timerSlot) {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
	s.gen++
}

// onClickWindow is the click gate's timer callback.
func (c *Controller) onClickWindow(gen uint64) {
	_ = c.call(func() {
		if cmd, fire := c.gate.Expire(gen); fire {
			c.motion(cmd)
		}
	})
}
