// Package clickgate aggregates repeated OPEN/CLOSE presses and decides
// whether a motion command runs immediately or waits for more presses.
package clickgate

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/door"
)

// DefaultWindow is the time allowed between two presses of a sequence.
const DefaultWindow = 500 * time.Millisecond

// Decision is the outcome of Gate.Process.
type Decision int

const (
	RunNow Decision = iota
	Buffered
)

func (d Decision) String() string {
	if d == RunNow {
		return "RunNow"
	}
	return "Buffered"
}

// Gate is not safe for concurrent use. It is owned by the door controller,
// which serializes Process, Expire and Reset with the rest of its state.
type Gate struct {
	clock  clock.Clock
	window time.Duration
	notify func(gen uint64)

	cfg     door.GateConfig
	pending door.Command
	count   int
	timer   clock.Timer
	gen     uint64
}

// New creates a gate. notify is called from the timer goroutine when the
// window armed with generation gen elapses; the owner must hand gen back to
// Expire on its own goroutine.
func New(c clock.Clock, cfg door.GateConfig, notify func(gen uint64)) *Gate {
	return &Gate{
		clock:  c,
		window: DefaultWindow,
		notify: notify,
		cfg:    cfg,
	}
}

func (g *Gate) Config() door.GateConfig {
	return g.cfg
}

func (g *Gate) SetConfig(cfg door.GateConfig) {
	g.cfg = cfg
}

// Required returns the number of presses cmd needs right now.
func (g *Gate) Required(cmd door.Command) int {
	hour, ok := clock.WallClockHour(g.clock)
	return RequiredClicks(g.cfg, cmd, hour, ok)
}

// RequiredClicks resolves the press count for cmd at the given hour.
// hourKnown=false means the wall clock is not synchronized yet.
func RequiredClicks(cfg door.GateConfig, cmd door.Command, hour int, hourKnown bool) int {
	restricted, normal := 1, 1
	switch cmd {
	case door.CommandOpen:
		restricted, normal = cfg.OpenClicks, cfg.DefaultOpenClicks
	case door.CommandClose:
		restricted, normal = cfg.CloseClicks, cfg.DefaultCloseClicks
	}

	if cfg.TimeMode == 0 {
		return restricted
	}
	if !hourKnown {
		return normal
	}
	if InWindow(hour, cfg.StartHour, cfg.EndHour) {
		return restricted
	}
	return normal
}

// InWindow reports whether hour lies in [start, end). The window wraps past
// midnight when start >= end, so 22->6 covers 22:00 to 05:59.
func InWindow(hour, start, end int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Process registers one press of cmd.
func (g *Gate) Process(cmd door.Command) Decision {
	required := g.Required(cmd)
	if required <= 1 {
		return RunNow
	}

	if cmd != g.pending {
		g.count = 0
		g.pending = cmd
	}
	g.count++

	logrus.WithFields(logrus.Fields{
		"command":  cmd,
		"count":    g.count,
		"required": required,
	}).Debug("click buffered")

	g.arm()
	return Buffered
}

// Expire closes the window armed with generation gen. It returns the pending
// command and whether enough presses were collected. Stale generations are
// ignored.
func (g *Gate) Expire(gen uint64) (door.Command, bool) {
	if gen != g.gen || g.timer == nil {
		return "", false
	}
	g.timer = nil

	cmd := g.pending
	required := g.Required(cmd)
	fire := cmd != "" && g.count >= required

	logrus.WithFields(logrus.Fields{
		"command":  cmd,
		"count":    g.count,
		"required": required,
		"fire":     fire,
	}).Debug("click window closed")

	g.count = 0
	g.pending = ""
	return cmd, fire
}

// Reset drops any buffered presses.
func (g *Gate) Reset() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.count = 0
	g.pending = ""
}

// Count returns the presses collected in the current window.
func (g *Gate) Count() int {
	return g.count
}

func (g *Gate) arm() {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = g.clock.AfterFunc(g.window, func() {
		if g.notify != nil {
			g.notify(gen)
		}
	})
}
