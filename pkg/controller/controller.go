// Package controller implements the door controller: the single owner of
// lock state, door position and learning sessions, and the only component
// that drives the relay board.
//
// A Controller is an actor. Run processes one message at a time; every
// public method and every timer expiry is delivered to it as a message, so
// no state is touched from any other goroutine.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/relay"
)

const (
	DefaultTravelTime = 20 * time.Second
	// Persisted travel times outside (MinLearnTime, MaxTravelTime) are
	// replaced by DefaultTravelTime on load.
	MinLearnTime  = time.Second
	MaxTravelTime = 120 * time.Second

	CalibrationWindow = 3 * time.Minute
	WifiConfigWindow  = 3 * time.Minute
	RfLearnWindow     = 60 * time.Second

	BeepShort = 100 * time.Millisecond
	BeepLong  = time.Second

	defaultQueueSize = 64
)

// ErrStopped is returned once Run has exited.
var ErrStopped = errors.New("door controller stopped")

// SettingsStore persists what the controller learns.
type SettingsStore interface {
	TravelTime() (time.Duration, bool, error)
	SetTravelTime(time.Duration) error
	RFCodes() (door.RFCodes, error)
	SetRFCodes(door.RFCodes) error
	ClickGate() (door.GateConfig, bool, error)
	SetClickGate(door.GateConfig) error
	LastPosition() (door.Position, bool, error)
	SetLastPosition(door.Position) error
}

// StatusPublisher receives every status change. It must not block.
type StatusPublisher interface {
	PublishStatus(door.Status)
}

// Radio is the BLE collaborator.
type Radio interface {
	StartAdvertising() error
	StopAdvertising() error
}

// Beeper sounds the local buzzer.
type Beeper interface {
	Beep(d time.Duration)
}

// Options configure a Controller. Relay, Store and Publisher are required.
type Options struct {
	Relay     relay.Driver
	Store     SettingsStore
	Publisher StatusPublisher
	Radio     Radio
	Beeper    Beeper
	Clock     clock.Clock
	QueueSize int
}

type Controller struct {
	relay  relay.Driver
	store  SettingsStore
	pub    StatusPublisher
	radio  Radio
	beeper Beeper
	clock  clock.Clock

	inbox chan func()
	done  chan struct{}

	lockActive bool
	position   door.Position
	travelTime time.Duration
	codes      door.RFCodes
	bleControl bool

	mode   learnMode
	travel travelLearn
	rf     rfLearn
	gate   *clickgate.Gate

	travelTimer timerSlot
	learnTimer  timerSlot
}

// New builds a controller and loads its persisted state. Load failures are
// logged and fall back to defaults.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Radio == nil {
		opts.Radio = noopRadio{}
	}
	if opts.Beeper == nil {
		opts.Beeper = noopBeeper{}
	}

	c := &Controller{
		relay:      opts.Relay,
		store:      opts.Store,
		pub:        opts.Publisher,
		radio:      opts.Radio,
		beeper:     opts.Beeper,
		clock:      opts.Clock,
		inbox:      make(chan func(), opts.QueueSize),
		done:       make(chan struct{}),
		position:   door.PositionStopped,
		travelTime: DefaultTravelTime,
	}
	c.rf.reset()

	gateCfg := door.DefaultGateConfig()
	if cfg, ok, err := c.store.ClickGate(); err != nil {
		logrus.WithError(err).Warn("failed to load click gate settings, using defaults")
	} else if ok {
		gateCfg = cfg
	}
	c.gate = clickgate.New(c.clock, gateCfg, c.onClickWindow)

	c.load()
	return c
}

func (c *Controller) load() {
	if d, ok, err := c.store.TravelTime(); err != nil {
		logrus.WithError(err).Warn("failed to load travel time, using default")
	} else if ok {
		if d > MinLearnTime && d < MaxTravelTime {
			c.travelTime = d
		} else {
			logrus.WithField("travelTime", d).Warn("persisted travel time out of range, using default")
		}
	}

	if codes, err := c.store.RFCodes(); err != nil {
		logrus.WithError(err).Warn("failed to load rf codes")
	} else {
		c.codes = codes
	}

	if p, ok, err := c.store.LastPosition(); err != nil {
		logrus.WithError(err).Warn("failed to load last door position")
	} else if ok {
		c.position = p
	}

	logrus.WithFields(logrus.Fields{
		"travelTime": c.travelTime,
		"position":   c.position,
		"rfCodes":    pairedCount(c.codes),
		"clickGate":  c.gate.Config(),
	}).Info("door controller state loaded")
}

// Run processes messages until ctx is done. It must be called exactly once.
// On exit every relay output is released.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	logrus.Debug("door controller started")
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-ctx.Done():
			c.disarm(&c.travelTimer)
			c.disarm(&c.learnTimer)
			c.gate.Reset()
			if err := c.relay.StopAll(); err != nil {
				logrus.WithError(err).Error("failed to release relays on shutdown")
			}
			logrus.Debug("door controller stopped")
			return ctx.Err()
		}
	}
}

// call runs fn on the controller goroutine and waits for it to finish.
func (c *Controller) call(fn func()) error {
	reply := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(reply) }:
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-reply:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Execute runs a command.
func (c *Controller) Execute(cmd door.Command) (door.Result, error) {
	var r door.Result
	err := c.call(func() { r = c.execute(cmd) })
	return r, err
}

// ExecuteScheduled runs a command issued by the scheduler. Motion commands
// skip the multi-click gate; the child lock still applies.
func (c *Controller) ExecuteScheduled(cmd door.Command) (door.Result, error) {
	var r door.Result
	err := c.call(func() { r = c.executeScheduled(cmd) })
	return r, err
}

// HandleButton maps a wall button event to its command.
func (c *Controller) HandleButton(evt door.ButtonEvent) (door.Result, error) {
	var r door.Result
	err := c.call(func() { r = c.handleButton(evt) })
	return r, err
}

// HandleRFCode feeds a decoded remote code, either to an active learning
// session or to the paired-code lookup.
func (c *Controller) HandleRFCode(code uint32) (door.Result, error) {
	var r door.Result
	err := c.call(func() { r = c.handleRFCode(code) })
	return r, err
}

// UpdateClickGate applies a partial click gate change, persists and
// publishes it. It returns the resulting configuration.
func (c *Controller) UpdateClickGate(u clickgate.Update) (door.GateConfig, error) {
	var (
		cfg    door.GateConfig
		update error
	)
	err := c.call(func() { cfg, update = c.updateClickGate(u) })
	if err != nil {
		return cfg, err
	}
	return cfg, update
}

// SyncStatus republishes the current door position.
func (c *Controller) SyncStatus() error {
	return c.call(func() { c.publish(door.StateStatus(c.position)) })
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() (door.Snapshot, error) {
	var s door.Snapshot
	err := c.call(func() { s = c.snapshot() })
	return s, err
}

// Busy reports whether a learning or configuration session is running.
func (c *Controller) Busy() (bool, error) {
	var busy bool
	err := c.call(func() { busy = c.mode != learnNone })
	return busy, err
}

func (c *Controller) snapshot() door.Snapshot {
	return door.Snapshot{
		Position:       c.position,
		Locked:         c.lockActive,
		TravelTime:     door.Duration(c.travelTime),
		LearnMode:      c.mode.String(),
		LearnStarted:   c.mode == learnTravel && c.travel.started,
		RfLearnStep:    c.rf.step,
		BleControlMode: c.bleControl,
		PairedCodes:    pairedCount(c.codes),
		ClickGate:      c.gate.Config(),
	}
}

func pairedCount(codes door.RFCodes) int {
	n := 0
	for _, v := range codes {
		if v != 0 {
			n++
		}
	}
	return n
}

type noopRadio struct{}

func (noopRadio) StartAdvertising() error { return nil }
func (noopRadio) StopAdvertising() error  { return nil }

type noopBeeper struct{}

func (noopBeeper) Beep(time.Duration) {}
