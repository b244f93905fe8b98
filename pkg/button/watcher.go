package button

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"

	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/relay"
)

// Handler receives recognized button events.
type Handler interface {
	HandleButton(evt door.ButtonEvent) (door.Result, error)
}

// Sampler reads the current input levels.
type Sampler interface {
	Sample() (Levels, error)
	Close() error
}

// GPIOConfig selects the input line offsets. A negative offset leaves that
// input unwired and always released.
type GPIOConfig struct {
	Chip      string
	Open      int
	Close     int
	Stop      int
	Lock      int
	RFSetup   int
	ActiveLow bool
}

type gpioSampler struct {
	lines *gpiocdev.Lines
	// index of each input in the requested offsets, -1 when unwired
	idx    [5]int
	values []int
}

// OpenGPIO requests the wired inputs with pull-ups.
func OpenGPIO(cfg GPIOConfig) (Sampler, error) {
	s := &gpioSampler{}
	var offsets []int
	for i, off := range []int{cfg.Open, cfg.Close, cfg.Stop, cfg.Lock, cfg.RFSetup} {
		s.idx[i] = -1
		if off < 0 {
			continue
		}
		s.idx[i] = len(offsets)
		offsets = append(offsets, off)
	}
	if len(offsets) == 0 {
		return nil, pkgerrors.New("no button inputs configured")
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithConsumer(relay.Consumer),
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	lines, err := gpiocdev.RequestLines(cfg.Chip, offsets, opts...)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to request button lines %s:%v", cfg.Chip, offsets)
	}
	logrus.WithFields(logrus.Fields{
		"chip":    cfg.Chip,
		"offsets": offsets,
	}).Debug("requested input lines")

	s.lines = lines
	s.values = make([]int, len(offsets))
	return s, nil
}

func (s *gpioSampler) Sample() (Levels, error) {
	if err := s.lines.Values(s.values); err != nil {
		return Levels{}, pkgerrors.Wrap(err, "failed to read button lines")
	}
	at := func(i int) bool {
		return s.idx[i] >= 0 && s.values[s.idx[i]] == 1
	}
	return Levels{
		Open:    at(0),
		Close:   at(1),
		Stop:    at(2),
		Lock:    at(3),
		RFSetup: at(4),
	}, nil
}

func (s *gpioSampler) Close() error {
	return s.lines.Close()
}

// Watcher polls a Sampler and forwards events to the controller.
type Watcher struct {
	sampler Sampler
	clock   clock.Clock
	tracker *Tracker
	handler Handler
}

func NewWatcher(s Sampler, c clock.Clock, h Handler) *Watcher {
	return &Watcher{
		sampler: s,
		clock:   c,
		tracker: NewTracker(c.Now()),
		handler: h,
	}
}

// Run polls until ctx is cancelled or the handler stops accepting events.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lv, err := w.sampler.Sample()
		if err != nil {
			if err.Error() != lastErr {
				logrus.WithError(err).Error("button sample failed")
				lastErr = err.Error()
			}
			continue
		}
		lastErr = ""

		if err := w.dispatch(w.tracker.Update(w.clock.Now(), lv)); err != nil {
			return err
		}
	}
}

func (w *Watcher) dispatch(events []door.ButtonEvent) error {
	for _, evt := range events {
		res, err := w.handler.HandleButton(evt)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"event":  evt,
			"result": res,
		}).Info("button event")
	}
	return nil
}
