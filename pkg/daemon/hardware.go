package daemon

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/button"
	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/config"
	"github.com/smartgate/doorctl/pkg/relay"
	"github.com/smartgate/doorctl/pkg/rf"
)

// hardware is the relay board, buzzer and input sources.
type hardware struct {
	board  *relay.Board
	buzzer *relay.Buzzer
	mock   *relay.Recorder

	closers []func() error
}

func openHardware(conf config.Config, c clock.Clock) (*hardware, error) {
	hw := &hardware{}

	if conf.MockHardware() {
		logrus.Warn("mock hardware enabled, relays are simulated")
		hw.mock = relay.NewRecorder()
		hw.board = relay.NewBoard(c, hw.mock.Lines(), conf.PulseDuration())
		hw.buzzer = relay.NewBuzzer(c, hw.mock.Line("buzzer"))
		return hw, nil
	}

	lines, err := relay.OpenGPIO(conf.Relays())
	if err != nil {
		return nil, err
	}
	hw.closers = append(hw.closers, lines.Close)
	hw.board = relay.NewBoard(c, lines.Relays, conf.PulseDuration())
	hw.buzzer = relay.NewBuzzer(c, lines.Buzzer)
	return hw, nil
}

// startInputs runs the button watcher and the rf reader. Inputs that fail to
// open are logged and skipped; the API, MQTT and BLE still work without them.
func (hw *hardware) startInputs(ctx context.Context, conf config.Config, c clock.Clock, h inputHandler) {
	if !conf.MockHardware() {
		sampler, err := button.OpenGPIO(conf.Buttons())
		if err != nil {
			logrus.WithError(err).Error("buttons disabled")
		} else {
			hw.closers = append(hw.closers, sampler.Close)
			w := button.NewWatcher(sampler, c, h)
			go func() {
				if err := w.Run(ctx); err != nil {
					logrus.WithError(err).Error("button watcher exited")
				}
			}()
		}
	}

	if dev := conf.RFDevice(); dev != "" {
		r, err := rf.Open(dev, rf.NewFilter(c, rf.DefaultRepeatWindow), h)
		if err != nil {
			logrus.WithError(err).Error("rf receiver disabled")
			return
		}
		go func() {
			if err := r.Run(ctx); err != nil {
				logrus.WithError(err).Error("rf receiver exited")
			}
		}()
	}
}

type inputHandler interface {
	button.Handler
	rf.Handler
}

func (hw *hardware) Close() {
	for i := len(hw.closers) - 1; i >= 0; i-- {
		if err := hw.closers[i](); err != nil {
			logrus.WithError(err).Warn("failed to release hardware")
		}
	}
}
