package relay

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
)

// Consumer is the label the daemon's lines carry in the kernel.
const Consumer = "doorctl"

// GPIOConfig selects the chip and line offsets of the relay board.
type GPIOConfig struct {
	Chip      string
	Open      int
	Close     int
	Stop      int
	Buzzer    int
	ActiveLow bool
}

// GPIOLines owns the requested output lines.
type GPIOLines struct {
	Relays Lines
	Buzzer Line

	requested []*gpiocdev.Line
}

type gpioLine struct {
	name string
	line *gpiocdev.Line
}

func (l *gpioLine) SetValue(v int) error {
	logrus.WithFields(logrus.Fields{
		"line":   l.name,
		"offset": l.line.Offset(),
		"value":  v,
	}).Trace("gpio write")
	return l.line.SetValue(v)
}

// OpenGPIO requests the relay and buzzer lines, all released. A negative
// buzzer offset leaves the buzzer unwired.
func OpenGPIO(cfg GPIOConfig) (*GPIOLines, error) {
	g := &GPIOLines{}

	request := func(name string, offset int) (Line, error) {
		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(Consumer),
		}
		if cfg.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		l, err := gpiocdev.RequestLine(cfg.Chip, offset, opts...)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to request %s line %s:%d", name, cfg.Chip, offset)
		}
		g.requested = append(g.requested, l)
		logrus.WithFields(logrus.Fields{
			"chip":   cfg.Chip,
			"offset": offset,
			"line":   name,
		}).Debug("requested output line")
		return &gpioLine{name: name, line: l}, nil
	}

	var err error
	if g.Relays.Open, err = request(Open.String(), cfg.Open); err != nil {
		g.Close()
		return nil, err
	}
	if g.Relays.Close, err = request(Close.String(), cfg.Close); err != nil {
		g.Close()
		return nil, err
	}
	if g.Relays.Stop, err = request(Stop.String(), cfg.Stop); err != nil {
		g.Close()
		return nil, err
	}
	if cfg.Buzzer >= 0 {
		if g.Buzzer, err = request("buzzer", cfg.Buzzer); err != nil {
			g.Close()
			return nil, err
		}
	}

	return g, nil
}

// Close releases every requested line.
func (g *GPIOLines) Close() error {
	var firstErr error
	for _, l := range g.requested {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.requested = nil
	return firstErr
}
