package controller

import (
	"time"

	"github.com/smartgate/doorctl/pkg/door"
)

// learnMode is the session currently driving the learn-timeout timer. At
// most one runs at a time; starting one abandons the other.
type learnMode int

const (
	learnNone learnMode = iota
	learnTravel
	learnRF
	learnWifiConfig
)

func (m learnMode) String() string {
	switch m {
	case learnTravel:
		return "travel"
	case learnRF:
		return "rf"
	case learnWifiConfig:
		return "wifi_config"
	}
	return "none"
}

// travelLearn measures the time between the first motion of a calibration
// session and the stop that ends it.
type travelLearn struct {
	started bool
	start   time.Time
}

type travelOutcome int

const (
	travelCancelled travelOutcome = iota // stopped before any motion
	travelTooShort
	travelCommitted
)

func (t *travelLearn) begin() {
	*t = travelLearn{}
}

// markMotion records the start time. Only the first motion counts.
func (t *travelLearn) markMotion(now time.Time) {
	if t.started {
		return
	}
	t.started = true
	t.start = now
}

// finish ends the session and returns the measured duration.
func (t *travelLearn) finish(now time.Time) (time.Duration, travelOutcome) {
	defer t.begin()

	if !t.started {
		return 0, travelCancelled
	}
	d := now.Sub(t.start)
	if d > MinLearnTime {
		return d, travelCommitted
	}
	return d, travelTooShort
}

// rfLearn collects one code per slot in order. Codes only leave the engine
// as a complete set.
type rfLearn struct {
	step door.RfLearnStep
	slot int
	temp door.RFCodes
}

func (r *rfLearn) reset() {
	*r = rfLearn{step: door.RfLearnNone}
}

func (r *rfLearn) begin() {
	*r = rfLearn{step: door.RfLearnWaitOpen}
}

func (r *rfLearn) active() bool {
	return r.step != door.RfLearnNone && r.step != door.RfLearnDone
}

// capture stores code in the slot being waited for. When the last slot is
// filled it returns the full set and done=true.
func (r *rfLearn) capture(code uint32) (codes door.RFCodes, done bool) {
	r.temp[r.slot] = code
	r.slot++
	r.step = door.RfLearnStepForSlot(r.slot)
	if r.slot < door.NumSlots {
		return door.RFCodes{}, false
	}
	codes = r.temp
	r.reset()
	return codes, true
}
