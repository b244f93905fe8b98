// Package button recognizes wall button gestures: edges, short presses,
// long presses and the wifi reset combo.
package button

import (
	"time"

	"github.com/smartgate/doorctl/pkg/door"
)

const (
	// StartupGuard ignores inputs right after boot while the lines settle.
	StartupGuard = 5 * time.Second
	LongPress    = 10 * time.Second
	// A STOP press must last longer than Debounce to count.
	Debounce     = 20 * time.Millisecond
	PollInterval = 50 * time.Millisecond
)

// Levels is one sample of the inputs; true means pressed.
type Levels struct {
	Open    bool
	Close   bool
	Stop    bool
	Lock    bool
	RFSetup bool
}

// hold tracks one press-and-hold gesture.
type hold struct {
	since   time.Time
	handled bool
}

func (h *hold) reset() { *h = hold{} }

// held starts tracking on the first pressed sample and reports true exactly
// once when the press has lasted LongPress.
func (h *hold) held(now time.Time) bool {
	if h.since.IsZero() {
		h.since = now
		return false
	}
	if !h.handled && now.Sub(h.since) >= LongPress {
		h.handled = true
		return true
	}
	return false
}

// Tracker turns level samples into button events. It holds no goroutines
// and no clock; the caller supplies the sample time.
//
// Each input becomes eligible only after it has been seen released once the
// startup guard elapsed, so a stuck or shorted button never fires.
type Tracker struct {
	start time.Time

	openOK, closeOK, stopOK, lockOK, rfOK bool

	prev  Levels
	stop  hold
	combo hold
	rf    hold
}

func NewTracker(start time.Time) *Tracker {
	return &Tracker{start: start}
}

// Update consumes one sample and returns the events it completes.
func (t *Tracker) Update(now time.Time, lv Levels) []door.ButtonEvent {
	if now.Sub(t.start) < StartupGuard {
		return nil
	}

	t.openOK = t.openOK || !lv.Open
	t.closeOK = t.closeOK || !lv.Close
	t.stopOK = t.stopOK || !lv.Stop
	t.lockOK = t.lockOK || !lv.Lock
	t.rfOK = t.rfOK || !lv.RFSetup

	var events []door.ButtonEvent

	if lv.Stop && (lv.Open || lv.Close) && t.stopOK {
		if t.combo.since.IsZero() {
			// The STOP press that started a combo never reports on its own.
			t.stop.handled = true
		}
		if t.combo.held(now) {
			events = append(events, door.ButtonWifiResetTrigger)
		}
	} else {
		t.combo.reset()

		if lv.Stop && t.stopOK {
			if t.stop.held(now) {
				events = append(events, door.ButtonLearnTravelTrigger)
			}
		} else {
			if !t.stop.since.IsZero() && !t.stop.handled && now.Sub(t.stop.since) > Debounce {
				events = append(events, door.ButtonStop)
			}
			t.stop.reset()
		}

		if lv.Open && !t.prev.Open && t.openOK {
			events = append(events, door.ButtonOpen)
		}
		if lv.Close && !t.prev.Close && t.closeOK {
			events = append(events, door.ButtonClose)
		}
		t.prev.Open = lv.Open
		t.prev.Close = lv.Close
	}

	if lv.Lock && !t.prev.Lock && t.lockOK {
		events = append(events, door.ButtonLockPress)
	}
	t.prev.Lock = lv.Lock

	if lv.RFSetup && t.rfOK {
		if t.rf.held(now) {
			events = append(events, door.ButtonLearnRFTrigger)
		}
	} else {
		t.rf.reset()
	}

	return events
}
