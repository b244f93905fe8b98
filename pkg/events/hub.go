package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/door"
)

const subscriberBuffer = 32

// EventHub fans events out to every subscriber.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]struct{})} }

func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish encodes payload and delivers it under name.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Warn("failed to encode event")
		return
	}
	h.publish(Event{Name: name, Data: b})
}

// PublishStatus delivers a door status payload verbatim.
func (h *EventHub) PublishStatus(s door.Status) {
	if h == nil {
		return
	}
	logrus.WithField("status", s.String()).Debug("status")
	h.publish(Event{Name: DoorStatus, Data: s.JSON()})
}

func (h *EventHub) publish(msg Event) {
	h.mu.RLock()
	for ch := range h.subs {
		// Non-blocking send; drop if subscriber is slow
		select {
		case ch <- msg:
		default:
			logrus.WithField("event", msg.Name).Debug("subscriber slow, event dropped")
		}
	}
	h.mu.RUnlock()
}
