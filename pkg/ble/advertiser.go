// Package ble is the device side of the mobile app channel: it advertises
// the door status while BLE control is on and accepts provisioning and
// command writes.
package ble

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/events"
)

// Sink is the radio that carries the advert.
type Sink interface {
	Advertise(data []byte) error
	Stop() error
}

// LogSink stands in for a radio on hosts without one.
type LogSink struct{}

func (LogSink) Advertise(data []byte) error {
	logrus.WithField("data", string(data)).Debug("ble advertise")
	return nil
}

func (LogSink) Stop() error {
	logrus.Debug("ble advertising stopped")
	return nil
}

// Advertiser keeps the merged latest status as advertising data and pushes
// it to the sink while advertising is on.
type Advertiser struct {
	sink Sink

	mu          sync.Mutex
	advertising bool
	fields      map[string]json.RawMessage
}

func NewAdvertiser(sink Sink) *Advertiser {
	if sink == nil {
		sink = LogSink{}
	}
	return &Advertiser{sink: sink, fields: map[string]json.RawMessage{}}
}

func (a *Advertiser) StartAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advertising = true
	return a.sink.Advertise(a.payload())
}

func (a *Advertiser) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.advertising {
		return nil
	}
	a.advertising = false
	return a.sink.Stop()
}

func (a *Advertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advertising
}

// Payload returns the current advertising data.
func (a *Advertiser) Payload() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payload()
}

func (a *Advertiser) payload() []byte {
	b, _ := json.Marshal(a.fields)
	return b
}

// Update merges one status message into the advert.
func (a *Advertiser) Update(status []byte) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(status, &m); err != nil {
		logrus.WithError(err).Warn("ignoring malformed status for ble advert")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range m {
		a.fields[k] = v
	}
	if !a.advertising {
		return
	}
	if err := a.sink.Advertise(a.payload()); err != nil {
		logrus.WithError(err).Error("failed to update ble advert")
	}
}

// Run follows door status events until ctx is done.
func (a *Advertiser) Run(ctx context.Context, hub *events.EventHub) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Name == events.DoorStatus {
				a.Update(evt.Data)
			}
		}
	}
}
