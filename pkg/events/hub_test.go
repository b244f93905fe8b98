package events

import (
	"testing"

	"github.com/smartgate/doorctl/pkg/door"
)

func TestPublishStatus(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.PublishStatus(door.CalibrationStatus(door.CalibrationDone))

	ev := <-ch
	if ev.Name != DoorStatus {
		t.Fatalf("unexpected event name %q", ev.Name)
	}
	if got, want := string(ev.Data), `{"state":"STOP","calibration":"DONE"}`; got != want {
		t.Fatalf("payload = %s, want %s", got, want)
	}

	st, err := DecodeAs[door.Status](ev)
	if err != nil {
		t.Fatalf("DecodeAs failed: %v", err)
	}
	if st.Calibration != door.CalibrationDone || st.State != "STOP" {
		t.Fatalf("decoded %+v", st)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		h.PublishStatus(door.StateStatus(door.PositionOpening))
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected a full buffer of %d, got %d", subscriberBuffer, len(ch))
	}

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	var nilHub *EventHub
	nilHub.PublishStatus(door.BleStatus(true))
}
