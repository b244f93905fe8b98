package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartgate/doorctl/pkg/schedule"
)

func TestDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	if f.PulseDuration() != 500*time.Millisecond {
		t.Fatalf("PulseDuration = %v", f.PulseDuration())
	}
	if f.AllowNonRootAccess() || f.MockHardware() {
		t.Fatalf("unexpected boolean defaults")
	}
	if r := f.Relays(); r.Chip != "gpiochip0" || r.Buzzer != -1 {
		t.Fatalf("Relays = %+v", r)
	}
	if b := f.Buttons(); !b.ActiveLow || b.Lock != -1 {
		t.Fatalf("Buttons = %+v", b)
	}
	mq, enabled := f.MQTT()
	if enabled || mq.Company != "smartgate" || mq.KeepAlive != time.Minute {
		t.Fatalf("MQTT = %+v, %v", mq, enabled)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doorctl.json")
	raw := `{
  "pulseDurationMs": 300,
  "mockHardware": true,
  "gpio": {"chip": "gpiochip1", "open": 1, "close": 2, "stop": 3, "buzzer": 4, "buttonOpen": -1, "buttonClose": -1, "buttonStop": 9, "buttonLock": -1, "buttonRfSetup": -1},
  "mqtt": {"enabled": true, "broker": "tcp://b:1883", "device": "gate", "token": "t"},
  "schedules": [{"name": "night", "cron": "0 23 * * *", "commands": ["CLOSE", "LOCK"]}]
}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if f.PulseDuration() != 300*time.Millisecond || !f.MockHardware() {
		t.Fatalf("overrides not applied: %v %v", f.PulseDuration(), f.MockHardware())
	}
	if r := f.Relays(); r.Chip != "gpiochip1" || r.Buzzer != 4 {
		t.Fatalf("Relays = %+v", r)
	}
	if b := f.Buttons(); b.Stop != 9 || b.Open != -1 || b.ActiveLow {
		t.Fatalf("Buttons = %+v", b)
	}
	mq, enabled := f.MQTT()
	if !enabled || mq.Broker != "tcp://b:1883" || mq.Company != "smartgate" || mq.SetTopic() != "smartgate/gate/t/set" {
		t.Fatalf("MQTT = %+v", mq)
	}
	if jobs := f.Schedules(); len(jobs) != 1 || jobs[0].Commands[1] != "LOCK" {
		t.Fatalf("Schedules = %+v", jobs)
	}
}

func TestEmptyAndBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(empty); err != nil {
		t.Fatalf("empty file should load: %v", err)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(broken); err == nil {
		t.Fatalf("expected error for broken file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "doorctl.json")
	f := NewFileFromConfig(nil, path)
	f.SetAllowNonRootAccess(true)
	f.SetSchedules([]schedule.Job{{Name: "a", Cron: "@daily", Commands: []string{"CLOSE"}}})
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	g, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if !g.AllowNonRootAccess() || len(g.Schedules()) != 1 {
		t.Fatalf("saved config not reloaded: %v", g.LogrusFields())
	}

	raw, err := NewRawFileConfigFromConfig(g)
	if err != nil {
		t.Fatalf("NewRawFileConfigFromConfig failed: %v", err)
	}
	if raw.GPIO == nil || raw.PulseDurationMs == nil || *raw.PulseDurationMs != 500 {
		t.Fatalf("defaults not resolved: %+v", raw)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doorctl.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	if err := Watch(ctx, path, 100*time.Millisecond, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Several quick writes collapse into one notification.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{"mockHardware":true}`), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("no change notification")
	}
	select {
	case <-changed:
		t.Fatalf("writes were not debounced")
	case <-time.After(300 * time.Millisecond):
	}
}
