package clickgate

import (
	"errors"
	"testing"
	"time"

	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/utils/ptr"
)

// harness drives a gate the way the controller does: expiries are recorded
// and handed back to Expire on the test goroutine.
type harness struct {
	clk   *clock.Fake
	gate  *Gate
	fired []door.Command
}

func newHarness(cfg door.GateConfig, now time.Time) *harness {
	h := &harness{clk: clock.NewFake(now)}
	h.gate = New(h.clk, cfg, func(gen uint64) {
		if cmd, ok := h.gate.Expire(gen); ok {
			h.fired = append(h.fired, cmd)
		}
	})
	return h
}

var synced = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestSingleClickRunsNow(t *testing.T) {
	h := newHarness(door.DefaultGateConfig(), synced)
	if d := h.gate.Process(door.CommandOpen); d != RunNow {
		t.Fatalf("expected RunNow, got %s", d)
	}
	if h.clk.Pending() != 0 {
		t.Fatalf("RunNow should not arm a timer")
	}
}

func TestThreeClicksFireOnce(t *testing.T) {
	cfg := door.DefaultGateConfig()
	cfg.OpenClicks = 3
	h := newHarness(cfg, synced)

	for i := 0; i < 3; i++ {
		if d := h.gate.Process(door.CommandOpen); d != Buffered {
			t.Fatalf("click %d: expected Buffered, got %s", i+1, d)
		}
		h.clk.Advance(200 * time.Millisecond)
	}
	if len(h.fired) != 0 {
		t.Fatalf("nothing should fire inside the window, got %v", h.fired)
	}

	h.clk.Advance(400 * time.Millisecond)
	if len(h.fired) != 1 || h.fired[0] != door.CommandOpen {
		t.Fatalf("expected exactly one OPEN, got %v", h.fired)
	}
	if h.gate.Count() != 0 {
		t.Fatalf("counter should reset after expiry, got %d", h.gate.Count())
	}
}

func TestTooFewClicksThenGap(t *testing.T) {
	cfg := door.DefaultGateConfig()
	cfg.OpenClicks = 3
	h := newHarness(cfg, synced)

	h.gate.Process(door.CommandOpen)
	h.clk.Advance(100 * time.Millisecond)
	h.gate.Process(door.CommandOpen)
	h.clk.Advance(600 * time.Millisecond)

	if len(h.fired) != 0 {
		t.Fatalf("two clicks must not fire, got %v", h.fired)
	}
	if h.gate.Count() != 0 {
		t.Fatalf("counter should reset after the gap, got %d", h.gate.Count())
	}

	// A fresh sequence starts from zero.
	h.gate.Process(door.CommandOpen)
	h.clk.Advance(600 * time.Millisecond)
	if len(h.fired) != 0 {
		t.Fatalf("one click after reset must not fire, got %v", h.fired)
	}
}

func TestSwitchingCommandRestartsCount(t *testing.T) {
	cfg := door.DefaultGateConfig()
	cfg.OpenClicks = 2
	cfg.CloseClicks = 2
	h := newHarness(cfg, synced)

	h.gate.Process(door.CommandOpen)
	h.gate.Process(door.CommandClose)
	if h.gate.Count() != 1 {
		t.Fatalf("expected count 1 after switching command, got %d", h.gate.Count())
	}
	h.gate.Process(door.CommandClose)
	h.clk.Advance(time.Second)
	if len(h.fired) != 1 || h.fired[0] != door.CommandClose {
		t.Fatalf("expected CLOSE, got %v", h.fired)
	}
}

func TestResetDropsPending(t *testing.T) {
	cfg := door.DefaultGateConfig()
	cfg.CloseClicks = 2
	h := newHarness(cfg, synced)

	h.gate.Process(door.CommandClose)
	h.gate.Process(door.CommandClose)
	h.gate.Reset()
	h.clk.Advance(time.Second)

	if len(h.fired) != 0 {
		t.Fatalf("reset gate must not fire, got %v", h.fired)
	}
}

func TestStaleGenerationIgnored(t *testing.T) {
	cfg := door.DefaultGateConfig()
	cfg.OpenClicks = 2
	h := newHarness(cfg, synced)

	h.gate.Process(door.CommandOpen)
	h.gate.Process(door.CommandOpen)
	if _, ok := h.gate.Expire(h.gate.gen - 1); ok {
		t.Fatalf("stale generation should be ignored")
	}
	if h.gate.Count() != 2 {
		t.Fatalf("stale expiry must not touch the counter, got %d", h.gate.Count())
	}
}

func TestRequiredClicks(t *testing.T) {
	cfg := door.GateConfig{
		OpenClicks:         3,
		CloseClicks:        2,
		DefaultOpenClicks:  1,
		DefaultCloseClicks: 1,
		TimeMode:           1,
		StartHour:          22,
		EndHour:            6,
	}
	disabled := cfg
	disabled.TimeMode = 0

	tests := []struct {
		name      string
		cfg       door.GateConfig
		cmd       door.Command
		hour      int
		hourKnown bool
		want      int
	}{
		{"gate disabled uses primary count", disabled, door.CommandOpen, 12, true, 3},
		{"inside wrapped window", cfg, door.CommandOpen, 23, true, 3},
		{"inside wrapped window after midnight", cfg, door.CommandClose, 5, true, 2},
		{"end hour is exclusive", cfg, door.CommandOpen, 6, true, 1},
		{"outside window", cfg, door.CommandClose, 12, true, 1},
		{"no time info uses unrestricted count", cfg, door.CommandOpen, 23, false, 1},
		{"stop is never gated", cfg, door.CommandStop, 23, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredClicks(tt.cfg, tt.cmd, tt.hour, tt.hourKnown); got != tt.want {
				t.Fatalf("RequiredClicks() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{9, 8, 17, true},
		{17, 8, 17, false},
		{7, 8, 17, false},
		{22, 22, 6, true},
		{0, 22, 6, true},
		{6, 22, 6, false},
		{12, 22, 6, false},
		{3, 5, 5, true},
	}
	for _, tt := range tests {
		if got := InWindow(tt.hour, tt.start, tt.end); got != tt.want {
			t.Errorf("InWindow(%d, %d, %d) = %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestUnsyncedClockUsesUnrestrictedCount(t *testing.T) {
	cfg := door.DefaultGateConfig()
	cfg.OpenClicks = 3
	cfg.TimeMode = 1
	h := newHarness(cfg, time.Unix(0, 0).UTC())

	if d := h.gate.Process(door.CommandOpen); d != RunNow {
		t.Fatalf("expected RunNow before time sync, got %s", d)
	}
}

func TestUpdateApply(t *testing.T) {
	base := door.DefaultGateConfig()

	got, changed, err := Update{
		OpenClicks:  ptr.To(3),
		CloseClicks: ptr.To(0),
		TimeMode:    ptr.To(1),
		StartHour:   ptr.To(-1),
		EndHour:     ptr.To(7),
	}.Apply(base)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !changed {
		t.Fatalf("expected changed")
	}
	want := base
	want.OpenClicks = 3
	want.TimeMode = 1
	want.EndHour = 7
	if got != want {
		t.Fatalf("Apply() = %+v, want %+v", got, want)
	}

	if _, changed, _ := (Update{CloseClicks: ptr.To(0)}).Apply(base); changed {
		t.Fatalf("a zero click count should be skipped")
	}

	for _, u := range []Update{{StartHour: ptr.To(24)}, {EndHour: ptr.To(99)}} {
		if _, _, err := u.Apply(base); !errors.Is(err, ErrInvalidHour) {
			t.Fatalf("Apply(%+v) error = %v, want ErrInvalidHour", u, err)
		}
	}
}
