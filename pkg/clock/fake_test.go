package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))

	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() { got = append(got, "a") })
	stopped := c.AfterFunc(1500*time.Millisecond, func() { got = append(got, "x") })
	if !stopped.Stop() {
		t.Fatalf("expected Stop to report an armed timer")
	}
	if stopped.Stop() {
		t.Fatalf("second Stop should report false")
	}

	c.Advance(1500 * time.Millisecond)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("after 1.5s expected [a], got %v", got)
	}

	c.Advance(time.Second)
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("after 2.5s expected [a b], got %v", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", c.Pending())
	}
}

func TestFakeChainedTimers(t *testing.T) {
	c := NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	start := c.Now()

	var firedAt time.Time
	c.AfterFunc(time.Second, func() {
		c.AfterFunc(time.Second, func() { firedAt = c.Now() })
	})

	c.Advance(3 * time.Second)
	if want := start.Add(2 * time.Second); !firedAt.Equal(want) {
		t.Fatalf("chained timer fired at %v, want %v", firedAt, want)
	}
	if want := start.Add(3 * time.Second); !c.Now().Equal(want) {
		t.Fatalf("clock at %v, want %v", c.Now(), want)
	}
}

func TestWallClockHour(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		ok   bool
	}{
		{"unsynced epoch", time.Unix(0, 0).UTC(), 0, false},
		{"year 2019", time.Date(2019, 12, 31, 23, 0, 0, 0, time.UTC), 0, false},
		{"synced", time.Date(2024, 6, 1, 22, 15, 0, 0, time.UTC), 22, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, ok := WallClockHour(NewFake(tt.now))
			if hour != tt.hour || ok != tt.ok {
				t.Fatalf("WallClockHour() = %d, %v; want %d, %v", hour, ok, tt.hour, tt.ok)
			}
		})
	}
}
