package relay

import (
	"math/rand"
	"testing"
	"time"

	"github.com/smartgate/doorctl/pkg/clock"
)

func newTestBoard() (*Board, *Recorder, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := NewRecorder()
	return NewBoard(clk, rec.Lines(), 500*time.Millisecond), rec, clk
}

func TestPulseAutoClears(t *testing.T) {
	b, rec, clk := newTestBoard()

	if err := b.Pulse(Open); err != nil {
		t.Fatalf("Pulse failed: %v", err)
	}
	if !b.Asserted(Open) {
		t.Fatalf("open should be asserted during the pulse")
	}

	clk.Advance(499 * time.Millisecond)
	if !b.Asserted(Open) {
		t.Fatalf("open released too early")
	}
	clk.Advance(time.Millisecond)
	if b.Asserted(Open) || rec.Level("open") != 0 {
		t.Fatalf("open should be released after the pulse duration")
	}
}

func TestRepulseExtends(t *testing.T) {
	b, _, clk := newTestBoard()

	_ = b.Pulse(Stop)
	clk.Advance(300 * time.Millisecond)
	_ = b.Pulse(Stop)
	clk.Advance(300 * time.Millisecond)
	if !b.Asserted(Stop) {
		t.Fatalf("the first pulse's release must not cut the second pulse short")
	}
	clk.Advance(200 * time.Millisecond)
	if b.Asserted(Stop) {
		t.Fatalf("second pulse should have released")
	}
}

func TestInterlock(t *testing.T) {
	tests := []struct {
		name string
		run  func(b *Board) error
	}{
		{"pulse open then close", func(b *Board) error {
			if err := b.Pulse(Open); err != nil {
				return err
			}
			return b.Pulse(Close)
		}},
		{"hold close then open", func(b *Board) error {
			if err := b.Hold(Close); err != nil {
				return err
			}
			return b.Hold(Open)
		}},
		{"hold open then pulse close", func(b *Board) error {
			if err := b.Hold(Open); err != nil {
				return err
			}
			return b.Pulse(Close)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec, _ := newTestBoard()
			if err := tt.run(b); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Violations() != 0 {
				t.Fatalf("open and close were asserted together: %v", rec.Writes())
			}
			if b.Asserted(Open) && b.Asserted(Close) {
				t.Fatalf("both outputs asserted")
			}
		})
	}
}

func TestInterlockRandomSequences(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	b, rec, clk := newTestBoard()

	for i := 0; i < 2000; i++ {
		var err error
		switch r.Intn(5) {
		case 0:
			err = b.Pulse(Open)
		case 1:
			err = b.Pulse(Close)
		case 2:
			err = b.Hold(Open)
		case 3:
			err = b.Hold(Close)
		case 4:
			err = b.StopAll()
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		clk.Advance(time.Duration(r.Intn(700)) * time.Millisecond)
	}

	if rec.Violations() != 0 {
		t.Fatalf("interlock violated %d times", rec.Violations())
	}
}

func TestStopAllIdempotent(t *testing.T) {
	b, rec, _ := newTestBoard()

	if err := b.StopAll(); err != nil {
		t.Fatalf("StopAll on idle board failed: %v", err)
	}
	if n := len(rec.Writes()); n != 0 {
		t.Fatalf("StopAll on idle board wrote %d times", n)
	}

	_ = b.Hold(Open)
	if err := b.StopAll(); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	writes := len(rec.Writes())
	if err := b.StopAll(); err != nil {
		t.Fatalf("second StopAll failed: %v", err)
	}
	if len(rec.Writes()) != writes {
		t.Fatalf("second StopAll should not write")
	}
}

func TestStopAllCancelsPendingRelease(t *testing.T) {
	b, rec, clk := newTestBoard()

	_ = b.Pulse(Close)
	_ = b.StopAll()
	writes := len(rec.Writes())
	clk.Advance(time.Second)
	if len(rec.Writes()) != writes {
		t.Fatalf("a cancelled release should not write again")
	}
}

func TestUnwiredOutput(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := NewBoard(clk, Lines{}, 0)
	if err := b.Pulse(Stop); err == nil {
		t.Fatalf("expected error for unwired output")
	}
}

func TestBuzzer(t *testing.T) {
	clk := clock.NewFake(time.Now())
	rec := NewRecorder()
	z := NewBuzzer(clk, rec.Line("buzzer"))

	z.Beep(100 * time.Millisecond)
	if rec.Level("buzzer") != 1 {
		t.Fatalf("buzzer should be on")
	}
	clk.Advance(50 * time.Millisecond)
	z.Beep(time.Second)
	clk.Advance(100 * time.Millisecond)
	if rec.Level("buzzer") != 1 {
		t.Fatalf("extended beep stopped early")
	}
	clk.Advance(time.Second)
	if rec.Level("buzzer") != 0 {
		t.Fatalf("buzzer should be off")
	}

	var nilBuzzer *Buzzer
	nilBuzzer.Beep(time.Second)
}
