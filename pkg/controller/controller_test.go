package controller

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/relay"
	"github.com/smartgate/doorctl/pkg/settings"
	"github.com/smartgate/doorctl/pkg/utils/ptr"
)

type fakePublisher struct {
	mu       sync.Mutex
	statuses []door.Status
}

func (p *fakePublisher) PublishStatus(s door.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, s)
}

func (p *fakePublisher) has(want door.Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.statuses {
		if s.String() == want.String() {
			return true
		}
	}
	return false
}

func (p *fakePublisher) last() door.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return door.Status{}
	}
	return p.statuses[len(p.statuses)-1]
}

type fakeRadio struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (r *fakeRadio) StartAdvertising() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRadio) StopAdvertising() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRadio) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type rig struct {
	c     *Controller
	clk   *clock.Fake
	rec   *relay.Recorder
	mem   *settings.Memory
	store *settings.Store
	pub   *fakePublisher
	radio *fakeRadio
	stop  func()
}

func newRig(t *testing.T, seed func(s *settings.Store)) *rig {
	t.Helper()

	r := &rig{
		clk:   clock.NewFake(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)),
		rec:   relay.NewRecorder(),
		mem:   settings.NewMemory(),
		pub:   &fakePublisher{},
		radio: &fakeRadio{},
	}
	r.store = settings.New(r.mem)
	if seed != nil {
		seed(r.store)
	}

	r.c = New(Options{
		Relay:     relay.NewBoard(r.clk, r.rec.Lines(), 500*time.Millisecond),
		Store:     r.store,
		Publisher: r.pub,
		Radio:     r.radio,
		Clock:     r.clk,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.c.Run(ctx)
		close(done)
	}()
	r.stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(r.stop)
	return r
}

func (r *rig) exec(t *testing.T, cmd door.Command) door.Result {
	t.Helper()
	res, err := r.c.Execute(cmd)
	if err != nil {
		t.Fatalf("Execute(%s) failed: %v", cmd, err)
	}
	return res
}

func (r *rig) rf(t *testing.T, code uint32) door.Result {
	t.Helper()
	res, err := r.c.HandleRFCode(code)
	if err != nil {
		t.Fatalf("HandleRFCode(%d) failed: %v", code, err)
	}
	return res
}

func (r *rig) snap(t *testing.T) door.Snapshot {
	t.Helper()
	s, err := r.c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return s
}

func expect(t *testing.T, got, want door.Result) {
	t.Helper()
	if got != want {
		t.Fatalf("got result %s, want %s", got, want)
	}
}

func TestLockInvariance(t *testing.T) {
	r := newRig(t, nil)

	expect(t, r.exec(t, door.CommandLock), door.ResultLocked)
	if !r.pub.has(door.ChildLockStatus(true)) {
		t.Fatalf("expected child lock status, got %v", r.pub.last())
	}

	for i := 0; i < 3; i++ {
		expect(t, r.exec(t, door.CommandOpen), door.ResultErrorLocked)
		expect(t, r.exec(t, door.CommandClose), door.ResultErrorLocked)
	}
	expect(t, r.exec(t, door.CommandLearnTravel), door.ResultErrorLocked)
	expect(t, r.exec(t, door.CommandLearnRF), door.ResultErrorLocked)
	if r.rec.Pulses("open") != 0 || r.rec.Pulses("close") != 0 {
		t.Fatalf("locked door must not move: %v", r.rec.Writes())
	}
	if r.pub.last().String() != door.LockedError().String() {
		t.Fatalf("expected locked error status, got %v", r.pub.last())
	}

	expect(t, r.exec(t, door.CommandStop), door.ResultStopped)
	expect(t, r.exec(t, door.CommandUnlock), door.ResultUnlocked)
	expect(t, r.exec(t, door.CommandOpen), door.ResultOpening)
	if r.rec.Pulses("open") != 1 {
		t.Fatalf("expected one open pulse after unlock")
	}
}

func TestLockStopsMotion(t *testing.T) {
	r := newRig(t, nil)

	expect(t, r.exec(t, door.CommandClose), door.ResultClosing)
	stops := r.rec.Pulses("stop")
	expect(t, r.exec(t, door.CommandLock), door.ResultLocked)

	if r.rec.Pulses("stop") != stops+1 {
		t.Fatalf("lock should pulse stop")
	}
	if s := r.snap(t); s.Position != door.PositionStopped || !s.Locked {
		t.Fatalf("unexpected snapshot %+v", s)
	}

	// The travel timer was cancelled, so no auto stop fires later.
	r.clk.Advance(time.Minute)
	if s := r.snap(t); s.Position != door.PositionStopped {
		t.Fatalf("position changed after lock: %s", s.Position)
	}
}

func TestLockToggle(t *testing.T) {
	r := newRig(t, nil)

	res, err := r.c.HandleButton(door.ButtonLockPress)
	if err != nil {
		t.Fatal(err)
	}
	expect(t, res, door.ResultLocked)
	res, _ = r.c.HandleButton(door.ButtonLockPress)
	expect(t, res, door.ResultUnlocked)
}

func TestTravelLearnRoundTrip(t *testing.T) {
	r := newRig(t, nil)

	expect(t, r.exec(t, door.CommandLearnTravel), door.ResultCalibrationOn)
	if !r.pub.has(door.CalibrationStatus(door.CalibrationOn)) {
		t.Fatalf("expected calibration ON status")
	}

	expect(t, r.exec(t, door.CommandOpen), door.ResultOpening)
	r.clk.Advance(2 * time.Second)
	// A second motion does not restart the measurement.
	expect(t, r.exec(t, door.CommandOpen), door.ResultOpening)
	r.clk.Advance(3 * time.Second)
	expect(t, r.exec(t, door.CommandStop), door.ResultCalibrationDone)

	s := r.snap(t)
	if s.TravelTime != door.Duration(5*time.Second) {
		t.Fatalf("travel time = %v, want 5s", time.Duration(s.TravelTime))
	}
	if s.LearnMode != "none" || s.Position != door.PositionStopped {
		t.Fatalf("unexpected snapshot after learning %+v", s)
	}
	if d, ok, _ := r.store.TravelTime(); !ok || d != 5*time.Second {
		t.Fatalf("persisted travel time = %v, %v", d, ok)
	}
	if !r.pub.has(door.CalibrationStatus(door.CalibrationDone)) {
		t.Fatalf("expected calibration DONE status")
	}

	stops := r.rec.Pulses("stop")
	expect(t, r.exec(t, door.CommandOpen), door.ResultOpening)
	r.clk.Advance(5*time.Second - time.Millisecond)
	if s := r.snap(t); s.Position != door.PositionOpening {
		t.Fatalf("auto stop fired early, position %s", s.Position)
	}
	r.clk.Advance(time.Millisecond)
	if s := r.snap(t); s.Position != door.PositionOpened {
		t.Fatalf("expected OPENED after travel time, got %s", s.Position)
	}
	if r.rec.Pulses("stop") != stops+1 {
		t.Fatalf("auto stop should pulse stop once")
	}
	if p, _, _ := r.store.LastPosition(); p != door.PositionOpened {
		t.Fatalf("persisted position = %s", p)
	}
	if r.pub.last().String() != `{"state":"OPENED"}` {
		t.Fatalf("last status = %s", r.pub.last())
	}
}

func TestTravelLearnTooShort(t *testing.T) {
	r := newRig(t, func(s *settings.Store) {
		_ = s.SetTravelTime(8 * time.Second)
	})

	r.exec(t, door.CommandLearnTravel)
	r.exec(t, door.CommandClose)
	r.clk.Advance(500 * time.Millisecond)
	expect(t, r.exec(t, door.CommandStop), door.ResultCalibrationShort)

	if s := r.snap(t); s.TravelTime != door.Duration(8*time.Second) {
		t.Fatalf("travel time changed to %v", time.Duration(s.TravelTime))
	}
	if d, _, _ := r.store.TravelTime(); d != 8*time.Second {
		t.Fatalf("persisted travel time changed to %v", d)
	}
	if !r.pub.has(door.CalibrationStatus(door.CalibrationTooShort)) {
		t.Fatalf("expected FAILED_SHORT status")
	}
}

func TestTravelLearnStopWithoutMotion(t *testing.T) {
	r := newRig(t, nil)

	r.exec(t, door.CommandLearnTravel)
	expect(t, r.exec(t, door.CommandStop), door.ResultCalibrationCancel)
	if s := r.snap(t); s.TravelTime != door.Duration(DefaultTravelTime) {
		t.Fatalf("travel time changed")
	}
}

func TestTravelLearnTimeout(t *testing.T) {
	r := newRig(t, nil)

	r.exec(t, door.CommandLearnTravel)
	r.exec(t, door.CommandOpen)
	stops := r.rec.Pulses("stop")

	r.clk.Advance(CalibrationWindow)

	s := r.snap(t)
	if s.LearnMode != "none" {
		t.Fatalf("learning should have timed out, mode %s", s.LearnMode)
	}
	if s.TravelTime != door.Duration(DefaultTravelTime) {
		t.Fatalf("timeout must not commit")
	}
	if s.Position != door.PositionStopped {
		t.Fatalf("timeout should stop the door, position %s", s.Position)
	}
	if r.rec.Pulses("stop") != stops+1 {
		t.Fatalf("timeout should pulse stop")
	}
	if !r.pub.has(door.CalibrationStatus(door.CalibrationTimeout)) {
		t.Fatalf("expected calibration TIMEOUT status")
	}
}

func TestRfLearnCompletion(t *testing.T) {
	r := newRig(t, nil)

	expect(t, r.exec(t, door.CommandLearnRF), door.ResultRfLearnWaitOpen)
	expect(t, r.rf(t, 0xA1), door.ResultRfLearnWaitStop)
	expect(t, r.rf(t, 0xB2), door.ResultRfLearnWaitClose)
	expect(t, r.rf(t, 0xC3), door.ResultRfLearnWaitLock)
	expect(t, r.rf(t, 0xD4), door.ResultRfLearnDone)

	want := door.RFCodes{0xA1, 0xB2, 0xC3, 0xD4}
	if got, _ := r.store.RFCodes(); got != want {
		t.Fatalf("persisted codes = %v, want %v", got, want)
	}
	if !r.pub.has(door.RfLearnStatus("WAIT_STOP")) || !r.pub.has(door.RfLearnStatus("DONE")) {
		t.Fatalf("missing rf learn statuses")
	}
	if s := r.snap(t); s.PairedCodes != 4 || s.RfLearnStep != door.RfLearnNone {
		t.Fatalf("unexpected snapshot %+v", s)
	}

	// Learned codes drive the door.
	expect(t, r.rf(t, 0xA1), door.ResultOpening)
	expect(t, r.rf(t, 0xB2), door.ResultStopped)
	expect(t, r.rf(t, 0xC3), door.ResultClosing)
	expect(t, r.rf(t, 0xD4), door.ResultLocked)
	expect(t, r.rf(t, 0xD4), door.ResultUnlocked)
}

func TestRfLearnPartialThenStop(t *testing.T) {
	saved := door.RFCodes{1, 2, 3, 4}
	r := newRig(t, func(s *settings.Store) {
		_ = s.SetRFCodes(saved)
	})

	r.exec(t, door.CommandLearnRF)
	r.rf(t, 100)
	r.rf(t, 200)

	writes := len(r.rec.Writes())
	expect(t, r.exec(t, door.CommandStop), door.ResultRfLearnCancelled)
	if len(r.rec.Writes()) != writes {
		t.Fatalf("stop while rf learning must not drive relays")
	}

	if got, _ := r.store.RFCodes(); got != saved {
		t.Fatalf("persisted codes changed to %v", got)
	}
	// The old codes still work, the partial ones do not.
	expect(t, r.rf(t, 100), door.ResultIgnored)
	expect(t, r.rf(t, 1), door.ResultOpening)
}

func TestRfLearnTimeoutRestartsPerStep(t *testing.T) {
	saved := door.RFCodes{1, 2, 3, 4}
	r := newRig(t, func(s *settings.Store) {
		_ = s.SetRFCodes(saved)
	})

	r.exec(t, door.CommandLearnRF)
	r.clk.Advance(50 * time.Second)
	r.rf(t, 100)
	r.clk.Advance(50 * time.Second)
	if s := r.snap(t); s.RfLearnStep != door.RfLearnWaitStop {
		t.Fatalf("each captured code should restart the window, step %s", s.RfLearnStep)
	}

	r.clk.Advance(11 * time.Second)
	if s := r.snap(t); s.RfLearnStep != door.RfLearnNone || s.LearnMode != "none" {
		t.Fatalf("expected timeout, got %+v", s)
	}
	if !r.pub.has(door.RfLearnStatus(door.RfLearnTimeout)) {
		t.Fatalf("expected rf learn TIMEOUT status")
	}
	if got, _ := r.store.RFCodes(); got != saved {
		t.Fatalf("timeout must keep saved codes, got %v", got)
	}
}

func TestRfCodeZeroSentinel(t *testing.T) {
	r := newRig(t, func(s *settings.Store) {
		_ = s.SetRFCodes(door.RFCodes{0, 5, 0, 0})
	})

	expect(t, r.rf(t, 0), door.ResultIgnored)
	if len(r.rec.Writes()) != 0 {
		t.Fatalf("code 0 must not drive relays")
	}
	expect(t, r.rf(t, 5), door.ResultStopped)
	expect(t, r.rf(t, 6), door.ResultIgnored)
}

func TestClickGateThroughController(t *testing.T) {
	r := newRig(t, nil)

	if _, err := r.c.UpdateClickGate(clickgate.Update{OpenClicks: ptr.To(3)}); err != nil {
		t.Fatalf("UpdateClickGate failed: %v", err)
	}
	if cfg, ok, _ := r.store.ClickGate(); !ok || cfg.OpenClicks != 3 {
		t.Fatalf("click gate not persisted: %+v", cfg)
	}
	if r.pub.last().Settings == nil || r.pub.last().Settings.OpenClicks != 3 {
		t.Fatalf("expected settings status, got %s", r.pub.last())
	}

	for i := 0; i < 3; i++ {
		expect(t, r.exec(t, door.CommandOpen), door.ResultBuffered)
		r.clk.Advance(100 * time.Millisecond)
	}
	if r.rec.Pulses("open") != 0 {
		t.Fatalf("motion fired before the window closed")
	}

	r.clk.Advance(400 * time.Millisecond)
	if n := r.rec.Pulses("open"); n != 1 {
		t.Fatalf("expected exactly one open pulse, got %d", n)
	}
	if s := r.snap(t); s.Position != door.PositionOpening {
		t.Fatalf("expected OPENING, got %s", s.Position)
	}

	// Two presses and a gap do nothing.
	r.exec(t, door.CommandOpen)
	r.exec(t, door.CommandOpen)
	r.clk.Advance(600 * time.Millisecond)
	if n := r.rec.Pulses("open"); n != 1 {
		t.Fatalf("two presses must not move the door, pulses %d", n)
	}
}

func TestStopResetsClickGate(t *testing.T) {
	r := newRig(t, func(s *settings.Store) {
		cfg := door.DefaultGateConfig()
		cfg.CloseClicks = 2
		_ = s.SetClickGate(cfg)
	})

	r.exec(t, door.CommandClose)
	r.exec(t, door.CommandClose)
	r.exec(t, door.CommandStop)
	r.clk.Advance(time.Second)
	if r.rec.Pulses("close") != 0 {
		t.Fatalf("buffered clicks leaked past stop")
	}
}

func TestLockBeforeWindowCloses(t *testing.T) {
	r := newRig(t, func(s *settings.Store) {
		cfg := door.DefaultGateConfig()
		cfg.OpenClicks = 2
		_ = s.SetClickGate(cfg)
	})

	r.exec(t, door.CommandOpen)
	r.exec(t, door.CommandOpen)
	r.exec(t, door.CommandLock)
	r.clk.Advance(time.Second)
	if r.rec.Pulses("open") != 0 {
		t.Fatalf("locked door moved from a buffered click")
	}
}

func TestInterlockUnderRandomCommands(t *testing.T) {
	r := newRig(t, nil)
	rnd := rand.New(rand.NewSource(7))
	cmds := []door.Command{door.CommandOpen, door.CommandClose, door.CommandStop}

	for i := 0; i < 500; i++ {
		r.exec(t, cmds[rnd.Intn(len(cmds))])
		r.clk.Advance(time.Duration(rnd.Intn(800)) * time.Millisecond)
	}
	if n := r.rec.Violations(); n != 0 {
		t.Fatalf("open and close asserted together %d times", n)
	}
}

func TestTravelTimerRestartedByNewMotion(t *testing.T) {
	r := newRig(t, nil)

	r.exec(t, door.CommandOpen)
	r.clk.Advance(19 * time.Second)
	r.exec(t, door.CommandClose)
	r.clk.Advance(2 * time.Second)
	if s := r.snap(t); s.Position != door.PositionClosing {
		t.Fatalf("stale travel timer fired, position %s", s.Position)
	}
	r.clk.Advance(18 * time.Second)
	if s := r.snap(t); s.Position != door.PositionClosed {
		t.Fatalf("expected CLOSED, got %s", s.Position)
	}
}

func TestLoadTravelTimeClamp(t *testing.T) {
	tests := []struct {
		name   string
		stored time.Duration
		want   time.Duration
	}{
		{"too short", 500 * time.Millisecond, DefaultTravelTime},
		{"exactly min", MinLearnTime, DefaultTravelTime},
		{"too long", 130 * time.Second, DefaultTravelTime},
		{"valid", 30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, func(s *settings.Store) {
				_ = s.SetTravelTime(tt.stored)
			})
			if s := r.snap(t); time.Duration(s.TravelTime) != tt.want {
				t.Fatalf("travel time = %v, want %v", time.Duration(s.TravelTime), tt.want)
			}
		})
	}
}

func TestPositionRestored(t *testing.T) {
	r := newRig(t, func(s *settings.Store) {
		_ = s.SetLastPosition(door.PositionClosed)
	})
	if err := r.c.SyncStatus(); err != nil {
		t.Fatal(err)
	}
	if r.pub.last().String() != `{"state":"CLOSED"}` {
		t.Fatalf("sync published %s", r.pub.last())
	}
}

func TestLearnTimeoutTurnsOffBle(t *testing.T) {
	r := newRig(t, nil)

	expect(t, r.exec(t, door.CommandBleStart), door.ResultBleOn)
	r.exec(t, door.CommandLearnRF)
	r.clk.Advance(RfLearnWindow)

	if !r.pub.has(door.RfLearnStatus(door.RfLearnTimeout)) {
		t.Fatalf("expected rf TIMEOUT status")
	}
	if !r.pub.has(door.BleStatus(false)) {
		t.Fatalf("expected BLE OFF status")
	}
	if _, stops := r.radio.counts(); stops != 1 {
		t.Fatalf("expected one advertising stop, got %d", stops)
	}
	if s := r.snap(t); s.BleControlMode {
		t.Fatalf("ble control should be off")
	}
}

func TestBleStartKeepsLearnWindow(t *testing.T) {
	r := newRig(t, nil)

	r.exec(t, door.CommandLearnTravel)
	r.exec(t, door.CommandBleStart)
	r.clk.Advance(CalibrationWindow)
	if !r.pub.has(door.CalibrationStatus(door.CalibrationTimeout)) {
		t.Fatalf("ble start must not cancel an active learning window")
	}
}

func TestBleStopKeepsLearnWindow(t *testing.T) {
	r := newRig(t, nil)

	r.exec(t, door.CommandLearnRF)
	expect(t, r.exec(t, door.CommandBleStop), door.ResultBleOff)
	r.clk.Advance(RfLearnWindow)
	if !r.pub.has(door.RfLearnStatus(door.RfLearnTimeout)) {
		t.Fatalf("ble stop must not cancel an active learning window")
	}
	if busy, err := r.c.Busy(); err != nil || busy {
		t.Fatalf("session still active after timeout: busy=%v err=%v", busy, err)
	}
}

func TestWifiConfigMode(t *testing.T) {
	r := newRig(t, nil)

	res, err := r.c.HandleButton(door.ButtonWifiResetTrigger)
	if err != nil {
		t.Fatal(err)
	}
	expect(t, res, door.ResultWifiConfigOn)
	if starts, _ := r.radio.counts(); starts != 1 {
		t.Fatalf("wifi config should start advertising")
	}
	if s := r.snap(t); s.LearnMode != "wifi_config" {
		t.Fatalf("unexpected mode %s", s.LearnMode)
	}

	r.clk.Advance(WifiConfigWindow)
	if _, stops := r.radio.counts(); stops != 1 {
		t.Fatalf("wifi config timeout should stop advertising")
	}
	if s := r.snap(t); s.LearnMode != "none" {
		t.Fatalf("wifi config should have ended, mode %s", s.LearnMode)
	}
}

func TestStartingSessionAbandonsPrevious(t *testing.T) {
	r := newRig(t, nil)

	r.exec(t, door.CommandLearnRF)
	r.rf(t, 10)
	expect(t, r.exec(t, door.CommandLearnTravel), door.ResultCalibrationOn)
	if !r.pub.has(door.RfLearnStatus(door.RfLearnCancelled)) {
		t.Fatalf("rf session should be reported cancelled")
	}
	// Codes now go to normal matching, not to the abandoned session.
	expect(t, r.rf(t, 20), door.ResultIgnored)
}

func TestPersistenceFailureKeepsValue(t *testing.T) {
	r := newRig(t, nil)
	r.mem.FailWrites = errors.New("flash full")

	r.exec(t, door.CommandLearnTravel)
	r.exec(t, door.CommandOpen)
	r.clk.Advance(4 * time.Second)
	expect(t, r.exec(t, door.CommandStop), door.ResultCalibrationDone)

	if s := r.snap(t); s.TravelTime != door.Duration(4*time.Second) {
		t.Fatalf("in-memory travel time = %v", time.Duration(s.TravelTime))
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	r := newRig(t, nil)
	expect(t, r.exec(t, door.Command("DANCE")), door.ResultIgnored)
	res, _ := r.c.HandleButton(door.ButtonEvent("NOPE"))
	expect(t, res, door.ResultIgnored)
}

func TestStoppedController(t *testing.T) {
	r := newRig(t, nil)
	r.exec(t, door.CommandOpen)
	r.stop()

	if _, err := r.c.Execute(door.CommandOpen); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if r.rec.Level("open") != 0 {
		t.Fatalf("shutdown should release relays")
	}
}
