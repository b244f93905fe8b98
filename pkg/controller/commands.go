package controller

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/relay"
)

func (c *Controller) execute(cmd door.Command) door.Result {
	logrus.WithFields(logrus.Fields{
		"command":  cmd,
		"position": c.position,
		"locked":   c.lockActive,
		"mode":     c.mode,
	}).Info("executing command")

	switch cmd {
	case door.CommandStop:
		return c.stop()
	case door.CommandLock:
		return c.lock()
	case door.CommandUnlock:
		return c.unlock()
	case door.CommandLockToggle:
		if c.lockActive {
			return c.unlock()
		}
		return c.lock()
	case door.CommandOpen, door.CommandClose:
		return c.requestMotion(cmd)
	case door.CommandLearnTravel:
		return c.startTravelLearn()
	case door.CommandLearnRF:
		return c.startRfLearn()
	case door.CommandBleStart:
		return c.bleStart()
	case door.CommandBleStop:
		return c.bleStop()
	}

	logrus.WithField("command", cmd).Warn("ignoring unknown command")
	return door.ResultIgnored
}

func (c *Controller) executeScheduled(cmd door.Command) door.Result {
	if !cmd.IsMotion() {
		return c.execute(cmd)
	}
	logrus.WithFields(logrus.Fields{
		"command":  cmd,
		"position": c.position,
		"locked":   c.lockActive,
	}).Info("executing scheduled command")
	c.gate.Reset()
	return c.motion(cmd)
}

func (c *Controller) handleButton(evt door.ButtonEvent) door.Result {
	logrus.WithField("event", evt).Debug("button event")

	switch evt {
	case door.ButtonOpen:
		return c.execute(door.CommandOpen)
	case door.ButtonClose:
		return c.execute(door.CommandClose)
	case door.ButtonStop:
		return c.execute(door.CommandStop)
	case door.ButtonLockPress:
		return c.execute(door.CommandLockToggle)
	case door.ButtonLearnTravelTrigger:
		return c.execute(door.CommandLearnTravel)
	case door.ButtonLearnRFTrigger:
		return c.execute(door.CommandLearnRF)
	case door.ButtonWifiResetTrigger:
		return c.startWifiConfig()
	}

	logrus.WithField("event", evt).Warn("ignoring unknown button event")
	return door.ResultIgnored
}

// stop has priority over everything. While remote learning it only cancels
// the session and leaves the relays alone.
func (c *Controller) stop() door.Result {
	c.gate.Reset()

	if c.mode == learnRF {
		c.rf.reset()
		c.mode = learnNone
		c.disarm(&c.learnTimer)
		logrus.Info("rf learning cancelled")
		c.publish(door.RfLearnStatus(door.RfLearnCancelled))
		c.beep(BeepShort)
		return door.ResultRfLearnCancelled
	}

	c.safetyStop()
	c.disarm(&c.travelTimer)
	c.disarm(&c.learnTimer)

	switch c.mode {
	case learnTravel:
		c.mode = learnNone
		c.setPosition(door.PositionStopped)
		return c.finishTravelLearn()
	case learnWifiConfig:
		c.mode = learnNone
		c.stopRadioUnlessControlled()
		logrus.Info("wifi config mode cancelled")
	}

	c.setPosition(door.PositionStopped)
	c.publish(door.StateStatus(c.position))
	c.beep(BeepShort)
	return door.ResultStopped
}

func (c *Controller) finishTravelLearn() door.Result {
	d, outcome := c.travel.finish(c.clock.Now())
	log := logrus.WithField("measured", d)

	switch outcome {
	case travelCommitted:
		c.travelTime = d
		if err := c.store.SetTravelTime(d); err != nil {
			log.WithError(err).Error("failed to persist travel time")
		}
		log.Info("travel time learned")
		c.publish(door.CalibrationStatus(door.CalibrationDone))
		c.beep(BeepLong)
		return door.ResultCalibrationDone
	case travelTooShort:
		log.Warn("travel learning too short, discarded")
		c.publish(door.CalibrationStatus(door.CalibrationTooShort))
		c.beep(BeepShort)
		return door.ResultCalibrationShort
	}

	log.Info("travel learning cancelled before any motion")
	c.publish(door.CalibrationStatus(door.CalibrationCancelled))
	c.beep(BeepShort)
	return door.ResultCalibrationCancel
}

func (c *Controller) lock() door.Result {
	c.lockActive = true
	c.gate.Reset()
	c.haltMotion()

	logrus.Info("child lock engaged")
	c.publish(door.ChildLockStatus(true))
	c.beep(BeepShort)
	return door.ResultLocked
}

func (c *Controller) unlock() door.Result {
	c.lockActive = false

	logrus.Info("child lock released")
	c.publish(door.ChildLockStatus(false))
	c.beep(BeepShort)
	return door.ResultUnlocked
}

func (c *Controller) rejectLocked(cmd door.Command) door.Result {
	logrus.WithField("command", cmd).Warn("rejected, child lock is on")
	c.publish(door.LockedError())
	c.beep(BeepShort)
	return door.ResultErrorLocked
}

func (c *Controller) requestMotion(cmd door.Command) door.Result {
	if c.lockActive {
		return c.rejectLocked(cmd)
	}
	if c.gate.Process(cmd) == clickgate.Buffered {
		return door.ResultBuffered
	}
	return c.motion(cmd)
}

// motion pulses the open or close contact. Buffered clicks reach it later
// from the click gate, so the lock is checked again.
func (c *Controller) motion(cmd door.Command) door.Result {
	if c.lockActive {
		return c.rejectLocked(cmd)
	}

	out, pos, result := relay.Open, door.PositionOpening, door.ResultOpening
	if cmd == door.CommandClose {
		out, pos, result = relay.Close, door.PositionClosing, door.ResultClosing
	}

	if err := c.relay.Pulse(out); err != nil {
		logrus.WithError(err).WithField("output", out).Error("failed to pulse relay")
	}
	c.position = pos
	c.publish(door.StateStatus(pos))

	if c.mode == learnTravel {
		c.travel.markMotion(c.clock.Now())
		c.disarm(&c.travelTimer)
		c.arm(&c.learnTimer, CalibrationWindow, c.learnTimeout)
	} else {
		c.arm(&c.travelTimer, c.travelTime, c.autoStop)
	}

	c.beep(BeepShort)
	return result
}

// autoStop ends a run once the travel time has elapsed.
func (c *Controller) autoStop() {
	c.safetyStop()

	switch c.position {
	case door.PositionOpening:
		c.setPosition(door.PositionOpened)
	case door.PositionClosing:
		c.setPosition(door.PositionClosed)
	}

	logrus.WithField("position", c.position).Info("auto stop")
	c.publish(door.StateStatus(c.position))
}

func (c *Controller) startTravelLearn() door.Result {
	if c.lockActive {
		return c.rejectLocked(door.CommandLearnTravel)
	}

	c.abandonSession()
	c.gate.Reset()
	c.haltMotion()

	c.mode = learnTravel
	c.travel.begin()
	c.arm(&c.learnTimer, CalibrationWindow, c.learnTimeout)

	logrus.Info("travel learning started")
	c.publish(door.CalibrationStatus(door.CalibrationOn))
	c.beep(BeepLong)
	return door.ResultCalibrationOn
}

func (c *Controller) startRfLearn() door.Result {
	if c.lockActive {
		return c.rejectLocked(door.CommandLearnRF)
	}

	c.abandonSession()
	c.gate.Reset()
	c.haltMotion()

	c.mode = learnRF
	c.rf.begin()
	c.arm(&c.learnTimer, RfLearnWindow, c.learnTimeout)

	logrus.Info("rf learning started")
	c.publish(door.RfLearnStatus(string(c.rf.step)))
	c.beep(BeepLong)
	return door.ResultRfLearnWaitOpen
}

func (c *Controller) startWifiConfig() door.Result {
	c.abandonSession()
	c.gate.Reset()
	c.haltMotion()

	c.mode = learnWifiConfig
	c.arm(&c.learnTimer, WifiConfigWindow, c.learnTimeout)
	if err := c.radio.StartAdvertising(); err != nil {
		logrus.WithError(err).Error("failed to start ble advertising")
	}

	logrus.Warn("wifi config mode started")
	c.beep(BeepLong)
	return door.ResultWifiConfigOn
}

func (c *Controller) bleStart() door.Result {
	c.bleControl = true
	if err := c.radio.StartAdvertising(); err != nil {
		logrus.WithError(err).Error("failed to start ble advertising")
	}
	if c.mode == learnNone {
		c.disarm(&c.learnTimer)
	}

	c.publish(door.BleStatus(true))
	return door.ResultBleOn
}

// bleStop only cancels the learn timer when no session owns it; an active
// session keeps its timeout so it cannot stay open forever.
func (c *Controller) bleStop() door.Result {
	c.bleControl = false
	c.stopRadioUnlessControlled()
	if c.mode == learnNone {
		c.disarm(&c.learnTimer)
	}

	c.publish(door.BleStatus(false))
	return door.ResultBleOff
}

func (c *Controller) handleRFCode(code uint32) door.Result {
	log := logrus.WithField("code", code)

	if c.mode == learnRF && c.rf.active() {
		if code == 0 {
			log.Debug("ignoring empty rf code while learning")
			return door.ResultIgnored
		}

		codes, done := c.rf.capture(code)
		if !done {
			c.arm(&c.learnTimer, RfLearnWindow, c.learnTimeout)
			log.WithField("next", c.rf.step).Info("rf code captured")
			c.publish(door.RfLearnStatus(string(c.rf.step)))
			c.beep(BeepShort)
			return door.RfLearnResult(c.rf.step)
		}

		c.codes = codes
		if err := c.store.SetRFCodes(codes); err != nil {
			log.WithError(err).Error("failed to persist rf codes")
		}
		c.mode = learnNone
		c.disarm(&c.learnTimer)

		log.Info("rf learning complete")
		c.publish(door.RfLearnStatus(string(door.RfLearnDone)))
		c.beep(BeepLong)
		return door.ResultRfLearnDone
	}

	slot, ok := c.codes.Match(code)
	if !ok {
		log.Debug("rf code not paired")
		return door.ResultIgnored
	}
	return c.execute(door.SlotCommand(slot))
}

// learnTimeout closes whatever session armed the learn-timeout timer, turns
// off BLE control, then always stops the door.
func (c *Controller) learnTimeout() {
	logrus.WithFields(logrus.Fields{
		"mode": c.mode,
		"ble":  c.bleControl,
	}).Warn("learn timeout")

	if c.mode == learnWifiConfig {
		c.mode = learnNone
		c.stopRadioUnlessControlled()
		logrus.Info("wifi config mode timed out")
	}
	if c.bleControl {
		c.bleControl = false
		if err := c.radio.StopAdvertising(); err != nil {
			logrus.WithError(err).Error("failed to stop ble advertising")
		}
		c.publish(door.BleStatus(false))
	}
	if c.mode == learnRF {
		c.rf.reset()
		c.mode = learnNone
		c.publish(door.RfLearnStatus(door.RfLearnTimeout))
	}
	if c.mode == learnTravel {
		c.travel.begin()
		c.mode = learnNone
		c.publish(door.CalibrationStatus(door.CalibrationTimeout))
	}

	c.haltMotion()
	c.beep(BeepShort)
	c.publish(door.StateStatus(c.position))
}

func (c *Controller) updateClickGate(u clickgate.Update) (door.GateConfig, error) {
	cfg, changed, err := u.Apply(c.gate.Config())
	if err != nil {
		return c.gate.Config(), err
	}
	if !changed {
		return cfg, nil
	}

	c.gate.SetConfig(cfg)
	c.gate.Reset()
	if err := c.store.SetClickGate(cfg); err != nil {
		logrus.WithError(err).Error("failed to persist click gate settings")
	}

	logrus.WithField("clickGate", cfg).Info("click gate settings updated")
	c.publish(door.SettingsStatus(cfg))
	return cfg, nil
}

// abandonSession drops a running session without its completion effects so
// another one can take over the learn-timeout timer.
func (c *Controller) abandonSession() {
	switch c.mode {
	case learnRF:
		c.rf.reset()
		c.publish(door.RfLearnStatus(door.RfLearnCancelled))
	case learnTravel:
		c.travel.begin()
		c.publish(door.CalibrationStatus(door.CalibrationCancelled))
	case learnWifiConfig:
		c.stopRadioUnlessControlled()
	default:
		return
	}
	logrus.WithField("mode", c.mode).Info("learning session abandoned")
	c.mode = learnNone
	c.disarm(&c.learnTimer)
}

// haltMotion stops the door and settles a moving position on Stopped.
func (c *Controller) haltMotion() {
	c.safetyStop()
	c.disarm(&c.travelTimer)
	if c.position.Moving() {
		c.setPosition(door.PositionStopped)
	}
}

// safetyStop releases every contact, then pulses stop.
func (c *Controller) safetyStop() {
	if err := c.relay.StopAll(); err != nil {
		logrus.WithError(err).Error("failed to release relays")
	}
	if err := c.relay.Pulse(relay.Stop); err != nil {
		logrus.WithError(err).Error("failed to pulse stop relay")
	}
}

func (c *Controller) stopRadioUnlessControlled() {
	if c.bleControl {
		return
	}
	if err := c.radio.StopAdvertising(); err != nil {
		logrus.WithError(err).Error("failed to stop ble advertising")
	}
}

// setPosition updates and persists the position.
func (c *Controller) setPosition(p door.Position) {
	c.position = p
	if err := c.store.SetLastPosition(p); err != nil {
		logrus.WithError(err).WithField("position", p).Error("failed to persist door position")
	}
}

func (c *Controller) publish(s door.Status) {
	if c.pub != nil {
		c.pub.PublishStatus(s)
	}
}

func (c *Controller) beep(d time.Duration) {
	c.beeper.Beep(d)
}
