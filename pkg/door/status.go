package door

import "encoding/json"

// Calibration phases published under the "calibration" key.
const (
	CalibrationOn        = "ON"
	CalibrationDone      = "DONE"
	CalibrationTooShort  = "FAILED_SHORT"
	CalibrationCancelled = "CANCELLED"
	CalibrationTimeout   = "TIMEOUT"
)

// Terminal RF learning outcomes published under the "rf_learn" key, next to
// the RfLearnStep values.
const (
	RfLearnCancelled = "CANCELLED"
	RfLearnTimeout   = "TIMEOUT"
)

const errorLocked = "LOCKED"

// GateConfig is the persisted multi-click and time-of-day configuration.
// Open/Close apply inside the restricted window (or always when TimeMode is
// 0); DefaultOpen/DefaultClose apply outside it.
type GateConfig struct {
	OpenClicks         int `json:"open"`
	CloseClicks        int `json:"close"`
	DefaultOpenClicks  int `json:"def_open"`
	DefaultCloseClicks int `json:"def_close"`
	TimeMode           int `json:"mode"`
	StartHour          int `json:"start"`
	EndHour            int `json:"end"`
}

// DefaultGateConfig is used until settings are saved.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		OpenClicks:         1,
		CloseClicks:        1,
		DefaultOpenClicks:  1,
		DefaultCloseClicks: 1,
		TimeMode:           0,
		StartHour:          22,
		EndHour:            6,
	}
}

// Status is one outbound status payload. Only the set keys are encoded.
type Status struct {
	State       string      `json:"state,omitempty"`
	Error       string      `json:"error,omitempty"`
	ChildLock   string      `json:"child_lock,omitempty"`
	Calibration string      `json:"calibration,omitempty"`
	RfLearn     string      `json:"rf_learn,omitempty"`
	Ble         string      `json:"ble,omitempty"`
	Settings    *GateConfig `json:"settings,omitempty"`
}

// StateStatus reports the door position.
func StateStatus(p Position) Status {
	return Status{State: p.StatusString()}
}

// LockedError reports a motion command refused by the child lock.
func LockedError() Status {
	return Status{Error: errorLocked}
}

// ChildLockStatus reports a lock change. Locking always stops the door.
func ChildLockStatus(locked bool) Status {
	if locked {
		return Status{ChildLock: "LOCKED", State: PositionStopped.StatusString()}
	}
	return Status{ChildLock: "UNLOCKED"}
}

// CalibrationStatus reports a travel learning phase.
func CalibrationStatus(phase string) Status {
	s := Status{Calibration: phase}
	if phase != CalibrationTimeout {
		s.State = PositionStopped.StatusString()
	}
	return s
}

// RfLearnStatus reports remote learning progress or its terminal outcome.
func RfLearnStatus(v string) Status {
	return Status{RfLearn: v}
}

// BleStatus reports the BLE control channel.
func BleStatus(on bool) Status {
	if on {
		return Status{Ble: "ON"}
	}
	return Status{Ble: "OFF"}
}

// SettingsStatus reports the click gate configuration.
func SettingsStatus(c GateConfig) Status {
	return Status{Settings: &c}
}

// JSON returns the wire payload.
func (s Status) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

func (s Status) String() string {
	return string(s.JSON())
}
