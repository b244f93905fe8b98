package door

import (
	"strconv"
	"time"
)

// Snapshot is a read-only view of the controller state.
type Snapshot struct {
	Position       Position    `json:"position"`
	Locked         bool        `json:"locked"`
	TravelTime     Duration    `json:"travelTimeMs"`
	LearnMode      string      `json:"learnMode"`
	LearnStarted   bool        `json:"learnStarted"`
	RfLearnStep    RfLearnStep `json:"rfLearnStep"`
	BleControlMode bool        `json:"bleControlMode"`
	PairedCodes    int         `json:"pairedCodes"`
	ClickGate      GateConfig  `json:"clickGate"`
}

// Duration encodes as integer milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Duration(d).Milliseconds(), 10)), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}
