package door

import (
	"strconv"
	"strings"
)

// Position is the best-effort tracked position of the door.
type Position string

const (
	PositionStopped Position = "STOPPED"
	PositionOpening Position = "OPENING"
	PositionClosing Position = "CLOSING"
	PositionOpened  Position = "OPENED"
	PositionClosed  Position = "CLOSED"
)

// legacyPositions is the integer encoding older firmware persisted.
var legacyPositions = []Position{
	PositionStopped,
	PositionOpening,
	PositionClosing,
	PositionOpened,
	PositionClosed,
}

// ParsePosition decodes a persisted position. Unknown or out of range values
// yield PositionStopped and ok=false.
func ParsePosition(s string) (p Position, ok bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 || i >= len(legacyPositions) {
			return PositionStopped, false
		}
		return legacyPositions[i], true
	}

	switch p := Position(strings.ToUpper(s)); p {
	case PositionStopped, PositionOpening, PositionClosing, PositionOpened, PositionClosed:
		return p, true
	}
	return PositionStopped, false
}

// Moving reports whether the door is believed to be in motion.
func (p Position) Moving() bool {
	return p == PositionOpening || p == PositionClosing
}

// StatusString is the value published under the "state" key.
func (p Position) StatusString() string {
	if p == PositionStopped || p == "" {
		return "STOP"
	}
	return string(p)
}

func (p Position) String() string {
	return string(p)
}
