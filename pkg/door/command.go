package door

import (
	"errors"
	"strings"
)

// ErrUnknownCommand is returned when an external payload names no known command.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a command accepted by the door controller.
type Command string

const (
	CommandOpen        Command = "OPEN"
	CommandClose       Command = "CLOSE"
	CommandStop        Command = "STOP"
	CommandLock        Command = "LOCK"
	CommandUnlock      Command = "UNLOCK"
	CommandLockToggle  Command = "LOCK_TOGGLE"
	CommandLearnTravel Command = "LEARN_TRAVEL"
	CommandLearnRF     Command = "LEARN_RF"
	CommandBleStart    Command = "BLE_START"
	CommandBleStop     Command = "BLE_STOP"
)

var commandAliases = map[string]Command{
	"OPEN":          CommandOpen,
	"CLOSE":         CommandClose,
	"STOP":          CommandStop,
	"LOCK":          CommandLock,
	"UNLOCK":        CommandUnlock,
	"LOCK_TOGGLE":   CommandLockToggle,
	"LEARN_TRAVEL":  CommandLearnTravel,
	"LEARN_MODE_ON": CommandLearnTravel,
	"CALIBRATION":   CommandLearnTravel,
	"LEARN_RF":      CommandLearnRF,
	"RF_LEARN_MODE": CommandLearnRF,
	"BLE_START":     CommandBleStart,
	"BLE_STOP":      CommandBleStop,
}

// ParseCommand converts an external command word into a Command.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseCommand(s string) (Command, error) {
	c, ok := commandAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", ErrUnknownCommand
	}
	return c, nil
}

// IsMotion reports whether c moves the door.
func (c Command) IsMotion() bool {
	return c == CommandOpen || c == CommandClose
}

func (c Command) String() string {
	return string(c)
}

// ButtonEvent is a normalized event produced by the wall buttons.
type ButtonEvent string

const (
	ButtonOpen               ButtonEvent = "OPEN"
	ButtonClose              ButtonEvent = "CLOSE"
	ButtonStop               ButtonEvent = "STOP"
	ButtonLockPress          ButtonEvent = "LOCK_PRESS"
	ButtonLearnTravelTrigger ButtonEvent = "LEARN_TRAVEL_TRIGGER"
	ButtonLearnRFTrigger     ButtonEvent = "LEARN_RF_TRIGGER"
	ButtonWifiResetTrigger   ButtonEvent = "WIFI_RESET_TRIGGER"
)

// ParseButtonEvent converts an event name into a ButtonEvent.
func ParseButtonEvent(s string) (ButtonEvent, error) {
	e := ButtonEvent(strings.ToUpper(strings.TrimSpace(s)))
	switch e {
	case ButtonOpen, ButtonClose, ButtonStop, ButtonLockPress,
		ButtonLearnTravelTrigger, ButtonLearnRFTrigger, ButtonWifiResetTrigger:
		return e, nil
	}
	return "", ErrUnknownCommand
}
