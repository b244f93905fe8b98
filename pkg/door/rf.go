package door

// RF code slots, in learning order.
const (
	SlotOpen = iota
	SlotStop
	SlotClose
	SlotLock
	NumSlots
)

// RFCodes holds one remote code per slot. Zero means the slot is unset.
type RFCodes [NumSlots]uint32

// Match returns the slot that code is paired with. Zero never matches.
func (c RFCodes) Match(code uint32) (slot int, ok bool) {
	if code == 0 {
		return 0, false
	}
	for i, v := range c {
		if v != 0 && v == code {
			return i, true
		}
	}
	return 0, false
}

// SlotCommand maps a code slot to the command it triggers.
func SlotCommand(slot int) Command {
	switch slot {
	case SlotOpen:
		return CommandOpen
	case SlotStop:
		return CommandStop
	case SlotClose:
		return CommandClose
	case SlotLock:
		return CommandLockToggle
	}
	return ""
}

// RfLearnStep is the progress of a remote learning session.
type RfLearnStep string

const (
	RfLearnNone      RfLearnStep = "NONE"
	RfLearnWaitOpen  RfLearnStep = "WAIT_OPEN"
	RfLearnWaitStop  RfLearnStep = "WAIT_STOP"
	RfLearnWaitClose RfLearnStep = "WAIT_CLOSE"
	RfLearnWaitLock  RfLearnStep = "WAIT_LOCK"
	RfLearnDone      RfLearnStep = "DONE"
)

// RfLearnStepForSlot is the step waiting for the given slot.
func RfLearnStepForSlot(slot int) RfLearnStep {
	switch slot {
	case SlotOpen:
		return RfLearnWaitOpen
	case SlotStop:
		return RfLearnWaitStop
	case SlotClose:
		return RfLearnWaitClose
	case SlotLock:
		return RfLearnWaitLock
	}
	return RfLearnDone
}
