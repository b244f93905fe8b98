package door

// Result is the outcome of a single controller call. Rejections are results,
// not errors.
type Result string

const (
	ResultOpening           Result = "OPENING"
	ResultClosing           Result = "CLOSING"
	ResultBuffered          Result = "BUFFERED"
	ResultStopped           Result = "STOPPED"
	ResultLocked            Result = "LOCKED"
	ResultUnlocked          Result = "UNLOCKED"
	ResultErrorLocked       Result = "ERROR_LOCKED"
	ResultCalibrationOn     Result = "CALIBRATION_ON"
	ResultCalibrationDone   Result = "CALIBRATION_DONE"
	ResultCalibrationShort  Result = "CALIBRATION_FAILED_SHORT"
	ResultCalibrationCancel Result = "CALIBRATION_CANCELLED"
	ResultRfLearnWaitOpen   Result = "RF_LEARN_WAIT_OPEN"
	ResultRfLearnWaitStop   Result = "RF_LEARN_WAIT_STOP"
	ResultRfLearnWaitClose  Result = "RF_LEARN_WAIT_CLOSE"
	ResultRfLearnWaitLock   Result = "RF_LEARN_WAIT_LOCK"
	ResultRfLearnDone       Result = "RF_LEARN_DONE"
	ResultRfLearnCancelled  Result = "RF_LEARN_CANCELLED"
	ResultBleOn             Result = "BLE_ON"
	ResultBleOff            Result = "BLE_OFF"
	ResultWifiConfigOn      Result = "WIFI_CONFIG_ON"
	ResultSettingsUpdated   Result = "SETTINGS_UPDATED"
	ResultIgnored           Result = "IGNORED"
)

// Rejected reports whether the call was refused.
func (r Result) Rejected() bool {
	return r == ResultErrorLocked
}

// RfLearnResult is the result reported while waiting for step.
func RfLearnResult(step RfLearnStep) Result {
	switch step {
	case RfLearnWaitOpen:
		return ResultRfLearnWaitOpen
	case RfLearnWaitStop:
		return ResultRfLearnWaitStop
	case RfLearnWaitClose:
		return ResultRfLearnWaitClose
	case RfLearnWaitLock:
		return ResultRfLearnWaitLock
	case RfLearnDone:
		return ResultRfLearnDone
	}
	return ResultIgnored
}
