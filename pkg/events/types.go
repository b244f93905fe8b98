package events

import "encoding/json"

// Event name constants
const (
	DoorStatus       = "door.status"
	ScheduleUpcoming = "schedule.upcoming"
	ScheduleError    = "schedule.error"
	Provisioned      = "ble.provisioned"
)

// Event is a named JSON payload from the daemon.
type Event struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// ScheduleEvent is the payload of ScheduleUpcoming and ScheduleError.
type ScheduleEvent struct {
	Job     string `json:"job"`
	RunAt   int64  `json:"runAt,omitempty"`
	Message string `json:"message,omitempty"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// If Data is empty, it returns the zero value of T with a nil error.
//
// Example:
//
//	st, err := events.DecodeAs[door.Status](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(st.State)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
