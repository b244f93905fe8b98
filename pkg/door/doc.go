// Package door defines the types shared by the door controller, its event
// sources and the daemon API. It contains:
//
//   - Command: the closed set of commands the controller accepts
//   - Position: the tracked logical position of the door
//   - ButtonEvent: normalized events from the wall buttons
//   - RfLearnStep and RFCodes: remote learning progress and paired codes
//   - Result: the outcome of a single controller call
//   - Status: the JSON status payloads published to MQTT, BLE and the API
//
// Parsing of external strings happens here so the controller never compares
// strings itself.
package door
