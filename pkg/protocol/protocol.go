// Package protocol turns the JSON payloads received over MQTT, BLE and the
// local API into controller commands. Nothing past this package compares
// command strings.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/settings"
)

// Request is a parsed inbound payload. Commands run in order.
type Request struct {
	Commands []door.Command
	Settings *clickgate.Update
}

// Empty reports whether the payload carried nothing actionable.
func (r Request) Empty() bool {
	return len(r.Commands) == 0 && (r.Settings == nil || r.Settings.Empty())
}

type payload struct {
	State       *string           `json:"state"`
	ChildLock   *string           `json:"child_lock"`
	Calibration *string           `json:"calibration"`
	Ble         *string           `json:"ble"`
	Settings    *clickgate.Update `json:"settings"`
}

// ParsePayload parses a JSON command object or a bare command word. Values it
// does not recognize are skipped and reported in the returned error, which
// wraps door.ErrUnknownCommand; the recognized part is still returned.
func ParsePayload(b []byte) (Request, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Request{}, pkgerrors.New("empty payload")
	}

	if b[0] != '{' {
		cmd, err := door.ParseCommand(strings.Trim(string(b), `"`))
		if err != nil {
			return Request{}, pkgerrors.Wrapf(err, "%q", b)
		}
		return Request{Commands: []door.Command{cmd}}, nil
	}

	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Request{}, pkgerrors.Wrap(err, "invalid json payload")
	}

	var (
		req     Request
		unknown []string
	)
	add := func(key string, v *string, lookup func(string) (door.Command, bool)) {
		if v == nil {
			return
		}
		cmd, ok := lookup(strings.ToUpper(strings.TrimSpace(*v)))
		if !ok {
			unknown = append(unknown, fmt.Sprintf("%s=%q", key, *v))
			return
		}
		req.Commands = append(req.Commands, cmd)
	}

	add("state", p.State, stateCommand)
	add("child_lock", p.ChildLock, childLockCommand)
	add("calibration", p.Calibration, calibrationCommand)
	add("ble", p.Ble, bleCommand)
	req.Settings = p.Settings

	if len(unknown) > 0 {
		return req, pkgerrors.Wrapf(door.ErrUnknownCommand, "%s", strings.Join(unknown, ", "))
	}
	return req, nil
}

func stateCommand(v string) (door.Command, bool) {
	switch v {
	case "OPEN":
		return door.CommandOpen, true
	case "CLOSE":
		return door.CommandClose, true
	case "STOP":
		return door.CommandStop, true
	case "LOCK":
		return door.CommandLock, true
	case "UNLOCK":
		return door.CommandUnlock, true
	}
	return "", false
}

func childLockCommand(v string) (door.Command, bool) {
	switch v {
	case "LOCKED", "LOCK", "ON":
		return door.CommandLock, true
	case "UNLOCKED", "UNLOCK", "OFF":
		return door.CommandUnlock, true
	}
	return "", false
}

func calibrationCommand(v string) (door.Command, bool) {
	switch v {
	case "ON", "TRAVEL":
		return door.CommandLearnTravel, true
	case "RF":
		return door.CommandLearnRF, true
	}
	return "", false
}

func bleCommand(v string) (door.Command, bool) {
	switch v {
	case "ON":
		return door.CommandBleStart, true
	case "OFF":
		return door.CommandBleStop, true
	}
	return "", false
}

// provisioningKeys are the keys that mark a BLE write as a config blob.
var provisioningKeys = []string{
	"wifi_ssid", "wifi_pass", "mqtt_broker", "mqtt_username", "mqtt_pass", "mqtt_token_device",
}

// IsProvisioning reports whether b is a JSON object carrying any
// provisioning key.
func IsProvisioning(b []byte) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		return false
	}
	for _, k := range provisioningKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// ParseProvisioning decodes the config blob written by the mobile app.
func ParseProvisioning(b []byte) (settings.Provisioning, error) {
	var p settings.Provisioning
	if !IsProvisioning(b) {
		return p, pkgerrors.New("payload carries no provisioning keys")
	}
	if err := json.Unmarshal(bytes.TrimSpace(b), &p); err != nil {
		return p, pkgerrors.Wrap(err, "invalid provisioning payload")
	}
	return p, nil
}
