// Package settings persists the controller's learned and configured values:
// travel time, paired remote codes, click gate configuration, last position
// and the provisioning blob received over BLE.
package settings

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/smartgate/doorctl/pkg/door"
)

// Persisted keys.
const (
	KeyTravelTime   = "travel_time_ms"
	KeyClickGate    = "door_settings"
	KeyLastPosition = "last_door_state"
	KeyProvisioning = "provisioning"
)

// rfKeys are written together so the four codes never diverge.
var rfKeys = [door.NumSlots]string{"rf_open", "rf_stop", "rf_close", "rf_lock"}

// Backend is a flat string key/value store. Set must apply all pairs
// atomically.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	Set(pairs map[string]string) error
	Close() error
}

// Store is a typed view over a Backend.
type Store struct {
	b Backend
}

func New(b Backend) *Store {
	return &Store{b: b}
}

func (s *Store) Close() error {
	return s.b.Close()
}

// TravelTime returns the persisted travel time, if any.
func (s *Store) TravelTime() (time.Duration, bool, error) {
	v, ok, err := s.b.Get(KeyTravelTime)
	if err != nil || !ok {
		return 0, false, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false, pkgerrors.Wrapf(err, "invalid %s %q", KeyTravelTime, v)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

func (s *Store) SetTravelTime(d time.Duration) error {
	return s.b.Set(map[string]string{KeyTravelTime: strconv.FormatInt(d.Milliseconds(), 10)})
}

// RFCodes returns the paired remote codes. Missing slots read as zero.
func (s *Store) RFCodes() (door.RFCodes, error) {
	var codes door.RFCodes
	for i, k := range rfKeys {
		v, ok, err := s.b.Get(k)
		if err != nil {
			return door.RFCodes{}, err
		}
		if !ok {
			continue
		}
		c, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return door.RFCodes{}, pkgerrors.Wrapf(err, "invalid %s %q", k, v)
		}
		codes[i] = uint32(c)
	}
	return codes, nil
}

// SetRFCodes replaces all four codes in one write.
func (s *Store) SetRFCodes(codes door.RFCodes) error {
	pairs := make(map[string]string, len(rfKeys))
	for i, k := range rfKeys {
		pairs[k] = strconv.FormatUint(uint64(codes[i]), 10)
	}
	return s.b.Set(pairs)
}

// ClickGate returns the saved click gate configuration, if any.
func (s *Store) ClickGate() (door.GateConfig, bool, error) {
	cfg := door.DefaultGateConfig()
	ok, err := s.getJSON(KeyClickGate, &cfg)
	if err != nil || !ok {
		return door.DefaultGateConfig(), false, err
	}
	return cfg, true, nil
}

func (s *Store) SetClickGate(cfg door.GateConfig) error {
	return s.setJSON(KeyClickGate, cfg)
}

// LastPosition returns the persisted position. A corrupt value reads as
// PositionStopped with ok=true so callers still get a usable value.
func (s *Store) LastPosition() (door.Position, bool, error) {
	v, ok, err := s.b.Get(KeyLastPosition)
	if err != nil || !ok {
		return door.PositionStopped, false, err
	}
	p, _ := door.ParsePosition(v)
	return p, true, nil
}

func (s *Store) SetLastPosition(p door.Position) error {
	return s.b.Set(map[string]string{KeyLastPosition: p.String()})
}

// Provisioning is the configuration blob written by the mobile app over BLE.
type Provisioning struct {
	WifiSSID     string `json:"wifi_ssid,omitempty"`
	WifiPassword string `json:"wifi_pass,omitempty"`
	MQTTBroker   string `json:"mqtt_broker,omitempty"`
	MQTTUsername string `json:"mqtt_username,omitempty"`
	MQTTPassword string `json:"mqtt_pass,omitempty"`
	DeviceToken  string `json:"mqtt_token_device,omitempty"`
}

func (s *Store) Provisioning() (Provisioning, bool, error) {
	var p Provisioning
	ok, err := s.getJSON(KeyProvisioning, &p)
	return p, ok, err
}

func (s *Store) SetProvisioning(p Provisioning) error {
	return s.setJSON(KeyProvisioning, p)
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	raw, ok, err := s.b.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, pkgerrors.Wrapf(err, "invalid %s", key)
	}
	return true, nil
}

func (s *Store) setJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode %s", key)
	}
	return s.b.Set(map[string]string{key: string(b)})
}
