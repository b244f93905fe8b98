package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/button"
	"github.com/smartgate/doorctl/pkg/mqtt"
	"github.com/smartgate/doorctl/pkg/relay"
	"github.com/smartgate/doorctl/pkg/schedule"
	"github.com/smartgate/doorctl/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		DatabasePath:       ptr.To("/var/lib/doorctl/doorctl.db"),
		PulseDurationMs:    ptr.To(int(relay.DefaultPulseDuration / time.Millisecond)),
		AllowNonRootAccess: ptr.To(false),
		MockHardware:       ptr.To(false),
		RFDevice:           ptr.To(""),
		GPIO: &GPIOConfig{
			Chip:           "gpiochip0",
			Open:           17,
			Close:          27,
			Stop:           22,
			Buzzer:         -1,
			ButtonOpen:     5,
			ButtonClose:    6,
			ButtonStop:     13,
			ButtonLock:     -1,
			ButtonRFSetup:  19,
			InputActiveLow: true,
		},
		MQTT: &MQTTConfig{
			Company:          "smartgate",
			KeepAliveSeconds: int(mqtt.DefaultKeepAlive / time.Second),
		},
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// GPIOConfig maps the relay board and wall buttons to line offsets on one
// chip. Negative offsets mark unwired lines.
type GPIOConfig struct {
	Chip           string `json:"chip"`
	Open           int    `json:"open"`
	Close          int    `json:"close"`
	Stop           int    `json:"stop"`
	Buzzer         int    `json:"buzzer"`
	ActiveLow      bool   `json:"activeLow,omitempty"`
	ButtonOpen     int    `json:"buttonOpen"`
	ButtonClose    int    `json:"buttonClose"`
	ButtonStop     int    `json:"buttonStop"`
	ButtonLock     int    `json:"buttonLock"`
	ButtonRFSetup  int    `json:"buttonRfSetup"`
	InputActiveLow bool   `json:"inputActiveLow"`
}

// MQTTConfig is the broker section. Credentials provisioned over BLE take
// precedence over the broker, username, password and token set here.
type MQTTConfig struct {
	Enabled          bool   `json:"enabled"`
	Broker           string `json:"broker,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	ClientID         string `json:"clientID,omitempty"`
	Company          string `json:"company,omitempty"`
	Device           string `json:"device,omitempty"`
	Token            string `json:"token,omitempty"`
	KeepAliveSeconds int    `json:"keepAliveSeconds,omitempty"`
}

type RawFileConfig struct {
	DatabasePath       *string        `json:"databasePath,omitempty"`
	PulseDurationMs    *int           `json:"pulseDurationMs,omitempty"`
	AllowNonRootAccess *bool          `json:"allowNonRootAccess,omitempty"`
	MockHardware       *bool          `json:"mockHardware,omitempty"`
	RFDevice           *string        `json:"rfDevice,omitempty"`
	GPIO               *GPIOConfig    `json:"gpio,omitempty"`
	MQTT               *MQTTConfig    `json:"mqtt,omitempty"`
	Schedules          []schedule.Job `json:"schedules,omitempty"`
}

// NewRawFileConfigFromConfig resolves every default, for display.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	f, ok := c.(*File)
	if !ok {
		return nil, pkgerrors.Errorf("unsupported config type %T", c)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	gpio := *f.gpio()
	mq := *f.mqtt()
	mq.Password = ""

	return &RawFileConfig{
		DatabasePath:       ptr.To(f.databasePath()),
		PulseDurationMs:    ptr.To(int(f.pulseDuration() / time.Millisecond)),
		AllowNonRootAccess: ptr.To(pick(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)),
		MockHardware:       ptr.To(pick(f.c.MockHardware, defaultFileConfig.MockHardware)),
		RFDevice:           ptr.To(pick(f.c.RFDevice, defaultFileConfig.RFDevice)),
		GPIO:               &gpio,
		MQTT:               &mq,
		Schedules:          f.c.Schedules,
	}, nil
}

func pick[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) read() {
	if f.c == nil {
		panic("config is nil")
	}
	f.mu.RLock()
}

func (f *File) databasePath() string {
	return pick(f.c.DatabasePath, defaultFileConfig.DatabasePath)
}

func (f *File) DatabasePath() string {
	f.read()
	defer f.mu.RUnlock()
	return f.databasePath()
}

func (f *File) pulseDuration() time.Duration {
	ms := pick(f.c.PulseDurationMs, defaultFileConfig.PulseDurationMs)
	if ms <= 0 {
		ms = *defaultFileConfig.PulseDurationMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (f *File) PulseDuration() time.Duration {
	f.read()
	defer f.mu.RUnlock()
	return f.pulseDuration()
}

func (f *File) AllowNonRootAccess() bool {
	f.read()
	defer f.mu.RUnlock()
	return pick(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) MockHardware() bool {
	f.read()
	defer f.mu.RUnlock()
	return pick(f.c.MockHardware, defaultFileConfig.MockHardware)
}

func (f *File) RFDevice() string {
	f.read()
	defer f.mu.RUnlock()
	return pick(f.c.RFDevice, defaultFileConfig.RFDevice)
}

func (f *File) gpio() *GPIOConfig {
	if f.c.GPIO != nil {
		return f.c.GPIO
	}
	return defaultFileConfig.GPIO
}

func (f *File) Relays() relay.GPIOConfig {
	f.read()
	defer f.mu.RUnlock()
	g := f.gpio()
	return relay.GPIOConfig{
		Chip:      g.Chip,
		Open:      g.Open,
		Close:     g.Close,
		Stop:      g.Stop,
		Buzzer:    g.Buzzer,
		ActiveLow: g.ActiveLow,
	}
}

func (f *File) Buttons() button.GPIOConfig {
	f.read()
	defer f.mu.RUnlock()
	g := f.gpio()
	return button.GPIOConfig{
		Chip:      g.Chip,
		Open:      g.ButtonOpen,
		Close:     g.ButtonClose,
		Stop:      g.ButtonStop,
		Lock:      g.ButtonLock,
		RFSetup:   g.ButtonRFSetup,
		ActiveLow: g.InputActiveLow,
	}
}

func (f *File) mqtt() *MQTTConfig {
	if f.c.MQTT != nil {
		return f.c.MQTT
	}
	return defaultFileConfig.MQTT
}

func (f *File) MQTT() (mqtt.Config, bool) {
	f.read()
	defer f.mu.RUnlock()
	m := f.mqtt()

	company := m.Company
	if company == "" {
		company = defaultFileConfig.MQTT.Company
	}
	keepAlive := time.Duration(m.KeepAliveSeconds) * time.Second
	if keepAlive <= 0 {
		keepAlive = mqtt.DefaultKeepAlive
	}
	return mqtt.Config{
		Broker:    m.Broker,
		Username:  m.Username,
		Password:  m.Password,
		ClientID:  m.ClientID,
		Company:   company,
		Device:    m.Device,
		Token:     m.Token,
		KeepAlive: keepAlive,
	}, m.Enabled
}

func (f *File) Schedules() []schedule.Job {
	f.read()
	defer f.mu.RUnlock()
	return append([]schedule.Job(nil), f.c.Schedules...)
}

func (f *File) SetAllowNonRootAccess(a bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &a
}

func (f *File) SetSchedules(jobs []schedule.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Schedules = append([]schedule.Job(nil), jobs...)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// json.Decoder cannot tell an empty file from a broken one.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.filepath)
	}

	// Write then rename so the watcher never sees a half-written file.
	tmp := f.filepath + ".tmp"
	fp, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", tmp)
	}

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f.c); err != nil {
		_ = fp.Close()
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", tmp)
	}
	if err := fp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close file %s", tmp)
	}

	return pkgerrors.Wrapf(os.Rename(tmp, f.filepath), "failed to replace %s", f.filepath)
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	mq, enabled := f.MQTT()
	return logrus.Fields{
		"databasePath":       f.DatabasePath(),
		"pulseDuration":      f.PulseDuration(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"mockHardware":       f.MockHardware(),
		"rfDevice":           f.RFDevice(),
		"gpioChip":           f.Relays().Chip,
		"mqttEnabled":        enabled,
		"mqttBroker":         mq.Broker,
		"schedules":          len(f.Schedules()),
	}
}
