package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/button"
	"github.com/smartgate/doorctl/pkg/mqtt"
	"github.com/smartgate/doorctl/pkg/relay"
	"github.com/smartgate/doorctl/pkg/schedule"
)

// Config is the daemon configuration.
type Config interface {
	DatabasePath() string
	PulseDuration() time.Duration
	AllowNonRootAccess() bool
	MockHardware() bool
	RFDevice() string
	Relays() relay.GPIOConfig
	Buttons() button.GPIOConfig
	// MQTT returns the bridge settings and whether the bridge is enabled.
	MQTT() (mqtt.Config, bool)
	Schedules() []schedule.Job

	SetAllowNonRootAccess(bool)
	SetSchedules([]schedule.Job)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
	LogrusFields() logrus.Fields
}
