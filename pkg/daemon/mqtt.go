package daemon

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/config"
	"github.com/smartgate/doorctl/pkg/events"
	"github.com/smartgate/doorctl/pkg/mqtt"
	"github.com/smartgate/doorctl/pkg/settings"
)

// mqttRunner owns the current bridge and restarts it when its settings
// change.
type mqttRunner struct {
	parent context.Context
	conf   config.Config
	store  *settings.Store
	ctrl   mqtt.Controller
	hub    *events.EventHub

	// run serves one bridge until ctx is done. Nil means a real paho bridge.
	run func(ctx context.Context, cfg mqtt.Config) error

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	applied mqtt.Config
	enabled bool
	loaded  bool
}

// effective is the configured bridge with provisioned credentials applied.
func (m *mqttRunner) effective() (mqtt.Config, bool) {
	cfg, enabled := m.conf.MQTT()
	prov, _, err := m.store.Provisioning()
	if err != nil {
		logrus.WithError(err).Warn("failed to read provisioning, using configured broker")
	}
	return cfg.WithProvisioning(prov), enabled
}

// restart always replaces the running bridge.
func (m *mqttRunner) restart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, enabled := m.effective()
	m.startLocked(cfg, enabled)
}

// reload replaces the bridge only if its effective settings changed, so
// unrelated config edits keep the session up.
func (m *mqttRunner) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, enabled := m.effective()
	if m.loaded && enabled == m.enabled && cfg == m.applied {
		logrus.Debug("mqtt settings unchanged, bridge kept")
		return
	}
	m.startLocked(cfg, enabled)
}

func (m *mqttRunner) startLocked(cfg mqtt.Config, enabled bool) {
	m.stopLocked()
	m.applied, m.enabled, m.loaded = cfg, enabled, true

	if !enabled {
		logrus.Debug("mqtt bridge disabled")
		return
	}

	run := m.run
	if run == nil {
		b, err := mqtt.New(cfg, m.ctrl, m.hub)
		if err != nil {
			logrus.WithError(err).Warn("mqtt bridge not started")
			return
		}
		run = func(ctx context.Context, _ mqtt.Config) error { return b.Run(ctx) }
	}

	ctx, cancel := context.WithCancel(m.parent)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		if err := run(ctx, cfg); err != nil {
			logrus.WithError(err).Error("mqtt bridge exited")
		}
	}()
}

func (m *mqttRunner) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *mqttRunner) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
}
