package ble

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/events"
	"github.com/smartgate/doorctl/pkg/protocol"
	"github.com/smartgate/doorctl/pkg/settings"
)

// ProvisioningStore persists the provisioning blob.
type ProvisioningStore interface {
	Provisioning() (settings.Provisioning, bool, error)
	SetProvisioning(settings.Provisioning) error
}

// Outcome describes what a write did.
type Outcome struct {
	Provisioned bool           `json:"provisioned"`
	MQTTChanged bool           `json:"mqttChanged"`
	Reply       protocol.Reply `json:"reply"`
}

// Provisioner handles writes to the BLE characteristic: a config blob is
// merged into the stored provisioning, anything else is a command payload.
type Provisioner struct {
	store ProvisioningStore
	exec  protocol.Executor
	hub   *events.EventHub
}

func NewProvisioner(store ProvisioningStore, exec protocol.Executor, hub *events.EventHub) *Provisioner {
	return &Provisioner{store: store, exec: exec, hub: hub}
}

func (p *Provisioner) Handle(blob []byte) (Outcome, error) {
	if !protocol.IsProvisioning(blob) {
		req, err := protocol.ParsePayload(blob)
		if err != nil && req.Empty() {
			return Outcome{}, err
		}
		if err != nil {
			logrus.WithError(err).Warn("ble write carried unknown values")
		}
		reply, err := protocol.Dispatch(p.exec, req, "ble")
		return Outcome{Reply: reply}, err
	}

	incoming, err := protocol.ParseProvisioning(blob)
	if err != nil {
		return Outcome{}, err
	}
	current, _, err := p.store.Provisioning()
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(err, "failed to read provisioning")
	}

	merged := merge(current, incoming)
	if err := p.store.SetProvisioning(merged); err != nil {
		return Outcome{}, pkgerrors.Wrap(err, "failed to store provisioning")
	}

	out := Outcome{
		Provisioned: true,
		MQTTChanged: mqttChanged(current, merged),
	}
	logrus.WithFields(logrus.Fields{
		"ssid":        merged.WifiSSID,
		"broker":      merged.MQTTBroker,
		"mqttChanged": out.MQTTChanged,
	}).Info("provisioning stored")
	p.hub.Publish(events.Provisioned, out)
	return out, nil
}

func merge(cur, in settings.Provisioning) settings.Provisioning {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&cur.WifiSSID, in.WifiSSID)
	pick(&cur.WifiPassword, in.WifiPassword)
	pick(&cur.MQTTBroker, in.MQTTBroker)
	pick(&cur.MQTTUsername, in.MQTTUsername)
	pick(&cur.MQTTPassword, in.MQTTPassword)
	pick(&cur.DeviceToken, in.DeviceToken)
	return cur
}

func mqttChanged(a, b settings.Provisioning) bool {
	return a.MQTTBroker != b.MQTTBroker ||
		a.MQTTUsername != b.MQTTUsername ||
		a.MQTTPassword != b.MQTTPassword ||
		a.DeviceToken != b.DeviceToken
}
