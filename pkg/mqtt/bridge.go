// Package mqtt bridges the door controller to the cloud broker: commands
// arrive on <company>/<device>/<token>/set and every status change is
// published on <company>/<device>/<token>/status.
package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/events"
	"github.com/smartgate/doorctl/pkg/protocol"
	"github.com/smartgate/doorctl/pkg/settings"
)

const (
	QoS              = 1
	DefaultKeepAlive = 60 * time.Second

	onlinePayload  = `{"online":true}`
	offlinePayload = `{"online":false}`

	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// Config locates the broker and the device's topics.
type Config struct {
	Broker    string
	Username  string
	Password  string
	ClientID  string
	Company   string
	Device    string
	Token     string
	KeepAlive time.Duration
}

// WithProvisioning overrides the broker credentials with what the mobile
// app provisioned over BLE.
func (c Config) WithProvisioning(p settings.Provisioning) Config {
	if p.MQTTBroker != "" {
		c.Broker = p.MQTTBroker
	}
	if p.MQTTUsername != "" {
		c.Username = p.MQTTUsername
	}
	if p.MQTTPassword != "" {
		c.Password = p.MQTTPassword
	}
	if p.DeviceToken != "" {
		c.Token = p.DeviceToken
	}
	return c
}

func (c Config) Validate() error {
	if c.Broker == "" {
		return pkgerrors.New("mqtt broker is not set")
	}
	if c.Company == "" || c.Device == "" || c.Token == "" {
		return pkgerrors.Errorf("mqtt topic parts must be set, got company=%q device=%q token=%q", c.Company, c.Device, c.Token)
	}
	return nil
}

func (c Config) prefix() string {
	return fmt.Sprintf("%s/%s/%s", c.Company, c.Device, c.Token)
}

func (c Config) SetTopic() string          { return c.prefix() + "/set" }
func (c Config) StatusTopic() string       { return c.prefix() + "/status" }
func (c Config) AvailabilityTopic() string { return c.prefix() + "/availability" }

// Controller is what the bridge drives.
type Controller interface {
	protocol.Executor
	SyncStatus() error
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bridge owns one broker session.
type Bridge struct {
	cfg  Config
	ctrl Controller
	hub  *events.EventHub

	newClient func(*paho.ClientOptions) paho.Client
}

func New(cfg Config, ctrl Controller, hub *events.EventHub) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "doorctl-" + uuid.NewString()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Bridge{cfg: cfg, ctrl: ctrl, hub: hub, newClient: paho.NewClient}, nil
}

func (b *Bridge) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetKeepAlive(b.cfg.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(b.cfg.AvailabilityTopic(), offlinePayload, QoS, true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logrus.WithError(err).Warn("mqtt connection lost")
	})
	return opts
}

// Run connects and forwards status events until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	logrus.WithFields(b.LogrusFields()).Info("starting mqtt bridge")

	// Subscribe before connecting so nothing published on connect is missed.
	ch := b.hub.Subscribe()
	defer b.hub.Unsubscribe(ch)

	client := b.newClient(b.options())
	// With connect retry on, the token completes only once connected.
	client.Connect()

	for {
		select {
		case <-ctx.Done():
			if client.IsConnected() {
				tok := client.Publish(b.cfg.AvailabilityTopic(), QoS, true, offlinePayload)
				tok.WaitTimeout(publishTimeout)
			}
			client.Disconnect(disconnectQuiesce)
			logrus.Info("mqtt bridge stopped")
			return nil
		case evt, ok := <-ch:
			if !ok {
				client.Disconnect(disconnectQuiesce)
				return nil
			}
			if evt.Name != events.DoorStatus {
				continue
			}
			b.publishStatus(client, evt.Data)
		}
	}
}

func (b *Bridge) onConnect(c paho.Client) {
	logrus.WithField("broker", b.cfg.Broker).Info("mqtt connected")

	tok := c.Subscribe(b.cfg.SetTopic(), QoS, b.handleMessage)
	if tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
		logrus.WithError(tok.Error()).WithField("topic", b.cfg.SetTopic()).Error("mqtt subscribe failed")
	}
	c.Publish(b.cfg.AvailabilityTopic(), QoS, true, onlinePayload)

	if err := b.ctrl.SyncStatus(); err != nil {
		logrus.WithError(err).Warn("status sync after connect failed")
	}
}

func (b *Bridge) handleMessage(_ paho.Client, msg paho.Message) {
	entry := logrus.WithFields(logrus.Fields{
		"topic":   msg.Topic(),
		"payload": string(msg.Payload()),
	})
	entry.Debug("mqtt message")

	req, err := protocol.ParsePayload(msg.Payload())
	if err != nil {
		entry.WithError(err).Warn("mqtt payload rejected")
		if req.Empty() {
			return
		}
	}
	if _, err := protocol.Dispatch(b.ctrl, req, "mqtt"); err != nil {
		entry.WithError(err).Error("mqtt command failed")
	}
}

func (b *Bridge) publishStatus(p publisher, data []byte) {
	tok := p.Publish(b.cfg.StatusTopic(), QoS, false, data)
	if !tok.WaitTimeout(publishTimeout) {
		logrus.WithField("status", string(data)).Warn("mqtt status publish timed out")
		return
	}
	if err := tok.Error(); err != nil {
		logrus.WithError(err).WithField("status", string(data)).Warn("mqtt status publish failed")
		return
	}
	logrus.WithField("status", string(data)).Trace("mqtt status published")
}

func (b *Bridge) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"broker":   b.cfg.Broker,
		"clientID": b.cfg.ClientID,
		"username": b.cfg.Username,
		"set":      b.cfg.SetTopic(),
		"status":   b.cfg.StatusTopic(),
	}
}
