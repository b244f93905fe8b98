package client

import (
	"context"
	"encoding/json"
	"net"
	"strconv"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/smartgate/doorctl/pkg/ble"
	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/daemon"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/events"
	"github.com/smartgate/doorctl/pkg/protocol"
	"github.com/smartgate/doorctl/pkg/schedule"
)

func decode[T any](body string, what string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to decode %s", what)
	}
	return v, nil
}

// Command sends a command payload: a bare word such as OPEN or a JSON object.
func (c *Client) Command(payload string) (protocol.Reply, error) {
	ret, err := c.Post("/command", payload)
	if err != nil {
		return protocol.Reply{}, pkgerrors.Wrapf(err, "failed to send command")
	}
	return decode[protocol.Reply](ret, "command reply")
}

func (c *Client) RFCode(code uint32) (daemon.ResultResponse, error) {
	ret, err := c.Post("/rf", strconv.FormatUint(uint64(code), 10))
	if err != nil {
		return daemon.ResultResponse{}, pkgerrors.Wrapf(err, "failed to inject rf code")
	}
	return decode[daemon.ResultResponse](ret, "rf result")
}

func (c *Client) Button(evt door.ButtonEvent) (daemon.ResultResponse, error) {
	ret, err := c.Post("/button", string(evt))
	if err != nil {
		return daemon.ResultResponse{}, pkgerrors.Wrapf(err, "failed to inject button event")
	}
	return decode[daemon.ResultResponse](ret, "button result")
}

func (c *Client) Status() (daemon.StatusResponse, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return daemon.StatusResponse{}, pkgerrors.Wrapf(err, "failed to get status")
	}
	return decode[daemon.StatusResponse](ret, "status")
}

func (c *Client) ClickGate() (door.GateConfig, error) {
	ret, err := c.Get("/click-gate")
	if err != nil {
		return door.GateConfig{}, pkgerrors.Wrapf(err, "failed to get click gate")
	}
	return decode[door.GateConfig](ret, "click gate")
}

func (c *Client) SetClickGate(u clickgate.Update) (door.GateConfig, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return door.GateConfig{}, err
	}
	ret, err := c.Put("/click-gate", string(b))
	if err != nil {
		return door.GateConfig{}, pkgerrors.Wrapf(err, "failed to set click gate")
	}
	return decode[door.GateConfig](ret, "click gate")
}

// BleWrite submits a blob as if written to the BLE characteristic.
func (c *Client) BleWrite(blob string) (ble.Outcome, error) {
	ret, err := c.Post("/ble/write", blob)
	if err != nil {
		return ble.Outcome{}, pkgerrors.Wrapf(err, "failed to write ble blob")
	}
	return decode[ble.Outcome](ret, "ble outcome")
}

func (c *Client) Schedule() ([]schedule.JobStatus, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	return decode[[]schedule.JobStatus](ret, "schedule")
}

func (c *Client) SetSchedule(jobs []schedule.Job) ([]schedule.JobStatus, error) {
	b, err := json.Marshal(jobs)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/schedule", string(b))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	return decode[[]schedule.JobStatus](ret, "schedule")
}

func (c *Client) SkipSchedule(name string) ([]schedule.JobStatus, error) {
	ret, err := c.Post("/schedule/"+name+"/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip %s", name)
	}
	return decode[[]schedule.JobStatus](ret, "schedule")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return decode[string](ret, "version")
}

// Watch streams daemon events to fn until ctx is done or the daemon closes
// the stream.
func (c *Client) Watch(ctx context.Context, fn func(events.Event)) error {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialSocket(ctx, c.socketPath)
		},
	}
	conn, _, err := dialer.DialContext(ctx, "ws://unix/events", nil)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open event stream")
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return pkgerrors.Wrap(err, "event stream failed")
		}
		fn(ev)
	}
}
