package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/door"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []door.Command
		wantErr bool
	}{
		{"state open", `{"state":"OPEN"}`, []door.Command{door.CommandOpen}, false},
		{"state lowercase", `{"state":"close"}`, []door.Command{door.CommandClose}, false},
		{"state lock", `{"state":"LOCK"}`, []door.Command{door.CommandLock}, false},
		{"child lock", `{"child_lock":"UNLOCKED"}`, []door.Command{door.CommandUnlock}, false},
		{"calibration on", `{"calibration":"ON"}`, []door.Command{door.CommandLearnTravel}, false},
		{"calibration rf", `{"calibration":"RF"}`, []door.Command{door.CommandLearnRF}, false},
		{"ble off", `{"ble":"OFF"}`, []door.Command{door.CommandBleStop}, false},
		{"combined keeps order", `{"ble":"ON","state":"STOP"}`, []door.Command{door.CommandStop, door.CommandBleStart}, false},
		{"bare word", `STOP`, []door.Command{door.CommandStop}, false},
		{"quoted word", `"open"`, []door.Command{door.CommandOpen}, false},
		{"legacy alias", `RF_LEARN_MODE`, []door.Command{door.CommandLearnRF}, false},
		{"unknown value keeps the rest", `{"state":"DANCE","ble":"ON"}`, []door.Command{door.CommandBleStart}, true},
		{"unknown word", `DANCE`, nil, true},
		{"broken json", `{"state":`, nil, true},
		{"empty", `  `, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParsePayload([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(req.Commands, tt.want) {
				t.Fatalf("commands = %v, want %v", req.Commands, tt.want)
			}
		})
	}
}

func TestParsePayloadUnknownWraps(t *testing.T) {
	_, err := ParsePayload([]byte(`{"calibration":"MAYBE"}`))
	if !errors.Is(err, door.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestParsePayloadSettings(t *testing.T) {
	req, err := ParsePayload([]byte(`{"settings":{"open":3,"mode":1,"start":21,"end":5}}`))
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if req.Settings == nil || req.Empty() {
		t.Fatalf("settings missing")
	}
	cfg, changed, err := req.Settings.Apply(door.DefaultGateConfig())
	if err != nil || !changed {
		t.Fatalf("Apply = %v, %v", changed, err)
	}
	if cfg.OpenClicks != 3 || cfg.CloseClicks != 1 || cfg.TimeMode != 1 || cfg.StartHour != 21 || cfg.EndHour != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseProvisioning(t *testing.T) {
	blob := []byte(`{"wifi_ssid":"home","wifi_pass":"secret","mqtt_broker":"tcp://10.0.0.2:1883","mqtt_token_device":"abc"}`)
	if !IsProvisioning(blob) {
		t.Fatalf("expected provisioning blob")
	}
	p, err := ParseProvisioning(blob)
	if err != nil {
		t.Fatalf("ParseProvisioning failed: %v", err)
	}
	if p.WifiSSID != "home" || p.MQTTBroker != "tcp://10.0.0.2:1883" || p.DeviceToken != "abc" {
		t.Fatalf("unexpected provisioning %+v", p)
	}

	if IsProvisioning([]byte(`{"state":"OPEN"}`)) {
		t.Fatalf("a command is not a provisioning blob")
	}
	if _, err := ParseProvisioning([]byte(`{"state":"OPEN"}`)); err == nil {
		t.Fatalf("expected error for command payload")
	}
}

type fakeExecutor struct {
	ran     []door.Command
	gate    door.GateConfig
	failing error
}

func (f *fakeExecutor) Execute(cmd door.Command) (door.Result, error) {
	if f.failing != nil {
		return "", f.failing
	}
	f.ran = append(f.ran, cmd)
	return door.ResultIgnored, nil
}

func (f *fakeExecutor) UpdateClickGate(u clickgate.Update) (door.GateConfig, error) {
	cfg, _, err := u.Apply(f.gate)
	if err != nil {
		return f.gate, err
	}
	f.gate = cfg
	return cfg, nil
}

func TestDispatch(t *testing.T) {
	req, err := ParsePayload([]byte(`{"state":"OPEN","ble":"OFF","settings":{"close":2}}`))
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}

	e := &fakeExecutor{gate: door.DefaultGateConfig()}
	reply, err := Dispatch(e, req, "test")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !reflect.DeepEqual(e.ran, []door.Command{door.CommandOpen, door.CommandBleStop}) {
		t.Fatalf("ran %v", e.ran)
	}
	if len(reply.Results) != 2 || reply.Settings == nil || reply.Settings.CloseClicks != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}

	e = &fakeExecutor{failing: errors.New("stopped")}
	if _, err := Dispatch(e, Request{Commands: []door.Command{door.CommandStop}}, "test"); err == nil {
		t.Fatalf("expected executor error")
	}
}
