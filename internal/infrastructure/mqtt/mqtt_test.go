package mqtt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ecosync/core/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "system status", got: topics.SystemStatus(), want: "ecosync/system/status"},
		{name: "link", got: topics.Link(), want: "ecosync/system/link"},
		{name: "state", got: topics.State("mixer.1", "mixer_temp"), want: "ecosync/state/mixer.1/mixer_temp"},
		{name: "device state", got: topics.DeviceState("controller"), want: "ecosync/state/controller/device_state"},
		{name: "parameter", got: topics.Parameter("controller", "heating_target_temp"), want: "ecosync/param/controller/heating_target_temp"},
		{name: "event", got: topics.Event("alert"), want: "ecosync/event/alert"},
		{name: "command parameter", got: topics.CommandParameter("controller", "work"), want: "ecosync/command/param/controller/work"},
		{name: "command discovery", got: topics.CommandDiscovery(), want: "ecosync/command/discovery"},
		{name: "command meter", got: topics.CommandMeter(), want: "ecosync/command/meter"},
		{name: "all command parameters", got: topics.AllCommandParameters(), want: "ecosync/command/param/+/+"},
		{name: "all states", got: topics.AllStates(), want: "ecosync/state/+/+"},
		{name: "all topics", got: topics.AllTopics(), want: "ecosync/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			TLS:      true,
			ClientID: "ecosync-test",
		},
		Auth: config.MQTTAuthConfig{Username: "eco", Password: "sync"},
		QoS:  1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("broker count = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("broker URL = %q, want ssl scheme for TLS", got)
	}
	if opts.ClientID != "ecosync-test" {
		t.Errorf("client ID = %q", opts.ClientID)
	}
	if opts.Username != "eco" {
		t.Errorf("username = %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect disabled")
	}
	if opts.TLSConfig == nil {
		t.Error("TLS requested but not configured")
	}
}

func TestBuildClientOptions_PlainTCP(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "x"},
	}

	opts := buildClientOptions(cfg)
	if got := opts.Servers[0].String(); got != "tcp://localhost:1883" {
		t.Errorf("broker URL = %q, want tcp scheme without TLS", got)
	}
}

func TestStatusPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"online":  buildOnlinePayload("ecosync-core"),
		"offline": buildOfflinePayload("ecosync-core"),
	} {
		var decoded map[string]string
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Fatalf("%s payload is not valid JSON: %v", name, err)
		}
		if decoded["status"] != name {
			t.Errorf("%s payload status = %q", name, decoded["status"])
		}
		if decoded["client_id"] != "ecosync-core" {
			t.Errorf("%s payload client_id = %q", name, decoded["client_id"])
		}
	}

	if !strings.Contains(buildOfflinePayload("x"), "graceful_shutdown") {
		t.Error("graceful offline payload missing reason")
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 0, false); err != ErrInvalidTopic {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("ecosync/state/x/y", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Subscribe("", 0, func(string, []byte) error { return nil }); err != ErrInvalidTopic {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("ecosync/#", 3, func(string, []byte) error { return nil }); err != ErrInvalidQoS {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("ecosync/#", 0, nil); err == nil {
		t.Error("nil handler accepted")
	}
}
