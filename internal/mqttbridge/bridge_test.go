package mqttbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/mqtt"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

// fakeMQTT records subscriptions and publishes, and lets tests inject
// inbound messages.
type fakeMQTT struct {
	handlers  map[string]mqtt.MessageHandler
	published []publishedMessage
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, _ bool) error {
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	delete(f.handlers, topic)
	return nil
}

// deliver injects an inbound message through the wildcard handler that
// matches the topic's kind suffix.
func (f *fakeMQTT) deliver(t *testing.T, wildcard, topic string, payload string) error {
	t.Helper()
	handler, ok := f.handlers[wildcard]
	if !ok {
		t.Fatalf("no subscription for %q", wildcard)
	}
	return handler(topic, []byte(payload))
}

// fakeRegistry knows a single device.
type fakeRegistry struct {
	dev *device.Device
}

func (r *fakeRegistry) GetByDeviceID(_ context.Context, deviceID string) (*device.Device, error) {
	if r.dev != nil && deviceID == r.dev.DeviceID {
		return r.dev.DeepCopy(), nil
	}
	return nil, device.ErrDeviceNotFound
}

type ingestCall struct {
	deviceID string
	payload  map[string]any
}

type fakeIngest struct {
	ingests  []ingestCall
	statuses []string
}

func (f *fakeIngest) Ingest(_ context.Context, dev *device.Device, payload map[string]any, _ time.Time) ([]telemetry.SensorData, error) {
	f.ingests = append(f.ingests, ingestCall{deviceID: dev.DeviceID, payload: payload})
	return nil, nil
}

func (f *fakeIngest) UpdateStatus(_ context.Context, _ *device.Device, status string, _ time.Time) error {
	if !device.ValidStatus(device.Status(status)) {
		return telemetry.ErrInvalidStatus
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func setupBridge(t *testing.T) (*Bridge, *fakeMQTT, *fakeIngest, mqtt.Topics) {
	t.Helper()

	client := newFakeMQTT()
	topics := mqtt.Topics{Prefix: "novacloud/"}
	registry := &fakeRegistry{dev: &device.Device{
		ID:       "row-1",
		DeviceID: "DEV-000001",
		Name:     "Node 1",
		Status:   device.StatusOffline,
	}}
	ingest := &fakeIngest{}

	b := NewBridge(client, topics, registry, ingest, 1)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b, client, ingest, topics
}

func TestBridge_SubscribesWildcards(t *testing.T) {
	_, client, _, topics := setupBridge(t)

	for _, topic := range []string{topics.AllDeviceData(), topics.AllDeviceStatus()} {
		if _, ok := client.handlers[topic]; !ok {
			t.Errorf("missing subscription for %q", topic)
		}
	}
}

func TestBridge_DataRouted(t *testing.T) {
	_, client, ingest, topics := setupBridge(t)

	err := client.deliver(t, topics.AllDeviceData(),
		"novacloud/devices/DEV-000001/data", `{"temperature":21.5,"mode":"eco"}`)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	if len(ingest.ingests) != 1 {
		t.Fatalf("ingest calls = %d, want 1", len(ingest.ingests))
	}
	call := ingest.ingests[0]
	if call.deviceID != "DEV-000001" {
		t.Errorf("device = %q, want DEV-000001", call.deviceID)
	}
	if call.payload["temperature"] != 21.5 || call.payload["mode"] != "eco" {
		t.Errorf("payload = %v, want values preserved", call.payload)
	}
}

func TestBridge_UnknownDeviceDropped(t *testing.T) {
	_, client, ingest, topics := setupBridge(t)

	err := client.deliver(t, topics.AllDeviceData(),
		"novacloud/devices/DEV-UNKNOWN/data", `{"temperature":21.5}`)
	if err != nil {
		t.Fatalf("deliver() error = %v, unknown devices must be dropped silently", err)
	}
	if len(ingest.ingests) != 0 {
		t.Errorf("ingest calls = %d, want 0", len(ingest.ingests))
	}
}

func TestBridge_InvalidJSONData(t *testing.T) {
	_, client, ingest, topics := setupBridge(t)

	err := client.deliver(t, topics.AllDeviceData(),
		"novacloud/devices/DEV-000001/data", `{not json`)
	if err == nil {
		t.Error("deliver() error = nil, want ErrInvalidPayload")
	}
	if len(ingest.ingests) != 0 {
		t.Errorf("ingest calls = %d, want 0", len(ingest.ingests))
	}
}

func TestBridge_StatusRouted(t *testing.T) {
	_, client, ingest, topics := setupBridge(t)

	err := client.deliver(t, topics.AllDeviceStatus(),
		"novacloud/devices/DEV-000001/status", `{"status":"online"}`)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if len(ingest.statuses) != 1 || ingest.statuses[0] != "online" {
		t.Errorf("statuses = %v, want [online]", ingest.statuses)
	}
}

func TestBridge_StatusMissingFieldDropped(t *testing.T) {
	_, client, ingest, topics := setupBridge(t)

	err := client.deliver(t, topics.AllDeviceStatus(),
		"novacloud/devices/DEV-000001/status", `{"state":"online"}`)
	if err != nil {
		t.Fatalf("deliver() error = %v, missing field must be dropped silently", err)
	}
	if len(ingest.statuses) != 0 {
		t.Errorf("statuses = %v, want none", ingest.statuses)
	}
}

func TestBridge_InvalidStatusDropped(t *testing.T) {
	_, client, ingest, topics := setupBridge(t)

	err := client.deliver(t, topics.AllDeviceStatus(),
		"novacloud/devices/DEV-000001/status", `{"status":"sleeping"}`)
	if err != nil {
		t.Fatalf("deliver() error = %v, invalid status must not be retried", err)
	}
	if len(ingest.statuses) != 0 {
		t.Errorf("statuses = %v, want none", ingest.statuses)
	}
}

func TestBridge_PublishCommand(t *testing.T) {
	b, client, _, _ := setupBridge(t)

	dev := &device.Device{DeviceID: "DEV-000001"}
	err := b.PublishCommand(context.Background(), dev, map[string]any{
		"fan":     "ON",
		"command": "control_actuator",
	})
	if err != nil {
		t.Fatalf("PublishCommand() error = %v", err)
	}

	if len(client.published) != 1 {
		t.Fatalf("published = %d, want 1", len(client.published))
	}
	msg := client.published[0]
	if msg.topic != "novacloud/devices/DEV-000001/command" {
		t.Errorf("topic = %q, want the device command topic", msg.topic)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("decoding published payload: %v", err)
	}
	if payload["fan"] != "ON" || payload["command"] != "control_actuator" {
		t.Errorf("payload = %v, want command fields preserved", payload)
	}
}

func TestBridge_PublishRawCommandPassthrough(t *testing.T) {
	b, client, _, _ := setupBridge(t)

	if err := b.PublishRawCommand("DEV-000001", []byte("REBOOT")); err != nil {
		t.Fatalf("PublishRawCommand() error = %v", err)
	}
	if got := string(client.published[0].payload); got != "REBOOT" {
		t.Errorf("payload = %q, want raw string passthrough", got)
	}
}

func TestBridge_PublishConfig(t *testing.T) {
	b, client, _, _ := setupBridge(t)

	if err := b.PublishConfig("DEV-000001", []byte(`{"interval":60}`)); err != nil {
		t.Fatalf("PublishConfig() error = %v", err)
	}
	if got := client.published[0].topic; got != "novacloud/devices/DEV-000001/config" {
		t.Errorf("topic = %q, want the device config topic", got)
	}
}

func TestBridge_StopUnsubscribes(t *testing.T) {
	b, client, _, _ := setupBridge(t)

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(client.handlers) != 0 {
		t.Errorf("remaining subscriptions = %d, want 0", len(client.handlers))
	}
}
