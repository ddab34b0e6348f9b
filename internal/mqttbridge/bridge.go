package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/mqtt"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the interface the bridge needs from the MQTT wrapper.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registry resolves public device IDs from inbound topics.
type Registry interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*device.Device, error)
}

// Ingestor is the slice of the telemetry normalizer the bridge needs.
type Ingestor interface {
	Ingest(ctx context.Context, dev *device.Device, payload map[string]any, ts time.Time) ([]telemetry.SensorData, error)
	UpdateStatus(ctx context.Context, dev *device.Device, status string, ts time.Time) error
}

// Bridge connects the MQTT transport to the telemetry normalizer.
//
// Inbound, it subscribes to the wildcard data and status topics and
// routes each message by the device ID embedded in its topic. Outbound,
// it publishes commands and configuration to per-device topics; the
// rule engine dispatches actuator commands through it.
//
// Messages for unregistered device IDs are logged and dropped; MQTT has
// no per-connection handshake, so topic-level identification is all the
// authentication this transport gets (broker ACLs do the rest).
type Bridge struct {
	client   MQTTClient
	topics   mqtt.Topics
	registry Registry
	ingest   Ingestor
	qos      byte
	logger   Logger
}

// NewBridge creates an MQTT bridge.
//
// Parameters:
//   - client: Connected MQTT client wrapper
//   - topics: Topic builder carrying the configured prefix
//   - registry: Device lookup for topic routing
//   - ingest: Telemetry normalizer slice
//   - qos: QoS level for subscriptions and outbound publishes
func NewBridge(client MQTTClient, topics mqtt.Topics, registry Registry, ingest Ingestor, qos byte) *Bridge {
	return &Bridge{
		client:   client,
		topics:   topics,
		registry: registry,
		ingest:   ingest,
		qos:      qos,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger used by the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes to the wildcard device data and status topics.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.client.Subscribe(b.topics.AllDeviceData(), b.qos, func(topic string, payload []byte) error {
		return b.handleMessage(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to device data: %w", err)
	}

	if err := b.client.Subscribe(b.topics.AllDeviceStatus(), b.qos, func(topic string, payload []byte) error {
		return b.handleMessage(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to device status: %w", err)
	}

	b.logger.Info("mqtt bridge started",
		"data_topic", b.topics.AllDeviceData(),
		"status_topic", b.topics.AllDeviceStatus())
	return nil
}

// Stop removes the bridge subscriptions.
func (b *Bridge) Stop() error {
	var errs []error
	if err := b.client.Unsubscribe(b.topics.AllDeviceData()); err != nil {
		errs = append(errs, err)
	}
	if err := b.client.Unsubscribe(b.topics.AllDeviceStatus()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// handleMessage routes one inbound message by its topic.
func (b *Bridge) handleMessage(ctx context.Context, topic string, payload []byte) error {
	deviceID, kind, err := b.topics.ParseDeviceTopic(topic)
	if err != nil {
		b.logger.Warn("unparseable device topic", "topic", topic, "error", err)
		return nil
	}

	dev, err := b.registry.GetByDeviceID(ctx, deviceID)
	if err != nil {
		b.logger.Warn("message for unknown device dropped", "device_id", deviceID, "topic", topic)
		return nil
	}

	switch kind {
	case mqtt.KindData:
		return b.handleData(ctx, dev, payload)
	case mqtt.KindStatus:
		return b.handleStatus(ctx, dev, payload)
	default:
		b.logger.Warn("unknown message kind", "topic", topic, "kind", kind)
		return nil
	}
}

func (b *Bridge) handleData(ctx context.Context, dev *device.Device, payload []byte) error {
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		b.logger.Error("invalid device data payload", "device_id", dev.DeviceID, "error", err)
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if _, err := b.ingest.Ingest(ctx, dev, values, time.Now()); err != nil {
		b.logger.Error("failed to store device data", "device_id", dev.DeviceID, "error", err)
		return err
	}
	return nil
}

func (b *Bridge) handleStatus(ctx context.Context, dev *device.Device, payload []byte) error {
	var msg struct {
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Error("invalid status payload", "device_id", dev.DeviceID, "error", err)
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if msg.Status == nil {
		b.logger.Warn("status message missing status field", "device_id", dev.DeviceID)
		return nil
	}

	if err := b.ingest.UpdateStatus(ctx, dev, *msg.Status, time.Now()); err != nil {
		if errors.Is(err, telemetry.ErrInvalidStatus) {
			b.logger.Warn("invalid device status dropped", "device_id", dev.DeviceID, "status", *msg.Status)
			return nil
		}
		b.logger.Error("failed to update device status", "device_id", dev.DeviceID, "error", err)
		return err
	}
	return nil
}

// PublishCommand sends a command payload to a device's command topic.
// Satisfies the rule engine's command dispatch contract.
func (b *Bridge) PublishCommand(_ context.Context, dev *device.Device, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	return b.PublishRawCommand(dev.DeviceID, body)
}

// PublishRawCommand sends a pre-encoded command to a device's command
// topic. Operator API commands pass through here unmodified, whether
// they arrived as JSON objects or bare strings.
func (b *Bridge) PublishRawCommand(deviceID string, command []byte) error {
	topic := b.topics.DeviceCommand(deviceID)
	if err := b.client.Publish(topic, command, b.qos, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}
	b.logger.Info("command published", "device_id", deviceID, "topic", topic)
	return nil
}

// PublishConfig sends configuration to a device's config topic.
func (b *Bridge) PublishConfig(deviceID string, config []byte) error {
	topic := b.topics.DeviceConfig(deviceID)
	if err := b.client.Publish(topic, config, b.qos, false); err != nil {
		return fmt.Errorf("publishing config: %w", err)
	}
	b.logger.Info("config published", "device_id", deviceID, "topic", topic)
	return nil
}
