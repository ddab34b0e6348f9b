package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
)

// Logger defines the logging interface used by the Normalizer.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink receives every persisted sensor data row, synchronously and in
// insertion order, after the ingestion transaction has committed. The
// rule engine implements this to evaluate strategies; implementations
// must contain their own failures.
type Sink interface {
	SensorDataCreated(ctx context.Context, dev *device.Device, sensor *device.Sensor, data SensorData)
}

// Mirror receives numeric readings for time-series mirroring. Calls must
// be non-blocking; a slow mirror must not stall ingestion.
type Mirror interface {
	WriteSensorReading(deviceID string, sensorKey string, value float64, timestamp time.Time)
	WriteDeviceStatus(deviceID string, online bool)
}

// Broadcaster receives ingestion events for fan-out to live subscribers.
type Broadcaster interface {
	SensorDataCreated(dev *device.Device, sensor *device.Sensor, data SensorData)
	DeviceStatusChanged(dev *device.Device, status device.Status)
}

// TxBeginner starts database transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Normalizer is the single choke point through which all telemetry
// becomes durable. Both the TCP sessions and the MQTT bridge hand raw
// payloads to it; it owns the per-device write lock, the one-transaction-
// per-payload rule, and the post-commit fan-out (mirror, broadcast,
// rule engine sink).
type Normalizer struct {
	db       TxBeginner
	devices  device.Repository
	registry *device.Registry
	repo     Repository

	sink        Sink
	mirror      Mirror
	broadcaster Broadcaster
	logger      Logger

	// locks serialises writes per device so concurrent TCP and MQTT
	// traffic for the same device cannot interleave status updates or
	// duplicate rule triggers. Entries are never removed; the map is
	// bounded by the registered device count.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewNormalizer creates a telemetry normalizer.
func NewNormalizer(db TxBeginner, devices device.Repository, registry *device.Registry, repo Repository) *Normalizer {
	return &Normalizer{
		db:       db,
		devices:  devices,
		registry: registry,
		repo:     repo,
		logger:   noopLogger{},
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetSink sets the post-commit sensor data sink (the rule engine).
func (n *Normalizer) SetSink(sink Sink) {
	n.sink = sink
}

// SetMirror sets the optional time-series mirror.
func (n *Normalizer) SetMirror(mirror Mirror) {
	n.mirror = mirror
}

// SetBroadcaster sets the optional live event broadcaster.
func (n *Normalizer) SetBroadcaster(b Broadcaster) {
	n.broadcaster = b
}

// SetLogger sets the logger.
func (n *Normalizer) SetLogger(logger Logger) {
	n.logger = logger
}

// Ingest normalises one raw telemetry payload for a device.
//
// For every sensor configured on the device whose value_key is present
// in the payload, it classifies the value by runtime type (number →
// float slot, bool → boolean slot, anything else → string slot) and
// persists one SensorData row. The device is unconditionally marked
// online with a refreshed last_seen in the same transaction, so a
// payload either lands completely or not at all.
//
// After commit, numeric readings are mirrored, events are broadcast,
// and the Sink is invoked synchronously once per row in insertion
// order. Rule evaluation therefore never observes a partially written
// payload.
//
// Returns the created rows in insertion order.
func (n *Normalizer) Ingest(ctx context.Context, dev *device.Device, payload map[string]any, ts time.Time) ([]SensorData, error) {
	unlock := n.lockDevice(dev.ID)
	defer unlock()

	sensors, err := n.registry.SensorsByDevice(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving sensors: %w", err)
	}

	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := n.devices.UpdateStatusTx(ctx, tx, dev.ID, device.StatusOnline, ts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	var created []SensorData
	var matched []device.Sensor
	for i := range sensors {
		sensor := sensors[i]
		raw, ok := payload[sensor.ValueKey]
		if !ok {
			continue
		}

		data := SensorData{
			ID:        newID(),
			SensorID:  sensor.ID,
			Timestamp: ts,
		}
		classifyValue(raw, &data)

		if err := n.repo.InsertTx(ctx, tx, &data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
		}
		created = append(created, data)
		matched = append(matched, sensor)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	committed = true

	n.registry.ApplyStatus(dev.ID, device.StatusOnline, ts)

	n.logger.Debug("telemetry ingested",
		"device", dev.DeviceID,
		"rows", len(created),
		"payload_keys", len(payload),
	)

	for i := range created {
		data := created[i]
		sensor := matched[i]

		if n.mirror != nil && data.ValueType == TypeFloat && data.ValueFloat != nil {
			n.mirror.WriteSensorReading(dev.DeviceID, sensor.ValueKey, *data.ValueFloat, data.Timestamp)
		}
		if n.broadcaster != nil {
			n.broadcaster.SensorDataCreated(dev, &sensor, data)
		}
		if n.sink != nil {
			n.sink.SensorDataCreated(ctx, dev, &sensor, data)
		}
	}

	return created, nil
}

// UpdateStatus records a device-reported status change. It shares the
// per-device lock with Ingest so status writes from one transport cannot
// interleave with payload writes from the other.
func (n *Normalizer) UpdateStatus(ctx context.Context, dev *device.Device, status string, ts time.Time) error {
	st := device.Status(status)
	if !device.ValidStatus(st) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	unlock := n.lockDevice(dev.ID)
	defer unlock()

	if err := n.registry.SetStatus(ctx, dev.ID, st, ts); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if n.mirror != nil {
		n.mirror.WriteDeviceStatus(dev.DeviceID, st == device.StatusOnline)
	}
	if n.broadcaster != nil {
		n.broadcaster.DeviceStatusChanged(dev, st)
	}

	n.logger.Debug("device status updated", "device", dev.DeviceID, "status", status)
	return nil
}

// MarkOffline is the best-effort teardown hook for closing connections.
// Errors are logged, not returned; the caller is shutting down anyway.
func (n *Normalizer) MarkOffline(ctx context.Context, dev *device.Device) {
	if err := n.UpdateStatus(ctx, dev, string(device.StatusOffline), time.Now().UTC()); err != nil {
		n.logger.Warn("marking device offline failed", "device", dev.DeviceID, "error", err)
	}
}

// lockDevice acquires the per-device write lock and returns the unlock.
func (n *Normalizer) lockDevice(id string) func() {
	n.locksMu.Lock()
	mu, ok := n.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		n.locks[id] = mu
	}
	n.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// classifyValue fills exactly one value slot based on the runtime type
// of a decoded JSON value. Numbers land in the float slot, booleans in
// the boolean slot, everything else is stringified.
func classifyValue(raw any, data *SensorData) {
	switch v := raw.(type) {
	case float64:
		data.ValueType = TypeFloat
		data.ValueFloat = &v
	case bool:
		data.ValueType = TypeBoolean
		data.ValueBool = &v
	case string:
		data.ValueType = TypeString
		data.ValueString = &v
	default:
		s := fmt.Sprintf("%v", v)
		data.ValueType = TypeString
		data.ValueString = &s
	}
}
