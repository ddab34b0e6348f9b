package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
)

// setupTestDB creates an in-memory SQLite database with the registry and
// telemetry tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE projects (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			owner_email TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id),
			device_id TEXT NOT NULL UNIQUE,
			device_identifier TEXT NOT NULL UNIQUE,
			device_key TEXT NOT NULL,
			name TEXT NOT NULL,
			device_type TEXT NOT NULL DEFAULT '',
			protocol_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'unregistered',
			last_seen TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE sensors (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(id),
			name TEXT NOT NULL,
			sensor_type TEXT NOT NULL DEFAULT '',
			unit TEXT,
			value_key TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(device_id, value_key)
		) STRICT;
		CREATE TABLE actuators (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(id),
			name TEXT NOT NULL,
			actuator_type TEXT NOT NULL DEFAULT '',
			command_key TEXT NOT NULL,
			current_state TEXT,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE sensor_data (
			id TEXT PRIMARY KEY,
			sensor_id TEXT NOT NULL REFERENCES sensors(id),
			timestamp TEXT NOT NULL,
			value_type TEXT NOT NULL,
			value_float REAL,
			value_string TEXT,
			value_boolean INTEGER
		) STRICT;
		CREATE INDEX idx_sensor_data_sensor_ts ON sensor_data(sensor_id, timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type fixture struct {
	db         *sql.DB
	deviceRepo *device.SQLiteRepository
	registry   *device.Registry
	repo       *SQLiteRepository
	normalizer *Normalizer
	device     *device.Device
	sensors    map[string]device.Sensor // keyed by value_key
}

// setupFixture builds a normalizer over an in-memory database with one
// device carrying temperature, humidity, door_open, and mode sensors.
func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	deviceRepo := device.NewSQLiteRepository(db)
	ctx := context.Background()

	p := &device.Project{ID: device.GenerateID(), ProjectID: "PRJ-000001", Name: "Greenhouse", OwnerEmail: "owner@example.com"}
	if err := deviceRepo.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	d := &device.Device{
		ID:               device.GenerateID(),
		ProjectID:        p.ID,
		DeviceID:         "DEV-000001",
		DeviceIdentifier: "serial-1",
		DeviceKey:        "key-1",
		Name:             "Node 1",
		ProtocolType:     device.ProtocolTCP,
		Status:           device.StatusOffline,
	}
	if err := deviceRepo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sensors := make(map[string]device.Sensor)
	for _, s := range []device.Sensor{
		{ID: device.GenerateID(), DeviceID: d.ID, Name: "Temperature", ValueKey: "temperature"},
		{ID: device.GenerateID(), DeviceID: d.ID, Name: "Humidity", ValueKey: "humidity"},
		{ID: device.GenerateID(), DeviceID: d.ID, Name: "Door", ValueKey: "door_open"},
		{ID: device.GenerateID(), DeviceID: d.ID, Name: "Mode", ValueKey: "mode"},
	} {
		s := s
		if err := deviceRepo.CreateSensor(ctx, &s); err != nil {
			t.Fatalf("CreateSensor() error = %v", err)
		}
		sensors[s.ValueKey] = s
	}

	registry := device.NewRegistry(deviceRepo)
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	repo := NewSQLiteRepository(db)
	n := NewNormalizer(db, deviceRepo, registry, repo)

	return &fixture{
		db:         db,
		deviceRepo: deviceRepo,
		registry:   registry,
		repo:       repo,
		normalizer: n,
		device:     d,
		sensors:    sensors,
	}
}

// recordingSink captures sink invocations in order.
type recordingSink struct {
	rows    []SensorData
	sensors []string
}

func (s *recordingSink) SensorDataCreated(_ context.Context, _ *device.Device, sensor *device.Sensor, data SensorData) {
	s.rows = append(s.rows, data)
	s.sensors = append(s.sensors, sensor.ValueKey)
}

// recordingMirror captures mirrored readings.
type recordingMirror struct {
	readings []string
	statuses []bool
}

func (m *recordingMirror) WriteSensorReading(_ string, sensorKey string, _ float64, _ time.Time) {
	m.readings = append(m.readings, sensorKey)
}

func (m *recordingMirror) WriteDeviceStatus(_ string, online bool) {
	m.statuses = append(m.statuses, online)
}

func TestNormalizer_Ingest_FloatSlot(t *testing.T) {
	f := setupFixture(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	created, err := f.normalizer.Ingest(context.Background(), f.device, map[string]any{"temperature": 21.5}, ts)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("len(created) = %d, want 1", len(created))
	}

	row := created[0]
	if row.SensorID != f.sensors["temperature"].ID {
		t.Errorf("SensorID = %q, want temperature sensor", row.SensorID)
	}
	if row.ValueType != TypeFloat {
		t.Errorf("ValueType = %q, want %q", row.ValueType, TypeFloat)
	}
	if row.ValueFloat == nil || *row.ValueFloat != 21.5 {
		t.Errorf("ValueFloat = %v, want 21.5", row.ValueFloat)
	}
	if row.ValueString != nil || row.ValueBool != nil {
		t.Error("exactly one value slot must be set")
	}

	// Row is durable.
	got, err := f.repo.GetByID(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ValueFloat == nil || *got.ValueFloat != 21.5 {
		t.Errorf("persisted ValueFloat = %v, want 21.5", got.ValueFloat)
	}
}

func TestNormalizer_Ingest_TypedSlots(t *testing.T) {
	f := setupFixture(t)
	ts := time.Now().UTC()

	payload := map[string]any{
		"temperature": 19.0,
		"door_open":   true,
		"mode":        "eco",
	}
	created, err := f.normalizer.Ingest(context.Background(), f.device, payload, ts)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("len(created) = %d, want 3", len(created))
	}

	byType := make(map[ValueType]SensorData)
	for _, row := range created {
		byType[row.ValueType] = row
	}
	if row, ok := byType[TypeFloat]; !ok || row.ValueFloat == nil || *row.ValueFloat != 19.0 {
		t.Errorf("float row = %+v", byType[TypeFloat])
	}
	if row, ok := byType[TypeBoolean]; !ok || row.ValueBool == nil || !*row.ValueBool {
		t.Errorf("boolean row = %+v", byType[TypeBoolean])
	}
	if row, ok := byType[TypeString]; !ok || row.ValueString == nil || *row.ValueString != "eco" {
		t.Errorf("string row = %+v", byType[TypeString])
	}
}

func TestNormalizer_Ingest_UnknownKeysIgnored(t *testing.T) {
	f := setupFixture(t)

	created, err := f.normalizer.Ingest(context.Background(), f.device,
		map[string]any{"pressure": 1013.25, "device_key": "noise"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("len(created) = %d, want 0 for unmatched keys", len(created))
	}
}

func TestNormalizer_Ingest_MarksOnline(t *testing.T) {
	f := setupFixture(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Even an all-unmatched payload refreshes status and last_seen.
	if _, err := f.normalizer.Ingest(context.Background(), f.device, map[string]any{"pressure": 1.0}, ts); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	got, err := f.deviceRepo.GetByID(context.Background(), f.device.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != device.StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(ts) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, ts)
	}

	// Cache was updated too.
	cached, err := f.registry.GetByID(context.Background(), f.device.ID)
	if err != nil {
		t.Fatalf("registry GetByID() error = %v", err)
	}
	if cached.Status != device.StatusOnline {
		t.Errorf("cached Status = %q, want online", cached.Status)
	}
}

func TestNormalizer_Ingest_SinkOrderAndMirror(t *testing.T) {
	f := setupFixture(t)
	sink := &recordingSink{}
	mirror := &recordingMirror{}
	f.normalizer.SetSink(sink)
	f.normalizer.SetMirror(mirror)

	payload := map[string]any{"temperature": 22.0, "humidity": 48.0, "mode": "auto"}
	created, err := f.normalizer.Ingest(context.Background(), f.device, payload, time.Now().UTC())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(sink.rows) != len(created) {
		t.Fatalf("sink invocations = %d, want %d", len(sink.rows), len(created))
	}
	for i := range created {
		if sink.rows[i].ID != created[i].ID {
			t.Errorf("sink order mismatch at %d: %q != %q", i, sink.rows[i].ID, created[i].ID)
		}
	}

	// Only the two float readings are mirrored.
	if len(mirror.readings) != 2 {
		t.Errorf("mirrored readings = %v, want the two numeric sensors", mirror.readings)
	}
}

// failingRepo fails every insert to force a rollback.
type failingRepo struct {
	SQLiteRepository
}

func (r *failingRepo) InsertTx(context.Context, *sql.Tx, *SensorData) error {
	return errors.New("disk full")
}

func TestNormalizer_Ingest_RollsBackOnFailure(t *testing.T) {
	f := setupFixture(t)
	n := NewNormalizer(f.db, f.deviceRepo, f.registry, &failingRepo{})
	sink := &recordingSink{}
	n.SetSink(sink)

	_, err := n.Ingest(context.Background(), f.device, map[string]any{"temperature": 21.5}, time.Now().UTC())
	if !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("Ingest() error = %v, want ErrStoreFailed", err)
	}

	// The status update in the same transaction must have rolled back.
	got, errGet := f.deviceRepo.GetByID(context.Background(), f.device.ID)
	if errGet != nil {
		t.Fatalf("GetByID() error = %v", errGet)
	}
	if got.Status != device.StatusOffline {
		t.Errorf("Status after rollback = %q, want offline", got.Status)
	}

	if len(sink.rows) != 0 {
		t.Errorf("sink invoked %d times after failed ingest, want 0", len(sink.rows))
	}
}

func TestNormalizer_UpdateStatus(t *testing.T) {
	f := setupFixture(t)
	mirror := &recordingMirror{}
	f.normalizer.SetMirror(mirror)

	ts := time.Now().UTC().Truncate(time.Second)
	if err := f.normalizer.UpdateStatus(context.Background(), f.device, "online", ts); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := f.deviceRepo.GetByID(context.Background(), f.device.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != device.StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
	if len(mirror.statuses) != 1 || !mirror.statuses[0] {
		t.Errorf("mirrored statuses = %v, want [true]", mirror.statuses)
	}
}

func TestNormalizer_UpdateStatus_Invalid(t *testing.T) {
	f := setupFixture(t)

	err := f.normalizer.UpdateStatus(context.Background(), f.device, "rebooting", time.Now().UTC())
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("UpdateStatus() error = %v, want ErrInvalidStatus", err)
	}
}

func TestRepository_ListBySensorSince(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sensorID := f.sensors["temperature"].ID

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		v := float64(20 + i)
		tx, err := f.db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		data := &SensorData{
			SensorID:   sensorID,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			ValueType:  TypeFloat,
			ValueFloat: &v,
		}
		if err := f.repo.InsertTx(ctx, tx, data); err != nil {
			t.Fatalf("InsertTx() error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	got, err := f.repo.ListBySensorSince(ctx, sensorID, base.Add(1*time.Hour), base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("ListBySensorSince() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3 (half-open interval)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Error("results not ordered by timestamp ascending")
		}
	}
}

// Timestamps are stored as TEXT and compared lexicographically in SQL,
// so the stored encoding must be fixed width: a trimmed fraction would
// make "…05Z" sort after "…05.000000001Z".
func TestRepository_SubsecondTimestampOrdering(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sensorID := f.sensors["temperature"].ID

	base := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	stamps := []time.Time{
		base.Add(400 * time.Millisecond), // 10:00:05.4
		base,                             // 10:00:05 whole second
		base.Add(time.Nanosecond),        // 10:00:05.000000001
	}
	for i, ts := range stamps {
		v := float64(i)
		tx, err := f.db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		data := &SensorData{
			SensorID:   sensorID,
			Timestamp:  ts,
			ValueType:  TypeFloat,
			ValueFloat: &v,
		}
		if err := f.repo.InsertTx(ctx, tx, data); err != nil {
			t.Fatalf("InsertTx() error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	got, err := f.repo.ListBySensorSince(ctx, sensorID, base, base.Add(time.Second))
	if err != nil {
		t.Fatalf("ListBySensorSince() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("rows misordered: %v before %v", got[i-1].Timestamp, got[i].Timestamp)
		}
	}

	// The whole-second row sits outside [base+1ns, base+1s).
	got, err = f.repo.ListBySensorSince(ctx, sensorID, base.Add(time.Nanosecond), base.Add(time.Second))
	if err != nil {
		t.Fatalf("ListBySensorSince() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (whole-second row excluded)", len(got))
	}
	for _, d := range got {
		if d.Timestamp.Equal(base) {
			t.Error("window [base+1ns, base+1s) returned the whole-second row")
		}
	}
}
