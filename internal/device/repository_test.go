package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the registry tables.
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

// seedProject inserts a project and returns it.
func seedProject(t *testing.T, repo *SQLiteRepository) *Project {
	t.Helper()

	p := &Project{
		ID:         GenerateID(),
		ProjectID:  "PRJ-000001",
		Name:       "Greenhouse",
		OwnerEmail: "owner@example.com",
	}
	if err := repo.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return p
}

// seedDevice inserts a device under the given project and returns it.
func seedDevice(t *testing.T, repo *SQLiteRepository, projectID, deviceID string) *Device {
	t.Helper()

	d := &Device{
		ID:               GenerateID(),
		ProjectID:        projectID,
		DeviceID:         deviceID,
		DeviceIdentifier: "serial-" + deviceID,
		DeviceKey:        "key-" + deviceID,
		Name:             "Device " + deviceID,
		DeviceType:       "sensor_node",
		ProtocolType:     ProtocolTCP,
		Status:           StatusOffline,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return d
}

func TestRepository_GetByDeviceID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	want := seedDevice(t, repo, p.ID, "DEV-000001")

	got, err := repo.GetByDeviceID(context.Background(), "DEV-000001")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
	if got.DeviceKey != "key-DEV-000001" {
		t.Errorf("DeviceKey = %q, want %q", got.DeviceKey, "key-DEV-000001")
	}
	if got.Status != StatusOffline {
		t.Errorf("Status = %q, want %q", got.Status, StatusOffline)
	}
}

func TestRepository_GetByDeviceID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByDeviceID(context.Background(), "DEV-999999")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByDeviceID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRepository_Create_Duplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	seedDevice(t, repo, p.ID, "DEV-000001")

	dup := &Device{
		ID:               GenerateID(),
		ProjectID:        p.ID,
		DeviceID:         "DEV-000001", // Collides on the public identifier
		DeviceIdentifier: "serial-other",
		DeviceKey:        "key-other",
		Name:             "Duplicate",
		ProtocolType:     ProtocolMQTT,
	}
	err := repo.Create(context.Background(), dup)
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	d := seedDevice(t, repo, p.ID, "DEV-000001")

	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.UpdateStatus(context.Background(), d.ID, StatusOnline, seen); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want %q", got.Status, StatusOnline)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}
}

func TestRepository_UpdateStatus_InvalidStatus(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	d := seedDevice(t, repo, p.ID, "DEV-000001")

	err := repo.UpdateStatus(context.Background(), d.ID, Status("rebooting"), time.Now())
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("UpdateStatus() error = %v, want ErrInvalidStatus", err)
	}
}

func TestRepository_UpdateStatus_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	err := repo.UpdateStatus(context.Background(), "missing", StatusOnline, time.Now())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateStatus() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRepository_UpdateStatusTx_RollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	p := seedProject(t, repo)
	d := seedDevice(t, repo, p.ID, "DEV-000001")

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}

	seen := time.Now().UTC().Truncate(time.Second)
	if err := repo.UpdateStatusTx(context.Background(), tx, d.ID, StatusOnline, seen); err != nil {
		t.Fatalf("UpdateStatusTx() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusOffline {
		t.Errorf("Status after rollback = %q, want %q", got.Status, StatusOffline)
	}
}

func TestRepository_SensorsByDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	d := seedDevice(t, repo, p.ID, "DEV-000001")

	for _, s := range []Sensor{
		{ID: GenerateID(), DeviceID: d.ID, Name: "Temperature", SensorType: "temperature", Unit: "°C", ValueKey: "temperature"},
		{ID: GenerateID(), DeviceID: d.ID, Name: "Humidity", SensorType: "humidity", Unit: "%", ValueKey: "humidity"},
	} {
		s := s
		if err := repo.CreateSensor(context.Background(), &s); err != nil {
			t.Fatalf("CreateSensor() error = %v", err)
		}
	}

	sensors, err := repo.SensorsByDevice(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("SensorsByDevice() error = %v", err)
	}
	if len(sensors) != 2 {
		t.Fatalf("len(sensors) = %d, want 2", len(sensors))
	}
	// Ordered by name: Humidity, Temperature
	if sensors[0].ValueKey != "humidity" || sensors[1].ValueKey != "temperature" {
		t.Errorf("sensor order = [%s, %s], want [humidity, temperature]",
			sensors[0].ValueKey, sensors[1].ValueKey)
	}
}

func TestRepository_SetActuatorState(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	d := seedDevice(t, repo, p.ID, "DEV-000001")

	a := &Actuator{
		ID:           GenerateID(),
		DeviceID:     d.ID,
		Name:         "Relay",
		ActuatorType: "relay",
		CommandKey:   "relay",
	}
	if err := repo.CreateActuator(context.Background(), a); err != nil {
		t.Fatalf("CreateActuator() error = %v", err)
	}

	if err := repo.SetActuatorState(context.Background(), a.ID, "ON"); err != nil {
		t.Fatalf("SetActuatorState() error = %v", err)
	}

	got, err := repo.GetActuator(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetActuator() error = %v", err)
	}
	if got.CurrentState == nil || *got.CurrentState != "ON" {
		t.Errorf("CurrentState = %v, want ON", got.CurrentState)
	}
}

func TestRepository_SetActuatorState_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	err := repo.SetActuatorState(context.Background(), "missing", "ON")
	if !errors.Is(err, ErrActuatorNotFound) {
		t.Errorf("SetActuatorState() error = %v, want ErrActuatorNotFound", err)
	}
}

func TestRepository_GetProject(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)

	got, err := repo.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got.OwnerEmail != "owner@example.com" {
		t.Errorf("OwnerEmail = %q, want %q", got.OwnerEmail, "owner@example.com")
	}
}
