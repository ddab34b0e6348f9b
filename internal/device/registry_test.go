package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

// setupRegistry builds a registry backed by an in-memory SQLite repository
// with one project, one device, two sensors, and one actuator.
func setupRegistry(t *testing.T) (*Registry, *Device, *Actuator) {
	t.Helper()

	repo := NewSQLiteRepository(setupTestDB(t))
	p := seedProject(t, repo)
	d := seedDevice(t, repo, p.ID, "DEV-000001")

	for _, s := range []Sensor{
		{ID: GenerateID(), DeviceID: d.ID, Name: "Temperature", SensorType: "temperature", ValueKey: "temperature"},
		{ID: GenerateID(), DeviceID: d.ID, Name: "Humidity", SensorType: "humidity", ValueKey: "humidity"},
	} {
		s := s
		if err := repo.CreateSensor(context.Background(), &s); err != nil {
			t.Fatalf("CreateSensor() error = %v", err)
		}
	}

	a := &Actuator{
		ID:         GenerateID(),
		DeviceID:   d.ID,
		Name:       "Relay",
		CommandKey: "relay",
	}
	if err := repo.CreateActuator(context.Background(), a); err != nil {
		t.Fatalf("CreateActuator() error = %v", err)
	}

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	return reg, d, a
}

func TestRegistry_Authenticate(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	got, err := reg.Authenticate(context.Background(), d.DeviceID, d.DeviceKey)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("authenticated device ID = %q, want %q", got.ID, d.ID)
	}
}

func TestRegistry_Authenticate_WrongKey(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	_, err := reg.Authenticate(context.Background(), d.DeviceID, "wrong-key")
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Authenticate() error = %v, want ErrAuthFailed", err)
	}
}

func TestRegistry_Authenticate_UnknownDevice(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	_, err := reg.Authenticate(context.Background(), "DEV-999999", "any-key")
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Authenticate() error = %v, want ErrAuthFailed", err)
	}
}

func TestRegistry_GetByDeviceID_ReturnsCopy(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	first, err := reg.GetByDeviceID(context.Background(), d.DeviceID)
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}

	// Mutating the returned device must not leak into the cache.
	first.Name = "mutated"

	second, err := reg.GetByDeviceID(context.Background(), d.DeviceID)
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if second.Name == "mutated" {
		t.Error("cache was mutated through a returned device")
	}
}

func TestRegistry_SensorsByDevice(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	sensors, err := reg.SensorsByDevice(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("SensorsByDevice() error = %v", err)
	}
	if len(sensors) != 2 {
		t.Fatalf("len(sensors) = %d, want 2", len(sensors))
	}
}

func TestRegistry_SetStatus(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	seen := time.Now().UTC().Truncate(time.Second)
	if err := reg.SetStatus(context.Background(), d.ID, StatusOnline, seen); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	got, err := reg.GetByID(context.Background(), d.ID)
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

func TestRegistry_ApplyStatus_CacheOnly(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	seen := time.Now().UTC().Truncate(time.Second)
	reg.ApplyStatus(d.ID, StatusOnline, seen)

	got, err := reg.GetByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("cached Status = %q, want %q", got.Status, StatusOnline)
	}
}

func TestRegistry_SetActuatorState(t *testing.T) {
	reg, _, a := setupRegistry(t)

	if err := reg.SetActuatorState(context.Background(), a.ID, "OFF"); err != nil {
		t.Fatalf("SetActuatorState() error = %v", err)
	}

	got, err := reg.ActuatorByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ActuatorByID() error = %v", err)
	}
	if got.CurrentState == nil || *got.CurrentState != "OFF" {
		t.Errorf("CurrentState = %v, want OFF", got.CurrentState)
	}
}

func TestRegistry_ProjectByID(t *testing.T) {
	reg, d, _ := setupRegistry(t)

	p, err := reg.ProjectByID(context.Background(), d.ProjectID)
	if err != nil {
		t.Fatalf("ProjectByID() error = %v", err)
	}
	if p.OwnerEmail != "owner@example.com" {
		t.Errorf("OwnerEmail = %q, want %q", p.OwnerEmail, "owner@example.com")
	}
}

func TestRegistry_DeviceCount(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	if got := reg.DeviceCount(); got != 1 {
		t.Errorf("DeviceCount() = %d, want 1", got)
	}
}
