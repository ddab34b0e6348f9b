package device

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry provides device configuration lookup with caching and thread
// safety. It wraps a Repository and adds an in-memory cache sized for the
// ingestion hot path: authentication, sensor resolution, and status
// bookkeeping all hit the cache rather than SQLite.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the status/state mutating methods. Device, sensor, and actuator
// configuration is created outside the core, so a RefreshCache (or
// restart) picks up config changes.
//
// All public methods are thread-safe.
type Registry struct {
	repo Repository

	// cache holds devices by row ID; byDeviceID indexes the public
	// device identifier. sensors and actuators are keyed by device row
	// ID and actuator row ID respectively.
	cache      map[string]*Device
	byDeviceID map[string]string
	sensors    map[string][]Sensor
	actuators  map[string]*Actuator
	projects   map[string]*Project
	cacheMu    sync.RWMutex

	logger Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:       repo,
		cache:      make(map[string]*Device),
		byDeviceID: make(map[string]string),
		sensors:    make(map[string][]Sensor),
		actuators:  make(map[string]*Actuator),
		projects:   make(map[string]*Project),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices, sensors, actuators, and projects from
// the repository into the cache. This should be called on application
// startup and after out-of-band configuration changes.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	projects, err := r.repo.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("loading projects: %w", err)
	}

	sensors := make(map[string][]Sensor, len(devices))
	actuators := make(map[string]*Actuator)
	for i := range devices {
		d := &devices[i]

		ss, err := r.repo.SensorsByDevice(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("loading sensors for %s: %w", d.DeviceID, err)
		}
		sensors[d.ID] = ss

		as, err := r.repo.ActuatorsByDevice(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("loading actuators for %s: %w", d.DeviceID, err)
		}
		for j := range as {
			a := as[j]
			actuators[a.ID] = &a
		}
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	r.byDeviceID = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
		r.byDeviceID[d.DeviceID] = d.ID
	}
	r.sensors = sensors
	r.actuators = actuators

	r.projects = make(map[string]*Project, len(projects))
	for i := range projects {
		p := projects[i]
		r.projects[p.ID] = &p
	}

	r.logger.Info("device cache refreshed",
		"devices", len(devices),
		"actuators", len(actuators),
		"projects", len(projects),
	)
	return nil
}

// Authenticate verifies a (device_id, device_key) pair against the
// registry. On success it returns the matching device; any mismatch
// (unknown device or wrong key) returns ErrAuthFailed without revealing
// which half of the pair was wrong.
//
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Authenticate(ctx context.Context, deviceID, deviceKey string) (*Device, error) {
	d, err := r.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, ErrAuthFailed
	}

	if subtle.ConstantTimeCompare([]byte(d.DeviceKey), []byte(deviceKey)) != 1 {
		return nil, ErrAuthFailed
	}

	return d, nil
}

// GetByDeviceID retrieves a device by its public device identifier.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	r.cacheMu.RLock()
	rowID, ok := r.byDeviceID[deviceID]
	var cached *Device
	if ok {
		cached = r.cache[rowID]
	}
	r.cacheMu.RUnlock()

	if cached != nil {
		return cached.DeepCopy(), nil
	}

	// Fall back to the repository (might be a device registered since the
	// last cache refresh).
	d, err := r.repo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	r.cacheDevice(d)
	return d.DeepCopy(), nil
}

// GetByID retrieves a device by its row ID.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetByID(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheDevice(d)
	return d.DeepCopy(), nil
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// SensorsByDevice retrieves the sensors configured on a device, keyed by
// the device row ID.
func (r *Registry) SensorsByDevice(ctx context.Context, deviceID string) ([]Sensor, error) {
	r.cacheMu.RLock()
	cached, ok := r.sensors[deviceID]
	r.cacheMu.RUnlock()

	if ok {
		out := make([]Sensor, len(cached))
		copy(out, cached)
		return out, nil
	}

	sensors, err := r.repo.SensorsByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.sensors[deviceID] = sensors
	r.cacheMu.Unlock()

	out := make([]Sensor, len(sensors))
	copy(out, sensors)
	return out, nil
}

// ActuatorByID retrieves an actuator by its row ID.
func (r *Registry) ActuatorByID(ctx context.Context, id string) (*Actuator, error) {
	r.cacheMu.RLock()
	cached, ok := r.actuators[id]
	r.cacheMu.RUnlock()

	if ok {
		cpy := *cached
		return &cpy, nil
	}

	a, err := r.repo.GetActuator(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cpy := *a
	r.actuators[a.ID] = &cpy
	r.cacheMu.Unlock()

	return a, nil
}

// ProjectByID retrieves a project by its row ID.
func (r *Registry) ProjectByID(ctx context.Context, id string) (*Project, error) {
	r.cacheMu.RLock()
	cached, ok := r.projects[id]
	r.cacheMu.RUnlock()

	if ok {
		cpy := *cached
		return &cpy, nil
	}

	p, err := r.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cpy := *p
	r.projects[p.ID] = &cpy
	r.cacheMu.Unlock()

	return p, nil
}

// SetStatus updates a device's status and last-seen timestamp in the
// repository and the cache.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error {
	if err := r.repo.UpdateStatus(ctx, id, status, lastSeen); err != nil {
		return err
	}

	r.ApplyStatus(id, status, lastSeen)
	r.logger.Debug("device status updated", "id", id, "status", status)
	return nil
}

// ApplyStatus updates only the cached copy of a device's status. Callers
// that persist the status themselves (inside an ingestion transaction)
// use this to keep the cache in sync after commit.
func (r *Registry) ApplyStatus(id string, status Status, lastSeen time.Time) {
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.Status = status
		ls := lastSeen
		updated.LastSeen = &ls
		updated.UpdatedAt = time.Now().UTC()
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()
}

// SetActuatorState records the last successfully delivered command state
// in the repository and the cache.
func (r *Registry) SetActuatorState(ctx context.Context, id string, state string) error {
	if err := r.repo.SetActuatorState(ctx, id, state); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.actuators[id]; ok {
		updated := *cached
		s := state
		updated.CurrentState = &s
		r.actuators[id] = &updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("actuator state updated", "id", id, "state", state)
	return nil
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// cacheDevice stores a deep copy of a device and indexes it.
func (r *Registry) cacheDevice(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.byDeviceID[d.DeviceID] = d.ID
	r.cacheMu.Unlock()
}
