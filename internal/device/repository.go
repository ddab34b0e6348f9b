package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its row ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByDeviceID retrieves a device by its public device identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists on an ID or identifier collision.
	Create(ctx context.Context, device *Device) error

	// UpdateStatus updates a device's status and last-seen timestamp.
	UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error

	// UpdateStatusTx performs the status update inside an existing
	// transaction so callers can make it atomic with other writes.
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status Status, lastSeen time.Time) error

	// GetProject retrieves a project by its row ID.
	GetProject(ctx context.Context, id string) (*Project, error)

	// CreateProject inserts a new project.
	CreateProject(ctx context.Context, project *Project) error

	// ListProjects retrieves all projects.
	ListProjects(ctx context.Context) ([]Project, error)

	// SensorsByDevice retrieves all sensors configured on a device,
	// keyed by the device row ID.
	SensorsByDevice(ctx context.Context, deviceID string) ([]Sensor, error)

	// GetSensor retrieves a sensor by its row ID.
	GetSensor(ctx context.Context, id string) (*Sensor, error)

	// CreateSensor inserts a new sensor.
	CreateSensor(ctx context.Context, sensor *Sensor) error

	// ActuatorsByDevice retrieves all actuators configured on a device.
	ActuatorsByDevice(ctx context.Context, deviceID string) ([]Actuator, error)

	// GetActuator retrieves an actuator by its row ID.
	GetActuator(ctx context.Context, id string) (*Actuator, error)

	// CreateActuator inserts a new actuator.
	CreateActuator(ctx context.Context, actuator *Actuator) error

	// SetActuatorState records the last successfully delivered command state.
	SetActuatorState(ctx context.Context, id string, state string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, project_id, device_id, device_identifier, device_key,
	name, device_type, protocol_type, status, last_seen, created_at, updated_at`

// GetByID retrieves a device by its row ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByDeviceID retrieves a device by its public device identifier.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by device_id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Status == "" {
		device.Status = StatusUnregistered
	}

	query := `
		INSERT INTO devices (
			id, project_id, device_id, device_identifier, device_key,
			name, device_type, protocol_type, status, last_seen,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.ProjectID,
		device.DeviceID,
		device.DeviceIdentifier,
		device.DeviceKey,
		device.Name,
		device.DeviceType,
		string(device.ProtocolType),
		string(device.Status),
		nullableTime(device.LastSeen),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// UpdateStatus updates a device's status and last-seen timestamp.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error {
	return updateStatus(ctx, r.db, id, status, lastSeen)
}

// UpdateStatusTx performs the status update inside an existing transaction.
func (r *SQLiteRepository) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status Status, lastSeen time.Time) error {
	return updateStatus(ctx, tx, id, status, lastSeen)
}

// execer is the subset of sql.DB/sql.Tx used by updateStatus.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateStatus(ctx context.Context, ex execer, id string, status Status, lastSeen time.Time) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	query := `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	now := time.Now().UTC()
	result, err := ex.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// GetProject retrieves a project by its row ID.
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	query := `
		SELECT id, project_id, name, owner_email, created_at, updated_at
		FROM projects
		WHERE id = ?`

	var p Project
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.ProjectID, &p.Name, &p.OwnerEmail, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("querying project: %w", err)
	}

	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &p, nil
}

// CreateProject inserts a new project.
func (r *SQLiteRepository) CreateProject(ctx context.Context, project *Project) error {
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	query := `
		INSERT INTO projects (id, project_id, name, owner_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.ProjectID,
		project.Name,
		project.OwnerEmail,
		project.CreatedAt.Format(time.RFC3339),
		project.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}

	return nil
}

// ListProjects retrieves all projects.
func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]Project, error) {
	query := `
		SELECT id, project_id, name, owner_email, created_at, updated_at
		FROM projects
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Name, &p.OwnerEmail, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}

	return projects, nil
}

// SensorsByDevice retrieves all sensors configured on a device.
func (r *SQLiteRepository) SensorsByDevice(ctx context.Context, deviceID string) ([]Sensor, error) {
	query := `
		SELECT id, device_id, name, sensor_type, unit, value_key, created_at
		FROM sensors
		WHERE device_id = ?
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		sensors = append(sensors, *sensor)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}

	return sensors, nil
}

// GetSensor retrieves a sensor by its row ID.
func (r *SQLiteRepository) GetSensor(ctx context.Context, id string) (*Sensor, error) {
	query := `
		SELECT id, device_id, name, sensor_type, unit, value_key, created_at
		FROM sensors
		WHERE id = ?`

	sensor, err := scanSensor(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSensorNotFound
		}
		return nil, fmt.Errorf("querying sensor: %w", err)
	}
	return sensor, nil
}

// CreateSensor inserts a new sensor.
func (r *SQLiteRepository) CreateSensor(ctx context.Context, sensor *Sensor) error {
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sensors (id, device_id, name, sensor_type, unit, value_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		sensor.ID,
		sensor.DeviceID,
		sensor.Name,
		sensor.SensorType,
		sensor.Unit,
		sensor.ValueKey,
		sensor.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting sensor: %w", err)
	}

	return nil
}

// ActuatorsByDevice retrieves all actuators configured on a device.
func (r *SQLiteRepository) ActuatorsByDevice(ctx context.Context, deviceID string) ([]Actuator, error) {
	query := `
		SELECT id, device_id, name, actuator_type, command_key, current_state, created_at
		FROM actuators
		WHERE device_id = ?
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying actuators: %w", err)
	}
	defer rows.Close()

	var actuators []Actuator
	for rows.Next() {
		actuator, err := scanActuator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning actuator: %w", err)
		}
		actuators = append(actuators, *actuator)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actuators: %w", err)
	}

	return actuators, nil
}

// GetActuator retrieves an actuator by its row ID.
func (r *SQLiteRepository) GetActuator(ctx context.Context, id string) (*Actuator, error) {
	query := `
		SELECT id, device_id, name, actuator_type, command_key, current_state, created_at
		FROM actuators
		WHERE id = ?`

	actuator, err := scanActuator(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActuatorNotFound
		}
		return nil, fmt.Errorf("querying actuator: %w", err)
	}
	return actuator, nil
}

// CreateActuator inserts a new actuator.
func (r *SQLiteRepository) CreateActuator(ctx context.Context, actuator *Actuator) error {
	if actuator.CreatedAt.IsZero() {
		actuator.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO actuators (id, device_id, name, actuator_type, command_key, current_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		actuator.ID,
		actuator.DeviceID,
		actuator.Name,
		actuator.ActuatorType,
		actuator.CommandKey,
		nullableString(actuator.CurrentState),
		actuator.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting actuator: %w", err)
	}

	return nil
}

// SetActuatorState records the last successfully delivered command state.
func (r *SQLiteRepository) SetActuatorState(ctx context.Context, id string, state string) error {
	query := `UPDATE actuators SET current_state = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, state, id)
	if err != nil {
		return fmt.Errorf("updating actuator state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrActuatorNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var protocolType, status string
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.ProjectID,
		&d.DeviceID,
		&d.DeviceIdentifier,
		&d.DeviceKey,
		&d.Name,
		&d.DeviceType,
		&protocolType,
		&status,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.ProtocolType = Protocol(protocolType)
	d.Status = Status(status)

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// scanSensor scans a row or rows result into a Sensor.
func scanSensor(scanner rowScanner) (*Sensor, error) {
	var s Sensor
	var unit sql.NullString
	var createdAt string

	err := scanner.Scan(&s.ID, &s.DeviceID, &s.Name, &s.SensorType, &unit, &s.ValueKey, &createdAt)
	if err != nil {
		return nil, err
	}

	if unit.Valid {
		s.Unit = unit.String
	}

	var parseErr error
	s.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &s, nil
}

// scanActuator scans a row or rows result into an Actuator.
func scanActuator(scanner rowScanner) (*Actuator, error) {
	var a Actuator
	var currentState sql.NullString
	var createdAt string

	err := scanner.Scan(&a.ID, &a.DeviceID, &a.Name, &a.ActuatorType, &a.CommandKey, &currentState, &createdAt)
	if err != nil {
		return nil, err
	}

	if currentState.Valid {
		a.CurrentState = &currentState.String
	}

	var parseErr error
	a.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &a, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
