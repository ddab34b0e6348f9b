package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timestampFormat stores timestamps with zero-padded nanoseconds so the
// TEXT encoding is fixed width and lexicographic order matches time
// order for SQL range scans. RFC3339Nano trims trailing zeros, which
// breaks that property.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Repository defines the interface for sensor data persistence.
type Repository interface {
	// InsertTx inserts a sensor data row inside an existing transaction.
	InsertTx(ctx context.Context, tx *sql.Tx, data *SensorData) error

	// GetByID retrieves a sensor data row.
	GetByID(ctx context.Context, id string) (*SensorData, error)

	// ListBySensorSince retrieves rows for a sensor within [since, until),
	// ordered by timestamp ascending.
	ListBySensorSince(ctx context.Context, sensorID string, since, until time.Time) ([]SensorData, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertTx inserts a sensor data row inside an existing transaction.
// The caller owns the transaction; rows only become visible on commit.
func (r *SQLiteRepository) InsertTx(ctx context.Context, tx *sql.Tx, data *SensorData) error {
	if data.ID == "" {
		data.ID = newID()
	}

	query := `
		INSERT INTO sensor_data (id, sensor_id, timestamp, value_type, value_float, value_string, value_boolean)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		data.ID,
		data.SensorID,
		data.Timestamp.UTC().Format(timestampFormat),
		string(data.ValueType),
		nullableFloat(data.ValueFloat),
		nullableString(data.ValueString),
		nullableBool(data.ValueBool),
	)
	if err != nil {
		return fmt.Errorf("inserting sensor data: %w", err)
	}

	return nil
}

// GetByID retrieves a sensor data row.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*SensorData, error) {
	query := `
		SELECT id, sensor_id, timestamp, value_type, value_float, value_string, value_boolean
		FROM sensor_data
		WHERE id = ?`

	data, err := scanSensorData(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSensorDataNotFound
		}
		return nil, fmt.Errorf("querying sensor data: %w", err)
	}
	return data, nil
}

// ListBySensorSince retrieves rows for a sensor within [since, until),
// ordered by timestamp ascending.
func (r *SQLiteRepository) ListBySensorSince(ctx context.Context, sensorID string, since, until time.Time) ([]SensorData, error) {
	query := `
		SELECT id, sensor_id, timestamp, value_type, value_float, value_string, value_boolean
		FROM sensor_data
		WHERE sensor_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query,
		sensorID,
		since.UTC().Format(timestampFormat),
		until.UTC().Format(timestampFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("querying sensor data: %w", err)
	}
	defer rows.Close()

	var out []SensorData
	for rows.Next() {
		data, err := scanSensorData(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sensor data: %w", err)
		}
		out = append(out, *data)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor data: %w", err)
	}

	return out, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensorData(scanner rowScanner) (*SensorData, error) {
	var d SensorData
	var timestamp, valueType string
	var valueFloat sql.NullFloat64
	var valueString sql.NullString
	var valueBool sql.NullInt64

	err := scanner.Scan(&d.ID, &d.SensorID, &timestamp, &valueType, &valueFloat, &valueString, &valueBool)
	if err != nil {
		return nil, err
	}

	d.ValueType = ValueType(valueType)

	if valueFloat.Valid {
		d.ValueFloat = &valueFloat.Float64
	}
	if valueString.Valid {
		d.ValueString = &valueString.String
	}
	if valueBool.Valid {
		b := valueBool.Int64 != 0
		d.ValueBool = &b
	}

	var parseErr error
	d.Timestamp, parseErr = time.Parse(time.RFC3339Nano, timestamp)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", parseErr)
	}

	return &d, nil
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	var v int64
	if *b {
		v = 1
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
