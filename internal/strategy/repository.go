package strategy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// Repository defines the interface for strategy persistence.
type Repository interface {
	// GetStrategy retrieves a strategy by row ID.
	GetStrategy(ctx context.Context, id string) (*Strategy, error)

	// ListEnabledByTriggerDevice retrieves all enabled strategies whose
	// trigger device matches the given device row ID.
	ListEnabledByTriggerDevice(ctx context.Context, deviceID string) ([]Strategy, error)

	// ConditionsByStrategy retrieves a strategy's condition chain ordered
	// by position.
	ConditionsByStrategy(ctx context.Context, strategyID string) ([]Condition, error)

	// ActionsByStrategy retrieves a strategy's actions ordered by position.
	ActionsByStrategy(ctx context.Context, strategyID string) ([]Action, error)

	// CreateStrategy inserts a new strategy.
	CreateStrategy(ctx context.Context, s *Strategy) error

	// CreateCondition inserts a new condition.
	CreateCondition(ctx context.Context, c *Condition) error

	// CreateAction inserts a new action.
	CreateAction(ctx context.Context, a *Action) error

	// InsertLog appends a strategy execution log row.
	InsertLog(ctx context.Context, entry *StrategyLog) error

	// ListLogsByStrategy retrieves the most recent log rows for a
	// strategy, newest first, at most limit rows.
	ListLogsByStrategy(ctx context.Context, strategyID string, limit int) ([]StrategyLog, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const strategyColumns = "id, project_id, name, description, trigger_device_id, enabled, created_at, updated_at"

// triggeredAtFormat stores triggered_at with zero-padded nanoseconds so
// the TEXT encoding is fixed width and ORDER BY triggered_at matches
// time order. RFC3339Nano trims trailing zeros, which breaks that.
const triggeredAtFormat = "2006-01-02T15:04:05.000000000Z07:00"

// GetStrategy retrieves a strategy by row ID.
func (r *SQLiteRepository) GetStrategy(ctx context.Context, id string) (*Strategy, error) {
	query := "SELECT " + strategyColumns + " FROM strategies WHERE id = ?"

	s, err := scanStrategy(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, fmt.Errorf("querying strategy: %w", err)
	}
	return s, nil
}

// ListEnabledByTriggerDevice retrieves all enabled strategies whose
// trigger device matches the given device row ID.
func (r *SQLiteRepository) ListEnabledByTriggerDevice(ctx context.Context, deviceID string) ([]Strategy, error) {
	query := "SELECT " + strategyColumns + " FROM strategies WHERE trigger_device_id = ? AND enabled = 1 ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying strategies: %w", err)
	}
	defer rows.Close()

	var out []Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning strategy: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strategies: %w", err)
	}
	return out, nil
}

// ConditionsByStrategy retrieves a strategy's condition chain ordered by
// position.
func (r *SQLiteRepository) ConditionsByStrategy(ctx context.Context, strategyID string) ([]Condition, error) {
	query := `
		SELECT id, strategy_id, sensor_id, operator, threshold_type,
		       threshold_float, threshold_string, threshold_boolean,
		       logical_operator_to_next, position
		FROM conditions WHERE strategy_id = ? ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	defer rows.Close()

	var out []Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning condition: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conditions: %w", err)
	}
	return out, nil
}

// ActionsByStrategy retrieves a strategy's actions ordered by position.
func (r *SQLiteRepository) ActionsByStrategy(ctx context.Context, strategyID string) ([]Action, error) {
	query := `
		SELECT id, strategy_id, action_type, position,
		       recipient_email, recipient_user_email, subject_template, body_template,
		       target_actuator_id, actuator_command,
		       webhook_url, webhook_method, payload_template
		FROM actions WHERE strategy_id = ? ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return out, nil
}

// CreateStrategy inserts a new strategy.
func (r *SQLiteRepository) CreateStrategy(ctx context.Context, s *Strategy) error {
	if s.ID == "" {
		s.ID = GenerateID()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO strategies (id, project_id, name, description, trigger_device_id, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ProjectID, s.Name, s.Description, s.TriggerDeviceID,
		boolToInt(s.Enabled),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting strategy: %w", err)
	}
	return nil
}

// CreateCondition inserts a new condition.
func (r *SQLiteRepository) CreateCondition(ctx context.Context, c *Condition) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}

	var logicalOp sql.NullString
	if c.LogicalOperatorToNext != nil {
		logicalOp = sql.NullString{String: string(*c.LogicalOperatorToNext), Valid: true}
	}

	query := `
		INSERT INTO conditions (id, strategy_id, sensor_id, operator, threshold_type,
			threshold_float, threshold_string, threshold_boolean,
			logical_operator_to_next, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.StrategyID, c.SensorID, string(c.Operator), string(c.ThresholdType),
		nullableFloat(c.ThresholdFloat),
		nullableString(c.ThresholdString),
		nullableBool(c.ThresholdBool),
		logicalOp, c.Position,
	)
	if err != nil {
		return fmt.Errorf("inserting condition: %w", err)
	}
	return nil
}

// CreateAction inserts a new action.
func (r *SQLiteRepository) CreateAction(ctx context.Context, a *Action) error {
	if a.ID == "" {
		a.ID = GenerateID()
	}

	var target sql.NullString
	if a.TargetActuatorID != "" {
		target = sql.NullString{String: a.TargetActuatorID, Valid: true}
	}

	query := `
		INSERT INTO actions (id, strategy_id, action_type, position,
			recipient_email, recipient_user_email, subject_template, body_template,
			target_actuator_id, actuator_command,
			webhook_url, webhook_method, payload_template)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.StrategyID, string(a.Type), a.Position,
		a.RecipientEmail, a.RecipientUserEmail, a.SubjectTemplate, a.BodyTemplate,
		target, a.ActuatorCommand,
		a.WebhookURL, a.WebhookMethod, a.PayloadTemplate,
	)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

// InsertLog appends a strategy execution log row.
func (r *SQLiteRepository) InsertLog(ctx context.Context, entry *StrategyLog) error {
	if entry.ID == "" {
		entry.ID = newLogID()
	}
	if entry.TriggeredAt.IsZero() {
		entry.TriggeredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO strategy_logs (id, strategy_id, sensor_data_id, action_id, triggered_at, result, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.StrategyID, entry.SensorDataID, entry.ActionID,
		entry.TriggeredAt.UTC().Format(triggeredAtFormat),
		boolToInt(entry.Result), entry.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting strategy log: %w", err)
	}
	return nil
}

// ListLogsByStrategy retrieves the most recent log rows for a strategy,
// newest first, at most limit rows.
func (r *SQLiteRepository) ListLogsByStrategy(ctx context.Context, strategyID string, limit int) ([]StrategyLog, error) {
	query := `
		SELECT id, strategy_id, sensor_data_id, action_id, triggered_at, result, message
		FROM strategy_logs WHERE strategy_id = ?
		ORDER BY triggered_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying strategy logs: %w", err)
	}
	defer rows.Close()

	var out []StrategyLog
	for rows.Next() {
		var entry StrategyLog
		var triggeredAt string
		var result int

		err := rows.Scan(&entry.ID, &entry.StrategyID, &entry.SensorDataID,
			&entry.ActionID, &triggeredAt, &result, &entry.Message)
		if err != nil {
			return nil, fmt.Errorf("scanning strategy log: %w", err)
		}

		entry.TriggeredAt, err = time.Parse(time.RFC3339Nano, triggeredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing triggered_at: %w", err)
		}
		entry.Result = result != 0
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strategy logs: %w", err)
	}
	return out, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(scanner rowScanner) (*Strategy, error) {
	var s Strategy
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Description,
		&s.TriggerDeviceID, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Enabled = enabled != 0

	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func scanCondition(scanner rowScanner) (*Condition, error) {
	var c Condition
	var operator, thresholdType string
	var thresholdFloat sql.NullFloat64
	var thresholdString sql.NullString
	var thresholdBool sql.NullInt64
	var logicalOp sql.NullString

	err := scanner.Scan(&c.ID, &c.StrategyID, &c.SensorID, &operator, &thresholdType,
		&thresholdFloat, &thresholdString, &thresholdBool, &logicalOp, &c.Position)
	if err != nil {
		return nil, err
	}

	c.Operator = Operator(operator)
	c.ThresholdType = telemetry.ValueType(thresholdType)

	if thresholdFloat.Valid {
		c.ThresholdFloat = &thresholdFloat.Float64
	}
	if thresholdString.Valid {
		c.ThresholdString = &thresholdString.String
	}
	if thresholdBool.Valid {
		b := thresholdBool.Int64 != 0
		c.ThresholdBool = &b
	}
	if logicalOp.Valid {
		op := LogicalOperator(logicalOp.String)
		c.LogicalOperatorToNext = &op
	}
	return &c, nil
}

func scanAction(scanner rowScanner) (*Action, error) {
	var a Action
	var actionType string
	var target sql.NullString

	err := scanner.Scan(&a.ID, &a.StrategyID, &actionType, &a.Position,
		&a.RecipientEmail, &a.RecipientUserEmail, &a.SubjectTemplate, &a.BodyTemplate,
		&target, &a.ActuatorCommand,
		&a.WebhookURL, &a.WebhookMethod, &a.PayloadTemplate)
	if err != nil {
		return nil, err
	}

	a.Type = ActionType(actionType)
	if target.Valid {
		a.TargetActuatorID = target.String
	}
	return &a, nil
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
