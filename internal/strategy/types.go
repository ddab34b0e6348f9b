package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// Operator is a comparison operator applied between a sensor reading and
// a condition threshold.
type Operator string

// Comparison operators.
const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// ValidOperator reports whether op is a recognised comparison operator.
func ValidOperator(op Operator) bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// LogicalOperator joins a condition's verdict with the next condition in
// the chain.
type LogicalOperator string

// Chain operators.
const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ActionType discriminates the Action variant.
type ActionType string

// Action types.
const (
	ActionNotify          ActionType = "notify"
	ActionControlActuator ActionType = "control_actuator"
	ActionWebhook         ActionType = "webhook"
)

// Strategy is a rule attached to a trigger device. Whenever a sensor
// data row is created for that device, the strategy's condition chain is
// evaluated and, if it holds, its actions run.
type Strategy struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	TriggerDeviceID string    `json:"trigger_device_id"` // Device row ID
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Condition is one link in a strategy's condition chain. Exactly one
// threshold slot is meaningful, discriminated by ThresholdType, mirroring
// the sensor data value slots. LogicalOperatorToNext joins this
// condition's verdict with the next condition in list order; nil means
// the next verdict does not alter the running result.
type Condition struct {
	ID         string   `json:"id"`
	StrategyID string   `json:"strategy_id"`
	SensorID   string   `json:"sensor_id"`
	Operator   Operator `json:"operator"`
	Position   int      `json:"position"`

	ThresholdType   telemetry.ValueType `json:"threshold_type"`
	ThresholdFloat  *float64            `json:"threshold_float,omitempty"`
	ThresholdString *string             `json:"threshold_string,omitempty"`
	ThresholdBool   *bool               `json:"threshold_boolean,omitempty"`

	LogicalOperatorToNext *LogicalOperator `json:"logical_operator_to_next,omitempty"`
}

// Evaluate compares the sensor data row against the condition threshold.
//
// The compared slot is selected by ThresholdType: a float threshold is
// compared against the row's float slot, and so on. A missing slot on
// either side yields false rather than an error, so a condition
// configured against the wrong value type simply never holds.
func (c *Condition) Evaluate(data *telemetry.SensorData) bool {
	switch c.ThresholdType {
	case telemetry.TypeFloat:
		if c.ThresholdFloat == nil || data.ValueFloat == nil {
			return false
		}
		return compareFloat(*data.ValueFloat, c.Operator, *c.ThresholdFloat)
	case telemetry.TypeString:
		if c.ThresholdString == nil || data.ValueString == nil {
			return false
		}
		return compareString(*data.ValueString, c.Operator, *c.ThresholdString)
	case telemetry.TypeBoolean:
		if c.ThresholdBool == nil || data.ValueBool == nil {
			return false
		}
		return compareBool(*data.ValueBool, c.Operator, *c.ThresholdBool)
	}
	return false
}

func compareFloat(actual float64, op Operator, threshold float64) bool {
	switch op {
	case OpGreater:
		return actual > threshold
	case OpLess:
		return actual < threshold
	case OpGreaterEqual:
		return actual >= threshold
	case OpLessEqual:
		return actual <= threshold
	case OpEqual:
		return actual == threshold
	case OpNotEqual:
		return actual != threshold
	}
	return false
}

func compareString(actual string, op Operator, threshold string) bool {
	switch op {
	case OpGreater:
		return actual > threshold
	case OpLess:
		return actual < threshold
	case OpGreaterEqual:
		return actual >= threshold
	case OpLessEqual:
		return actual <= threshold
	case OpEqual:
		return actual == threshold
	case OpNotEqual:
		return actual != threshold
	}
	return false
}

func compareBool(actual bool, op Operator, threshold bool) bool {
	// Ordered comparisons treat true as greater than false.
	return compareFloat(boolToFloat(actual), op, boolToFloat(threshold))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Action is one thing a fired strategy does. Type selects which field
// group is meaningful; unused fields are left empty.
type Action struct {
	ID         string     `json:"id"`
	StrategyID string     `json:"strategy_id"`
	Type       ActionType `json:"action_type"`
	Position   int        `json:"position"`

	// notify
	RecipientEmail     string `json:"recipient_email,omitempty"`
	RecipientUserEmail string `json:"recipient_user_email,omitempty"`
	SubjectTemplate    string `json:"subject_template,omitempty"`
	BodyTemplate       string `json:"body_template,omitempty"`

	// control_actuator
	TargetActuatorID string `json:"target_actuator_id,omitempty"`
	ActuatorCommand  string `json:"actuator_command,omitempty"`

	// webhook
	WebhookURL      string `json:"webhook_url,omitempty"`
	WebhookMethod   string `json:"webhook_method,omitempty"`
	PayloadTemplate string `json:"payload_template,omitempty"`
}

// StrategyLog records one action execution attempt after a strategy
// fired. One row is written per action, success or failure.
type StrategyLog struct {
	ID           string    `json:"id"`
	StrategyID   string    `json:"strategy_id"`
	SensorDataID string    `json:"sensor_data_id"`
	ActionID     string    `json:"action_id"`
	TriggeredAt  time.Time `json:"triggered_at"`
	Result       bool      `json:"result"`
	Message      string    `json:"message,omitempty"`
}

// GenerateID returns a new unique identifier for a strategy, condition
// or action row.
func GenerateID() string {
	return uuid.New().String()
}

// newLogID returns a new strategy log row identifier.
func newLogID() string {
	return "slog-" + uuid.New().String()
}
