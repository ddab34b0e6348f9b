package strategy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// Logger is the minimal logging interface the engine needs.
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

// Mailer is the interface notification actions deliver through.
type Mailer interface {
	// Send delivers one message to the recipients.
	Send(ctx context.Context, to []string, subject, body string) error
}

// CommandPublisher is the interface actuator control actions dispatch
// through. The payload is delivered to the target device's command topic.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, dev *device.Device, payload map[string]any) error
}

// Broadcaster receives an event whenever a strategy fires and an action
// execution is logged. Used to fan strategy activity out to live
// subscribers.
type Broadcaster interface {
	StrategyFired(s *Strategy, entry StrategyLog)
}

const defaultWebhookTimeout = 10 * time.Second

// Engine evaluates strategies against newly persisted sensor data and
// executes their actions.
//
// It implements the telemetry data sink: the normalizer calls
// SensorDataCreated synchronously after each ingestion transaction
// commits, once per created row, in insertion order. Failures never
// propagate back into ingestion; each strategy is evaluated in isolation
// and each action failure is contained and logged.
type Engine struct {
	repo        Repository
	registry    *device.Registry
	mailer      Mailer
	commands    CommandPublisher
	httpClient  *http.Client
	broadcaster Broadcaster
	logger      Logger
}

// NewEngine creates a strategy engine.
//
// Parameters:
//   - repo: Strategy repository for rule loading and execution logging
//   - registry: Device registry for actuator and project lookup
//   - mailer: Notification delivery (may be nil; notify actions then fail)
//   - commands: Actuator command dispatch (may be nil; control actions then fail)
func NewEngine(repo Repository, registry *device.Registry, mailer Mailer, commands CommandPublisher) *Engine {
	return &Engine{
		repo:       repo,
		registry:   registry,
		mailer:     mailer,
		commands:   commands,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger used by the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetBroadcaster sets the optional strategy event broadcaster.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// SetHTTPClient overrides the HTTP client used for webhook actions.
func (e *Engine) SetHTTPClient(client *http.Client) {
	if client != nil {
		e.httpClient = client
	}
}

// SensorDataCreated evaluates every enabled strategy triggered by the
// data row's device. Satisfies the telemetry sink contract: it never
// panics and never returns control with ingestion state left behind.
func (e *Engine) SensorDataCreated(ctx context.Context, dev *device.Device, sensor *device.Sensor, data telemetry.SensorData) {
	strategies, err := e.repo.ListEnabledByTriggerDevice(ctx, dev.ID)
	if err != nil {
		e.logger.Error("failed to load strategies", "device_id", dev.DeviceID, "error", err)
		return
	}
	if len(strategies) == 0 {
		return
	}

	for i := range strategies {
		e.evaluateStrategy(ctx, &strategies[i], dev, sensor, &data)
	}
}

// evaluateStrategy runs one strategy against one data row. Panics and
// errors are contained so one misconfigured strategy cannot affect the
// others.
func (e *Engine) evaluateStrategy(ctx context.Context, s *Strategy, dev *device.Device, sensor *device.Sensor, data *telemetry.SensorData) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during strategy evaluation", "strategy_id", s.ID, "panic", r)
		}
	}()

	conditions, err := e.repo.ConditionsByStrategy(ctx, s.ID)
	if err != nil {
		e.logger.Error("failed to load conditions", "strategy_id", s.ID, "error", err)
		return
	}

	if !evaluateChain(conditions, data) {
		e.logger.Debug("strategy conditions not met", "strategy_id", s.ID, "name", s.Name)
		return
	}

	e.logger.Info("strategy fired", "strategy_id", s.ID, "name", s.Name,
		"device_id", dev.DeviceID, "sensor_data_id", data.ID)

	e.executeActions(ctx, s, dev, sensor, data)
}

// evaluateChain folds the condition chain into a single verdict.
//
// Only conditions bound to the data row's sensor are evaluated; the
// others keep their list positions but contribute nothing. The first
// evaluated condition seeds the running result. Each later evaluated
// condition is joined in using the logical operator of the condition
// immediately preceding it in list order; a nil operator leaves the
// running result unchanged. There is no short-circuiting. If no
// condition was evaluated at all, the chain does not hold.
func evaluateChain(conditions []Condition, data *telemetry.SensorData) bool {
	result := false
	seeded := false

	for i := range conditions {
		c := &conditions[i]
		if c.SensorID != data.SensorID {
			continue
		}

		verdict := c.Evaluate(data)

		if !seeded {
			result = verdict
			seeded = true
			continue
		}

		prev := conditions[i-1].LogicalOperatorToNext
		if prev == nil {
			continue
		}
		switch *prev {
		case LogicalAnd:
			result = result && verdict
		case LogicalOr:
			result = result || verdict
		}
	}

	return seeded && result
}

// executeActions runs every action of a fired strategy. Each action is
// attempted regardless of earlier failures and gets exactly one log row.
func (e *Engine) executeActions(ctx context.Context, s *Strategy, dev *device.Device, sensor *device.Sensor, data *telemetry.SensorData) {
	actions, err := e.repo.ActionsByStrategy(ctx, s.ID)
	if err != nil {
		e.logger.Error("failed to load actions", "strategy_id", s.ID, "error", err)
		return
	}

	for i := range actions {
		action := &actions[i]

		execErr := e.executeAction(ctx, action, s, dev, sensor, data)

		entry := StrategyLog{
			StrategyID:   s.ID,
			SensorDataID: data.ID,
			ActionID:     action.ID,
			TriggeredAt:  time.Now().UTC(),
			Result:       execErr == nil,
		}
		if execErr == nil {
			entry.Message = fmt.Sprintf("action %s executed", action.Type)
		} else {
			entry.Message = fmt.Sprintf("execution failed: %v", execErr)
			e.logger.Error("strategy action failed", "strategy_id", s.ID,
				"action_id", action.ID, "action_type", action.Type, "error", execErr)
		}

		if err := e.repo.InsertLog(ctx, &entry); err != nil {
			e.logger.Error("failed to write strategy log", "strategy_id", s.ID, "error", err)
		}

		if e.broadcaster != nil {
			e.broadcaster.StrategyFired(s, entry)
		}
	}
}

// executeAction dispatches one action by type, recovering panics into
// errors so a bad executor cannot take down the evaluation loop.
func (e *Engine) executeAction(ctx context.Context, a *Action, s *Strategy, dev *device.Device, sensor *device.Sensor, data *telemetry.SensorData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in action executor: %v", r)
		}
	}()

	switch a.Type {
	case ActionNotify:
		return e.executeNotify(ctx, a, s, dev, sensor, data)
	case ActionControlActuator:
		return e.executeControlActuator(ctx, a)
	case ActionWebhook:
		return e.executeWebhook(ctx, a, s, dev, sensor, data)
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrActionNotConfigured, a.Type)
	}
}
