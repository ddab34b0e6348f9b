package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// executeNotify sends an email notification.
//
// The recipient is resolved by precedence, first non-empty source wins:
// the action's explicit address, the action's user address, then the
// owner address of the trigger device's project.
func (e *Engine) executeNotify(ctx context.Context, a *Action, s *Strategy, dev *device.Device, sensor *device.Sensor, data *telemetry.SensorData) error {
	if e.mailer == nil {
		return fmt.Errorf("%w: mailer not configured", ErrDeliveryFailed)
	}

	recipient, err := e.resolveRecipient(ctx, a, dev)
	if err != nil {
		return err
	}

	tmplCtx := newTemplateContext(s, dev, sensor, data)

	subject := defaultSubject(s)
	if a.SubjectTemplate != "" {
		if subject, err = renderTemplate(a.SubjectTemplate, tmplCtx); err != nil {
			return fmt.Errorf("subject template: %w", err)
		}
	}

	body := defaultBody(tmplCtx)
	if a.BodyTemplate != "" {
		if body, err = renderTemplate(a.BodyTemplate, tmplCtx); err != nil {
			return fmt.Errorf("body template: %w", err)
		}
	}

	if err := e.mailer.Send(ctx, []string{recipient}, subject, body); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.logger.Info("notification sent", "strategy_id", s.ID, "recipient", recipient)
	return nil
}

func (e *Engine) resolveRecipient(ctx context.Context, a *Action, dev *device.Device) (string, error) {
	if a.RecipientEmail != "" {
		return a.RecipientEmail, nil
	}
	if a.RecipientUserEmail != "" {
		return a.RecipientUserEmail, nil
	}

	project, err := e.registry.ProjectByID(ctx, dev.ProjectID)
	if err == nil && project.OwnerEmail != "" {
		return project.OwnerEmail, nil
	}
	return "", ErrNoRecipient
}

// executeControlActuator publishes a command to the target actuator's
// device and records the new actuator state on successful delivery.
//
// The configured command is either a JSON object, forwarded as-is, or a
// bare string wrapped under the actuator's command key. Either way the
// payload is stamped with "command": "control_actuator" so devices can
// distinguish rule-engine commands from operator ones.
func (e *Engine) executeControlActuator(ctx context.Context, a *Action) error {
	if a.TargetActuatorID == "" || a.ActuatorCommand == "" {
		return fmt.Errorf("%w: control_actuator requires target actuator and command", ErrActionNotConfigured)
	}
	if e.commands == nil {
		return fmt.Errorf("%w: command publisher not configured", ErrDeliveryFailed)
	}

	actuator, err := e.registry.ActuatorByID(ctx, a.TargetActuatorID)
	if err != nil {
		return fmt.Errorf("resolving target actuator: %w", err)
	}

	target, err := e.registry.GetByID(ctx, actuator.DeviceID)
	if err != nil {
		return fmt.Errorf("resolving actuator device: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(a.ActuatorCommand), &payload); err != nil || payload == nil {
		payload = map[string]any{actuator.CommandKey: a.ActuatorCommand}
	}
	payload["command"] = "control_actuator"

	if err := e.commands.PublishCommand(ctx, target, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if err := e.registry.SetActuatorState(ctx, actuator.ID, a.ActuatorCommand); err != nil {
		e.logger.Warn("failed to record actuator state", "actuator_id", actuator.ID, "error", err)
	}

	e.logger.Info("actuator command dispatched", "actuator_id", actuator.ID,
		"device_id", target.DeviceID, "command", a.ActuatorCommand)
	return nil
}

// executeWebhook calls the configured URL with the rendered payload,
// as query parameters for GET and as a JSON body otherwise.
func (e *Engine) executeWebhook(ctx context.Context, a *Action, s *Strategy, dev *device.Device, sensor *device.Sensor, data *telemetry.SensorData) error {
	if a.WebhookURL == "" {
		return fmt.Errorf("%w: webhook requires a URL", ErrActionNotConfigured)
	}

	tmplCtx := newTemplateContext(s, dev, sensor, data)

	payload, err := e.webhookPayload(a, tmplCtx)
	if err != nil {
		return err
	}

	method := strings.ToUpper(a.WebhookMethod)
	if method == "" {
		method = http.MethodPost
	}

	var req *http.Request
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, a.WebhookURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
		}
		q := url.Values{}
		for k, v := range payload {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		req.URL.RawQuery = q.Encode()
	} else {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
		}
		req, err = http.NewRequestWithContext(ctx, method, a.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhookFailed, resp.StatusCode)
	}

	e.logger.Info("webhook delivered", "strategy_id", s.ID, "url", a.WebhookURL, "status", resp.StatusCode)
	return nil
}

// webhookPayload renders the configured payload template, or builds the
// default event payload when no template is set. A template must render
// to a JSON object.
func (e *Engine) webhookPayload(a *Action, tmplCtx TemplateContext) (map[string]any, error) {
	if a.PayloadTemplate == "" {
		return map[string]any{
			"event": "strategy_triggered",
			"strategy": map[string]any{
				"id":   tmplCtx.Strategy.ID,
				"name": tmplCtx.Strategy.Name,
			},
			"device": map[string]any{
				"id":   tmplCtx.Device.ID,
				"name": tmplCtx.Device.Name,
			},
			"sensor": map[string]any{
				"id":    tmplCtx.Sensor.ID,
				"name":  tmplCtx.Sensor.Name,
				"value": tmplCtx.Value,
			},
			"timestamp": tmplCtx.Timestamp,
		}, nil
	}

	rendered, err := renderTemplate(a.PayloadTemplate, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayloadTemplate, err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(rendered), &payload); err != nil {
		return nil, fmt.Errorf("%w: rendered payload is not a JSON object", ErrInvalidPayloadTemplate)
	}
	return payload, nil
}
