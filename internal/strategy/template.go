package strategy

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// TemplateContext is the data available to notification and webhook
// templates. Templates reference it with the usual dot syntax, e.g.
// {{.Device.Name}}, {{.Sensor.Name}}, {{.Value}}, {{.Strategy.Name}},
// {{.Timestamp}}.
type TemplateContext struct {
	Device struct {
		ID     string
		Name   string
		Status string
	}
	Sensor struct {
		ID   string
		Name string
		Type string
	}
	Value    any
	Strategy struct {
		ID   string
		Name string
	}
	Timestamp string
}

func newTemplateContext(s *Strategy, dev *device.Device, sensor *device.Sensor, data *telemetry.SensorData) TemplateContext {
	var ctx TemplateContext
	ctx.Device.ID = dev.DeviceID
	ctx.Device.Name = dev.Name
	ctx.Device.Status = string(dev.Status)
	ctx.Sensor.ID = sensor.ID
	ctx.Sensor.Name = sensor.Name
	ctx.Sensor.Type = sensor.SensorType
	ctx.Value = data.Value()
	ctx.Strategy.ID = s.ID
	ctx.Strategy.Name = s.Name
	ctx.Timestamp = data.Timestamp.UTC().Format(time.RFC3339)
	return ctx
}

// renderTemplate executes a text/template body against the context.
func renderTemplate(text string, ctx TemplateContext) (string, error) {
	tmpl, err := template.New("action").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return buf.String(), nil
}

// defaultSubject is the notification subject used when no template is
// configured.
func defaultSubject(s *Strategy) string {
	return fmt.Sprintf("NovaCloud strategy triggered: %s", s.Name)
}

// defaultBody is the notification body used when no template is
// configured.
func defaultBody(ctx TemplateContext) string {
	return fmt.Sprintf(
		"Strategy %q fired.\n\nDevice: %s (%s)\nSensor: %s\nValue: %v\nTime: %s\n",
		ctx.Strategy.Name, ctx.Device.Name, ctx.Device.ID,
		ctx.Sensor.Name, ctx.Value, ctx.Timestamp,
	)
}
