package strategy

import "errors"

var (
	// ErrStrategyNotFound indicates the strategy does not exist.
	ErrStrategyNotFound = errors.New("strategy: strategy not found")

	// ErrActionNotConfigured indicates an action is missing a field its
	// type requires (e.g. a control action without a target actuator).
	ErrActionNotConfigured = errors.New("strategy: action not configured")

	// ErrNoRecipient indicates a notification action resolved to no
	// email address from any source.
	ErrNoRecipient = errors.New("strategy: no notification recipient")

	// ErrDeliveryFailed indicates an action executed but its outbound
	// delivery (mail, command publish) was not accepted.
	ErrDeliveryFailed = errors.New("strategy: delivery failed")

	// ErrWebhookFailed indicates a webhook call returned a non-2xx
	// status or could not be performed.
	ErrWebhookFailed = errors.New("strategy: webhook call failed")

	// ErrInvalidPayloadTemplate indicates a webhook payload template
	// rendered to something that is not a JSON object.
	ErrInvalidPayloadTemplate = errors.New("strategy: invalid payload template")
)
