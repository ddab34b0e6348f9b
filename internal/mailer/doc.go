// Package mailer delivers rule-engine notification emails over SMTP.
//
// It is deliberately small: plain-text messages, PLAIN authentication
// when credentials are configured, and a hard delivery deadline. An
// unconfigured mailer is valid and rejects every send, which keeps the
// wiring unconditional in the composition root.
package mailer
