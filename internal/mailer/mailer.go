package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured indicates the mailer has no SMTP host to deliver
// through.
var ErrNotConfigured = errors.New("mailer: smtp not configured")

// Options configures the SMTP mailer.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope sender and From header address.
	From string

	// Timeout bounds the whole delivery including connection setup.
	// Zero means 30 seconds.
	Timeout time.Duration
}

const defaultTimeout = 30 * time.Second

// Mailer delivers notification emails over SMTP with PLAIN
// authentication when credentials are configured.
type Mailer struct {
	opts Options
}

// New creates an SMTP mailer. A mailer with an empty host is valid but
// fails every Send with ErrNotConfigured, so callers can wire it
// unconditionally.
func New(opts Options) *Mailer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Mailer{opts: opts}
}

// Send delivers one plain-text message to the recipients.
func (m *Mailer) Send(ctx context.Context, to []string, subject, body string) error {
	if m.opts.Host == "" {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("mailer: no recipients")
	}

	addr := net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
	msg := buildMessage(m.opts.From, to, subject, body)

	var auth smtp.Auth
	if m.opts.Username != "" {
		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
	}

	deadline := time.Now().Add(m.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan error, 1)
	go func() {
		done <- sendMail(addr, m.opts.Host, auth, m.opts.From, to, msg, deadline)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sending mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending mail: %w", ctx.Err())
	}
}

// sendMail is smtp.SendMail with a connection deadline, which the
// stdlib helper does not expose.
func sendMail(addr, host string, auth smtp.Auth, from string, to []string, msg []byte, deadline time.Time) error {
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so templated subjects cannot inject
// additional headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
