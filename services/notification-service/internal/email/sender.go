package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/carelinkhq/carelink/services/notification-service/internal/channel"
)

// Sender delivers email via unauthenticated SMTP (Mailpit-compatible in dev,
// a relay in production).
type Sender struct {
	addr string
	from string
}

func NewSender(host string, port string, from string) *Sender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@carelink.local"
	}
	return &Sender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *Sender) Available() bool {
	return !strings.HasPrefix(s.addr, ":")
}

// Send speaks SMTP over a context-bound connection. smtp.SendMail has no
// dial or IO timeout, so a stalled server would block the dispatch goroutine
// past any caller deadline; dialing ourselves and closing the connection on
// cancellation keeps every read interruptible.
func (s *Sender) Send(ctx context.Context, msg channel.Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := s.deliver(conn, msg); err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *Sender) deliver(conn net.Conn, msg channel.Message) error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		host = s.addr
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if err := c.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	raw := buildMessage(s.from, msg.Recipient, msg.Subject, msg.Content)
	if _, err := w.Write([]byte(raw)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

var _ channel.Sender = (*Sender)(nil)
