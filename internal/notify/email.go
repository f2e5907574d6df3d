package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailChannel delivers alert notifications over SMTP as an HTML mail.
type EmailChannel struct {
	host string
	port int
	user string
	pass string
	from string
	to   []string

	// sendMail is swappable in tests; defaults to transact.
	sendMail func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel builds the email channel. Returns an error when the config
// is incomplete so a half-configured channel is rejected at startup instead of
// failing every cycle.
func NewEmailChannel(host string, port int, user, pass, from string, to []string) (*EmailChannel, error) {
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("email_to must list at least one recipient")
	}
	return &EmailChannel{
		host:     host,
		port:     port,
		user:     user,
		pass:     pass,
		from:     from,
		to:       to,
		sendMail: transact,
	}, nil
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Send builds the MIME message and ships it in one SMTP transaction.
func (c *EmailChannel) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.to, ","))
	fmt.Fprintf(&msg, "Subject: %s\r\n", Subject(ev))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString("<!DOCTYPE html><html><body><p>")
	msg.WriteString(strings.ReplaceAll(RenderHTML(ev), "\n", "<br>"))
	msg.WriteString("</p></body></html>")

	var auth smtp.Auth
	if c.user != "" {
		auth = smtp.PlainAuth("", c.user, c.pass, c.host)
	}
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := c.sendMail(ctx, addr, auth, c.from, c.to, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// transact runs one SMTP transaction with the connection deadline taken from
// ctx. smtp.SendMail has no deadline of any kind, so a hung server would block
// the dispatch until TCP gives up; dialing explicitly lets every read and
// write on the connection expire with the dispatch timeout instead.
func transact(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
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
