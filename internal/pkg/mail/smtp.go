package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

var ErrSMTPHostPortRequired = errors.New("mail: smtp host and port are required")

// SMTPConfig configures the relay driver. ImplicitTLS is for port 465 style
// relays; otherwise STARTTLS is used whenever the server offers it.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	ImplicitTLS bool
	Timeout     time.Duration
}

// SMTP sends one message per connection. The provider id it reports is the
// Message-ID without angle brackets. Tags travel in an X-SMTPAPI header so
// SendGrid relays echo them back in event webhooks.
type SMTP struct {
	cfg  SMTPConfig
	addr string
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrSMTPHostPortRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	d := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTP{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		dial: d.DialContext,
	}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) (string, error) {
	rcpts := msg.recipients()
	if len(rcpts) == 0 {
		return "", ErrNoRecipients
	}
	from := msg.From
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		return "", ErrNoSender
	}

	id := randomHex(16) + "@" + s.cfg.Host
	raw, err := compose(from, id, msg)
	if err != nil {
		return "", err
	}

	if err := s.deliver(ctx, from, rcpts, raw); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SMTP) deliver(ctx context.Context, from string, rcpts []string, raw []byte) error {
	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	if s.cfg.ImplicitTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12})
	}
	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok && !s.cfg.ImplicitTLS {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTP) Close() error { return nil }

// compose renders an RFC 5322 message. Bcc is left out of the headers.
func compose(from, messageID string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from)
	header("To", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		header("Cc", strings.Join(msg.Cc, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Message-ID", "<"+messageID+">")
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	if len(msg.Tags) > 0 {
		api, err := json.Marshal(map[string]any{"unique_args": msg.Tags})
		if err != nil {
			return nil, err
		}
		header("X-SMTPAPI", string(api))
	}

	if msg.HTMLBody == "" || msg.TextBody == "" {
		ct, body := "text/plain; charset=UTF-8", msg.TextBody
		if msg.HTMLBody != "" {
			ct, body = "text/html; charset=UTF-8", msg.HTMLBody
		}
		header("Content-Type", ct)
		buf.WriteString("\r\n" + body)
		return buf.Bytes(), nil
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	for _, p := range []struct{ ct, body string }{
		{"text/plain; charset=UTF-8", msg.TextBody},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ct}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")
	buf.Write(parts.Bytes())
	return buf.Bytes(), nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
