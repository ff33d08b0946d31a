package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DriverSMTP selects the SMTP relay driver.
	DriverSMTP = "smtp"
	// DriverSES selects the Amazon SES v2 driver.
	DriverSES = "ses"
)

var (
	// ErrUnknownDriver indicates an unsupported mail driver.
	ErrUnknownDriver = errors.New("mail: unknown driver")
	// ErrNoRecipients is returned when To/Cc/Bcc are all empty.
	ErrNoRecipients = errors.New("mail: no recipients provided")
	// ErrNoSender is returned when both Message.From and the configured default From are empty.
	ErrNoSender = errors.New("mail: no sender provided")
)

// Message represents an email payload.
type Message struct {
	// From is an optional explicit sender; the driver default is used when empty.
	From string
	To   []string
	Cc   []string
	Bcc  []string

	Subject string
	// TextBody is the plain-text body; preferred when HTMLBody is empty.
	TextBody string
	HTMLBody string

	// Tags are echoed back by the provider in delivery callbacks.
	Tags map[string]string
}

func (m Message) recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// Mail abstracts an email provider.
type Mail interface {
	io.Closer
	// Send dispatches msg and returns the provider message id.
	Send(ctx context.Context, msg Message) (string, error)
}

// FactoryOptions groups config for supported mail drivers.
type FactoryOptions struct {
	SMTP SMTPConfig
	SES  SESConfig
}

// NewFromDriver constructs a Mail implementation by driver name.
func NewFromDriver(ctx context.Context, driver string, opts FactoryOptions) (Mail, error) {
	switch strings.TrimSpace(driver) {
	case "", DriverSMTP:
		return NewSMTP(opts.SMTP)
	case DriverSES:
		return NewSES(ctx, opts.SES)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
