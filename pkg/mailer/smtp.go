package mailer

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig carries the connection settings for an SMTP backend. Password
// arrives decrypted; it is never logged.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Encryption is one of "starttls" (default), "tls" or "none".
	Encryption string
}

func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("smtp port %d out of range", c.Port)
	}
	if c.From == "" {
		return errors.New("smtp from address is required")
	}
	switch strings.ToLower(c.Encryption) {
	case "", "starttls", "tls", "none":
	default:
		return errors.Errorf("unknown smtp encryption %q", c.Encryption)
	}
	return nil
}

// SMTPSender delivers via go-mail. A client is built per send so config
// updates take effect without restarting workers.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	switch strings.ToLower(s.cfg.Encryption) {
	case "tls":
		opts = append(opts, gomail.WithSSL())
	case "none":
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}
	c, err := s.client()
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return errors.Wrapf(err, "from %q", s.cfg.From)
	}
	if err := m.To(msg.To...); err != nil {
		return errors.Wrap(err, "recipients")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Data)); err != nil {
			return errors.Wrapf(err, "attach %q", a.Filename)
		}
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrapf(err, "send via %s:%d", s.cfg.Host, s.cfg.Port)
	}
	return nil
}
