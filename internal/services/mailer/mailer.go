// Package mailer sends delivery jobs over SMTP using go-mail.
package mailer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/carnetapp/carnetd/internal/config"
	"github.com/carnetapp/carnetd/internal/delivery"
	"github.com/wneessen/go-mail"
)

// Mailer is the SMTP implementation of delivery.Transport.
type Mailer struct {
	cfg *config.SMTPConfig
}

// New creates a mailer. Missing host or from address is a configuration
// error and fails here, at startup, rather than on first dispatch.
func New(cfg *config.SMTPConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &Mailer{cfg: cfg}, nil
}

// Send delivers one job. The dial and the send both run under the caller's
// context, so the dispatcher's per-attempt timeout bounds the whole thing.
func (m *Mailer) Send(ctx context.Context, job delivery.Job) error {
	msg := mail.NewMsg()

	if m.cfg.FromName != "" {
		if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(m.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(job.Recipient); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(job.Subject)
	msg.SetBodyString(mail.TypeTextHTML, job.HTMLBody)

	if job.Attachment != nil {
		if err := msg.AttachReader(job.Attachment.Filename,
			bytes.NewReader(job.Attachment.Content),
			mail.WithFileContentType(mail.ContentType(job.Attachment.ContentType))); err != nil {
			return fmt.Errorf("attaching %s: %w", job.Attachment.Filename, err)
		}
	}

	client, err := m.newClient()
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func (m *Mailer) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
	}

	if m.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS (SSL) for port 465, STARTTLS for others
		if m.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if m.cfg.Username != "" && m.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	return mail.NewClient(m.cfg.Host, opts...)
}
