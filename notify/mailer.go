package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"
)

// EmailSender delivers one rendered email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one rendered text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMTPSender delivers over SMTP.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // auto, starttls, ssl or none
	InsecureSkipVerify bool
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host, InsecureSkipVerify: s.InsecureSkipVerify}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.InsecureSkipVerify}
		d.StartTLSPolicy = mail.NoStartTLS
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Mailer drains a RedisQueue and hands rendered messages to the senders.
// Failed deliveries are logged and dropped.
type Mailer struct {
	queue     *RedisQueue
	templates *Templates
	email     EmailSender
	sms       SMSSender
	log       *zap.Logger
	wait      time.Duration
}

// NewMailer builds a Mailer. sms may be nil, in which case text messages
// are logged and dropped.
func NewMailer(queue *RedisQueue, templates *Templates, email EmailSender, sms SMSSender, log *zap.Logger) *Mailer {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		queue:     queue,
		templates: templates,
		email:     email,
		sms:       sms,
		log:       log.Named("mailer"),
		wait:      time.Second,
	}
}

// Run processes envelopes until ctx is done.
func (m *Mailer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		env, err := m.queue.Dequeue(ctx, m.wait)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			m.log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(m.wait):
			}
			continue
		}
		if err := m.Deliver(ctx, env); err != nil {
			m.log.Warn("delivery failed", zap.String("kind", string(env.Kind)), zap.Error(err))
		}
	}
}

// Deliver renders and sends one envelope.
func (m *Mailer) Deliver(ctx context.Context, env Envelope) error {
	switch env.Kind {
	case KindEmail:
		if env.Email == nil {
			return errors.New("email envelope without message")
		}
		if m.email == nil {
			return errors.New("no email sender configured")
		}
		body, err := m.templates.Render(env.Email.Template, env.Email.Vars)
		if err != nil {
			return err
		}
		if err := m.email.Send(ctx, env.Email.To, env.Email.Subject, body); err != nil {
			return err
		}
		m.log.Debug("email sent", zap.String("to", env.Email.To), zap.String("template", env.Email.Template))
		return nil
	case KindSMS:
		if env.SMS == nil {
			return errors.New("sms envelope without message")
		}
		if m.sms == nil {
			m.log.Info("sms dropped, no sender configured", zap.String("to", env.SMS.To))
			return nil
		}
		body, err := m.templates.Render(env.SMS.Template, env.SMS.Vars)
		if err != nil {
			return err
		}
		return m.sms.SendSMS(ctx, env.SMS.To, body)
	}
	return fmt.Errorf("unknown envelope kind %q", env.Kind)
}
