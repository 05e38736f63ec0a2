// Package email delivers the email channel over SMTP.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/config"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/service/common"
	"github.com/acme/lead-contact-engine/pkg/clock"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

const defaultSubject = "{{first_name}}, we saved your place"

// Dialer sends prepared messages. *gomail.Client satisfies it.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// Sender implements channel.Adapter over SMTP.
type Sender struct {
	dialer    Dialer
	fromName  string
	fromEmail string
	subject   string
	clock     clock.Clock
	logger    *logger.Logger
}

// NewSender builds a go-mail client from cfg.
func NewSender(cfg config.SMTPConfig, clk clock.Clock, log *logger.Logger) (*Sender, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: smtp client: %w", err)
	}
	return NewSenderWithDialer(client, cfg, clk, log), nil
}

// NewSenderWithDialer wires a Sender around an existing dialer.
func NewSenderWithDialer(dialer Dialer, cfg config.SMTPConfig, clk clock.Clock, log *logger.Logger) *Sender {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sender{
		dialer:    dialer,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
		subject:   subject,
		clock:     clk,
		logger:    log.Named("email"),
	}
}

// Send mails msg.Body to the lead. An unusable address is a failure, a
// relay problem is an error.
func (s *Sender) Send(ctx context.Context, msg channel.Message) (channel.SendResult, error) {
	m, err := s.build(msg)
	if err != nil {
		return channel.Failed(domain.FailureFailure, err.Error(), 0), nil
	}

	started := s.clock.Now()
	if err := s.dialer.DialAndSendWithContext(ctx, m); err != nil {
		return channel.SendResult{}, fmt.Errorf("email: smtp send: %w", err)
	}

	s.logger.Debug("email sent", zap.String("lead_id", msg.Lead.ID), zap.String("task_id", msg.TaskID))
	return channel.Delivered(s.clock.Now().Sub(started)), nil
}

func (s *Sender) build(msg channel.Message) (*gomail.Msg, error) {
	to := strings.TrimSpace(msg.Lead.Email)
	if to == "" {
		return nil, fmt.Errorf("lead has no email address")
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(common.Render(s.subject, msg.Vars))
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

var _ channel.Adapter = (*Sender)(nil)
