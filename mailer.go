package auth

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// MailerConfig holds the SMTP settings for email delivery.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c MailerConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("mailer: missing SMTP host")
	}
	if c.Port == 0 {
		return fmt.Errorf("mailer: missing SMTP port")
	}
	if c.From == "" {
		return fmt.Errorf("mailer: missing from address")
	}
	return nil
}

// Mailer delivers one-time codes over SMTP. It satisfies DeliveryChannel;
// wrap it with NewBoundedDelivery before handing it to the gateway.
type Mailer struct {
	config MailerConfig
	dialer *gomail.Dialer
	logger Logger
}

// MailerOption customizes Mailer construction.
type MailerOption func(*Mailer)

// WithMailerLogger overrides the default logger.
func WithMailerLogger(logger Logger) MailerOption {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMailer creates an SMTP-backed delivery channel.
func NewMailer(config MailerConfig, opts ...MailerOption) (*Mailer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	m := &Mailer{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

var _ DeliveryChannel = (*Mailer)(nil)

// DeliverVerificationCode emails the 6-digit activation code.
func (m *Mailer) DeliverVerificationCode(ctx context.Context, user *User, code string, expiresAt time.Time) error {
	subject := "Your verification code"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour verification code is: %s\n\nIt expires in %s. If you did not request this, you can ignore this email.\n",
		displayName(user),
		code,
		humanTTL(expiresAt),
	)
	return m.send(ctx, user.Email, subject, body)
}

// DeliverResetToken emails the password reset token.
func (m *Mailer) DeliverResetToken(ctx context.Context, user *User, token string, expiresAt time.Time) error {
	subject := "Your password reset token"
	body := fmt.Sprintf(
		"Hi %s,\n\nUse this token to reset your password: %s\n\nIt expires in %s. If you did not request a reset, you can ignore this email.\n",
		displayName(user),
		token,
		humanTTL(expiresAt),
	)
	return m.send(ctx, user.Email, subject, body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("mailer send failed: %v", err)
		return err
	}

	return nil
}

func displayName(user *User) string {
	if user != nil && user.Name != "" {
		return user.Name
	}
	return "there"
}

func humanTTL(expiresAt time.Time) string {
	ttl := time.Until(expiresAt).Round(time.Minute)
	if ttl <= 0 {
		return "a few minutes"
	}
	return ttl.String()
}
