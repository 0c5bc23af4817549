// Package email provides email alert sending via SMTP with an optional
// Amazon SES fallback.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"

	"github.com/subwatch/subwatch/internal/alerts"
	"github.com/subwatch/subwatch/internal/domain"
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// RateLimit caps outbound sends per second. Zero means unlimited.
	RateLimit float64
	SES       SESConfig
}

// SESConfig holds the Amazon SES fallback provider settings. When enabled,
// messages that hit a transient SMTP failure are retried through SES.
type SESConfig struct {
	Enabled         bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Sender implements email alert delivery via SMTP.
type Sender struct {
	config   Config
	auth     smtp.Auth
	limiter  *rate.Limiter
	fallback *ses.Client
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(ctx context.Context, config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	var fallback *ses.Client
	if config.SES.Enabled {
		if config.SES.Region == "" {
			return nil, errors.New("email sender: SES region is required when SES fallback is enabled")
		}
		client, err := newSESClient(ctx, config.SES)
		if err != nil {
			return nil, fmt.Errorf("email sender: configure SES fallback: %w", err)
		}
		fallback = client
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"rate_limit", config.RateLimit,
		"ses_fallback", config.SES.Enabled,
	)

	return &Sender{
		config:   config,
		auth:     auth,
		limiter:  rate.NewLimiter(limit, 1),
		fallback: fallback,
	}, nil
}

func newSESClient(ctx context.Context, cfg SESConfig) (*ses.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(awsCfg), nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.AlertChannel {
	return domain.AlertChannelEmail
}

// Send delivers an email alert to a single recipient. SMTP is tried first;
// when an SES fallback is configured it picks up retryable SMTP failures.
func (s *Sender) Send(ctx context.Context, notification alerts.Notification) error {
	if !s.config.Enabled {
		return alerts.ErrChannelUnavailable
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	smtpErr := s.sendSMTP(ctx, notification)
	if smtpErr == nil {
		return nil
	}

	// Only transient SMTP trouble goes to SES. A permanent rejection
	// (bad recipient, policy refusal) would fail there too.
	if !s.shouldFallback(smtpErr) {
		return smtpErr
	}

	slog.Warn("smtp delivery failed, retrying via ses",
		"to", notification.To,
		"error", smtpErr,
	)

	if err := s.sendSES(ctx, notification); err != nil {
		return fmt.Errorf("ses fallback: %w (smtp: %w)", err, smtpErr)
	}
	return nil
}

// shouldFallback reports whether an SMTP failure warrants a second attempt
// through the SES fallback.
func (s *Sender) shouldFallback(smtpErr error) bool {
	return s.fallback != nil && IsRetryable(smtpErr)
}

func (s *Sender) sendSMTP(ctx context.Context, notification alerts.Notification) error {
	msg := s.buildMessage(notification)
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	return s.sendWithSTARTTLS(ctx, addr, tlsConfig, notification.To, msg)
}

func (s *Sender) sendSES(ctx context.Context, notification alerts.Notification) error {
	_, err := s.fallback.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(extractEmail(s.config.FromAddress)),
		Destination: &types.Destination{
			ToAddresses: []string{notification.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(notification.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(notification.Body)},
			},
		},
	})
	return err
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(notification alerts.Notification) []byte {
	var msg strings.Builder

	// Headers in deterministic order
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", notification.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", notification.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(notification.Body)

	return []byte(msg.String())
}

// sendWithSTARTTLS sends an email using STARTTLS (port 587).
func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, recipient string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	from := extractEmail(s.config.FromAddress)
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// IsRetryable determines if a delivery error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures
	if strings.Contains(errStr, "421") ||
		strings.Contains(errStr, "450") ||
		strings.Contains(errStr, "451") ||
		strings.Contains(errStr, "452") {
		return true
	}

	// 552 - mailbox full is sometimes retryable
	if strings.Contains(errStr, "552") {
		return true
	}

	return false
}
