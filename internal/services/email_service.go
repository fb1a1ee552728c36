package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// DeliveryReceipt lists the recipient addresses the relay accepted.
type DeliveryReceipt struct {
	Accepted []string
}

// AcceptedFor reports whether the first accepted address is email.
func (r *DeliveryReceipt) AcceptedFor(email string) bool {
	if r == nil || len(r.Accepted) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Accepted[0]), strings.TrimSpace(email))
}

type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) (*DeliveryReceipt, error)
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpMailer struct {
	dialer dialer
	from   string
}

func NewSMTPMailer(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword),
		from:   fromEmail,
	}
}

// Send delivers one HTML message. gomail fails the whole send when the relay
// rejects RCPT TO, so a nil error means the recipient was accepted.
func (s *smtpMailer) Send(ctx context.Context, to, subject, htmlBody string) (*DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return &DeliveryReceipt{Accepted: []string{to}}, nil
}

const (
	VerificationCodeSubject   = "verification code"
	PasswordResetCodeSubject  = "Forgot Password Verification code"
	codeEmailPurposeVerify    = "verify your email address"
	codeEmailPurposeSetNewPwd = "set new password"
)

func VerificationCodeEmail(code string) string {
	return codeEmail(code, codeEmailPurposeVerify, VerificationCodeTTL)
}

func PasswordResetCodeEmail(code string) string {
	return codeEmail(code, codeEmailPurposeSetNewPwd, PasswordResetCodeTTL)
}

func codeEmail(code, purpose string, ttl time.Duration) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 8px;">
			<h2 style="color: #4CAF50; text-align: center;">Verification Code</h2>
			<p>Dear User,</p>
			<p>Your verification code is:</p>
			<div style="text-align: center; margin: 20px 0;">
				<span style="font-size: 24px; font-weight: bold; color: #4CAF50; padding: 10px 20px; border: 1px solid #4CAF50; border-radius: 5px;">%s</span>
			</div>
			<p>Please use this code to %s. The code will expire in %d minutes.</p>
			<p>If you did not request this, please ignore this email.</p>
			<p style="font-size: 12px; color: #aaa;">This is an automated message. Please do not reply to this email.</p>
		</div>
	`, code, purpose, int(ttl.Minutes()))
}

// ErrMailDisabled is returned by the mailer used when no SMTP relay is configured.
var ErrMailDisabled = errors.New("mail transport is not configured")

type disabledMailer struct{}

// NewDisabledMailer returns a Mailer that refuses every message.
func NewDisabledMailer() Mailer { return disabledMailer{} }

func (disabledMailer) Send(context.Context, string, string, string) (*DeliveryReceipt, error) {
	return nil, ErrMailDisabled
}
