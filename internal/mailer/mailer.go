// Package mailer delivers account emails over SMTP.  Delivery is
// fire-and-forget from the caller's perspective: flows that trigger a mail
// succeed or fail on their own persistence, never on SMTP.
package mailer

import (
	"fmt"
	"log"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/charaka/user-auth-service/internal/config"
)

// Mailer is the outbound-mail contract consumed by handlers.  Tests swap in
// a fake; production uses the SMTP implementation below.
type Mailer interface {
	SendOTP(to, code string, ttlMinutes int) error
	SendWelcome(to, name, tempPassword string) error
}

// SMTPMailer sends through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.Config
}

func NewSMTPMailer(cfg config.Config) *SMTPMailer { return &SMTPMailer{cfg: cfg} }

func (m *SMTPMailer) configured() bool {
	return m.cfg.SMTPHost != "" && m.cfg.MailFrom != ""
}

// SendOTP mails a password-reset code with its validity window.
func (m *SMTPMailer) SendOTP(to, code string, ttlMinutes int) error {
	if !m.configured() {
		log.Printf("mailer: smtp not configured, skipping otp mail to %s", to)
		return nil
	}
	body := fmt.Sprintf(
		"Your OTP for resetting your password is %s.\nPlease don't share it with anyone.\nThis OTP will expire in %d minutes.",
		code, ttlMinutes)
	return m.send(to, "OTP for reset password", body)
}

// SendWelcome mails the temporary password of an admin-created account.
func (m *SMTPMailer) SendWelcome(to, name, tempPassword string) error {
	if !m.configured() {
		log.Printf("mailer: smtp not configured, skipping welcome mail to %s", to)
		return nil
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nAn account has been created for %s.\nYour temporary password is %s.\nPlease sign in and change it right away.",
		name, to, tempPassword)
	return m.send(to, "Your new account", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.MailFrom)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.SMTPUser, m.cfg.SMTPPass)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
