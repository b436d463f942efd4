package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/driverincontrol/checkout/internal/pkg/env"
)

// Config holds SMTP settings. Enabled is false when no host is configured, in
// which case no mailer should be constructed.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
	Enabled  bool
}

// LoadConfig reads SMTP settings from the environment.
func LoadConfig() Config {
	host := env.GetEnv("SMTP_HOST", "")
	return Config{
		Host:     host,
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
		Enabled:  host != "",
	}
}

// SMTPMailer sends transactional emails via SMTP
type SMTPMailer struct {
	config Config
}

// NewSMTPMailer creates a mailer from the given config
func NewSMTPMailer(config Config) *SMTPMailer {
	if config.Sender == "" {
		config.Sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", config.Sender)
	}
	return &SMTPMailer{config: config}
}

// SendWelcomeEmail sends the login credentials issued for a new account.
func (m *SMTPMailer) SendWelcomeEmail(toEmail, password string) error {
	subject := "Your account is ready"
	body := fmt.Sprintf(
		"<h2>Welcome!</h2>"+
			"<p>Your payment was received and your account has been created.</p>"+
			"<p>Login: <strong>%s</strong><br>Password: <strong>%s</strong></p>"+
			"<p>Please change your password after your first login.</p>",
		toEmail, password,
	)
	return m.send(toEmail, subject, body)
}

// SendSubscriptionEmail confirms an activated subscription.
func (m *SMTPMailer) SendSubscriptionEmail(toEmail, planID string) error {
	subject := "Subscription confirmed"
	body := "<h2>Subscription confirmed</h2>" +
		"<p>Your subscription is now active.</p>"
	if planID != "" {
		body += fmt.Sprintf("<p>Plan: %s</p>", planID)
	}
	return m.send(toEmail, subject, body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	var auth smtp.Auth
	if m.config.Username != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.config.Sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, m.config.Sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}
