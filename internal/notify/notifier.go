// Package notify delivers signature workflow notifications. Delivery is
// fire-and-forget from the engine's perspective: a failed send is
// logged and never blocks a state transition.
package notify

import (
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/zap"
)

// Recipient is one notification target.
type Recipient struct {
	Email string
	Name  string
	Phone string
}

// Notifier is the outbound notification port.
type Notifier interface {
	// SendInvitation asks a signatory to review and sign a document.
	SendInvitation(to Recipient, documentName, senderName, signingLink string) error
	// SendCompletion announces a fully signed document.
	SendCompletion(to Recipient, documentName, signerName, downloadLink string) error
	// SendOTPNotice tells the signer an OTP went to their
	// Aadhaar-linked mobile number.
	SendOTPNotice(to Recipient, documentName string) error
	// SendReminder nudges a pending signatory.
	SendReminder(to Recipient, documentName, signingLink string, expiresIn time.Duration) error
}

// Config holds SMTP settings. With Enabled false every send is logged
// and reported as delivered, which is the development default.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
	AppURL   string
}

// EmailNotifier sends plain-text email over SMTP.
type EmailNotifier struct {
	cfg    Config
	logger *zap.Logger
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(cfg Config, logger *zap.Logger) *EmailNotifier {
	if cfg.AppName == "" {
		cfg.AppName = "LexSign"
	}
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger.With(zap.String("service", "notifier")),
		send:   smtp.SendMail,
	}
}

func (n *EmailNotifier) SendInvitation(to Recipient, documentName, senderName, signingLink string) error {
	subject := "Signature Request: " + documentName
	body := fmt.Sprintf(
		"Dear %s,\n\n%s has requested your digital signature on the document %q.\n\n"+
			"Review and sign here: %s\n\n"+
			"You will need your Aadhaar number and access to your Aadhaar-linked mobile number.\n\n"+
			"Best regards,\n%s Team\n",
		to.Name, senderName, documentName, signingLink, n.cfg.AppName)
	return n.deliver(to, subject, body)
}

func (n *EmailNotifier) SendCompletion(to Recipient, documentName, signerName, downloadLink string) error {
	subject := "Document Signed: " + documentName
	body := fmt.Sprintf(
		"Dear %s,\n\n%s has signed the document %q.\n\n"+
			"Download the signed document here: %s\n\n"+
			"The document was signed using Aadhaar-based e-Sign.\n\n"+
			"Best regards,\n%s Team\n",
		to.Name, signerName, documentName, downloadLink, n.cfg.AppName)
	return n.deliver(to, subject, body)
}

func (n *EmailNotifier) SendOTPNotice(to Recipient, documentName string) error {
	subject := "OTP Sent: " + documentName
	body := fmt.Sprintf(
		"Dear %s,\n\nAn OTP has been sent to your Aadhaar-linked mobile number for signing %q. "+
			"Please check your messages.\n\nBest regards,\n%s Team\n",
		to.Name, documentName, n.cfg.AppName)
	return n.deliver(to, subject, body)
}

func (n *EmailNotifier) SendReminder(to Recipient, documentName, signingLink string, expiresIn time.Duration) error {
	subject := "Reminder: Pending Signature Request - " + documentName
	body := fmt.Sprintf(
		"Dear %s,\n\nYou have a pending signature request for %q.\n"+
			"Time remaining: %s\n\nSign here: %s\n\nBest regards,\n%s Team\n",
		to.Name, documentName, formatRemaining(expiresIn), signingLink, n.cfg.AppName)
	return n.deliver(to, subject, body)
}

func (n *EmailNotifier) deliver(to Recipient, subject, body string) error {
	if !n.cfg.Enabled {
		n.logger.Info("email disabled, skipping delivery",
			zap.String("to", to.Email),
			zap.String("subject", subject))
		return nil
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.cfg.From, to.Email, subject, body))

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := n.send(addr, auth, n.cfg.From, []string{to.Email}, msg); err != nil {
		n.logger.Error("email delivery failed",
			zap.String("to", to.Email),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("sending email to %s: %w", to.Email, err)
	}

	n.logger.Info("email sent", zap.String("to", to.Email), zap.String("subject", subject))
	return nil
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expiring soon"
	}
	days := int(d.Hours()) / 24
	if days > 0 {
		return fmt.Sprintf("%d days", days)
	}
	return fmt.Sprintf("%d hours", int(d.Hours()))
}
