// Package notifier emails run reports.
package notifier

import (
	"errors"
	"fmt"

	"github.com/ibeckermayer/engage4me/internal/config"
	"github.com/ibeckermayer/engage4me/internal/notifier/providers"
	"github.com/ibeckermayer/engage4me/internal/report"
)

// ErrNoRecipient is returned when no destination address is configured.
var ErrNoRecipient = errors.New("no recipient address configured")

// Notifier handles sending report notifications
type Notifier struct {
	sender Sender
	to     string
}

// Sender defines the interface for email sending
type Sender interface {
	Send(to, subject, htmlBody, plainBody string) error
}

// New creates a new notifier delivering to the given address
func New(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

// NewFromConfig creates a notifier based on configuration
func NewFromConfig(cfg config.EmailConfig) (*Notifier, error) {
	var sender Sender

	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("smtp provider needs smtp_host")
		}
		sender = providers.NewSMTPSender(
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.SMTPUser,
			cfg.SMTPPass,
			cfg.FromAddr,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", cfg.Provider)
	}

	return New(sender, cfg.ToAddr), nil
}

// SendReport renders r and emails it.
func (n *Notifier) SendReport(r *report.Run) error {
	if n.to == "" {
		return ErrNoRecipient
	}
	rendered, err := report.Render(r)
	if err != nil {
		return err
	}
	if err := n.sender.Send(n.to, rendered.Subject, rendered.HTMLBody, rendered.PlainBody); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}
