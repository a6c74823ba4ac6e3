// Package notify delivers budget alerts to the outside world. The
// scheduler only sees the Notifier interface; picking a transport is a
// deployment concern.
package notify

import (
	"dinero/internal/config"
	"dinero/internal/logger"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier dispatches a single notification. Send is fire-and-forget
// from the caller's point of view: a failure is returned as an error for
// logging, never panics, and must not be treated as fatal.
type Notifier interface {
	Send(budgetID, title, body string, severity Severity) error
}

// LogNotifier writes notifications to the application log. It is the
// default transport and the fallback for development setups.
type LogNotifier struct{}

// Send implements Notifier.
func (LogNotifier) Send(budgetID, title, body string, severity Severity) error {
	logger.Get().Infow("budget notification",
		"budget_id", budgetID,
		"severity", string(severity),
		"title", title,
		"body", body,
	)
	return nil
}

// FromConfig selects a Notifier implementation based on configuration.
// Unknown or incomplete settings fall back to the log notifier.
func FromConfig(cfg *config.Config) Notifier {
	switch cfg.Notifier {
	case "email":
		if cfg.SMTPHost == "" || cfg.MailFrom == "" || cfg.MailTo == "" {
			logger.Get().Warn("email notifier selected but SMTP settings are incomplete, using log notifier")
			return LogNotifier{}
		}
		return NewEmailNotifier(cfg)
	case "telegram":
		if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
			logger.Get().Warn("telegram notifier selected but bot settings are incomplete, using log notifier")
			return LogNotifier{}
		}
		return NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	default:
		return LogNotifier{}
	}
}
