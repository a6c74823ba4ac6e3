package models

import "time"

// AlertEvent records a notification dispatched for a budget. The history
// is informational; the per-day dedup decision reads Budget.LastAlertDate,
// not this table.
type AlertEvent struct {
	Base
	BudgetID string    `gorm:"type:uuid;not null;index" json:"budget_id"`
	UserID   string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Severity string    `gorm:"not null" json:"severity"`
	Title    string    `gorm:"not null" json:"title"`
	Body     string    `json:"body"`
	SentAt   time.Time `gorm:"not null" json:"sent_at"`
}
