package models

import "time"

// BudgetPeriod represents the period type for a budget
type BudgetPeriod string

const (
	BudgetPeriodDaily     BudgetPeriod = "daily"
	BudgetPeriodWeekly    BudgetPeriod = "weekly"
	BudgetPeriodMonthly   BudgetPeriod = "monthly"
	BudgetPeriodQuarterly BudgetPeriod = "quarterly"
	BudgetPeriodYearly    BudgetPeriod = "yearly"
)

// BudgetStatus is derived from a budget snapshot and the current time.
// It is never persisted, so it cannot drift from its inputs.
type BudgetStatus string

const (
	BudgetStatusSafe     BudgetStatus = "safe"
	BudgetStatusWarning  BudgetStatus = "warning"
	BudgetStatusExceeded BudgetStatus = "exceeded"
	BudgetStatusExpired  BudgetStatus = "expired"
)

// DefaultAlertThreshold is the spend fraction at which a budget starts
// warning when no explicit threshold is configured.
const DefaultAlertThreshold = 0.8

// periodTick is the granularity of period boundaries. Windows are
// inclusive on both ends: the next period starts one tick after the
// previous one ends.
const periodTick = time.Second

// expiringSoonWindow is how close to the end date a budget counts as
// expiring soon.
const expiringSoonWindow = 3 * 24 * time.Hour

// Budget is a spending envelope for a category (or for all categories
// when CategoryID is nil) over a period. Spent is a cache of the sum of
// matching expense amounts inside [StartDate, EndDate]; the ledger is
// the source of truth.
type Budget struct {
	Base
	UserID         string       `gorm:"type:uuid;not null;index" json:"user_id"`
	CategoryID     *string      `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Name           string       `gorm:"not null" json:"name"`
	Amount         int64        `gorm:"type:bigint;not null" json:"amount"`
	Spent          int64        `gorm:"type:bigint;not null;default:0" json:"spent"`
	Period         BudgetPeriod `gorm:"not null" json:"period"`
	StartDate      time.Time    `gorm:"not null" json:"start_date"`
	EndDate        time.Time    `gorm:"not null" json:"end_date"`
	IsActive       bool         `gorm:"default:true" json:"is_active"`
	AlertThreshold float64      `gorm:"not null;default:0.8" json:"alert_threshold"`
	IsAlertEnabled bool         `gorm:"default:true" json:"is_alert_enabled"`
	IsRecurring    bool         `gorm:"default:false" json:"is_recurring"`
	LastAlertDate  *time.Time   `json:"last_alert_date,omitempty"`
	Currency       string       `gorm:"size:3;not null;default:USD" json:"currency"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// SpentPercentage returns how much of the budget has been used, capped
// at 100. A non-positive amount yields 0.
func (b *Budget) SpentPercentage() float64 {
	if b.Amount <= 0 {
		return 0
	}
	pct := float64(b.Spent) / float64(b.Amount) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Status derives the budget state from the snapshot and the given time.
// Precedence: a past end date always reads as expired, and spending over
// the amount always reads as exceeded even when the threshold rule would
// also classify it as warning.
func (b *Budget) Status(now time.Time) BudgetStatus {
	switch {
	case now.After(b.EndDate):
		return BudgetStatusExpired
	case b.Spent > b.Amount:
		return BudgetStatusExceeded
	case b.SpentPercentage() >= b.AlertThreshold*100:
		return BudgetStatusWarning
	default:
		return BudgetStatusSafe
	}
}

// RemainingAmount returns how much is left to spend. Negative when the
// budget is exceeded.
func (b *Budget) RemainingAmount() int64 {
	return b.Amount - b.Spent
}

// RemainingDays returns the number of whole days until the end date,
// never negative.
func (b *Budget) RemainingDays(now time.Time) int {
	days := int(b.EndDate.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// DailyAllowance returns how much can be spent per remaining day to stay
// within the budget, or 0 when no days remain.
func (b *Budget) DailyAllowance(now time.Time) int64 {
	days := b.RemainingDays(now)
	if days <= 0 {
		return 0
	}
	return b.RemainingAmount() / int64(days)
}

// IsExpiringSoon reports whether the end date falls within the next
// three days.
func (b *Budget) IsExpiringSoon(now time.Time) bool {
	return !now.Add(expiringSoonWindow).Before(b.EndDate)
}

// NextPeriodWindow computes the start and end of the period that follows
// the current one. The new window begins one tick after the old end.
// Monthly, quarterly and yearly periods use calendar addition so month
// length and leap years are respected; daily and weekly periods have no
// calendar irregularity and use fixed arithmetic.
func (b *Budget) NextPeriodWindow() (start, end time.Time) {
	start = b.EndDate.Add(periodTick)
	return start, PeriodEnd(start, b.Period)
}

// PeriodEnd returns the inclusive end timestamp of a period window that
// begins at start.
func PeriodEnd(start time.Time, period BudgetPeriod) time.Time {
	switch period {
	case BudgetPeriodDaily:
		return start.Add(24 * time.Hour).Add(-periodTick)
	case BudgetPeriodWeekly:
		return start.Add(7 * 24 * time.Hour).Add(-periodTick)
	case BudgetPeriodQuarterly:
		return start.AddDate(0, 3, 0).Add(-periodTick)
	case BudgetPeriodYearly:
		return start.AddDate(1, 0, 0).Add(-periodTick)
	default: // monthly
		return start.AddDate(0, 1, 0).Add(-periodTick)
	}
}
