package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dinero/internal/logger"
	"dinero/internal/models"
	"dinero/internal/notify"
)

// AlertScheduler runs the periodic budget maintenance pass: rolling
// expired recurring budgets into their next period, recomputing spend
// caches from the ledger, dispatching threshold alerts, and purging
// long-expired budgets.
type AlertScheduler struct {
	budgets   BudgetServicer
	sync      SpendSynchronizer
	notifier  notify.Notifier
	alerts    AlertLogServicer
	interval  time.Duration
	retention time.Duration
	cron      *cron.Cron
}

// NewAlertScheduler creates a scheduler that reconciles every interval.
func NewAlertScheduler(
	budgets BudgetServicer,
	sync SpendSynchronizer,
	notifier notify.Notifier,
	alerts AlertLogServicer,
	interval time.Duration,
	retention time.Duration,
) *AlertScheduler {
	return &AlertScheduler{
		budgets:   budgets,
		sync:      sync,
		notifier:  notifier,
		alerts:    alerts,
		interval:  interval,
		retention: retention,
	}
}

// Start begins the periodic reconcile loop.
func (s *AlertScheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Reconcile(time.Now())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	logger.Get().Infow("alert scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *AlertScheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Get().Info("alert scheduler stopped")
}

// Reconcile runs one maintenance pass at the given time. Each phase
// isolates per-budget failures so one broken budget cannot starve the
// rest of the pass.
func (s *AlertScheduler) Reconcile(now time.Time) {
	s.rolloverPass(now)

	if err := s.sync.RecomputeActive(now); err != nil {
		logger.Get().Warnw("spend recompute pass reported errors", "error", err)
	}

	s.alertPass(now)

	if purged, err := s.budgets.PurgeExpired(now, s.retention); err != nil {
		logger.Get().Warnw("budget purge failed", "error", err)
	} else if purged > 0 {
		logger.Get().Infow("purged expired budgets", "count", purged)
	}
}

// rolloverPass advances expired recurring budgets by one period and
// recomputes their spend over the new window. A budget that has been
// dormant for several periods converges over successive passes.
func (s *AlertScheduler) rolloverPass(now time.Time) {
	expired, err := s.budgets.ListExpiredRecurring(now)
	if err != nil {
		logger.Get().Warnw("listing expired recurring budgets failed", "error", err)
		return
	}

	for _, budget := range expired {
		rolled, err := s.budgets.Rollover(budget.ID, now)
		if err != nil {
			logger.Get().Warnw("budget rollover failed",
				"budget_id", budget.ID,
				"error", err)
			continue
		}
		if err := s.sync.Recompute(rolled.ID); err != nil {
			logger.Get().Warnw("spend recompute after rollover failed",
				"budget_id", rolled.ID,
				"error", err)
		}
		logger.Get().Infow("budget rolled over",
			"budget_id", rolled.ID,
			"start_date", rolled.StartDate,
			"end_date", rolled.EndDate)
	}
}

// alertPass dispatches threshold alerts, at most one per budget per
// local calendar day. Exceeded budgets alert as critical, warning
// budgets as warning. Budgets ending within three days get an
// informational notice on every pass inside that window.
func (s *AlertScheduler) alertPass(now time.Time) {
	budgets, err := s.budgets.ListActiveCurrent(now)
	if err != nil {
		logger.Get().Warnw("listing budgets for alert pass failed", "error", err)
		return
	}

	for _, budget := range budgets {
		if !budget.IsAlertEnabled {
			continue
		}

		severity, title, body := alertMessage(&budget, now)
		if severity == "" {
			continue
		}

		// Threshold alerts fire at most once per day. Expiring-soon
		// notices are informational and bounded by their three-day
		// condition window instead; they must not consume the daily
		// slot or a later threshold alert would be suppressed.
		threshold := severity != notify.SeverityInfo
		if threshold && !shouldAlert(&budget, now) {
			continue
		}

		if err := s.notifier.Send(budget.ID, title, body, severity); err != nil {
			logger.Get().Warnw("alert dispatch failed",
				"budget_id", budget.ID,
				"error", err)
			continue
		}

		s.alerts.Record(budget.ID, budget.UserID, severity, title, body, now)

		if !threshold {
			continue
		}
		if err := s.budgets.MarkAlerted(budget.ID, now); err != nil {
			logger.Get().Warnw("marking budget alerted failed",
				"budget_id", budget.ID,
				"error", err)
		}
	}
}

// shouldAlert reports whether the budget has not yet alerted today.
func shouldAlert(b *models.Budget, now time.Time) bool {
	if b.LastAlertDate == nil {
		return true
	}
	return b.LastAlertDate.Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// alertMessage picks the severity and wording for the budget's current
// condition. An empty severity means nothing is worth alerting on.
func alertMessage(b *models.Budget, now time.Time) (notify.Severity, string, string) {
	switch b.Status(now) {
	case models.BudgetStatusExceeded:
		over := b.Spent - b.Amount
		return notify.SeverityCritical,
			fmt.Sprintf("Budget %q exceeded", b.Name),
			fmt.Sprintf("You have spent %s of your %s budget, %s over the limit.",
				formatMoney(b.Spent, b.Currency), formatMoney(b.Amount, b.Currency), formatMoney(over, b.Currency))
	case models.BudgetStatusWarning:
		return notify.SeverityWarning,
			fmt.Sprintf("Budget %q near its limit", b.Name),
			fmt.Sprintf("You have spent %s (%.0f%%) of your %s budget.",
				formatMoney(b.Spent, b.Currency), b.SpentPercentage(), formatMoney(b.Amount, b.Currency))
	default:
		if b.IsExpiringSoon(now) {
			return notify.SeverityInfo,
				fmt.Sprintf("Budget %q ends soon", b.Name),
				fmt.Sprintf("Your budget ends on %s with %s remaining.",
					b.EndDate.Format("Jan 2"), formatMoney(b.RemainingAmount(), b.Currency))
		}
		return "", "", ""
	}
}

func formatMoney(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}
