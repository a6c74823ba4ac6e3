package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"dinero/internal/models"
	"dinero/internal/notify"
	"dinero/internal/testutil"
)

type sentAlert struct {
	budgetID string
	title    string
	severity notify.Severity
}

// fakeNotifier captures dispatched alerts and can be told to fail for
// specific budgets.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentAlert
	failFor map[string]bool
}

func (f *fakeNotifier) Send(budgetID, title, body string, severity notify.Severity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[budgetID] {
		return fmt.Errorf("dispatch refused for %s", budgetID)
	}
	f.sent = append(f.sent, sentAlert{budgetID: budgetID, title: title, severity: severity})
	return nil
}

func (f *fakeNotifier) sentFor(budgetID string) []sentAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentAlert
	for _, s := range f.sent {
		if s.budgetID == budgetID {
			out = append(out, s)
		}
	}
	return out
}

func TestReconcileAlerts(t *testing.T) {
	t.Run("exceeded_budget_alerts_critical", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		budgets := NewBudgetService(db)
		sync := NewSpendSyncService(budgets, NewLedgerReader(db))
		notifier := &fakeNotifier{}
		alerts := NewAlertLogService(db)
		sched := NewAlertScheduler(budgets, sync, notifier, alerts, time.Hour, 90*24*time.Hour)

		user := testutil.CreateTestUser(t, db)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		budget := testutil.CreateTestBudget(t, db, user.ID, nil, start)
		testutil.CreateTestExpense(t, db, user.ID, nil, 120000, start.AddDate(0, 0, 5))

		now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
		sched.Reconcile(now)

		sent := notifier.sentFor(budget.ID)
		if len(sent) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(sent))
		}
		if sent[0].severity != notify.SeverityCritical {
			t.Errorf("expected critical severity, got %s", sent[0].severity)
		}

		got, err := budgets.GetBudget(budget.ID)
		testutil.AssertNoError(t, err)
		if got.LastAlertDate == nil || !got.LastAlertDate.Equal(now) {
			t.Errorf("expected last alert date %v, got %v", now, got.LastAlertDate)
		}

		var eventCount int64
		db.Model(&models.AlertEvent{}).Where("budget_id = ?", budget.ID).Count(&eventCount)
		if eventCount != 1 {
			t.Errorf("expected 1 recorded alert event, got %d", eventCount)
		}
	})

	t.Run("at_most_one_alert_per_day", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		budgets := NewBudgetService(db)
		sync := NewSpendSyncService(budgets, NewLedgerReader(db))
		notifier := &fakeNotifier{}
		sched := NewAlertScheduler(budgets, sync, notifier, NewAlertLogService(db), time.Hour, 90*24*time.Hour)

		user := testutil.CreateTestUser(t, db)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		budget := testutil.CreateTestBudget(t, db, user.ID, nil, start)
		testutil.CreateTestExpense(t, db, user.ID, nil, 120000, start.AddDate(0, 0, 5))

		morning := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
		evening := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
		nextDay := time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC)

		sched.Reconcile(morning)
		sched.Reconcile(evening)
		if got := len(notifier.sentFor(budget.ID)); got != 1 {
			t.Fatalf("expected 1 alert on the first day, got %d", got)
		}

		sched.Reconcile(nextDay)
		if got := len(notifier.sentFor(budget.ID)); got != 2 {
			t.Fatalf("expected a second alert the next day, got %d", got)
		}
	})

	t.Run("failed_dispatch_retries_and_spares_others", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		budgets := NewBudgetService(db)
		sync := NewSpendSyncService(budgets, NewLedgerReader(db))
		user := testutil.CreateTestUser(t, db)
		catA := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		catB := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		budgetA := testutil.CreateTestBudget(t, db, user.ID, &catA.ID, start)
		budgetB := testutil.CreateTestBudget(t, db, user.ID, &catB.ID, start)
		testutil.CreateTestExpense(t, db, user.ID, &catA.ID, 120000, start.AddDate(0, 0, 5))
		testutil.CreateTestExpense(t, db, user.ID, &catB.ID, 120000, start.AddDate(0, 0, 5))

		notifier := &fakeNotifier{failFor: map[string]bool{budgetA.ID: true}}
		sched := NewAlertScheduler(budgets, sync, notifier, NewAlertLogService(db), time.Hour, 90*24*time.Hour)

		now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
		sched.Reconcile(now)

		if got := len(notifier.sentFor(budgetB.ID)); got != 1 {
			t.Fatalf("expected healthy budget to alert, got %d", got)
		}
		if got := len(notifier.sentFor(budgetA.ID)); got != 0 {
			t.Fatalf("expected failing budget to send nothing, got %d", got)
		}

		// The failed budget was never marked, so the next pass retries it.
		notifier.mu.Lock()
		notifier.failFor = nil
		notifier.mu.Unlock()

		sched.Reconcile(now.Add(time.Hour))
		if got := len(notifier.sentFor(budgetA.ID)); got != 1 {
			t.Fatalf("expected retry to succeed, got %d alerts", got)
		}
		if got := len(notifier.sentFor(budgetB.ID)); got != 1 {
			t.Fatalf("expected no duplicate for healthy budget, got %d", got)
		}
	})

	t.Run("disabled_alerts_stay_silent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		budgets := NewBudgetService(db)
		sync := NewSpendSyncService(budgets, NewLedgerReader(db))
		notifier := &fakeNotifier{}
		sched := NewAlertScheduler(budgets, sync, notifier, NewAlertLogService(db), time.Hour, 90*24*time.Hour)

		user := testutil.CreateTestUser(t, db)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		budget := testutil.CreateTestBudget(t, db, user.ID, nil, start)
		db.Model(budget).Update("is_alert_enabled", false)
		testutil.CreateTestExpense(t, db, user.ID, nil, 120000, start.AddDate(0, 0, 5))

		sched.Reconcile(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

		if got := len(notifier.sentFor(budget.ID)); got != 0 {
			t.Fatalf("expected no alerts for disabled budget, got %d", got)
		}
	})

	t.Run("expiring_soon_sends_info_notice", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		budgets := NewBudgetService(db)
		sync := NewSpendSyncService(budgets, NewLedgerReader(db))
		notifier := &fakeNotifier{}
		sched := NewAlertScheduler(budgets, sync, notifier, NewAlertLogService(db), time.Hour, 90*24*time.Hour)

		user := testutil.CreateTestUser(t, db)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		budget := testutil.CreateTestBudget(t, db, user.ID, nil, start)

		// Two days before the end, well under the threshold.
		sched.Reconcile(time.Date(2024, 1, 29, 10, 0, 0, 0, time.UTC))

		sent := notifier.sentFor(budget.ID)
		if len(sent) != 1 {
			t.Fatalf("expected 1 notice, got %d", len(sent))
		}
		if sent[0].severity != notify.SeverityInfo {
			t.Errorf("expected info severity, got %s", sent[0].severity)
		}

		// Informational notices are not deduplicated per day and do not
		// consume the daily threshold alert slot.
		sched.Reconcile(time.Date(2024, 1, 29, 16, 0, 0, 0, time.UTC))
		if got := len(notifier.sentFor(budget.ID)); got != 2 {
			t.Fatalf("expected a second notice the same day, got %d", got)
		}

		got, err := budgets.GetBudget(budget.ID)
		testutil.AssertNoError(t, err)
		if got.LastAlertDate != nil {
			t.Errorf("expected info notices to leave last alert date unset, got %v", got.LastAlertDate)
		}
	})
}

func TestReconcileRollover(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	budgets := NewBudgetService(db)
	sync := NewSpendSyncService(budgets, NewLedgerReader(db))
	notifier := &fakeNotifier{}
	sched := NewAlertScheduler(budgets, sync, notifier, NewAlertLogService(db), time.Hour, 90*24*time.Hour)

	user := testutil.CreateTestUser(t, db)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	budget := testutil.CreateTestBudget(t, db, user.ID, nil, start)
	db.Model(budget).Updates(map[string]interface{}{"is_recurring": true, "spent": 95000})

	// An expense already sitting in the upcoming period.
	testutil.CreateTestExpense(t, db, user.ID, nil, 3000, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC))

	sched.Reconcile(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))

	got, err := budgets.GetBudget(budget.ID)
	testutil.AssertNoError(t, err)

	wantStart := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)
	if !got.StartDate.Equal(wantStart) || !got.EndDate.Equal(wantEnd) {
		t.Errorf("expected window %v..%v, got %v..%v", wantStart, wantEnd, got.StartDate, got.EndDate)
	}
	if got.Spent != 3000 {
		t.Errorf("expected spent recomputed to 3000, got %d", got.Spent)
	}
}

func TestReconcilePurge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	budgets := NewBudgetService(db)
	sync := NewSpendSyncService(budgets, NewLedgerReader(db))
	sched := NewAlertScheduler(budgets, sync, &fakeNotifier{}, NewAlertLogService(db), time.Hour, 90*24*time.Hour)

	user := testutil.CreateTestUser(t, db)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old := testutil.CreateTestBudget(t, db, user.ID, nil, now.AddDate(-1, 0, 0))
	db.Model(old).Update("is_active", false)

	sched.Reconcile(now)

	var count int64
	db.Model(&models.Budget{}).Where("id = ?", old.ID).Count(&count)
	if count != 0 {
		t.Error("expected long-expired budget to be purged")
	}
}
