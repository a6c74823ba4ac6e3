package services

import (
	"time"

	"dinero/internal/logger"
	"dinero/internal/models"
)

// spendSyncService keeps Budget.Spent in step with the ledger. Writes
// and deletes are applied incrementally to every matching budget; edits
// and the periodic scheduler pass fall back to a full recompute from
// the ledger, which also repairs any drift the incremental path left
// behind.
type spendSyncService struct {
	budgets BudgetServicer
	ledger  LedgerReader
}

// NewSpendSyncService creates a new SpendSynchronizer.
func NewSpendSyncService(budgets BudgetServicer, ledger LedgerReader) SpendSynchronizer {
	return &spendSyncService{budgets: budgets, ledger: ledger}
}

// OnExpenseWritten adds the expense amount to every budget the expense
// counts against.
func (s *spendSyncService) OnExpenseWritten(userID string, categoryID *string, amount int64, date time.Time) error {
	return s.apply(userID, categoryID, amount, date)
}

// OnExpenseDeleted backs the expense amount out of every budget it was
// counted against. The clamp in AdjustSpent keeps spent from going
// negative if the budget was recomputed in between.
func (s *spendSyncService) OnExpenseDeleted(userID string, categoryID *string, amount int64, date time.Time) error {
	return s.apply(userID, categoryID, -amount, date)
}

// apply adjusts every matching budget by delta. One failing budget does
// not block the rest; the first error is returned after all budgets
// have been attempted.
func (s *spendSyncService) apply(userID string, categoryID *string, delta int64, date time.Time) error {
	budgets, err := s.budgets.ListMatching(userID, categoryID, date)
	if err != nil {
		return err
	}

	var firstErr error
	for _, budget := range budgets {
		if _, err := s.budgets.AdjustSpent(budget.ID, delta); err != nil {
			logger.Get().Warnw("spend adjustment failed",
				"budget_id", budget.ID,
				"delta", delta,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Recompute replaces the budget's spent figure with the ledger sum over
// its current period. Running it twice in a row is a no-op.
func (s *spendSyncService) Recompute(budgetID string) error {
	budget, err := s.budgets.GetBudget(budgetID)
	if err != nil {
		return err
	}

	total, err := s.ledger.SumExpense(budget.UserID, budget.CategoryID, budget.StartDate, budget.EndDate)
	if err != nil {
		return err
	}

	return s.budgets.SetSpent(budget.ID, total)
}

// RecomputeActive recomputes every active current budget across all
// users. This is the self-healing pass the scheduler runs.
func (s *spendSyncService) RecomputeActive(now time.Time) error {
	budgets, err := s.budgets.ListActiveCurrent(now)
	if err != nil {
		return err
	}
	return s.recomputeAll(budgets)
}

// RecomputeUser recomputes the user's active current budgets.
func (s *spendSyncService) RecomputeUser(userID string, now time.Time) error {
	budgets, err := s.budgets.ListUserActiveCurrent(userID, now)
	if err != nil {
		return err
	}
	return s.recomputeAll(budgets)
}

func (s *spendSyncService) recomputeAll(budgets []models.Budget) error {
	var firstErr error
	for _, budget := range budgets {
		total, err := s.ledger.SumExpense(budget.UserID, budget.CategoryID, budget.StartDate, budget.EndDate)
		if err == nil {
			err = s.budgets.SetSpent(budget.ID, total)
		}
		if err != nil {
			logger.Get().Warnw("spend recompute failed",
				"budget_id", budget.ID,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
