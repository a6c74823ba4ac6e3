package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "dinero/internal/errors"
	"dinero/internal/models"
	"dinero/internal/pagination"
)

// budgetService is the single owner of budget state. Spend mutations go
// through AdjustSpent/SetSpent, which are single UPDATE statements so
// concurrent ledger writers serialize at the database rather than racing
// through a read-modify-write in the application.
type budgetService struct {
	db *gorm.DB
}

// NewBudgetService creates a new BudgetServicer.
func NewBudgetService(db *gorm.DB) BudgetServicer {
	return &budgetService{db: db}
}

// validateBudget enforces the budget invariants shared by create and update.
func validateBudget(amount int64, start, end time.Time, threshold float64) error {
	if amount <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if !end.After(start) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "end date must be after start date")
	}
	if threshold <= 0 || threshold > 1 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "alert threshold must be in (0, 1]")
	}
	return nil
}

// CreateBudget validates and stores a new budget. An omitted end date is
// derived from the start date and period; an omitted threshold defaults
// to 0.8.
func (s *budgetService) CreateBudget(userID string, in BudgetInput) (*models.Budget, error) {
	if in.AlertThreshold == 0 {
		in.AlertThreshold = models.DefaultAlertThreshold
	}
	if in.EndDate.IsZero() {
		in.EndDate = models.PeriodEnd(in.StartDate, in.Period)
	}
	if err := validateBudget(in.Amount, in.StartDate, in.EndDate, in.AlertThreshold); err != nil {
		return nil, err
	}

	// A nil category means a "total" budget across all categories;
	// otherwise the category must exist and belong to the user.
	if in.CategoryID != nil {
		var count int64
		if err := s.db.Model(&models.Category{}).
			Where("id = ? AND user_id = ?", *in.CategoryID, userID).
			Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return nil, apperrors.ErrCategoryNotFound
		}
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	budget := &models.Budget{
		UserID:         userID,
		CategoryID:     in.CategoryID,
		Name:           in.Name,
		Amount:         in.Amount,
		Period:         in.Period,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		IsActive:       true,
		AlertThreshold: in.AlertThreshold,
		IsAlertEnabled: in.IsAlertEnabled,
		IsRecurring:    in.IsRecurring,
		Currency:       currency,
	}

	if err := s.db.Create(budget).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return budget, nil
}

// GetBudgetByID returns a budget by ID if it belongs to the user.
func (s *budgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := s.db.Preload("Category").Where("id = ? AND user_id = ?", budgetID, userID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// GetBudget returns a budget by ID without user scoping. It is the
// lookup used by the synchronizer and the scheduler, which operate
// across all users.
func (s *budgetService) GetBudget(budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := s.db.Where("id = ?", budgetID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// GetUserBudgets returns a paginated list of budgets for the user with optional filters.
func (s *budgetService) GetUserBudgets(
	userID string,
	page pagination.PageRequest,
	isActive *bool,
	period *models.BudgetPeriod,
) (*pagination.PageResponse[models.Budget], error) {
	page.Defaults()

	base := s.db.Model(&models.Budget{}).Where("user_id = ?", userID)
	if isActive != nil {
		base = base.Where("is_active = ?", *isActive)
	}
	if period != nil {
		base = base.Where("period = ?", *period)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var budgets []models.Budget
	if err := base.Preload("Category").Scopes(pagination.Paginate(page)).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(budgets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// UpdateBudget applies the given edits and writes the record back as a
// whole. The resulting record is re-validated so an edit can never leave
// the budget violating its invariants.
func (s *budgetService) UpdateBudget(userID, budgetID string, update BudgetUpdate) (*models.Budget, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		budget.Name = *update.Name
	}
	if update.Amount != nil {
		budget.Amount = *update.Amount
	}
	if update.AlertThreshold != nil {
		budget.AlertThreshold = *update.AlertThreshold
	}
	if update.IsActive != nil {
		budget.IsActive = *update.IsActive
	}
	if update.IsAlertEnabled != nil {
		budget.IsAlertEnabled = *update.IsAlertEnabled
	}
	if update.IsRecurring != nil {
		budget.IsRecurring = *update.IsRecurring
	}

	if err := validateBudget(budget.Amount, budget.StartDate, budget.EndDate, budget.AlertThreshold); err != nil {
		return nil, err
	}

	if err := s.db.Save(budget).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return budget, nil
}

// DeleteBudget soft-deletes a budget. Deleting an absent budget is a no-op.
func (s *budgetService) DeleteBudget(userID, budgetID string) error {
	result := s.db.Where("id = ? AND user_id = ?", budgetID, userID).Delete(&models.Budget{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	return nil
}

// GetBudgetReport computes the derived view of a budget at the given time.
func (s *budgetService) GetBudgetReport(userID, budgetID string, now time.Time) (*BudgetReport, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	return &BudgetReport{
		BudgetID:       budget.ID,
		Status:         budget.Status(now),
		Amount:         budget.Amount,
		Spent:          budget.Spent,
		Remaining:      budget.RemainingAmount(),
		Percentage:     budget.SpentPercentage(),
		RemainingDays:  budget.RemainingDays(now),
		DailyAllowance: budget.DailyAllowance(now),
		ExpiringSoon:   budget.IsExpiringSoon(now),
	}, nil
}

// currentScope narrows a query to active budgets whose period contains now.
func currentScope(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now)
}

// ListActiveCurrent returns all active budgets, across users, whose
// period contains now.
func (s *budgetService) ListActiveCurrent(now time.Time) ([]models.Budget, error) {
	var budgets []models.Budget
	if err := currentScope(s.db, now).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return budgets, nil
}

// ListUserActiveCurrent returns the user's active budgets whose period
// contains now.
func (s *budgetService) ListUserActiveCurrent(userID string, now time.Time) ([]models.Budget, error) {
	var budgets []models.Budget
	if err := currentScope(s.db.Where("user_id = ?", userID), now).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return budgets, nil
}

// ListExpiredRecurring returns recurring budgets whose period has ended:
// the rollover candidates.
func (s *budgetService) ListExpiredRecurring(now time.Time) ([]models.Budget, error) {
	var budgets []models.Budget
	if err := s.db.Where("is_recurring = ? AND end_date < ?", true, now).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return budgets, nil
}

// ListMatching returns the active budgets an expense with the given
// category and date counts against: the category's own budget and any
// category-less total budget. A nil categoryID matches only total budgets.
func (s *budgetService) ListMatching(userID string, categoryID *string, at time.Time) ([]models.Budget, error) {
	q := currentScope(s.db.Where("user_id = ?", userID), at)
	if categoryID != nil {
		q = q.Where("category_id IS NULL OR category_id = ?", *categoryID)
	} else {
		q = q.Where("category_id IS NULL")
	}

	var budgets []models.Budget
	if err := q.Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return budgets, nil
}

// ListOverspent returns the user's current budgets whose status is
// exceeded. Status is computed here from the snapshot, not stored.
func (s *budgetService) ListOverspent(userID string, now time.Time) ([]models.Budget, error) {
	return s.listByStatus(userID, now, models.BudgetStatusExceeded)
}

// ListNearLimit returns the user's current budgets whose status is
// warning: over the alert threshold but not yet over the amount.
func (s *budgetService) ListNearLimit(userID string, now time.Time) ([]models.Budget, error) {
	return s.listByStatus(userID, now, models.BudgetStatusWarning)
}

func (s *budgetService) listByStatus(userID string, now time.Time, want models.BudgetStatus) ([]models.Budget, error) {
	budgets, err := s.ListUserActiveCurrent(userID, now)
	if err != nil {
		return nil, err
	}
	matched := make([]models.Budget, 0, len(budgets))
	for _, b := range budgets {
		if b.Status(now) == want {
			matched = append(matched, b)
		}
	}
	return matched, nil
}

// AdjustSpent atomically adds delta to the budget's spent figure,
// clamping at zero, and returns the new value. The clamp and the add are
// one UPDATE statement so concurrent callers cannot lose each other's
// adjustments.
func (s *budgetService) AdjustSpent(budgetID string, delta int64) (int64, error) {
	result := s.db.Model(&models.Budget{}).
		Where("id = ?", budgetID).
		Update("spent", gorm.Expr("CASE WHEN spent + ? < 0 THEN 0 ELSE spent + ? END", delta, delta))
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, apperrors.ErrBudgetNotFound
	}

	var spent int64
	if err := s.db.Model(&models.Budget{}).
		Where("id = ?", budgetID).
		Select("spent").
		Scan(&spent).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, err)
	}
	return spent, nil
}

// SetSpent atomically replaces the budget's spent figure. Negative
// values clamp to zero.
func (s *budgetService) SetSpent(budgetID string, value int64) error {
	if value < 0 {
		value = 0
	}
	result := s.db.Model(&models.Budget{}).
		Where("id = ?", budgetID).
		Update("spent", value)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrBudgetNotFound
	}
	return nil
}

// MarkAlerted records the time of the most recent alert for per-day dedup.
func (s *budgetService) MarkAlerted(budgetID string, at time.Time) error {
	result := s.db.Model(&models.Budget{}).
		Where("id = ?", budgetID).
		Update("last_alert_date", at)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrBudgetNotFound
	}
	return nil
}

// Rollover advances an expired recurring budget into its next period:
// fresh start/end dates, spent reset to zero, alert dedup cleared. The
// fields are committed in one transaction so a partially rolled budget
// is never observable.
func (s *budgetService) Rollover(budgetID string, now time.Time) (*models.Budget, error) {
	var rolled models.Budget
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var budget models.Budget
		if err := tx.Where("id = ?", budgetID).First(&budget).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrBudgetNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if !budget.IsRecurring {
			return apperrors.ErrBudgetNotRecurring
		}
		if !now.After(budget.EndDate) {
			return apperrors.ErrBudgetNotExpired
		}

		start, end := budget.NextPeriodWindow()
		if err := tx.Model(&budget).Updates(map[string]interface{}{
			"start_date":      start,
			"end_date":        end,
			"spent":           0,
			"last_alert_date": nil,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		budget.StartDate = start
		budget.EndDate = end
		budget.Spent = 0
		budget.LastAlertDate = nil
		rolled = budget
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rolled, nil
}

// PurgeExpired soft-deletes inactive budgets whose period ended more
// than the retention window ago. Housekeeping only; never touches
// active or recurring budgets.
func (s *budgetService) PurgeExpired(now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)
	result := s.db.Where("is_active = ? AND is_recurring = ? AND end_date < ?", false, false, cutoff).
		Delete(&models.Budget{})
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	return result.RowsAffected, nil
}
