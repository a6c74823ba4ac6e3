package services

import (
	"time"

	"gorm.io/gorm"

	apperrors "dinero/internal/errors"
	"dinero/internal/logger"
	"dinero/internal/models"
	"dinero/internal/notify"
	"dinero/internal/pagination"
)

// alertLogService keeps the history of dispatched notifications.
type alertLogService struct {
	db *gorm.DB
}

// NewAlertLogService creates a new AlertLogServicer.
func NewAlertLogService(db *gorm.DB) AlertLogServicer {
	return &alertLogService{db: db}
}

// Record appends a dispatched alert to the history. The history is
// best-effort: a write failure is logged and swallowed so it can never
// block the alert pass.
func (s *alertLogService) Record(budgetID, userID string, severity notify.Severity, title, body string, sentAt time.Time) {
	event := &models.AlertEvent{
		BudgetID: budgetID,
		UserID:   userID,
		Severity: string(severity),
		Title:    title,
		Body:     body,
		SentAt:   sentAt,
	}
	if err := s.db.Create(event).Error; err != nil {
		logger.Get().Warnw("failed to record alert event",
			"budget_id", budgetID,
			"error", err)
	}
}

// GetBudgetAlerts returns the alert history for one of the user's
// budgets, newest first.
func (s *alertLogService) GetBudgetAlerts(userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.AlertEvent], error) {
	page.Defaults()

	var owned int64
	if err := s.db.Model(&models.Budget{}).
		Where("id = ? AND user_id = ?", budgetID, userID).
		Count(&owned).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if owned == 0 {
		return nil, apperrors.ErrBudgetNotFound
	}

	base := s.db.Model(&models.AlertEvent{}).Where("budget_id = ?", budgetID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var events []models.AlertEvent
	if err := base.Order("sent_at DESC").Scopes(pagination.Paginate(page)).Find(&events).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(events, page.Page, page.PageSize, totalItems)
	return &result, nil
}
