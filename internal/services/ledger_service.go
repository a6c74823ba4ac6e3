package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "dinero/internal/errors"
	"dinero/internal/logger"
	"dinero/internal/models"
	"dinero/internal/pagination"
)

// ledgerReader sums expense amounts straight from the transactions
// table. It is the only view the budget core has of the ledger, which
// keeps the two services from depending on each other.
type ledgerReader struct {
	db *gorm.DB
}

// NewLedgerReader creates a read-only LedgerReader over the ledger.
func NewLedgerReader(db *gorm.DB) LedgerReader {
	return &ledgerReader{db: db}
}

// SumExpense returns the total expense amount for the user within
// [start, end]. A nil categoryID sums across all categories.
func (r *ledgerReader) SumExpense(userID string, categoryID *string, start, end time.Time) (int64, error) {
	q := r.db.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ? AND date BETWEEN ? AND ?", userID, models.TransactionTypeExpense, start, end)
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}

	var total int64
	if err := q.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, err)
	}
	return total, nil
}

// ledgerService handles transaction-related business logic. Expense
// writes notify the spend synchronizer; a synchronizer failure is
// logged rather than surfaced, since the periodic recompute pass will
// converge the budgets anyway.
type ledgerService struct {
	db   *gorm.DB
	sync SpendSynchronizer
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(db *gorm.DB, sync SpendSynchronizer) LedgerServicer {
	return &ledgerService{db: db, sync: sync}
}

// CreateTransaction records a new transaction. A zero date defaults to now.
func (s *ledgerService) CreateTransaction(
	userID string,
	categoryID *string,
	transactionType models.TransactionType,
	amount int64,
	description string,
	date time.Time,
) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if transactionType != models.TransactionTypeIncome && transactionType != models.TransactionTypeExpense {
		return nil, apperrors.ErrInvalidTransactionType
	}
	if date.IsZero() {
		date = time.Now()
	}

	if categoryID != nil {
		var count int64
		if err := s.db.Model(&models.Category{}).
			Where("id = ? AND user_id = ?", *categoryID, userID).
			Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return nil, apperrors.ErrCategoryNotFound
		}
	}

	transaction := &models.Transaction{
		UserID:      userID,
		CategoryID:  categoryID,
		Type:        transactionType,
		Amount:      amount,
		Description: description,
		Date:        date,
	}

	if err := s.db.Create(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if transactionType == models.TransactionTypeExpense {
		if err := s.sync.OnExpenseWritten(userID, categoryID, amount, date); err != nil {
			logger.Get().Warnw("budget sync after expense write failed",
				"transaction_id", transaction.ID,
				"error", err)
		}
	}

	return transaction, nil
}

// GetTransactionByID returns a transaction by ID if it belongs to the user.
func (s *ledgerService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Preload("Category").Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// GetUserTransactions returns a filtered, paginated list of the user's
// transactions, newest first.
func (s *ledgerService) GetUserTransactions(
	userID string,
	page pagination.PageRequest,
	filter LedgerFilter,
) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := applyLedgerFilters(s.db.Model(&models.Transaction{}).Where("user_id = ?", userID), filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Category").
		Order("date DESC").
		Scopes(pagination.Paginate(page)).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyLedgerFilters(q *gorm.DB, filter LedgerFilter) *gorm.DB {
	if filter.FromDate != nil {
		q = q.Where("date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		q = q.Where("date <= ?", *filter.ToDate)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.CategoryID != nil {
		q = q.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.MinAmount != nil {
		q = q.Where("amount >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		q = q.Where("amount <= ?", *filter.MaxAmount)
	}
	return q
}

// UpdateTransaction edits a transaction. Since an edit can move an
// expense between categories, dates or amounts in one step, the user's
// budgets are recomputed from the ledger instead of patched
// incrementally.
func (s *ledgerService) UpdateTransaction(userID, transactionID string, update TransactionUpdate) (*models.Transaction, error) {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return nil, err
	}

	if update.Amount != nil {
		if *update.Amount <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
		}
		transaction.Amount = *update.Amount
	}
	if update.CategoryID != nil {
		var count int64
		if err := s.db.Model(&models.Category{}).
			Where("id = ? AND user_id = ?", *update.CategoryID, userID).
			Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return nil, apperrors.ErrCategoryNotFound
		}
		transaction.CategoryID = update.CategoryID
	}
	if update.Date != nil {
		transaction.Date = *update.Date
	}
	if update.Description != nil {
		transaction.Description = *update.Description
	}

	if err := s.db.Save(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if transaction.Type == models.TransactionTypeExpense {
		if err := s.sync.RecomputeUser(userID, time.Now()); err != nil {
			logger.Get().Warnw("budget recompute after expense edit failed",
				"transaction_id", transaction.ID,
				"error", err)
		}
	}

	return transaction, nil
}

// DeleteTransaction soft-deletes a transaction and backs its amount out
// of any matching budgets.
func (s *ledgerService) DeleteTransaction(userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return err
	}

	if err := s.db.Delete(transaction).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if transaction.Type == models.TransactionTypeExpense {
		if err := s.sync.OnExpenseDeleted(userID, transaction.CategoryID, transaction.Amount, transaction.Date); err != nil {
			logger.Get().Warnw("budget sync after expense delete failed",
				"transaction_id", transaction.ID,
				"error", err)
		}
	}

	return nil
}
