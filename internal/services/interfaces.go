package services

import (
	"time"

	"dinero/internal/models"
	"dinero/internal/notify"
	"dinero/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID, name string, categoryType models.CategoryType, description, icon, color string) (*models.Category, error)
	GetUserCategories(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID, name, description, icon, color string) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
}

// LedgerFilter holds optional filter parameters for listing transactions.
type LedgerFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	CategoryID *string
	MinAmount  *int64
	MaxAmount  *int64
}

// TransactionUpdate holds optional replacement values for a ledger edit.
// Nil fields are left unchanged.
type TransactionUpdate struct {
	Amount      *int64
	CategoryID  *string
	Date        *time.Time
	Description *string
}

// LedgerServicer owns transaction records. Writes flow through it so the
// budget spend cache can be kept in step with the ledger.
type LedgerServicer interface {
	CreateTransaction(userID string, categoryID *string, transactionType models.TransactionType, amount int64, description string, date time.Time) (*models.Transaction, error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter LedgerFilter) (*pagination.PageResponse[models.Transaction], error)
	UpdateTransaction(userID, transactionID string, update TransactionUpdate) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
}

// LedgerReader is the read-only capability the budget core holds over
// the ledger: summing expense amounts for a category (nil means all
// categories) within a time window.
type LedgerReader interface {
	SumExpense(userID string, categoryID *string, start, end time.Time) (int64, error)
}

// BudgetInput carries the caller-supplied fields for creating a budget.
type BudgetInput struct {
	CategoryID     *string
	Name           string
	Amount         int64
	Period         models.BudgetPeriod
	StartDate      time.Time
	EndDate        time.Time
	AlertThreshold float64
	IsAlertEnabled bool
	IsRecurring    bool
	Currency       string
}

// BudgetUpdate holds optional replacement values for a budget edit.
// Nil fields are left unchanged; the resulting record is re-validated
// before being written back as a whole.
type BudgetUpdate struct {
	Name           *string
	Amount         *int64
	AlertThreshold *float64
	IsActive       *bool
	IsAlertEnabled *bool
	IsRecurring    *bool
}

// BudgetReport is the derived view of a budget at a point in time.
type BudgetReport struct {
	BudgetID       string              `json:"budget_id"`
	Status         models.BudgetStatus `json:"status"`
	Amount         int64               `json:"amount"`
	Spent          int64               `json:"spent"`
	Remaining      int64               `json:"remaining"`
	Percentage     float64             `json:"percentage"`
	RemainingDays  int                 `json:"remaining_days"`
	DailyAllowance int64               `json:"daily_allowance"`
	ExpiringSoon   bool                `json:"expiring_soon"`
}

// BudgetServicer is the single owner of budget state. All mutations of a
// budget funnel through it; AdjustSpent and SetSpent are atomic at the
// storage layer so concurrent ledger writers cannot lose updates.
type BudgetServicer interface {
	// CRUD surface, scoped to the owning user.
	CreateBudget(userID string, in BudgetInput) (*models.Budget, error)
	GetBudgetByID(userID, budgetID string) (*models.Budget, error)
	GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool, period *models.BudgetPeriod) (*pagination.PageResponse[models.Budget], error)
	UpdateBudget(userID, budgetID string, update BudgetUpdate) (*models.Budget, error)
	DeleteBudget(userID, budgetID string) error
	GetBudgetReport(userID, budgetID string, now time.Time) (*BudgetReport, error)
	ListOverspent(userID string, now time.Time) ([]models.Budget, error)
	ListNearLimit(userID string, now time.Time) ([]models.Budget, error)

	// Internal surface used by the synchronizer and the scheduler.
	GetBudget(budgetID string) (*models.Budget, error)
	ListActiveCurrent(now time.Time) ([]models.Budget, error)
	ListExpiredRecurring(now time.Time) ([]models.Budget, error)
	ListUserActiveCurrent(userID string, now time.Time) ([]models.Budget, error)
	ListMatching(userID string, categoryID *string, at time.Time) ([]models.Budget, error)
	AdjustSpent(budgetID string, delta int64) (int64, error)
	SetSpent(budgetID string, value int64) error
	MarkAlerted(budgetID string, at time.Time) error
	Rollover(budgetID string, now time.Time) (*models.Budget, error)
	PurgeExpired(now time.Time, retention time.Duration) (int64, error)
}

// SpendSynchronizer keeps Budget.Spent consistent with the ledger:
// incremental adjustments on writes, full recompute on ambiguous edits
// and as a periodic self-healing pass.
type SpendSynchronizer interface {
	OnExpenseWritten(userID string, categoryID *string, amount int64, date time.Time) error
	OnExpenseDeleted(userID string, categoryID *string, amount int64, date time.Time) error
	Recompute(budgetID string) error
	RecomputeActive(now time.Time) error
	RecomputeUser(userID string, now time.Time) error
}

// AlertLogServicer records dispatched notifications for later inspection.
type AlertLogServicer interface {
	Record(budgetID, userID string, severity notify.Severity, title, body string, sentAt time.Time)
	GetBudgetAlerts(userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.AlertEvent], error)
}
