package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "dinero/internal/errors"
	"dinero/internal/models"
	"dinero/internal/notify"
	"dinero/internal/pagination"
	"dinero/internal/services"
)

const testBudgetID = "0194f5a0-0000-7000-8000-0000000000aa"

// --- mock budget service ---

type mockBudgetService struct {
	createBudgetFn    func(userID string, in services.BudgetInput) (*models.Budget, error)
	getBudgetByIDFn   func(userID, budgetID string) (*models.Budget, error)
	getUserBudgetsFn  func(userID string, page pagination.PageRequest, isActive *bool, period *models.BudgetPeriod) (*pagination.PageResponse[models.Budget], error)
	updateBudgetFn    func(userID, budgetID string, update services.BudgetUpdate) (*models.Budget, error)
	deleteBudgetFn    func(userID, budgetID string) error
	getBudgetReportFn func(userID, budgetID string, now time.Time) (*services.BudgetReport, error)
	listOverspentFn   func(userID string, now time.Time) ([]models.Budget, error)
}

func (m *mockBudgetService) CreateBudget(userID string, in services.BudgetInput) (*models.Budget, error) {
	if m.createBudgetFn != nil {
		return m.createBudgetFn(userID, in)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	if m.getBudgetByIDFn != nil {
		return m.getBudgetByIDFn(userID, budgetID)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool, period *models.BudgetPeriod) (*pagination.PageResponse[models.Budget], error) {
	if m.getUserBudgetsFn != nil {
		return m.getUserBudgetsFn(userID, page, isActive, period)
	}
	resp := pagination.NewPageResponse([]models.Budget{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockBudgetService) UpdateBudget(userID, budgetID string, update services.BudgetUpdate) (*models.Budget, error) {
	if m.updateBudgetFn != nil {
		return m.updateBudgetFn(userID, budgetID, update)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) DeleteBudget(userID, budgetID string) error {
	if m.deleteBudgetFn != nil {
		return m.deleteBudgetFn(userID, budgetID)
	}
	return nil
}

func (m *mockBudgetService) GetBudgetReport(userID, budgetID string, now time.Time) (*services.BudgetReport, error) {
	if m.getBudgetReportFn != nil {
		return m.getBudgetReportFn(userID, budgetID, now)
	}
	return &services.BudgetReport{}, nil
}

func (m *mockBudgetService) ListOverspent(userID string, now time.Time) ([]models.Budget, error) {
	if m.listOverspentFn != nil {
		return m.listOverspentFn(userID, now)
	}
	return nil, nil
}

func (m *mockBudgetService) ListNearLimit(string, time.Time) ([]models.Budget, error) {
	return nil, nil
}
func (m *mockBudgetService) GetBudget(string) (*models.Budget, error)                { return &models.Budget{}, nil }
func (m *mockBudgetService) ListActiveCurrent(time.Time) ([]models.Budget, error)    { return nil, nil }
func (m *mockBudgetService) ListExpiredRecurring(time.Time) ([]models.Budget, error) { return nil, nil }
func (m *mockBudgetService) ListUserActiveCurrent(string, time.Time) ([]models.Budget, error) {
	return nil, nil
}
func (m *mockBudgetService) ListMatching(string, *string, time.Time) ([]models.Budget, error) {
	return nil, nil
}
func (m *mockBudgetService) AdjustSpent(string, int64) (int64, error) { return 0, nil }
func (m *mockBudgetService) SetSpent(string, int64) error             { return nil }
func (m *mockBudgetService) MarkAlerted(string, time.Time) error      { return nil }
func (m *mockBudgetService) Rollover(string, time.Time) (*models.Budget, error) {
	return &models.Budget{}, nil
}
func (m *mockBudgetService) PurgeExpired(time.Time, time.Duration) (int64, error) { return 0, nil }

var _ services.BudgetServicer = (*mockBudgetService)(nil)

type mockSpendSync struct {
	recomputeFn func(budgetID string) error
}

func (m *mockSpendSync) OnExpenseWritten(string, *string, int64, time.Time) error { return nil }
func (m *mockSpendSync) OnExpenseDeleted(string, *string, int64, time.Time) error { return nil }
func (m *mockSpendSync) Recompute(budgetID string) error {
	if m.recomputeFn != nil {
		return m.recomputeFn(budgetID)
	}
	return nil
}
func (m *mockSpendSync) RecomputeActive(time.Time) error       { return nil }
func (m *mockSpendSync) RecomputeUser(string, time.Time) error { return nil }

var _ services.SpendSynchronizer = (*mockSpendSync)(nil)

type mockAlertLog struct {
	getBudgetAlertsFn func(userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.AlertEvent], error)
}

func (m *mockAlertLog) Record(string, string, notify.Severity, string, string, time.Time) {}
func (m *mockAlertLog) GetBudgetAlerts(userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.AlertEvent], error) {
	if m.getBudgetAlertsFn != nil {
		return m.getBudgetAlertsFn(userID, budgetID, page)
	}
	resp := pagination.NewPageResponse([]models.AlertEvent{}, 1, 20, 0)
	return &resp, nil
}

var _ services.AlertLogServicer = (*mockAlertLog)(nil)

func setupBudgetRouter(handler *BudgetHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/budgets", handler.CreateBudget)
	auth.GET("/budgets", handler.GetBudgets)
	auth.GET("/budgets/overspent", handler.GetOverspentBudgets)
	auth.GET("/budgets/near-limit", handler.GetNearLimitBudgets)
	auth.GET("/budgets/:id", handler.GetBudget)
	auth.PUT("/budgets/:id", handler.UpdateBudget)
	auth.DELETE("/budgets/:id", handler.DeleteBudget)
	auth.GET("/budgets/:id/status", handler.GetBudgetStatus)
	auth.POST("/budgets/:id/recompute", handler.RecomputeBudget)
	auth.GET("/budgets/:id/alerts", handler.GetBudgetAlerts)
	return r
}

func newBudgetHandler(svc *mockBudgetService) *BudgetHandler {
	return NewBudgetHandler(svc, &mockSpendSync{}, &mockAlertLog{})
}

func TestBudgetHandler_CreateBudget(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		svc := &mockBudgetService{
			createBudgetFn: func(userID string, in services.BudgetInput) (*models.Budget, error) {
				return &models.Budget{
					Base:     models.Base{ID: testBudgetID},
					UserID:   userID,
					Name:     in.Name,
					Amount:   in.Amount,
					Period:   in.Period,
					IsActive: true,
				}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Groceries","amount":50000,"period":"monthly","start_date":"2025-01-01T00:00:00Z"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		budget := result["budget"].(map[string]interface{})
		if budget["name"] != "Groceries" {
			t.Errorf("expected Groceries, got %v", budget["name"])
		}
		if budget["amount"].(float64) != 50000 {
			t.Errorf("expected amount 50000, got %v", budget["amount"])
		}
	})

	t.Run("returns 400 on missing name", func(t *testing.T) {
		r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

		rec := doRequest(r, "POST", "/budgets",
			`{"amount":50000,"period":"monthly","start_date":"2025-01-01T00:00:00Z"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on unknown period", func(t *testing.T) {
		r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"x","amount":50000,"period":"fortnightly","start_date":"2025-01-01T00:00:00Z"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when category is missing", func(t *testing.T) {
		svc := &mockBudgetService{
			createBudgetFn: func(string, services.BudgetInput) (*models.Budget, error) {
				return nil, apperrors.ErrCategoryNotFound
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets",
			`{"category_id":"0194f5a0-0000-7000-8000-0000000000bb","name":"x","amount":50000,"period":"monthly","start_date":"2025-01-01T00:00:00Z"}`)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_NOT_FOUND")
	})
}

func TestBudgetHandler_GetBudgetStatus(t *testing.T) {
	t.Run("returns 200 with report", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetReportFn: func(_, budgetID string, _ time.Time) (*services.BudgetReport, error) {
				return &services.BudgetReport{
					BudgetID:   budgetID,
					Status:     models.BudgetStatusWarning,
					Amount:     100000,
					Spent:      85000,
					Remaining:  15000,
					Percentage: 85,
				}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/status", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		report := result["report"].(map[string]interface{})
		if report["status"] != "warning" {
			t.Errorf("expected warning status, got %v", report["status"])
		}
	})

	t.Run("returns 400 on malformed id", func(t *testing.T) {
		r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

		rec := doRequest(r, "GET", "/budgets/not-a-uuid/status", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_RecomputeBudget(t *testing.T) {
	t.Run("returns 200 after recompute", func(t *testing.T) {
		recomputed := false
		handler := NewBudgetHandler(
			&mockBudgetService{},
			&mockSpendSync{recomputeFn: func(string) error { recomputed = true; return nil }},
			&mockAlertLog{},
		)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/recompute", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !recomputed {
			t.Error("expected the synchronizer to be invoked")
		}
	})

	t.Run("returns 404 for foreign budget", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetByIDFn: func(string, string) (*models.Budget, error) {
				return nil, apperrors.ErrBudgetNotFound
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/recompute", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_GetOverspentBudgets(t *testing.T) {
	svc := &mockBudgetService{
		listOverspentFn: func(string, time.Time) ([]models.Budget, error) {
			return []models.Budget{{Base: models.Base{ID: testBudgetID}, Name: "Groceries", Amount: 100, Spent: 150}}, nil
		},
	}
	r := setupBudgetRouter(newBudgetHandler(svc))

	rec := doRequest(r, "GET", "/budgets/overspent", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	budgets := result["budgets"].([]interface{})
	if len(budgets) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(budgets))
	}
}
