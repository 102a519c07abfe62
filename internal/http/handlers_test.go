package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"homebudget/internal/budget"
	"homebudget/internal/core"

	"github.com/google/uuid"
)

type fakeService struct {
	overview    budget.MonthOverview
	rollover    budget.RolloverResult
	err         error
	lastUser    uuid.UUID
	lastEntries []budget.BudgetEntry
}

func (f *fakeService) Summary(_ context.Context, householdID, userID uuid.UUID, month core.Month) (budget.MonthOverview, error) {
	f.lastUser = userID
	if f.err != nil {
		return budget.MonthOverview{}, f.err
	}
	o := f.overview
	o.HouseholdID = householdID
	o.Month = month
	return o, nil
}

func (f *fakeService) SetBudgets(_ context.Context, _, userID uuid.UUID, _ core.Month, entries []budget.BudgetEntry) ([]core.Budget, error) {
	f.lastUser = userID
	f.lastEntries = entries
	if f.err != nil {
		return nil, f.err
	}
	out := make([]core.Budget, len(entries))
	for i, e := range entries {
		out[i] = core.Budget{
			PeriodID:        uuid.New(),
			CategoryID:      e.CategoryID,
			Amount:          e.Amount,
			RolloverEnabled: e.RolloverEnabled,
		}
	}
	return out, nil
}

func (f *fakeService) ApplyRollover(_ context.Context, _, userID uuid.UUID, _, _ core.Month) (budget.RolloverResult, error) {
	f.lastUser = userID
	if f.err != nil {
		return budget.RolloverResult{}, f.err
	}
	return f.rollover, nil
}

func (f *fakeService) CreateTransaction(_ context.Context, userID uuid.UUID, t core.Transaction, weights []core.CategoryWeight) (core.Transaction, []core.CategoryWeight, error) {
	f.lastUser = userID
	if f.err != nil {
		return core.Transaction{}, nil, f.err
	}
	t.ID = uuid.New()
	return t, weights, nil
}

func (f *fakeService) ListCategories(_ context.Context, _, userID uuid.UUID) ([]core.Category, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return []core.Category{{ID: uuid.New(), Kind: core.KindExpense, Name: "Groceries"}}, nil
}

func doRequest(t *testing.T, srv *Server, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestGetSummaryEndpoint(t *testing.T) {
	groceries := uuid.New()
	svc := &fakeService{
		overview: budget.MonthOverview{
			PeriodID: uuid.New(),
			Summaries: []core.CategorySummary{{
				CategoryID:   groceries,
				CategoryName: "Groceries",
				Kind:         core.KindExpense,
				Budget:       core.Money{Cents: 50000},
				Spent:        core.Money{Cents: 8000},
				Remaining:    core.Money{Cents: 42000},
				Percentage:   16.0,
			}},
			BurnRate: core.BurnRate{DaysInMonth: 30},
		},
	}
	srv := NewServer(":0", svc, nil)
	user := uuid.New()
	household := uuid.New()

	rec := doRequest(t, srv, http.MethodGet,
		fmt.Sprintf("/budgets?household_id=%s&month=2025-09-01", household), user.String(), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp overviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Month != "2025-09-01" || resp.HouseholdID != household {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Summaries) != 1 || resp.Summaries[0].SpentCents != 8000 || resp.Summaries[0].Percentage != 16.0 {
		t.Fatalf("summaries = %+v", resp.Summaries)
	}
	if svc.lastUser != user {
		t.Fatal("actor not forwarded to service")
	}
}

func TestSummaryRequiresAuth(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/budgets?household_id="+uuid.NewString()+"&month=2025-09-01", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/budgets?household_id="+uuid.NewString()+"&month=2025-09-01", "not-a-uuid", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad header: status = %d", rec.Code)
	}
}

func TestSummaryRejectsBadMonth(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil)
	for _, month := range []string{"", "2025-09-15", "2025-9", "garbage"} {
		rec := doRequest(t, srv, http.MethodGet,
			"/budgets?household_id="+uuid.NewString()+"&month="+month, uuid.NewString(), "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("month %q: status = %d", month, rec.Code)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"permission denied", core.ErrPermissionDenied, http.StatusForbidden},
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"validation", core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{"rollover applied", core.ErrRolloverApplied, http.StatusConflict},
		{"storage", core.ErrStorage, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(":0", &fakeService{err: tc.err}, nil)
			rec := doRequest(t, srv, http.MethodGet,
				"/budgets?household_id="+uuid.NewString()+"&month=2025-09-01", uuid.NewString(), "")
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" {
				t.Fatalf("error body missing: %s", rec.Body.String())
			}
		})
	}
}

func TestSetBudgetsEndpoint(t *testing.T) {
	svc := &fakeService{}
	srv := NewServer(":0", svc, nil)
	groceries := uuid.New()

	body := fmt.Sprintf(`{
		"household_id": %q,
		"month": "2025-09-01",
		"category_budgets": [{"category_id": %q, "amount_cents": 50000, "rollover_enabled": true}]
	}`, uuid.NewString(), groceries)

	rec := doRequest(t, srv, http.MethodPost, "/budgets", uuid.NewString(), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastEntries) != 1 || svc.lastEntries[0].Amount.Cents != 50000 || !svc.lastEntries[0].RolloverEnabled {
		t.Fatalf("entries = %+v", svc.lastEntries)
	}
}

func TestSetBudgetsRejectsMalformedBody(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/budgets", uuid.NewString(), `{"month": 7}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/budgets", uuid.NewString(),
		`{"household_id": "`+uuid.NewString()+`", "month": "2025-09-01", "category_budgets": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty budgets: status = %d", rec.Code)
	}
}

func TestRolloverEndpoint(t *testing.T) {
	cat := uuid.New()
	svc := &fakeService{
		rollover: budget.RolloverResult{
			FromMonth:           "2025-09-01",
			ToMonth:             "2025-10-01",
			CategoriesProcessed: 1,
			Adjustments: []budget.Adjustment{{
				CategoryID:     cat,
				PreviousAmount: core.Money{Cents: 50000},
				Delta:          core.Money{Cents: 5000},
				NewAmount:      core.Money{Cents: 55000},
			}},
		},
	}
	srv := NewServer(":0", svc, nil)

	body := fmt.Sprintf(`{"household_id": %q, "from_month": "2025-09-01", "to_month": "2025-10-01"}`, uuid.NewString())
	rec := doRequest(t, srv, http.MethodPost, "/budgets/rollover", uuid.NewString(), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp rolloverResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Adjustments) != 1 || resp.Adjustments[0].NewAmountCents != 55000 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRolloverConflictOnSecondApplication(t *testing.T) {
	srv := NewServer(":0", &fakeService{err: core.ErrRolloverApplied}, nil)
	body := fmt.Sprintf(`{"household_id": %q, "from_month": "2025-09-01", "to_month": "2025-10-01"}`, uuid.NewString())

	rec := doRequest(t, srv, http.MethodPost, "/budgets/rollover", uuid.NewString(), body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateTransactionEndpoint(t *testing.T) {
	svc := &fakeService{}
	srv := NewServer(":0", svc, nil)
	cat := uuid.New()

	body := fmt.Sprintf(`{
		"household_id": %q,
		"account_id": %q,
		"occurred_at": "2025-09-05T12:00:00Z",
		"description": "weekly shop",
		"merchant": "Esselunga",
		"amount": "42.50",
		"direction": "outflow",
		"currency": "EUR",
		"categories": [{"category_id": %q, "weight": 1.0}]
	}`, uuid.NewString(), uuid.NewString(), cat)

	rec := doRequest(t, srv, http.MethodPost, "/transactions", uuid.NewString(), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AmountCents != 4250 || resp.ID == uuid.Nil {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Categories) != 1 || resp.Categories[0].CategoryID != cat {
		t.Fatalf("categories = %+v", resp.Categories)
	}
}

func TestCreateTransactionRejectsBadAmount(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil)
	for _, amount := range []string{"0", "-5", "abc", ""} {
		body := fmt.Sprintf(`{
			"household_id": %q, "account_id": %q,
			"occurred_at": "2025-09-05T12:00:00Z",
			"description": "x", "amount": %q, "direction": "outflow"
		}`, uuid.NewString(), uuid.NewString(), amount)
		rec := doRequest(t, srv, http.MethodPost, "/transactions", uuid.NewString(), body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("amount %q: status = %d", amount, rec.Code)
		}
	}
}

func TestListCategoriesEndpoint(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/categories?household_id="+uuid.NewString(), uuid.NewString(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Categories []categoryResponse `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp.Categories) != 1 {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil)
	rec := doRequest(t, srv, http.MethodDelete, "/budgets", uuid.NewString(), "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/budgets/rollover", uuid.NewString(), "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("rollover GET: status = %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, func(context.Context) error { return nil })
	if rec := doRequest(t, srv, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	down := NewServer(":0", &fakeService{}, func(context.Context) error { return fmt.Errorf("db gone") })
	if rec := doRequest(t, down, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing check = %d", rec.Code)
	}
}

func TestRateLimiterCapsPerMinute(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("10.1.2.3", nil) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.1.2.3", nil) {
		t.Fatal("61st request within a minute should be rejected")
	}
	if !rl.allow("10.9.9.9", nil) {
		t.Fatal("different client must not be affected")
	}
}

func TestExtractClientIPTrustsProxiesOnly(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.5:4444"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")
	if got := extractClientIP(req); got != "203.0.113.7" {
		t.Fatalf("trusted proxy: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.20:4444"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := extractClientIP(req); got != "198.51.100.20" {
		t.Fatalf("untrusted peer: got %q", got)
	}
}
