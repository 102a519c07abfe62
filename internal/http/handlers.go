package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"homebudget/internal/budget"
	"homebudget/internal/core"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps the core error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, core.ErrRolloverApplied):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrPermissionDenied):
		status, msg = http.StatusForbidden, "permission denied"
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrValidation):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
	}
	writeJSONError(w, status, msg)
}

// actorID authenticates the request from the X-User-ID header. Identity
// management lives outside this service; the header carries the already
// authenticated user.
func actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if raw == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid X-User-ID header")
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s parameter", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s parameter", name)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// --- summaries and budget upserts ---

type summaryRowResponse struct {
	CategoryID      uuid.UUID `json:"category_id"`
	CategoryName    string    `json:"category_name"`
	Kind            core.Kind `json:"kind"`
	BudgetCents     int64     `json:"budget_cents"`
	SpentCents      int64     `json:"spent_cents"`
	RemainingCents  int64     `json:"remaining_cents"`
	Percentage      float64   `json:"percentage"`
	RolloverEnabled bool      `json:"rollover_enabled"`
}

type burnRateResponse struct {
	TotalSpentCents            int64   `json:"total_spent_cents"`
	TotalBudgetCents           int64   `json:"total_budget_cents"`
	RemainingCents             int64   `json:"remaining_cents"`
	ElapsedDays                int     `json:"elapsed_days"`
	RemainingDays              int     `json:"remaining_days"`
	DaysInMonth                int     `json:"days_in_month"`
	DailyAverageCents          float64 `json:"daily_average_cents"`
	SuggestedDailySpendCents   float64 `json:"suggested_daily_spend_cents"`
	ProjectedMonthlySpendCents float64 `json:"projected_monthly_spend_cents"`
}

type overviewResponse struct {
	HouseholdID uuid.UUID            `json:"household_id"`
	Month       string               `json:"month"`
	PeriodID    uuid.UUID            `json:"period_id"`
	Summaries   []summaryRowResponse `json:"summaries"`
	BurnRate    burnRateResponse     `json:"burn_rate"`
}

func toOverviewResponse(o budget.MonthOverview) overviewResponse {
	rows := make([]summaryRowResponse, len(o.Summaries))
	for i, s := range o.Summaries {
		rows[i] = summaryRowResponse{
			CategoryID:      s.CategoryID,
			CategoryName:    s.CategoryName,
			Kind:            s.Kind,
			BudgetCents:     s.Budget.Cents,
			SpentCents:      s.Spent.Cents,
			RemainingCents:  s.Remaining.Cents,
			Percentage:      s.Percentage,
			RolloverEnabled: s.RolloverEnabled,
		}
	}
	return overviewResponse{
		HouseholdID: o.HouseholdID,
		Month:       o.Month.String(),
		PeriodID:    o.PeriodID,
		Summaries:   rows,
		BurnRate: burnRateResponse{
			TotalSpentCents:            o.BurnRate.TotalSpent.Cents,
			TotalBudgetCents:           o.BurnRate.TotalBudget.Cents,
			RemainingCents:             o.BurnRate.Remaining.Cents,
			ElapsedDays:                o.BurnRate.ElapsedDays,
			RemainingDays:              o.BurnRate.RemainingDays,
			DaysInMonth:                o.BurnRate.DaysInMonth,
			DailyAverageCents:          o.BurnRate.DailyAverage,
			SuggestedDailySpendCents:   o.BurnRate.SuggestedDailySpend,
			ProjectedMonthlySpendCents: o.BurnRate.ProjectedMonthlySpend,
		},
	}
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetSummary(w, r)
	case http.MethodPost:
		s.handleSetBudgets(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}
	householdID, err := queryUUID(r, "household_id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, err := core.ParseMonth(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "month must be a YYYY-MM-01 date")
		return
	}

	overview, err := s.service.Summary(r.Context(), householdID, userID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewResponse(overview))
}

type budgetEntryRequest struct {
	CategoryID      uuid.UUID `json:"category_id"`
	AmountCents     int64     `json:"amount_cents"`
	RolloverEnabled bool      `json:"rollover_enabled"`
}

type setBudgetsRequest struct {
	HouseholdID     uuid.UUID            `json:"household_id"`
	Month           string               `json:"month"`
	CategoryBudgets []budgetEntryRequest `json:"category_budgets"`
}

type budgetResponse struct {
	PeriodID        uuid.UUID `json:"period_id"`
	CategoryID      uuid.UUID `json:"category_id"`
	AmountCents     int64     `json:"amount_cents"`
	RolloverEnabled bool      `json:"rollover_enabled"`
}

func (s *Server) handleSetBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}
	var req setBudgetsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	month, err := core.ParseMonth(req.Month)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "month must be a YYYY-MM-01 date")
		return
	}
	if len(req.CategoryBudgets) == 0 {
		writeJSONError(w, http.StatusBadRequest, "category_budgets cannot be empty")
		return
	}

	entries := make([]budget.BudgetEntry, len(req.CategoryBudgets))
	for i, e := range req.CategoryBudgets {
		entries[i] = budget.BudgetEntry{
			CategoryID:      e.CategoryID,
			Amount:          core.Money{Cents: e.AmountCents},
			RolloverEnabled: e.RolloverEnabled,
		}
	}

	saved, err := s.service.SetBudgets(r.Context(), req.HouseholdID, userID, month, entries)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]budgetResponse, len(saved))
	for i, b := range saved {
		out[i] = budgetResponse{
			PeriodID:        b.PeriodID,
			CategoryID:      b.CategoryID,
			AmountCents:     b.Amount.Cents,
			RolloverEnabled: b.RolloverEnabled,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": out})
}

// --- rollover ---

type rolloverRequest struct {
	HouseholdID uuid.UUID `json:"household_id"`
	FromMonth   string    `json:"from_month"`
	ToMonth     string    `json:"to_month"`
}

type adjustmentResponse struct {
	CategoryID          uuid.UUID `json:"category_id"`
	PreviousAmountCents int64     `json:"previous_amount_cents"`
	DeltaCents          int64     `json:"delta_cents"`
	NewAmountCents      int64     `json:"new_amount_cents"`
}

type skippedResponse struct {
	CategoryID uuid.UUID `json:"category_id"`
	Reason     string    `json:"reason"`
}

type rolloverResponse struct {
	FromMonth           string               `json:"from_month"`
	ToMonth             string               `json:"to_month"`
	CategoriesProcessed int                  `json:"categories_processed"`
	Adjustments         []adjustmentResponse `json:"adjustments"`
	Skipped             []skippedResponse    `json:"skipped"`
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	userID, ok := actorID(w, r)
	if !ok {
		return
	}
	var req rolloverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, err := core.ParseMonth(req.FromMonth)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "from_month must be a YYYY-MM-01 date")
		return
	}
	to, err := core.ParseMonth(req.ToMonth)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "to_month must be a YYYY-MM-01 date")
		return
	}

	result, err := s.service.ApplyRollover(r.Context(), req.HouseholdID, userID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := rolloverResponse{
		FromMonth:           result.FromMonth,
		ToMonth:             result.ToMonth,
		CategoriesProcessed: result.CategoriesProcessed,
		Adjustments:         make([]adjustmentResponse, len(result.Adjustments)),
		Skipped:             make([]skippedResponse, len(result.Skipped)),
	}
	for i, a := range result.Adjustments {
		resp.Adjustments[i] = adjustmentResponse{
			CategoryID:          a.CategoryID,
			PreviousAmountCents: a.PreviousAmount.Cents,
			DeltaCents:          a.Delta.Cents,
			NewAmountCents:      a.NewAmount.Cents,
		}
	}
	for i, sk := range result.Skipped {
		resp.Skipped[i] = skippedResponse{CategoryID: sk.CategoryID, Reason: sk.Reason}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- transactions ---

type weightRequest struct {
	CategoryID uuid.UUID `json:"category_id"`
	Weight     float64   `json:"weight"`
}

type createTransactionRequest struct {
	HouseholdID uuid.UUID       `json:"household_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant"`
	Amount      string          `json:"amount"`
	Direction   core.Direction  `json:"direction"`
	Currency    string          `json:"currency"`
	Categories  []weightRequest `json:"categories"`
}

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	HouseholdID uuid.UUID       `json:"household_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant"`
	AmountCents int64           `json:"amount_cents"`
	Direction   core.Direction  `json:"direction"`
	Currency    string          `json:"currency"`
	Categories  []weightRequest `json:"categories"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	userID, ok := actorID(w, r)
	if !ok {
		return
	}
	var req createTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx := core.Transaction{
		HouseholdID: req.HouseholdID,
		AccountID:   req.AccountID,
		OccurredAt:  req.OccurredAt,
		Description: sanitizeInput(req.Description),
		Merchant:    sanitizeInput(req.Merchant),
		Amount:      core.Money{Cents: cents},
		Direction:   req.Direction,
		Currency:    req.Currency,
	}
	weights := make([]core.CategoryWeight, len(req.Categories))
	for i, c := range req.Categories {
		weights[i] = core.CategoryWeight{CategoryID: c.CategoryID, Weight: c.Weight}
	}

	created, assigned, err := s.service.CreateTransaction(r.Context(), userID, tx, weights)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := transactionResponse{
		ID:          created.ID,
		HouseholdID: created.HouseholdID,
		AccountID:   created.AccountID,
		OccurredAt:  created.OccurredAt,
		Description: created.Description,
		Merchant:    created.Merchant,
		AmountCents: created.Amount.Cents,
		Direction:   created.Direction,
		Currency:    created.Currency,
		Categories:  make([]weightRequest, len(assigned)),
	}
	for i, wgt := range assigned {
		resp.Categories[i] = weightRequest{CategoryID: wgt.CategoryID, Weight: wgt.Weight}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// --- categories ---

type categoryResponse struct {
	ID       uuid.UUID `json:"id"`
	Kind     core.Kind `json:"kind"`
	Name     string    `json:"name"`
	Icon     string    `json:"icon"`
	Color    string    `json:"color"`
	Position int       `json:"position"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	userID, ok := actorID(w, r)
	if !ok {
		return
	}
	householdID, err := queryUUID(r, "household_id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	cats, err := s.service.ListCategories(r.Context(), householdID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]categoryResponse, len(cats))
	for i, c := range cats {
		out[i] = categoryResponse{
			ID: c.ID, Kind: c.Kind, Name: c.Name,
			Icon: c.Icon, Color: c.Color, Position: c.Position,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}
