// Package budget orchestrates budget periods, monthly summaries and
// rollovers on top of the storage repository, publishing change events
// to AMQP on a best-effort basis.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"homebudget/internal/amqp"
	"homebudget/internal/core"
	"homebudget/internal/rules"

	"github.com/google/uuid"
)

// Repository is the storage surface the service needs. Satisfied by
// *storage.SQLiteRepository.
type Repository interface {
	RoleOf(ctx context.Context, householdID, userID uuid.UUID) (core.Role, error)
	ListCategories(ctx context.Context, householdID uuid.UUID) ([]core.Category, error)
	ListTransactions(ctx context.Context, householdID uuid.UUID, start, end time.Time) ([]core.Transaction, []core.CategoryWeight, error)
	CreateTransaction(ctx context.Context, t core.Transaction, weights []core.CategoryWeight) error
	AccountHousehold(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error)
	GetOrCreatePeriod(ctx context.Context, householdID uuid.UUID, month core.Month) (uuid.UUID, error)
	ListBudgets(ctx context.Context, periodID uuid.UUID) ([]core.Budget, error)
	UpsertBudget(ctx context.Context, b core.Budget) error
	ListRules(ctx context.Context, householdID uuid.UUID) ([]rules.Rule, error)
	RolloverApplied(ctx context.Context, householdID uuid.UUID, from, to core.Month) (bool, error)
	MarkRolloverApplied(ctx context.Context, householdID uuid.UUID, from, to core.Month) error
}

// Publisher emits domain events. Satisfied by *amqp.Client.
type Publisher interface {
	PublishBudgetUpdated(ctx context.Context, msg amqp.BudgetUpdated) error
	PublishRolloverApplied(ctx context.Context, msg amqp.RolloverApplied) error
}

type Service struct {
	repo      Repository
	publisher Publisher
}

func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// memberRole resolves the caller's role, mapping non-membership to
// ErrPermissionDenied.
func (s *Service) memberRole(ctx context.Context, householdID, userID uuid.UUID) (core.Role, error) {
	role, err := s.repo.RoleOf(ctx, householdID, userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", fmt.Errorf("%w: user %s is not a member of household %s",
			core.ErrPermissionDenied, userID, householdID)
	}
	return role, nil
}

// ListCategories returns the household's categories ordered by kind
// (expenses first), position, then name. Any member may read.
func (s *Service) ListCategories(ctx context.Context, householdID, userID uuid.UUID) ([]core.Category, error) {
	if _, err := s.memberRole(ctx, householdID, userID); err != nil {
		return nil, err
	}

	cats, err := s.repo.ListCategories(ctx, householdID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Kind != cats[j].Kind {
			return cats[i].Kind == core.KindExpense
		}
		if cats[i].Position != cats[j].Position {
			return cats[i].Position < cats[j].Position
		}
		return cats[i].Name < cats[j].Name
	})
	return cats, nil
}

// BudgetEntry is one category's budget in a SetBudgets request.
type BudgetEntry struct {
	CategoryID      uuid.UUID
	Amount          core.Money
	RolloverEnabled bool
}

// SetBudgets upserts the given category budgets for the household month
// and publishes a budget.updated event. Requires an editing role.
func (s *Service) SetBudgets(ctx context.Context, householdID, userID uuid.UUID, month core.Month, entries []BudgetEntry) ([]core.Budget, error) {
	role, err := s.memberRole(ctx, householdID, userID)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, fmt.Errorf("%w: role %s cannot set budgets", core.ErrPermissionDenied, role)
	}

	for _, e := range entries {
		if e.Amount.Cents < 0 {
			return nil, fmt.Errorf("%w: budget amount cannot be negative", core.ErrValidation)
		}
		if e.CategoryID == uuid.Nil {
			return nil, fmt.Errorf("%w: missing category id", core.ErrValidation)
		}
	}

	periodID, err := s.repo.GetOrCreatePeriod(ctx, householdID, month)
	if err != nil {
		return nil, err
	}

	saved := make([]core.Budget, 0, len(entries))
	categories := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		b := core.Budget{
			PeriodID:        periodID,
			CategoryID:      e.CategoryID,
			Amount:          e.Amount,
			RolloverEnabled: e.RolloverEnabled,
		}
		if err := s.repo.UpsertBudget(ctx, b); err != nil {
			return nil, err
		}
		saved = append(saved, b)
		categories = append(categories, e.CategoryID)
	}

	s.publishBudgetUpdated(ctx, amqp.BudgetUpdated{
		HouseholdID: householdID,
		Month:       month.String(),
		PeriodID:    periodID,
		Categories:  categories,
	})

	return saved, nil
}

// CreateTransaction validates and stores a transaction with its category
// split. An uncategorized transaction is run through the household's
// categorization rules; the first match gets the full amount.
func (s *Service) CreateTransaction(ctx context.Context, userID uuid.UUID, t core.Transaction, weights []core.CategoryWeight) (core.Transaction, []core.CategoryWeight, error) {
	role, err := s.memberRole(ctx, t.HouseholdID, userID)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	if !role.CanEdit() {
		return core.Transaction{}, nil, fmt.Errorf("%w: role %s cannot create transactions", core.ErrPermissionDenied, role)
	}

	if err := t.Validate(); err != nil {
		return core.Transaction{}, nil, err
	}
	if err := core.ValidateWeights(weights); err != nil {
		return core.Transaction{}, nil, err
	}

	owner, err := s.repo.AccountHousehold(ctx, t.AccountID)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	if owner != t.HouseholdID {
		return core.Transaction{}, nil, fmt.Errorf("%w: account belongs to another household", core.ErrValidation)
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	if len(weights) == 0 {
		ruleset, err := s.repo.ListRules(ctx, t.HouseholdID)
		if err != nil {
			return core.Transaction{}, nil, err
		}
		if categoryID, ok := rules.Match(ruleset, t.Merchant, t.Description); ok {
			weights = []core.CategoryWeight{{CategoryID: categoryID, Weight: 1.0}}
			slog.InfoContext(ctx, "Auto-categorized transaction",
				"transaction_id", t.ID, "category_id", categoryID)
		}
	}

	for i := range weights {
		weights[i].TransactionID = t.ID
	}

	if err := s.repo.CreateTransaction(ctx, t, weights); err != nil {
		return core.Transaction{}, nil, err
	}
	return t, weights, nil
}

func (s *Service) publishBudgetUpdated(ctx context.Context, msg amqp.BudgetUpdated) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Publisher not available, skipping budget.updated event")
		return
	}
	if err := s.publisher.PublishBudgetUpdated(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish budget.updated event",
			"household_id", msg.HouseholdID, "month", msg.Month, "error", err)
		// Don't fail the request - budgets are saved locally
	}
}

func (s *Service) publishRolloverApplied(ctx context.Context, msg amqp.RolloverApplied) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Publisher not available, skipping rollover.applied event")
		return
	}
	if err := s.publisher.PublishRolloverApplied(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish rollover.applied event",
			"household_id", msg.HouseholdID, "from", msg.FromMonth, "to", msg.ToMonth, "error", err)
	}
}
