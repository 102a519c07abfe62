package budget

import (
	"context"
	"log/slog"
	"time"

	"homebudget/internal/core"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MonthOverview is the read model for a household month: one summary row
// per category plus the burn-rate projection over the expense rows.
type MonthOverview struct {
	HouseholdID uuid.UUID
	Month       core.Month
	PeriodID    uuid.UUID
	Summaries   []core.CategorySummary
	BurnRate    core.BurnRate
}

// Summary builds the month overview for a member of the household. Any
// role may read, including viewers.
func (s *Service) Summary(ctx context.Context, householdID, userID uuid.UUID, month core.Month) (MonthOverview, error) {
	if _, err := s.memberRole(ctx, householdID, userID); err != nil {
		return MonthOverview{}, err
	}

	periodID, summaries, err := s.BuildSummary(ctx, householdID, month)
	if err != nil {
		return MonthOverview{}, err
	}

	return MonthOverview{
		HouseholdID: householdID,
		Month:       month,
		PeriodID:    periodID,
		Summaries:   summaries,
		BurnRate:    core.Project(summaries, month, time.Now()),
	}, nil
}

// BuildSummary computes the per-category summaries for a household
// month. Categories, budgets and transactions are loaded concurrently;
// every category gets a row, with zeros where no budget or spending
// exists. Recomputed from storage on every call, never cached.
func (s *Service) BuildSummary(ctx context.Context, householdID uuid.UUID, month core.Month) (uuid.UUID, []core.CategorySummary, error) {
	var (
		categories []core.Category
		budgets    []core.Budget
		txs        []core.Transaction
		weights    []core.CategoryWeight
		periodID   uuid.UUID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.repo.ListCategories(gctx, householdID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, weights, err = s.repo.ListTransactions(gctx, householdID, month.Start(), month.End())
		return err
	})
	g.Go(func() error {
		var err error
		periodID, err = s.repo.GetOrCreatePeriod(gctx, householdID, month)
		if err != nil {
			return err
		}
		budgets, err = s.repo.ListBudgets(gctx, periodID)
		return err
	})
	if err := g.Wait(); err != nil {
		return uuid.Nil, nil, err
	}

	kinds := make(map[uuid.UUID]core.Kind, len(categories))
	for _, c := range categories {
		kinds[c.ID] = c.Kind
	}

	totals, mismatches := core.Aggregate(txs, weights, kinds, month.Start(), month.End())
	for _, m := range mismatches {
		slog.WarnContext(ctx, "Transaction split does not match category kind",
			"transaction_id", m.TransactionID,
			"category_id", m.CategoryID,
			"kind", m.Kind,
			"direction", m.Direction)
	}

	budgetByCategory := make(map[uuid.UUID]core.Budget, len(budgets))
	for _, b := range budgets {
		budgetByCategory[b.CategoryID] = b
	}

	summaries := make([]core.CategorySummary, 0, len(categories))
	for _, c := range categories {
		b := budgetByCategory[c.ID] // zero value when unbudgeted
		summaries = append(summaries, core.NewCategorySummary(c, b.Amount, b.RolloverEnabled, totals[c.ID]))
	}
	core.SortSummaries(summaries)

	return periodID, summaries, nil
}
