package budget

import (
	"context"
	"fmt"
	"log/slog"

	"homebudget/internal/amqp"
	"homebudget/internal/core"

	"github.com/google/uuid"
)

// Adjustment records one category's budget change during a rollover.
type Adjustment struct {
	CategoryID     uuid.UUID
	PreviousAmount core.Money
	Delta          core.Money
	NewAmount      core.Money
}

// SkippedCategory records a category the rollover could not process.
// One bad category never aborts the batch.
type SkippedCategory struct {
	CategoryID uuid.UUID
	Reason     string
}

type RolloverResult struct {
	FromMonth           string
	ToMonth             string
	CategoriesProcessed int
	Adjustments         []Adjustment
	Skipped             []SkippedCategory
}

// ApplyRollover carries unspent (or overspent) budget from one month
// into a later month. For every category with rollover enabled and a
// non-zero remainder, the target budget becomes
// max(0, baseline + remaining) where the baseline is the target month's
// existing budget, or the source month's budget when the target has
// none. A marker row keeps the rollover from being applied twice for
// the same month pair.
func (s *Service) ApplyRollover(ctx context.Context, householdID, userID uuid.UUID, from, to core.Month) (RolloverResult, error) {
	role, err := s.memberRole(ctx, householdID, userID)
	if err != nil {
		return RolloverResult{}, err
	}
	if !role.CanEdit() {
		return RolloverResult{}, fmt.Errorf("%w: role %s cannot apply rollovers", core.ErrPermissionDenied, role)
	}
	if !from.Before(to) {
		return RolloverResult{}, core.ErrInvalidRange
	}

	applied, err := s.repo.RolloverApplied(ctx, householdID, from, to)
	if err != nil {
		return RolloverResult{}, err
	}
	if applied {
		return RolloverResult{}, fmt.Errorf("%w: %s -> %s", core.ErrRolloverApplied, from, to)
	}

	_, summaries, err := s.BuildSummary(ctx, householdID, from)
	if err != nil {
		return RolloverResult{}, err
	}

	targetPeriod, err := s.repo.GetOrCreatePeriod(ctx, householdID, to)
	if err != nil {
		return RolloverResult{}, err
	}
	targetBudgets, err := s.repo.ListBudgets(ctx, targetPeriod)
	if err != nil {
		return RolloverResult{}, err
	}
	targetByCategory := make(map[uuid.UUID]core.Budget, len(targetBudgets))
	for _, b := range targetBudgets {
		targetByCategory[b.CategoryID] = b
	}

	result := RolloverResult{
		FromMonth: from.String(),
		ToMonth:   to.String(),
	}

	for _, row := range summaries {
		if !row.RolloverEnabled || row.Remaining.Cents == 0 {
			continue
		}
		result.CategoriesProcessed++

		baseline := row.Budget
		rolloverFlag := row.RolloverEnabled
		if existing, ok := targetByCategory[row.CategoryID]; ok {
			baseline = existing.Amount
			rolloverFlag = existing.RolloverEnabled
		}

		newAmount := baseline.Add(row.Remaining)
		if newAmount.Cents < 0 {
			newAmount.Cents = 0
		}

		err := s.repo.UpsertBudget(ctx, core.Budget{
			PeriodID:        targetPeriod,
			CategoryID:      row.CategoryID,
			Amount:          newAmount,
			RolloverEnabled: rolloverFlag,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Rollover failed for category, continuing",
				"category_id", row.CategoryID, "error", err)
			result.Skipped = append(result.Skipped, SkippedCategory{
				CategoryID: row.CategoryID,
				Reason:     err.Error(),
			})
			continue
		}

		result.Adjustments = append(result.Adjustments, Adjustment{
			CategoryID:     row.CategoryID,
			PreviousAmount: baseline,
			Delta:          newAmount.Sub(baseline),
			NewAmount:      newAmount,
		})
	}

	// Best-effort: a failed marker write never undoes the batch, it only
	// weakens the double-application guard.
	if err := s.repo.MarkRolloverApplied(ctx, householdID, from, to); err != nil {
		slog.WarnContext(ctx, "Failed to record rollover marker",
			"household_id", householdID, "from", from, "to", to, "error", err)
	}

	s.publishRolloverApplied(ctx, amqp.RolloverApplied{
		HouseholdID: householdID,
		FromMonth:   from.String(),
		ToMonth:     to.String(),
		Adjusted:    len(result.Adjustments),
		Skipped:     len(result.Skipped),
	})

	slog.InfoContext(ctx, "Rollover applied",
		"household_id", householdID,
		"from", from, "to", to,
		"processed", result.CategoriesProcessed,
		"adjusted", len(result.Adjustments),
		"skipped", len(result.Skipped))

	return result, nil
}
