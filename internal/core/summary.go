package core

import (
	"sort"

	"github.com/google/uuid"
)

// CategorySummary is one category's derived monthly row: never persisted,
// recomputed on every request.
//
// For expense categories Spent is outflow×weight and Remaining is
// budget − spent. For income categories Spent carries the earned total and
// Remaining is earned − budget ("income target met" rather than overspend).
type CategorySummary struct {
	CategoryID      uuid.UUID
	CategoryName    string
	Kind            Kind
	Position        int
	Budget          Money
	Spent           Money
	Remaining       Money
	Percentage      float64
	RolloverEnabled bool
}

// NewCategorySummary combines a category, its budget row (zero-valued when
// absent) and its aggregated totals into a summary row.
func NewCategorySummary(cat Category, budget Money, rolloverEnabled bool, totals Totals) CategorySummary {
	s := CategorySummary{
		CategoryID:      cat.ID,
		CategoryName:    cat.Name,
		Kind:            cat.Kind,
		Position:        cat.Position,
		Budget:          budget,
		RolloverEnabled: rolloverEnabled,
	}
	if cat.Kind == KindIncome {
		s.Spent = totals.Earned
		s.Remaining = totals.Earned.Sub(budget)
	} else {
		s.Spent = totals.Spent
		s.Remaining = budget.Sub(totals.Spent)
	}
	if budget.Cents > 0 {
		s.Percentage = float64(s.Spent.Cents) / float64(budget.Cents) * 100
	}
	return s
}

// SortSummaries orders rows for stable rendering: expense categories before
// income, then by position, then by name.
func SortSummaries(rows []CategorySummary) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Kind != b.Kind {
			return a.Kind == KindExpense
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.CategoryName < b.CategoryName
	})
}
