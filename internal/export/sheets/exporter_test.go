package sheets

import (
	"testing"
	"time"

	"homebudget/internal/core"

	"github.com/google/uuid"
)

func TestSnapshotRows(t *testing.T) {
	household := uuid.New()
	exportedAt := time.Date(2025, time.October, 1, 8, 30, 0, 0, time.UTC)

	summaries := []core.CategorySummary{
		{
			CategoryID:   uuid.New(),
			CategoryName: "Groceries",
			Kind:         core.KindExpense,
			Budget:       core.Money{Cents: 50000},
			Spent:        core.Money{Cents: 8000},
			Remaining:    core.Money{Cents: 42000},
			Percentage:   16.0,
		},
		{
			CategoryID:   uuid.New(),
			CategoryName: "Salary",
			Kind:         core.KindIncome,
			Spent:        core.Money{Cents: 250000},
			Remaining:    core.Money{Cents: -250000},
		},
	}

	rows := snapshotRows(exportedAt, household, "2025-09-01", summaries)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if len(first) != 9 {
		t.Fatalf("columns = %d, want 9", len(first))
	}
	want := []any{
		"2025-10-01T08:30:00Z",
		household.String(),
		"2025-09-01",
		"Groceries",
		"expense",
		"500.00",
		"80.00",
		"420.00",
		"16.0",
	}
	for i, w := range want {
		if first[i] != w {
			t.Errorf("column %d = %v, want %v", i, first[i], w)
		}
	}

	if rows[1][4] != "income" || rows[1][6] != "2500.00" {
		t.Fatalf("income row = %v", rows[1])
	}
}

func TestSnapshotRowsNegativeRemaining(t *testing.T) {
	rows := snapshotRows(time.Now(), uuid.New(), "2025-09-01", []core.CategorySummary{
		{CategoryName: "Dining", Kind: core.KindExpense, Spent: core.Money{Cents: 2000}, Remaining: core.Money{Cents: -2000}},
	})
	if rows[0][7] != "-20.00" {
		t.Fatalf("remaining = %v, want -20.00", rows[0][7])
	}
}
