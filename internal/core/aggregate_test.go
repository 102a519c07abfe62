package core

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
)

func septTx(id uuid.UUID, day int, cents int64, dir Direction) Transaction {
	return Transaction{
		ID:          id,
		OccurredAt:  time.Date(2025, 9, day, 12, 0, 0, 0, time.UTC),
		Description: "test",
		Amount:      Money{Cents: cents},
		Direction:   dir,
	}
}

func TestAggregateWeightedSplit(t *testing.T) {
	groceries := uuid.New()
	dining := uuid.New()
	kinds := map[uuid.UUID]Kind{groceries: KindExpense, dining: KindExpense}

	tx1 := uuid.New()
	tx2 := uuid.New()
	txs := []Transaction{
		septTx(tx1, 5, 6000, Outflow),
		septTx(tx2, 10, 4000, Outflow),
	}
	weights := []CategoryWeight{
		{TransactionID: tx1, CategoryID: groceries, Weight: 1.0},
		{TransactionID: tx2, CategoryID: groceries, Weight: 0.5},
		{TransactionID: tx2, CategoryID: dining, Weight: 0.5},
	}

	month := Month{Year: 2025, Month: time.September}
	totals, mismatches := Aggregate(txs, weights, kinds, month.Start(), month.End())

	if len(mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %v", mismatches)
	}
	if got := totals[groceries].Spent.Cents; got != 8000 {
		t.Fatalf("groceries spent = %d, want 8000", got)
	}
	if got := totals[dining].Spent.Cents; got != 2000 {
		t.Fatalf("dining spent = %d, want 2000", got)
	}
}

func TestAggregateSingleWeightNormalizedToOne(t *testing.T) {
	cat := uuid.New()
	kinds := map[uuid.UUID]Kind{cat: KindExpense}
	txID := uuid.New()
	txs := []Transaction{septTx(txID, 3, 5000, Outflow)}
	// Stored weight 0.25 but it is the only row: full amount applies.
	weights := []CategoryWeight{{TransactionID: txID, CategoryID: cat, Weight: 0.25}}

	month := Month{Year: 2025, Month: time.September}
	totals, _ := Aggregate(txs, weights, kinds, month.Start(), month.End())
	if got := totals[cat].Spent.Cents; got != 5000 {
		t.Fatalf("spent = %d, want 5000 (single weight normalizes to 1.0)", got)
	}
}

func TestAggregateHalfOpenInterval(t *testing.T) {
	cat := uuid.New()
	kinds := map[uuid.UUID]Kind{cat: KindExpense}

	inMonth := uuid.New()
	onBoundary := uuid.New()
	txs := []Transaction{
		septTx(inMonth, 1, 1000, Outflow),
		{
			ID:          onBoundary,
			OccurredAt:  time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
			Description: "boundary",
			Amount:      Money{Cents: 999},
			Direction:   Outflow,
		},
	}
	weights := []CategoryWeight{
		{TransactionID: inMonth, CategoryID: cat, Weight: 1.0},
		{TransactionID: onBoundary, CategoryID: cat, Weight: 1.0},
	}

	month := Month{Year: 2025, Month: time.September}
	totals, _ := Aggregate(txs, weights, kinds, month.Start(), month.End())
	if got := totals[cat].Spent.Cents; got != 1000 {
		t.Fatalf("spent = %d, want 1000 (first-of-next-month is exclusive)", got)
	}
}

func TestAggregateKindDirectionMismatch(t *testing.T) {
	salary := uuid.New()
	kinds := map[uuid.UUID]Kind{salary: KindIncome}
	txID := uuid.New()
	// Outflow split into an income category contributes zero but is reported.
	txs := []Transaction{septTx(txID, 8, 2500, Outflow)}
	weights := []CategoryWeight{{TransactionID: txID, CategoryID: salary, Weight: 1.0}}

	month := Month{Year: 2025, Month: time.September}
	totals, mismatches := Aggregate(txs, weights, kinds, month.Start(), month.End())

	if got := totals[salary]; got.Spent.Cents != 0 || got.Earned.Cents != 0 {
		t.Fatalf("mismatched row must contribute zero, got %+v", got)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(mismatches))
	}
	if mismatches[0].TransactionID != txID || mismatches[0].CategoryID != salary {
		t.Fatalf("mismatch identifies wrong row: %+v", mismatches[0])
	}
}

func TestAggregateIncomeEarned(t *testing.T) {
	salary := uuid.New()
	kinds := map[uuid.UUID]Kind{salary: KindIncome}
	txID := uuid.New()
	txs := []Transaction{septTx(txID, 1, 250000, Inflow)}
	weights := []CategoryWeight{{TransactionID: txID, CategoryID: salary, Weight: 1.0}}

	month := Month{Year: 2025, Month: time.September}
	totals, _ := Aggregate(txs, weights, kinds, month.Start(), month.End())
	if got := totals[salary].Earned.Cents; got != 250000 {
		t.Fatalf("earned = %d, want 250000", got)
	}
}

func TestAggregateUncategorizedContributesNothing(t *testing.T) {
	cat := uuid.New()
	kinds := map[uuid.UUID]Kind{cat: KindExpense}
	txs := []Transaction{septTx(uuid.New(), 4, 7777, Outflow)} // no weight rows

	month := Month{Year: 2025, Month: time.September}
	totals, mismatches := Aggregate(txs, nil, kinds, month.Start(), month.End())
	if len(totals) != 0 || len(mismatches) != 0 {
		t.Fatalf("uncategorized transaction must contribute nothing: %v %v", totals, mismatches)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	catA := uuid.New()
	catB := uuid.New()
	kinds := map[uuid.UUID]Kind{catA: KindExpense, catB: KindExpense}

	var txs []Transaction
	var weights []CategoryWeight
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		id := uuid.New()
		txs = append(txs, septTx(id, 1+i%28, int64(rng.Intn(100000)+1), Outflow))
		w := 0.1 + rng.Float64()*0.8
		weights = append(weights,
			CategoryWeight{TransactionID: id, CategoryID: catA, Weight: w},
			CategoryWeight{TransactionID: id, CategoryID: catB, Weight: 1 - w},
		)
	}

	month := Month{Year: 2025, Month: time.September}
	first, _ := Aggregate(txs, weights, kinds, month.Start(), month.End())

	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(txs), func(i, j int) { txs[i], txs[j] = txs[j], txs[i] })
		rng.Shuffle(len(weights), func(i, j int) { weights[i], weights[j] = weights[j], weights[i] })
		again, _ := Aggregate(txs, weights, kinds, month.Start(), month.End())
		for cat, want := range first {
			if again[cat] != want {
				t.Fatalf("permutation changed totals for %s: %+v vs %+v", cat, again[cat], want)
			}
		}
	}
}
