package core

import (
	"time"

	"github.com/google/uuid"
)

// Totals holds per-category aggregation output for one month.
type Totals struct {
	Spent  Money
	Earned Money
}

// KindMismatch reports a weight row whose category kind does not match the
// transaction direction (e.g. an outflow split into an income category).
// Such rows contribute zero; the caller decides how to surface them.
type KindMismatch struct {
	TransactionID uuid.UUID
	CategoryID    uuid.UUID
	Kind          Kind
	Direction     Direction
}

// Aggregate computes per-category spent/earned totals for transactions whose
// occurred_at falls in [monthStart, monthEnd). kinds maps category ids to
// their kind; weight rows referencing an unknown category are reported as
// mismatches and contribute nothing.
//
// Each weight row is rounded to whole cents before summation, so the result
// is identical for any permutation of the inputs. Transactions without weight
// rows contribute to no category.
func Aggregate(txs []Transaction, weights []CategoryWeight, kinds map[uuid.UUID]Kind, monthStart, monthEnd time.Time) (map[uuid.UUID]Totals, []KindMismatch) {
	byTx := make(map[uuid.UUID][]CategoryWeight, len(txs))
	for _, w := range weights {
		byTx[w.TransactionID] = append(byTx[w.TransactionID], w)
	}

	totals := make(map[uuid.UUID]Totals)
	var mismatches []KindMismatch

	for _, tx := range txs {
		at := tx.OccurredAt.UTC()
		if at.Before(monthStart) || !at.Before(monthEnd) {
			continue
		}
		split := byTx[tx.ID]
		for i, w := range split {
			kind, known := kinds[w.CategoryID]
			contribution := tx.Amount.MulWeight(EffectiveWeight(split, i))
			switch {
			case known && kind == KindExpense && tx.Direction == Outflow:
				t := totals[w.CategoryID]
				t.Spent = t.Spent.Add(contribution)
				totals[w.CategoryID] = t
			case known && kind == KindIncome && tx.Direction == Inflow:
				t := totals[w.CategoryID]
				t.Earned = t.Earned.Add(contribution)
				totals[w.CategoryID] = t
			default:
				mismatches = append(mismatches, KindMismatch{
					TransactionID: tx.ID,
					CategoryID:    w.CategoryID,
					Kind:          kind,
					Direction:     tx.Direction,
				})
			}
		}
	}

	return totals, mismatches
}
