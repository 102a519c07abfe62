package core

import "time"

// BurnRate projects a household's spending pace for one month. Rates are
// float64 cents since daily averages rarely land on whole cents.
type BurnRate struct {
	TotalSpent    Money
	TotalBudget   Money
	Remaining     Money
	ElapsedDays   int
	RemainingDays int
	DaysInMonth   int

	DailyAverage          float64
	SuggestedDailySpend   float64
	ProjectedMonthlySpend float64
}

// Project computes burn-rate metrics from a month's summaries. Only
// expense-kind rows count; income categories are ignored.
//
// Elapsed days are clamped: a past month is fully elapsed, a future month has
// zero elapsed days and an inert (all-zero rates) projection, and within the
// month the count is at least 1 so the first day produces a usable average.
func Project(summaries []CategorySummary, month Month, today time.Time) BurnRate {
	br := BurnRate{DaysInMonth: month.Days()}

	for _, s := range summaries {
		if s.Kind != KindExpense {
			continue
		}
		br.TotalSpent = br.TotalSpent.Add(s.Spent)
		br.TotalBudget = br.TotalBudget.Add(s.Budget)
	}
	br.Remaining = br.TotalBudget.Sub(br.TotalSpent)

	now := today.UTC()
	switch {
	case !now.Before(month.End()):
		br.ElapsedDays = br.DaysInMonth
	case now.Before(month.Start()):
		br.ElapsedDays = 0
	default:
		elapsed := int(now.Sub(month.Start()).Hours() / 24)
		if elapsed < 1 {
			elapsed = 1
		}
		if elapsed > br.DaysInMonth {
			elapsed = br.DaysInMonth
		}
		br.ElapsedDays = elapsed
	}
	br.RemainingDays = br.DaysInMonth - br.ElapsedDays
	if br.RemainingDays < 0 {
		br.RemainingDays = 0
	}

	if br.ElapsedDays > 0 {
		br.DailyAverage = float64(br.TotalSpent.Cents) / float64(br.ElapsedDays)
	}
	if br.RemainingDays > 0 {
		left := br.Remaining.Cents
		if left < 0 {
			left = 0
		}
		br.SuggestedDailySpend = float64(left) / float64(br.RemainingDays)
	}
	br.ProjectedMonthlySpend = br.DailyAverage * float64(br.DaysInMonth)

	return br
}
