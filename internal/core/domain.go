package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"

	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"

	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"

	AccountCash    AccountType = "cash"
	AccountCurrent AccountType = "current"
	AccountCredit  AccountType = "credit"
	AccountSavings AccountType = "savings"
)

// WeightEpsilon is the tolerance applied when checking that a transaction's
// category weights sum to at most 1.
const WeightEpsilon = 1e-4

type (
	Kind        string
	Direction   string
	Role        string
	AccountType string

	Money struct {
		Cents int64
	}

	Household struct {
		ID           uuid.UUID
		Name         string
		BaseCurrency string
	}

	Account struct {
		ID             uuid.UUID
		HouseholdID    uuid.UUID
		Name           string
		Type           AccountType
		InitialBalance Money
		Currency       string
		Archived       bool
	}

	Category struct {
		ID          uuid.UUID
		HouseholdID uuid.UUID
		Kind        Kind
		Name        string
		Icon        string
		Color       string
		Position    int
	}

	Transaction struct {
		ID          uuid.UUID
		HouseholdID uuid.UUID
		AccountID   uuid.UUID
		OccurredAt  time.Time
		Description string
		Merchant    string
		Amount      Money
		Direction   Direction
		Currency    string
	}

	// CategoryWeight records one slice of a transaction's category split.
	CategoryWeight struct {
		TransactionID uuid.UUID
		CategoryID    uuid.UUID
		Weight        float64
	}

	Budget struct {
		PeriodID        uuid.UUID
		CategoryID      uuid.UUID
		Amount          Money
		RolloverEnabled bool
	}
)

// Error taxonomy. Specific validation errors wrap ErrValidation so callers
// can classify with errors.Is while still reporting the precise cause.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage failure")
	ErrRolloverApplied  = errors.New("rollover already applied")

	ErrInvalidAmount    = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrInvalidDirection = fmt.Errorf("%w: direction must be inflow or outflow", ErrValidation)
	ErrInvalidWeight    = fmt.Errorf("%w: weight must be in (0, 1]", ErrValidation)
	ErrWeightSum        = fmt.Errorf("%w: category weights must sum to 1.0 or less", ErrValidation)
	ErrInvalidMonth     = fmt.Errorf("%w: month must be a YYYY-MM-01 date", ErrValidation)
	ErrInvalidRange     = fmt.Errorf("%w: from_month must be before to_month", ErrValidation)
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CanEdit reports whether the role may perform mutating operations
// (budget writes, transaction creation, rollover).
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

func (d Direction) Valid() bool {
	return d == Inflow || d == Outflow
}

func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (a AccountType) Valid() bool {
	switch a {
	case AccountCash, AccountCurrent, AccountCredit, AccountSavings:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	if !t.Direction.Valid() {
		return ErrInvalidDirection
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at cannot be zero", ErrValidation)
	}
	return nil
}

// ValidateWeights checks a transaction's category split: every weight must be
// in (0, 1] and the sum must not exceed 1 plus WeightEpsilon. A single-entry
// split is always acceptable since its weight is normalized to 1.0.
func ValidateWeights(weights []CategoryWeight) error {
	if len(weights) == 1 {
		if weights[0].Weight <= 0 || weights[0].Weight > 1+WeightEpsilon {
			return ErrInvalidWeight
		}
		return nil
	}
	var sum float64
	for _, w := range weights {
		if w.Weight <= 0 || w.Weight > 1+WeightEpsilon {
			return ErrInvalidWeight
		}
		sum += w.Weight
	}
	if sum > 1+WeightEpsilon {
		return ErrWeightSum
	}
	return nil
}

// EffectiveWeight returns the weight to use during aggregation. A transaction
// split into exactly one category always contributes its full amount,
// whatever weight was stored.
func EffectiveWeight(weights []CategoryWeight, i int) float64 {
	if len(weights) == 1 {
		return 1.0
	}
	return weights[i].Weight
}
