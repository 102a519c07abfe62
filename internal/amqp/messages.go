package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeBudgetUpdated   = "budget.updated"
	TypeRolloverApplied = "rollover.applied"
)

// BudgetUpdated signals that budgets changed for a household month. The
// worker fetches the fresh summary from the database, the message only
// identifies what changed.
type BudgetUpdated struct {
	HouseholdID uuid.UUID   `json:"household_id"`
	Month       string      `json:"month"`
	PeriodID    uuid.UUID   `json:"period_id"`
	Categories  []uuid.UUID `json:"categories"`
}

// RolloverApplied signals that a rollover ran between two months.
type RolloverApplied struct {
	HouseholdID uuid.UUID `json:"household_id"`
	FromMonth   string    `json:"from_month"`
	ToMonth     string    `json:"to_month"`
	Adjusted    int       `json:"adjusted"`
	Skipped     int       `json:"skipped"`
}

// Event is the envelope carried on the budget events queue. Exactly one
// payload field is set, selected by Type.
type Event struct {
	Type            string           `json:"type"`
	Timestamp       time.Time        `json:"timestamp"`
	BudgetUpdated   *BudgetUpdated   `json:"budget_updated,omitempty"`
	RolloverApplied *RolloverApplied `json:"rollover_applied,omitempty"`
}

func NewBudgetUpdatedEvent(msg BudgetUpdated) *Event {
	return &Event{
		Type:          TypeBudgetUpdated,
		Timestamp:     time.Now(),
		BudgetUpdated: &msg,
	}
}

func NewRolloverAppliedEvent(msg RolloverApplied) *Event {
	return &Event{
		Type:            TypeRolloverApplied,
		Timestamp:       time.Now(),
		RolloverApplied: &msg,
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
