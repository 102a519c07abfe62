// Package worker consumes budget events and exports month snapshots.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"homebudget/internal/amqp"
	"homebudget/internal/core"

	"github.com/google/uuid"
)

// SummaryBuilder recomputes a month overview from storage.
// Satisfied by *budget.Service.
type SummaryBuilder interface {
	BuildSummary(ctx context.Context, householdID uuid.UUID, month core.Month) (uuid.UUID, []core.CategorySummary, error)
}

// SnapshotWriter persists an exported snapshot.
// Satisfied by *sheets.Exporter.
type SnapshotWriter interface {
	AppendMonthSnapshot(ctx context.Context, householdID uuid.UUID, month string, summaries []core.CategorySummary) error
}

// ExportWorker reacts to budget.updated and rollover.applied events by
// rebuilding the affected month summary and appending it to the export
// destination.
type ExportWorker struct {
	builder SummaryBuilder
	writer  SnapshotWriter
}

func NewExportWorker(builder SummaryBuilder, writer SnapshotWriter) *ExportWorker {
	return &ExportWorker{builder: builder, writer: writer}
}

// HandleEvent dispatches a consumed event. Malformed events are logged
// and dropped; transient failures return an error so the message is
// redelivered.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.Event) error {
	switch event.Type {
	case amqp.TypeBudgetUpdated:
		msg := event.BudgetUpdated
		if msg == nil {
			slog.WarnContext(ctx, "Dropping budget.updated event without payload")
			return nil
		}
		return w.export(ctx, msg.HouseholdID, msg.Month)

	case amqp.TypeRolloverApplied:
		msg := event.RolloverApplied
		if msg == nil {
			slog.WarnContext(ctx, "Dropping rollover.applied event without payload")
			return nil
		}
		// A rollover changes both ends of the range: the source month's
		// marker state and the target month's budgets.
		if err := w.export(ctx, msg.HouseholdID, msg.FromMonth); err != nil {
			return err
		}
		return w.export(ctx, msg.HouseholdID, msg.ToMonth)

	default:
		slog.WarnContext(ctx, "Dropping event of unknown type", "type", event.Type)
		return nil
	}
}

func (w *ExportWorker) export(ctx context.Context, householdID uuid.UUID, monthStr string) error {
	month, err := core.ParseMonth(monthStr)
	if err != nil {
		// A bad month will never parse on redelivery either, drop it.
		slog.WarnContext(ctx, "Dropping event with unparseable month",
			"household_id", householdID, "month", monthStr, "error", err)
		return nil
	}

	_, summaries, err := w.builder.BuildSummary(ctx, householdID, month)
	if err != nil {
		return fmt.Errorf("build summary for export: %w", err)
	}

	if err := w.writer.AppendMonthSnapshot(ctx, householdID, month.String(), summaries); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot exported",
		"household_id", householdID,
		"month", month.String(),
		"categories", len(summaries))
	return nil
}
