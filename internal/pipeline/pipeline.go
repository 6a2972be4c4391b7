package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/aggregate"
	"github.com/shreyank06/data-engineering-project/internal/config"
	"github.com/shreyank06/data-engineering-project/internal/dispatch"
	"github.com/shreyank06/data-engineering-project/internal/domain"
	"github.com/shreyank06/data-engineering-project/internal/journey"
	"github.com/shreyank06/data-engineering-project/internal/reconcile"
	"github.com/shreyank06/data-engineering-project/internal/repository"
	"github.com/shreyank06/data-engineering-project/internal/scorer"
)

// Runner orchestrates one attribution run as an explicit stage progression:
// journeys_built, scores_dispatched, credit_reconciled, report_aggregated.
// Progress is carried in the RunSummary rather than inferred from which
// tables happen to exist.
type Runner struct {
	store      repository.EventStore
	builder    *journey.Builder
	dispatcher *dispatch.Dispatcher
	reconciler *reconcile.Reconciler
	aggregator *aggregate.Aggregator
	caps       dispatch.Caps
	log        *zap.Logger
}

// NewRunner wires the pipeline components from configuration.
func NewRunner(cfg *config.Config, store repository.EventStore, client scorer.Client, log *zap.Logger) *Runner {
	dispatcher := dispatch.NewDispatcher(client, dispatch.DispatcherConfig{
		Concurrency:    cfg.Dispatch.Concurrency,
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Dispatch.InitialBackoffMS) * time.Millisecond,
	}, log)

	reconciler := reconcile.NewReconciler(store, reconcile.ReconcilerConfig{
		Concurrency: cfg.Dispatch.Concurrency,
	}, log)

	return &Runner{
		store:      store,
		builder:    journey.NewBuilder(log),
		dispatcher: dispatcher,
		reconciler: reconciler,
		aggregator: aggregate.NewAggregator(store, log),
		caps: dispatch.Caps{
			MaxJourneysPerBatch: cfg.Dispatch.MaxJourneysPerBatch,
			MaxSessionsPerBatch: cfg.Dispatch.MaxSessionsPerBatch,
		},
		log: log,
	}
}

// Run executes build, dispatch, reconcile, and aggregate for the whole
// store, optionally restricting the report rebuild to a window. Row-level
// failures and failed batches are accumulated in the summary and never abort
// the run; only infrastructure failures (store errors) do.
func (r *Runner) Run(ctx context.Context, window *domain.DateWindow) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID: uuid.NewString(),
		Stage: domain.StagePending.String(),
	}

	log := r.log.With(zap.String("run_id", summary.RunID))
	log.Info("Pipeline run starting")

	conversions, err := r.store.ReadConversions(ctx)
	if err != nil {
		return summary, fmt.Errorf("read conversions: %w", err)
	}
	sessions, err := r.store.ReadSessions(ctx)
	if err != nil {
		return summary, fmt.Errorf("read sessions: %w", err)
	}
	summary.ConversionsRead = len(conversions)
	summary.SessionsRead = len(sessions)

	journeys, rowErrors := r.builder.Build(conversions, sessions)
	summary.RowErrors = append(summary.RowErrors, rowErrors...)
	summary.Stage = domain.StageJourneysBuilt.String()
	log.Info("Journeys built",
		zap.Int("journeys", len(journeys)),
		zap.Int("row_errors", len(rowErrors)))

	batches, capErrors := dispatch.Partition(journeys, r.caps)
	summary.RowErrors = append(summary.RowErrors, capErrors...)
	for _, e := range capErrors {
		summary.FailedConvIDs = append(summary.FailedConvIDs, e.ConvID)
	}
	summary.JourneysSubmitted = len(journeys) - len(capErrors)

	result := r.dispatcher.Dispatch(ctx, batches)
	summary.BatchesDispatched = result.BatchesDispatched
	summary.BatchesFailed = result.BatchesFailed
	summary.FailedConvIDs = append(summary.FailedConvIDs, result.FailedConvIDs...)
	summary.Stage = domain.StageScoresDispatched.String()
	log.Info("Scores dispatched",
		zap.Int("batches", result.BatchesDispatched),
		zap.Int("failed_batches", result.BatchesFailed),
		zap.Int("credit_rows", len(result.Credits)))

	outcome, err := r.reconciler.Reconcile(ctx, result.Credits, reconcile.IndexJourneys(journeys))
	summary.CreditRowsPersisted = outcome.PersistedCount
	summary.RowErrors = append(summary.RowErrors, outcome.RowErrors...)
	summary.InvariantViolations = outcome.Violations
	if err != nil {
		return summary, fmt.Errorf("reconcile credit: %w", err)
	}
	summary.Stage = domain.StageCreditReconciled.String()
	log.Info("Credit reconciled",
		zap.Int("persisted", outcome.PersistedCount),
		zap.Int("violations", len(outcome.Violations)))

	if err := r.aggregator.Rebuild(ctx, window); err != nil {
		return summary, fmt.Errorf("rebuild channel report: %w", err)
	}
	summary.Stage = domain.StageReportAggregated.String()

	log.Info("Pipeline run complete",
		zap.Int("journeys_submitted", summary.JourneysSubmitted),
		zap.Int("credit_rows_persisted", summary.CreditRowsPersisted),
		zap.Int("failed_conversions", len(summary.FailedConvIDs)),
		zap.Int("invariant_violations", len(summary.InvariantViolations)))

	return summary, nil
}
