package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
	"github.com/shreyank06/data-engineering-project/internal/scorer"
)

// DispatcherConfig configures the dispatch worker pool and retry policy.
type DispatcherConfig struct {
	// Concurrency bounds the number of in-flight scorer requests. The scorer
	// is rate limited, so unbounded fan-out is never acceptable.
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Result accounts for every dispatched batch. Successful and failed conv_ids
// together cover the input exactly once; partial success is surfaced, never
// masked.
type Result struct {
	Credits           []domain.AttributionCredit
	FailedConvIDs     []string
	BatchesDispatched int
	BatchesFailed     int
}

// Dispatcher sends batches to the scorer through a bounded worker pool.
// Batches are independent; completion order carries no meaning.
type Dispatcher struct {
	client scorer.Client
	config DispatcherConfig
	log    *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(client scorer.Client, config DispatcherConfig, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		config: config,
		log:    log,
	}
}

type batchOutcome struct {
	credits []domain.AttributionCredit
	failed  []string
}

// Dispatch sends every batch, retrying transient failures with exponential
// backoff up to the attempt ceiling. A batch that exhausts its retries has
// its conv_ids recorded as failed without aborting the remaining batches.
// Cancellation is cooperative: in-flight batches finish, queued batches are
// abandoned and reported exactly like retry-exhausted ones.
func (d *Dispatcher) Dispatch(ctx context.Context, batches []Batch) Result {
	jobs := make(chan Batch)
	outcomes := make(chan batchOutcome)

	var wg sync.WaitGroup
	for i := 0; i < d.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				outcomes <- d.sendBatch(ctx, batch)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, batch := range batches {
			select {
			case <-ctx.Done():
				// Queued batches are abandoned; their conversions are
				// reported as failed alongside retry exhaustion.
				outcomes <- batchOutcome{failed: batch.ConvIDs()}
			case jobs <- batch:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var result Result
	for outcome := range outcomes {
		result.BatchesDispatched++
		if len(outcome.failed) > 0 {
			result.BatchesFailed++
			result.FailedConvIDs = append(result.FailedConvIDs, outcome.failed...)
			continue
		}
		result.Credits = append(result.Credits, outcome.credits...)
	}
	sort.Strings(result.FailedConvIDs)

	return result
}

func (d *Dispatcher) sendBatch(ctx context.Context, batch Batch) batchOutcome {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.config.InitialBackoff

	var credits []domain.AttributionCredit
	operation := func() error {
		scored, err := d.client.Score(ctx, batch.Journeys)
		if err != nil {
			if errors.Is(err, scorer.ErrTransient) {
				return err
			}
			// Permanent rejection: retrying cannot help.
			return backoff.Permanent(err)
		}
		credits = scored
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(d.config.MaxAttempts-1)), ctx))
	if err != nil {
		d.log.Error("Batch failed after retries",
			zap.Int("journeys", len(batch.Journeys)),
			zap.Int("sessions", batch.SessionCount()),
			zap.Error(err))
		return batchOutcome{failed: batch.ConvIDs()}
	}

	d.log.Info("Batch scored",
		zap.Int("journeys", len(batch.Journeys)),
		zap.Int("sessions", batch.SessionCount()),
		zap.Int("credit_rows", len(credits)))

	return batchOutcome{credits: credits}
}
