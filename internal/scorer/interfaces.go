package scorer

import (
	"context"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// Client defines the interface for the external IHC scoring service: one
// synchronous request for a batch of journeys, one credit value back per
// submitted (conversion, session) pair. Retry policy lives in the dispatch
// layer, not here.
type Client interface {
	Score(ctx context.Context, journeys []domain.Journey) ([]domain.AttributionCredit, error)
}
