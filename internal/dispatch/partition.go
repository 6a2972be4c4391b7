package dispatch

import (
	"fmt"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// Caps are the scorer's per-request limits. They come from the external API
// contract and are configuration, not policy baked in here.
type Caps struct {
	MaxJourneysPerBatch int
	MaxSessionsPerBatch int
}

// Batch is one request-sized partition of journeys.
type Batch struct {
	Journeys []domain.Journey
	sessions int
}

// SessionCount returns the total session rows the batch will submit.
func (b *Batch) SessionCount() int {
	return b.sessions
}

// ConvIDs returns the conv_ids of the batch's journeys.
func (b *Batch) ConvIDs() []string {
	ids := make([]string, 0, len(b.Journeys))
	for _, j := range b.Journeys {
		ids = append(ids, j.ConvID)
	}
	return ids
}

// Partition greedily packs journeys into batches honoring both caps: a batch
// takes the next journey while it has fewer than MaxJourneysPerBatch
// journeys and adding the journey keeps the session total within
// MaxSessionsPerBatch. Every input journey lands in exactly one batch.
//
// A single conversion's sessions are never split across requests; the
// scorer's handling of one conv_id spread over two calls is unspecified, so
// a journey that alone exceeds the session cap is rejected as a row error
// and reported with the failed conversions instead of being fragmented.
func Partition(journeys []domain.Journey, caps Caps) ([]Batch, []domain.RowError) {
	var batches []Batch
	var rowErrors []domain.RowError
	var current Batch

	for _, j := range journeys {
		n := len(j.Touchpoints)
		if n > caps.MaxSessionsPerBatch {
			rowErrors = append(rowErrors, domain.RowError{
				ConvID: j.ConvID,
				Reason: fmt.Sprintf("journey has %d sessions, exceeding the %d per-request cap", n, caps.MaxSessionsPerBatch),
			})
			continue
		}

		if len(current.Journeys) >= caps.MaxJourneysPerBatch || current.sessions+n > caps.MaxSessionsPerBatch {
			if len(current.Journeys) > 0 {
				batches = append(batches, current)
			}
			current = Batch{}
		}

		current.Journeys = append(current.Journeys, j)
		current.sessions += n
	}

	if len(current.Journeys) > 0 {
		batches = append(batches, current)
	}

	return batches, rowErrors
}
