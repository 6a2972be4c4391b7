package repository

import (
	"context"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// EventStore defines typed access to the attribution relations: read access
// to the append-only source relations (conversions, session_sources,
// session_costs) and write access to the derived relations
// (attribution_customer_journey, channel_reporting). It is the only owner of
// persisted state; every other component works on values.
type EventStore interface {
	// ReadConversions returns all rows of the conversions relation.
	ReadConversions(ctx context.Context) ([]domain.Conversion, error)

	// ReadSessions returns all rows of the session_sources relation.
	ReadSessions(ctx context.Context) ([]domain.Session, error)

	// ReadCosts returns all rows of the session_costs relation.
	ReadCosts(ctx context.Context) ([]domain.SessionCost, error)

	// ReadCredit returns all rows of the attribution_customer_journey relation.
	ReadCredit(ctx context.Context) ([]domain.AttributionCredit, error)

	// UpsertCredit persists credit rows keyed by (conv_id, session_id) with
	// replace-on-conflict semantics and returns the number of rows written.
	// Re-running the same input must not create duplicates.
	UpsertCredit(ctx context.Context, credits []domain.AttributionCredit) (int, error)

	// CreditSums returns the per-conversion sum of persisted credit.
	CreditSums(ctx context.Context) (map[string]float64, error)

	// ReplaceChannelReport clears the channel_reporting relation (fully, or
	// within the window) and repopulates it with rows, in one transaction.
	ReplaceChannelReport(ctx context.Context, rows []domain.ChannelReportRow, window *domain.DateWindow) error

	// ReadChannelReport returns channel_reporting rows, optionally windowed,
	// ordered by (channel_name, date).
	ReadChannelReport(ctx context.Context, window *domain.DateWindow) ([]domain.ChannelReportRow, error)

	// Migrate brings the schema to the current version.
	Migrate() error

	// Ping checks if the database connection is alive.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
