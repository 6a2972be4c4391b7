package aggregate

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
	"github.com/shreyank06/data-engineering-project/internal/repository"
)

// Aggregator rebuilds the channel_reporting relation from the source
// relations and the persisted credit. The report is always recomputed from
// scratch (delete-then-repopulate) rather than patched, so retroactive
// corrections upstream can never double-count.
type Aggregator struct {
	store repository.EventStore
	log   *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(store repository.EventStore, log *zap.Logger) *Aggregator {
	return &Aggregator{store: store, log: log}
}

type reportKey struct {
	channel string
	date    string
}

// Rebuild joins session_sources with session_costs, attribution credit, and
// conversion revenue, grouped by (channel_name, event_date). Missing cost,
// credit, or revenue contributes zero instead of propagating as null. When a
// window is given, sessions are filtered by event date before grouping and
// only that window of the report is replaced.
//
// Rebuild must not run concurrently with an in-flight reconciliation for the
// same window; callers own that sequencing.
func (a *Aggregator) Rebuild(ctx context.Context, window *domain.DateWindow) error {
	sessions, err := a.store.ReadSessions(ctx)
	if err != nil {
		return fmt.Errorf("read sessions: %w", err)
	}
	costs, err := a.store.ReadCosts(ctx)
	if err != nil {
		return fmt.Errorf("read costs: %w", err)
	}
	credits, err := a.store.ReadCredit(ctx)
	if err != nil {
		return fmt.Errorf("read credit: %w", err)
	}
	conversions, err := a.store.ReadConversions(ctx)
	if err != nil {
		return fmt.Errorf("read conversions: %w", err)
	}

	costBySession := make(map[string]float64, len(costs))
	for _, c := range costs {
		costBySession[c.SessionID] = c.Cost
	}

	revenueByConv := make(map[string]float64, len(conversions))
	for _, c := range conversions {
		revenueByConv[c.ConvID] = c.Revenue
	}

	creditsBySession := make(map[string][]domain.AttributionCredit, len(credits))
	for _, c := range credits {
		creditsBySession[c.SessionID] = append(creditsBySession[c.SessionID], c)
	}

	groups := make(map[reportKey]*domain.ChannelReportRow)
	for _, s := range sessions {
		if window != nil && !window.Contains(s.EventDate) {
			continue
		}

		key := reportKey{channel: s.ChannelName, date: s.EventDate}
		row, ok := groups[key]
		if !ok {
			row = &domain.ChannelReportRow{ChannelName: s.ChannelName, Date: s.EventDate}
			groups[key] = row
		}

		// Cost is counted once per session; a session attributed to several
		// conversions still cost its money only once.
		row.Cost += costBySession[s.SessionID]

		for _, credit := range creditsBySession[s.SessionID] {
			row.IHC += credit.IHC
			row.IHCRevenue += credit.IHC * revenueByConv[credit.ConvID]
		}
	}

	rows := make([]domain.ChannelReportRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ChannelName != rows[j].ChannelName {
			return rows[i].ChannelName < rows[j].ChannelName
		}
		return rows[i].Date < rows[j].Date
	})

	if err := a.store.ReplaceChannelReport(ctx, rows, window); err != nil {
		return fmt.Errorf("replace channel report: %w", err)
	}

	a.log.Info("Channel report rebuilt",
		zap.Int("rows", len(rows)),
		zap.Bool("windowed", window != nil))

	return nil
}
