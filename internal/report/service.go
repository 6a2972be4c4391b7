package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
	"github.com/shreyank06/data-engineering-project/internal/repository"
)

// Row is a channel report row extended with the derived efficiency columns.
type Row struct {
	domain.ChannelReportRow
	CPO  float64 `json:"cpo"`
	ROAS float64 `json:"roas"`
}

// Service reads the channel report and derives CPO and ROAS.
type Service struct {
	store repository.EventStore
	log   *zap.Logger
}

// NewService creates a new report service
func NewService(store repository.EventStore, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// Get returns the channel report, optionally windowed, with CPO and ROAS
// appended. Zero credit or zero cost yields a zero ratio, never a division
// error.
func (s *Service) Get(ctx context.Context, window *domain.DateWindow) ([]Row, error) {
	reportRows, err := s.store.ReadChannelReport(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("read channel report: %w", err)
	}

	rows := make([]Row, 0, len(reportRows))
	for _, r := range reportRows {
		rows = append(rows, Row{
			ChannelReportRow: r,
			CPO:              safeDivide(r.Cost, r.IHC),
			ROAS:             safeDivide(r.IHCRevenue, r.Cost),
		})
	}
	return rows, nil
}

// ExportCSV writes the report as the tabular extract downstream consumers
// expect: the channel_reporting columns plus CPO and ROAS.
func (s *Service) ExportCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	header := []string{"channel_name", "date", "cost", "ihc", "ihc_revenue", "CPO", "ROAS"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.ChannelName,
			r.Date,
			formatFloat(r.Cost),
			formatFloat(r.IHC),
			formatFloat(r.IHCRevenue),
			formatFloat(r.CPO),
			formatFloat(r.ROAS),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row for %s/%s: %w", r.ChannelName, r.Date, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
