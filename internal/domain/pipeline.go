package domain

// Stage identifies how far a pipeline run has progressed. Resumption and
// reporting are driven by this value rather than by probing which tables
// happen to exist.
type Stage int

const (
	StagePending Stage = iota
	StageJourneysBuilt
	StageScoresDispatched
	StageCreditReconciled
	StageReportAggregated
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageJourneysBuilt:
		return "journeys_built"
	case StageScoresDispatched:
		return "scores_dispatched"
	case StageCreditReconciled:
		return "credit_reconciled"
	case StageReportAggregated:
		return "report_aggregated"
	default:
		return "unknown"
	}
}

// RunSummary is what a pipeline run reports back to its caller. It is
// detailed enough to distinguish "no data to process" from "processing
// failed": zero submitted journeys with no errors is the former, failed
// conv_ids or row errors the latter.
type RunSummary struct {
	RunID               string               `json:"run_id"`
	Stage               string               `json:"stage"`
	ConversionsRead     int                  `json:"conversions_read"`
	SessionsRead        int                  `json:"sessions_read"`
	JourneysSubmitted   int                  `json:"journeys_submitted"`
	BatchesDispatched   int                  `json:"batches_dispatched"`
	BatchesFailed       int                  `json:"batches_failed"`
	CreditRowsPersisted int                  `json:"credit_rows_persisted"`
	FailedConvIDs       []string             `json:"failed_conv_ids,omitempty"`
	RowErrors           []RowError           `json:"row_errors,omitempty"`
	InvariantViolations []CreditSumViolation `json:"invariant_violations,omitempty"`
}
