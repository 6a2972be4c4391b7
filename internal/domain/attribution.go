package domain

import "time"

// TimestampLayout is the combined layout of the date and time columns
// (event_date + event_time, conv_date + conv_time) in the source relations.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the layout of date-only columns (event_date, channel report date).
const DateLayout = "2006-01-02"

// Conversion represents a row of the conversions relation. Immutable once ingested.
type Conversion struct {
	ConvID   string  `db:"conv_id"`
	UserID   string  `db:"user_id"`
	ConvDate string  `db:"conv_date"`
	ConvTime string  `db:"conv_time"`
	Revenue  float64 `db:"revenue"`
}

// Timestamp combines the date and time columns into a single timestamp.
func (c Conversion) Timestamp() (time.Time, error) {
	return time.Parse(TimestampLayout, c.ConvDate+" "+c.ConvTime)
}

// Session represents a row of the session_sources relation (one touchpoint).
// Immutable once ingested.
type Session struct {
	SessionID             string `db:"session_id"`
	UserID                string `db:"user_id"`
	EventDate             string `db:"event_date"`
	EventTime             string `db:"event_time"`
	ChannelName           string `db:"channel_name"`
	HolderEngagement      int    `db:"holder_engagement"`
	CloserEngagement      int    `db:"closer_engagement"`
	ImpressionInteraction int    `db:"impression_interaction"`
}

// Timestamp combines the date and time columns into a single timestamp.
func (s Session) Timestamp() (time.Time, error) {
	return time.Parse(TimestampLayout, s.EventDate+" "+s.EventTime)
}

// SessionCost represents a row of the session_costs relation.
type SessionCost struct {
	SessionID string  `db:"session_id"`
	Cost      float64 `db:"cost"`
}

// Touchpoint is a session selected into a journey, with its timestamp
// already parsed and validated.
type Touchpoint struct {
	SessionID             string
	ChannelName           string
	Timestamp             time.Time
	HolderEngagement      int
	CloserEngagement      int
	ImpressionInteraction int
}

// Journey is the ordered list of one user's touchpoints that strictly
// precede a single conversion. Derived, never persisted. An empty journey
// (a conversion with no qualifying sessions) is legal.
type Journey struct {
	ConvID      string
	Touchpoints []Touchpoint
}

// AttributionCredit represents a row of the attribution_customer_journey
// relation: the fractional credit the scorer assigned to one session of one
// conversion. Keyed by (conv_id, session_id) with replace-on-conflict.
type AttributionCredit struct {
	ConvID    string  `db:"conv_id"`
	SessionID string  `db:"session_id"`
	IHC       float64 `db:"ihc"`
}

// ChannelReportRow represents a row of the channel_reporting relation.
// Fully recomputed on each rebuild, never incrementally patched.
type ChannelReportRow struct {
	ChannelName string  `db:"channel_name" json:"channel_name"`
	Date        string  `db:"date" json:"date"`
	Cost        float64 `db:"cost" json:"cost"`
	IHC         float64 `db:"ihc" json:"ihc"`
	IHCRevenue  float64 `db:"ihc_revenue" json:"ihc_revenue"`
}

// DateWindow is an inclusive [Start, End] date range in DateLayout format.
type DateWindow struct {
	Start string
	End   string
}

// Contains reports whether date falls inside the window. Dates in
// DateLayout format compare correctly as strings.
func (w DateWindow) Contains(date string) bool {
	return date >= w.Start && date <= w.End
}

// RowError records a single malformed input row that was skipped. Row-level
// validation failures never abort a batch or the run.
type RowError struct {
	ConvID    string `json:"conv_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason"`
}

// CreditSumViolation reports a conversion whose persisted credits do not sum
// to 1 within tolerance. Diagnostic only: the scorer owns normalization, so
// violations are surfaced and never corrected.
type CreditSumViolation struct {
	ConvID string  `json:"conv_id"`
	Sum    float64 `json:"sum"`
}
