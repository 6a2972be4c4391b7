package dto

import "github.com/shreyank06/data-engineering-project/internal/report"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"start_date must be YYYY-MM-DD"`
}

// ReportResponse represents the channel report with derived columns.
type ReportResponse struct {
	Rows []report.Row `json:"rows"`
}
