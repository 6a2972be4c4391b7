package dto

// ReportQuery represents the optional inclusive date window on report reads.
// Both bounds must be provided together, in YYYY-MM-DD format.
type ReportQuery struct {
	StartDate string `form:"start_date" example:"2023-09-01"`
	EndDate   string `form:"end_date" example:"2023-09-30"`
}

// RunPipelineRequest represents a pipeline trigger request. The window, when
// present, restricts the channel report rebuild.
type RunPipelineRequest struct {
	StartDate string `json:"start_date,omitempty" example:"2023-09-01"`
	EndDate   string `json:"end_date,omitempty" example:"2023-09-30"`
}
