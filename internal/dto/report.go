package dto

import "github.com/invigilo/exam-duty-api/internal/models"

// ReportRequest queues an asynchronous export.
type ReportRequest struct {
	Type   models.ReportType   `json:"type" validate:"required"`
	Format models.ReportFormat `json:"format" validate:"required"`
	Title  string              `json:"title"`
}

// ReportJobResponse acknowledges a queued job.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job lifecycle state to clients.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
