package dto

import "time"

// ExportRequest configures a grade book export.
type ExportRequest struct {
	Type              string   `json:"type" validate:"required,oneof=grades bulletins statistics"`
	Format            string   `json:"format" validate:"required,oneof=csv excel pdf"`
	Classes           []string `json:"classes" validate:"omitempty,dive,min=1"`
	Subjects          []string `json:"subjects" validate:"omitempty,dive,min=1"`
	DateRange         string   `json:"date_range" validate:"omitempty,oneof=current semester year custom"`
	StartDate         string   `json:"start_date" validate:"required_if=DateRange custom,omitempty,datetime=2006-01-02"`
	EndDate           string   `json:"end_date" validate:"required_if=DateRange custom,omitempty,datetime=2006-01-02"`
	IncludeComments   bool     `json:"include_comments"`
	IncludeStatistics bool     `json:"include_statistics"`
}

// ExportResponse describes a generated export.
type ExportResponse struct {
	ID          uint      `json:"id"`
	Type        string    `json:"type"`
	Format      string    `json:"format"`
	FileName    string    `json:"file_name"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	Content     string    `json:"content,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
