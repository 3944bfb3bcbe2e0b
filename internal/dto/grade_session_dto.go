package dto

import "github.com/noah-isme/gradebook-api/internal/gradeentry"

// GradeSessionOpenRequest opens a grade entry session for a subject and evaluation.
type GradeSessionOpenRequest struct {
	SubjectID    uint  `json:"subject_id" validate:"required,gt=0"`
	EvaluationID uint  `json:"evaluation_id" validate:"required,gt=0"`
	AutoSave     *bool `json:"autosave"`
}

// GradeSessionFilterRequest updates the roster filter.
type GradeSessionFilterRequest struct {
	Filter string `json:"filter" validate:"max=255"`
}

// GradeSessionSwitchRequest moves the session onto another evaluation.
type GradeSessionSwitchRequest struct {
	EvaluationID uint `json:"evaluation_id" validate:"required,gt=0"`
	Discard      bool `json:"discard"`
}

// GradeScoreRequest carries the raw score text typed by the grader.
type GradeScoreRequest struct {
	Score string `json:"score" validate:"max=32"`
}

// GradeCommentRequest carries the raw comment text typed by the grader.
type GradeCommentRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// QuickScoreRequest applies one of the quick score shortcuts.
type QuickScoreRequest struct {
	Score *float64 `json:"score" validate:"required,gte=0"`
}

// BulkScoreRequest fills blank scores of the filtered roster.
type BulkScoreRequest struct {
	Score *float64 `json:"score" validate:"required,gte=0"`
}

// KeyEventRequest describes a keyboard event on a grid cell.
type KeyEventRequest struct {
	StudentID uint   `json:"student_id" validate:"required,gt=0"`
	Field     string `json:"field" validate:"required,oneof=score comment"`
	Key       string `json:"key" validate:"required,max=16"`
	Ctrl      bool   `json:"ctrl"`
}

// AutoSaveToggleRequest enables or disables autosave.
type AutoSaveToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// BulkScoreResponse reports how many blank scores were filled.
type BulkScoreResponse struct {
	Updated int                 `json:"updated"`
	Session gradeentry.Snapshot `json:"session"`
}

// FocusResponse reports the grid cell that should receive focus.
type FocusResponse struct {
	Focus   gradeentry.Focus    `json:"focus"`
	Session gradeentry.Snapshot `json:"session"`
}

// ValidationResponse lists validation problems of the buffer.
type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
