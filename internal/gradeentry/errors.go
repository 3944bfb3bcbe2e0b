package gradeentry

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidScoreFormat indicates a non-blank score that is not a decimal number.
	ErrInvalidScoreFormat = errors.New("invalid score format")
	// ErrScoreOutOfRange indicates a numeric score outside [0, max score].
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrLoadFailure indicates the roster or evaluation provider failed.
	ErrLoadFailure = errors.New("failed to load grading data")
	// ErrSaveFailure indicates the persistence sink rejected the batch.
	ErrSaveFailure = errors.New("failed to save grades")
	// ErrSaveInProgress is returned when a manual save is requested while another save is in flight.
	ErrSaveInProgress = errors.New("a save is already in progress")
	// ErrNothingToSave is returned when saving an empty buffer.
	ErrNothingToSave = errors.New("no grades to save")
	// ErrUnknownStudent is returned for student ids that are not part of the roster.
	ErrUnknownStudent = errors.New("student is not part of the roster")
	// ErrNotQuickScore is returned when a shortcut value is outside the quick score set.
	ErrNotQuickScore = errors.New("value is not a quick score")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("grade entry session closed")
	// ErrUnsavedChanges is returned when switching evaluation would drop edits that were never saved.
	ErrUnsavedChanges = errors.New("unsaved grades would be discarded")
	// ErrEvaluationMismatch is returned when the evaluation belongs to another subject.
	ErrEvaluationMismatch = errors.New("evaluation does not belong to the session subject")
)

// ValidationError describes one offending buffer entry.
type ValidationError struct {
	StudentID uint
	Kind      error
	Message   string
}

func (e ValidationError) Error() string {
	return e.Message
}

func (e ValidationError) Unwrap() error {
	return e.Kind
}

// ValidationErrors is the exhaustive, roster-ordered result of a validation pass.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	return strings.Join(v.Messages(), "; ")
}

// Messages returns the human-readable message of every error.
func (v ValidationErrors) Messages() []string {
	messages := make([]string, 0, len(v))
	for _, item := range v {
		messages = append(messages, item.Message)
	}
	return messages
}

// Is lets errors.Is match any contained kind.
func (v ValidationErrors) Is(target error) bool {
	for _, item := range v {
		if errors.Is(item.Kind, target) {
			return true
		}
	}
	return false
}
