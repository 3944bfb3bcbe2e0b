package gradeentry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Trigger tells manual saves apart from timer-driven ones.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerAutoSave Trigger = "autosave"
)

// Record is one student's grade as handed to the sink. A nil score clears the grade.
type Record struct {
	StudentID uint
	Score     *float64
	Comment   string
}

// Batch is the full buffer of a session at save time.
type Batch struct {
	SessionID    string
	SubjectID    uint
	EvaluationID uint
	GradedBy     uint
	Trigger      Trigger
	Records      []Record
}

// Sink persists a batch atomically.
type Sink interface {
	SaveGrades(ctx context.Context, batch Batch) error
}

// saveFailureMessage is the single error surfaced to graders when the sink fails.
const saveFailureMessage = "failed to save grades, your entries were kept"

// Save validates and persists the buffer. Validation failures are returned as
// ValidationErrors and the sink is not called. A save already in flight makes
// this call fail with ErrSaveInProgress.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return ErrNothingToSave
	}
	if failures := s.validateLocked(); len(failures) > 0 {
		s.errors = failures.Messages()
		s.mu.Unlock()
		return failures
	}

	batch, revision := s.beginSaveLocked(TriggerManual)
	s.errors = nil
	s.mu.Unlock()

	err := s.sink.SaveGrades(context.WithoutCancel(ctx), batch)

	s.mu.Lock()
	s.saving = false
	at := s.now()
	if err != nil {
		s.errors = []string{saveFailureMessage}
		s.mu.Unlock()

		s.logger.Error().Err(err).Int("records", len(batch.Records)).Msg("grade save failed")
		s.emit(Event{Type: EventSaveFailed, SessionID: s.id, At: at, Records: len(batch.Records), Message: saveFailureMessage})
		return fmt.Errorf("%w: %w", ErrSaveFailure, err)
	}

	s.saved = true
	s.savedAt = at
	s.commitLocked(revision, at)
	s.mu.Unlock()

	s.logger.Info().Int("records", len(batch.Records)).Msg("grades saved")
	s.emit(Event{Type: EventSaved, SessionID: s.id, At: at, Records: len(batch.Records)})
	return nil
}

// AutoSave persists the buffer in the background. It reports whether the sink
// was called successfully. Validation failures, an empty buffer or a save in
// flight make it skip silently; sink failures are returned for logging only.
func (s *Session) AutoSave(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.closed || s.saving || len(s.buffer) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	if failures := s.validateLocked(); len(failures) > 0 {
		s.mu.Unlock()
		s.logger.Debug().Int("errors", len(failures)).Msg("autosave skipped on invalid grades")
		return false, nil
	}

	batch, revision := s.beginSaveLocked(TriggerAutoSave)
	s.mu.Unlock()

	err := s.sink.SaveGrades(context.WithoutCancel(ctx), batch)

	s.mu.Lock()
	s.saving = false
	at := s.now()
	if err != nil {
		s.mu.Unlock()

		s.logger.Warn().Err(err).Int("records", len(batch.Records)).Msg("autosave failed")
		s.emit(Event{Type: EventAutoSaveFailed, SessionID: s.id, At: at, Records: len(batch.Records)})
		return false, fmt.Errorf("%w: %w", ErrSaveFailure, err)
	}

	s.commitLocked(revision, at)
	s.mu.Unlock()

	s.emit(Event{Type: EventAutoSaved, SessionID: s.id, At: at, Records: len(batch.Records)})
	return true, nil
}

func (s *Session) beginSaveLocked(trigger Trigger) (Batch, uint64) {
	s.saving = true

	records := make([]Record, 0, len(s.buffer))
	for _, student := range s.roster {
		entry, ok := s.buffer[student.ID]
		if !ok {
			continue
		}
		record := Record{StudentID: student.ID, Comment: entry.Comment}
		if text := strings.TrimSpace(entry.Score); text != "" {
			// validated by the caller
			score, _ := ParseScore(text)
			record.Score = &score
		}
		records = append(records, record)
	}

	return Batch{
		SessionID:    s.id,
		SubjectID:    s.subject.ID,
		EvaluationID: s.evaluation.ID,
		GradedBy:     s.gradedBy,
		Trigger:      trigger,
		Records:      records,
	}, s.revision
}

// commitLocked marks the revision sent to the sink as persisted. Edits made
// while the sink was running keep the session dirty.
func (s *Session) commitLocked(revision uint64, at time.Time) {
	s.lastSaved = at
	if revision > s.savedRevision {
		s.savedRevision = revision
	}
}
