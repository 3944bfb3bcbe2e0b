package service

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gradebook-api/internal/gradeentry"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/observability"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

// GradeService persists grade batches produced by grading sessions.
type GradeService interface {
	gradeentry.Sink
}

type gradeService struct {
	grades    repository.GradeRepository
	activity  ActivityRecorder
	publisher GradeEventPublisher
	cache     *redis.Client
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGradeService constructs the grade sink. Publisher, cache and activity are optional.
func NewGradeService(grades repository.GradeRepository, activity ActivityRecorder, publisher GradeEventPublisher, cache *redis.Client, logger zerolog.Logger) GradeService {
	return &gradeService{
		grades:    grades,
		activity:  activity,
		publisher: publisher,
		cache:     cache,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "grade_service").Logger(),
		now:       time.Now,
	}
}

// SaveGrades writes the whole batch in one transaction.
func (s *gradeService) SaveGrades(ctx context.Context, batch gradeentry.Batch) error {
	tracer := otel.Tracer("github.com/noah-isme/gradebook-api/internal/service/grade")
	ctx, span := tracer.Start(ctx, "grades.save")
	span.SetAttributes(
		attribute.String("grades.session_id", batch.SessionID),
		attribute.Int64("grades.evaluation_id", int64(batch.EvaluationID)),
		attribute.Int("grades.records", len(batch.Records)),
		attribute.String("grades.trigger", string(batch.Trigger)),
	)
	defer span.End()

	start := time.Now()
	gradedAt := s.now()

	grades := make([]models.Grade, 0, len(batch.Records))
	for _, record := range batch.Records {
		grade := models.Grade{
			StudentID:    record.StudentID,
			EvaluationID: batch.EvaluationID,
			Score:        record.Score,
			Comment:      s.cleanComment(record.Comment),
			GradedAt:     gradedAt,
		}
		if batch.GradedBy > 0 {
			gradedBy := batch.GradedBy
			grade.GradedBy = &gradedBy
		}
		grades = append(grades, grade)
	}

	err := s.grades.UpsertBatch(ctx, grades)
	observability.GradeSaveLatency().WithLabelValues(string(batch.Trigger)).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.GradeSaves().WithLabelValues(string(batch.Trigger), "failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_upsert_failed")
		s.logger.Error().Err(err).
			Str("session_id", batch.SessionID).
			Uint("evaluation_id", batch.EvaluationID).
			Int("records", len(batch.Records)).
			Msg("failed to persist grades")
		return err
	}
	observability.GradeSaves().WithLabelValues(string(batch.Trigger), "success").Inc()

	s.invalidateDashboard(ctx)
	s.publish(ctx, batch, gradedAt)
	if batch.Trigger == gradeentry.TriggerManual {
		s.recordActivity(ctx, batch)
	}

	return nil
}

func (s *gradeService) cleanComment(comment string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(comment)))
}

func (s *gradeService) invalidateDashboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
	}
}

func (s *gradeService) publish(ctx context.Context, batch gradeentry.Batch, savedAt time.Time) {
	if s.publisher == nil {
		return
	}

	event := GradesSavedEvent{
		SessionID:    batch.SessionID,
		SubjectID:    batch.SubjectID,
		EvaluationID: batch.EvaluationID,
		Trigger:      string(batch.Trigger),
		Records:      len(batch.Records),
		GradedBy:     batch.GradedBy,
		SavedAt:      savedAt,
	}
	if err := s.publisher.PublishGradesSaved(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("session_id", batch.SessionID).Msg("failed to publish grade event")
	}
}

func (s *gradeService) recordActivity(ctx context.Context, batch gradeentry.Batch) {
	if s.activity == nil {
		return
	}

	role := "system"
	if batch.GradedBy > 0 {
		role = "teacher"
	}

	evaluationID := batch.EvaluationID
	_, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    batch.GradedBy,
		ActorRole:  role,
		Action:     "grades.saved",
		EntityType: "evaluation",
		EntityID:   &evaluationID,
		Metadata: map[string]interface{}{
			"subject_id": batch.SubjectID,
			"session_id": batch.SessionID,
			"records":    len(batch.Records),
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to record grade activity")
	}
}
