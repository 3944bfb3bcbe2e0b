package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

const defaultEvaluationMaxScore = 20

// EvaluationService manages the evaluations of a subject.
type EvaluationService interface {
	List(ctx context.Context, subjectID uint) ([]dto.EvaluationResponse, error)
	Create(ctx context.Context, subjectID uint, req dto.EvaluationCreateRequest, actor ActivityActor) (dto.EvaluationResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
}

type evaluationService struct {
	evaluations repository.EvaluationRepository
	subjects    repository.SubjectRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewEvaluationService constructs the evaluation service. The cache is optional.
func NewEvaluationService(evaluations repository.EvaluationRepository, subjects repository.SubjectRepository, validate *validator.Validate, activity ActivityRecorder, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		evaluations: evaluations,
		subjects:    subjects,
		validator:   validate,
		activity:    activity,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
	}
}

func evaluationsCacheKey(subjectID uint) string {
	return fmt.Sprintf("evaluations:subject:%d", subjectID)
}

func (s *evaluationService) List(ctx context.Context, subjectID uint) ([]dto.EvaluationResponse, error) {
	cacheKey := evaluationsCacheKey(subjectID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var responses []dto.EvaluationResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &responses); unmarshalErr == nil {
				s.logger.Debug().Uint("subject_id", subjectID).Msg("evaluation cache hit")
				return responses, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read evaluation cache")
		}
	}

	if _, err := s.subjects.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}

	evaluations, err := s.evaluations.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		responses = append(responses, dto.NewEvaluationResponse(evaluation))
	}

	if s.cache != nil {
		if payload, err := json.Marshal(responses); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store evaluation cache")
			}
		}
	}

	return responses, nil
}

func (s *evaluationService) Create(ctx context.Context, subjectID uint, req dto.EvaluationCreateRequest, actor ActivityActor) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EvaluationResponse{}, err
	}

	if _, err := s.subjects.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrSubjectNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	date, err := time.Parse("2006-01-02", req.EvaluationDate)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	variant := req.SessionVariant
	if variant == "" {
		variant = models.SessionVariantNormal
	}

	evaluation := models.Evaluation{
		SubjectID:      subjectID,
		Name:           strings.TrimSpace(req.Name),
		Kind:           req.Kind,
		SessionVariant: variant,
		MaxScore:       defaultEvaluationMaxScore,
		Coefficient:    1,
		EvaluationDate: date,
		IsMakeup:       variant.IsMakeup(),
	}
	if req.MaxScore != nil {
		evaluation.MaxScore = *req.MaxScore
	}
	if req.Coefficient != nil {
		evaluation.Coefficient = *req.Coefficient
	}
	if req.IsMakeup != nil {
		evaluation.IsMakeup = *req.IsMakeup
	}

	if err := s.evaluations.Create(ctx, &evaluation); err != nil {
		s.logger.Error().Err(err).Uint("subject_id", subjectID).Msg("failed to create evaluation")
		return dto.EvaluationResponse{}, err
	}

	s.invalidate(ctx, subjectID)
	s.record(ctx, actor, "evaluation.created", evaluation)
	return dto.NewEvaluationResponse(evaluation), nil
}

func (s *evaluationService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	evaluation, err := s.evaluations.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEvaluationNotFound
		}
		return err
	}

	s.invalidate(ctx, evaluation.SubjectID)
	s.record(ctx, actor, "evaluation.deleted", evaluation)
	return nil
}

func (s *evaluationService) invalidate(ctx context.Context, subjectID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, evaluationsCacheKey(subjectID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate evaluation cache")
	}
}

func (s *evaluationService) record(ctx context.Context, actor ActivityActor, action string, evaluation models.Evaluation) {
	if s.activity == nil {
		return
	}
	id := evaluation.ID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "evaluation",
		EntityID:   &id,
		Metadata: map[string]interface{}{
			"subject_id":   evaluation.SubjectID,
			"session_type": string(evaluation.SessionVariant),
		},
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}
