package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/gradeentry"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

var (
	// ErrSubjectNotFound indicates the subject does not exist.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrEvaluationNotFound indicates the evaluation does not exist.
	ErrEvaluationNotFound = errors.New("evaluation not found")
)

// RosterService provides the students, subjects and evaluations a grading session works on.
type RosterService interface {
	ListStudents(ctx context.Context, req dto.StudentListRequest) ([]dto.StudentResponse, error)
	LoadRoster(ctx context.Context) ([]models.Student, error)
	LoadSubject(ctx context.Context, id uint) (models.Subject, error)
	LoadEvaluation(ctx context.Context, id uint) (models.Evaluation, error)
}

type rosterService struct {
	students    repository.StudentRepository
	subjects    repository.SubjectRepository
	evaluations repository.EvaluationRepository
	logger      zerolog.Logger
}

// NewRosterService constructs the roster provider.
func NewRosterService(students repository.StudentRepository, subjects repository.SubjectRepository, evaluations repository.EvaluationRepository, logger zerolog.Logger) RosterService {
	return &rosterService{
		students:    students,
		subjects:    subjects,
		evaluations: evaluations,
		logger:      logger.With().Str("component", "roster_service").Logger(),
	}
}

func (s *rosterService) ListStudents(ctx context.Context, req dto.StudentListRequest) ([]dto.StudentResponse, error) {
	students, err := s.students.List(ctx, repository.StudentFilter{
		Search: strings.TrimSpace(req.Search),
		Class:  strings.TrimSpace(req.Class),
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.StudentResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, dto.NewStudentResponse(student))
	}
	return responses, nil
}

// LoadRoster returns every student in display order.
func (s *rosterService) LoadRoster(ctx context.Context) ([]models.Student, error) {
	students, err := s.students.List(ctx, repository.StudentFilter{})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load roster")
		return nil, fmt.Errorf("%w: %w", gradeentry.ErrLoadFailure, err)
	}
	return students, nil
}

func (s *rosterService) LoadSubject(ctx context.Context, id uint) (models.Subject, error) {
	subject, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Subject{}, ErrSubjectNotFound
		}
		s.logger.Error().Err(err).Uint("subject_id", id).Msg("failed to load subject")
		return models.Subject{}, fmt.Errorf("%w: %w", gradeentry.ErrLoadFailure, err)
	}
	return subject, nil
}

func (s *rosterService) LoadEvaluation(ctx context.Context, id uint) (models.Evaluation, error) {
	evaluation, err := s.evaluations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrEvaluationNotFound
		}
		s.logger.Error().Err(err).Uint("evaluation_id", id).Msg("failed to load evaluation")
		return models.Evaluation{}, fmt.Errorf("%w: %w", gradeentry.ErrLoadFailure, err)
	}
	return evaluation, nil
}
