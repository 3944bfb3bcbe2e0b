package service

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

var (
	// ErrProfessorNotFound indicates the referenced professor does not exist.
	ErrProfessorNotFound = errors.New("professor not found")
	// ErrSubjectCodeTaken indicates another subject already uses the code.
	ErrSubjectCodeTaken = errors.New("subject code already in use")
	// ErrProfessorEmailTaken indicates another professor already uses the email.
	ErrProfessorEmailTaken = errors.New("professor email already in use")
)

// SubjectService manages subjects and the professors teaching them.
type SubjectService interface {
	List(ctx context.Context) ([]dto.SubjectResponse, error)
	Get(ctx context.Context, id uint) (dto.SubjectResponse, error)
	Create(ctx context.Context, req dto.SubjectCreateRequest, actor ActivityActor) (dto.SubjectResponse, error)
	Update(ctx context.Context, id uint, req dto.SubjectUpdateRequest, actor ActivityActor) (dto.SubjectResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
	ListProfessors(ctx context.Context) ([]dto.ProfessorResponse, error)
	CreateProfessor(ctx context.Context, req dto.ProfessorCreateRequest, actor ActivityActor) (dto.ProfessorResponse, error)
}

type subjectService struct {
	subjects   repository.SubjectRepository
	professors repository.ProfessorRepository
	validator  *validator.Validate
	activity   ActivityRecorder
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// NewSubjectService constructs the subject administration service.
func NewSubjectService(subjects repository.SubjectRepository, professors repository.ProfessorRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) SubjectService {
	return &subjectService{
		subjects:   subjects,
		professors: professors,
		validator:  validate,
		activity:   activity,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "subject_service").Logger(),
	}
}

func (s *subjectService) List(ctx context.Context) ([]dto.SubjectResponse, error) {
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.SubjectResponse, 0, len(subjects))
	for _, subject := range subjects {
		responses = append(responses, dto.NewSubjectResponse(subject))
	}
	return responses, nil
}

func (s *subjectService) Get(ctx context.Context, id uint) (dto.SubjectResponse, error) {
	subject, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubjectResponse{}, ErrSubjectNotFound
		}
		return dto.SubjectResponse{}, err
	}
	return dto.NewSubjectResponse(subject), nil
}

func (s *subjectService) Create(ctx context.Context, req dto.SubjectCreateRequest, actor ActivityActor) (dto.SubjectResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubjectResponse{}, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureCodeAvailable(ctx, code, 0); err != nil {
		return dto.SubjectResponse{}, err
	}
	if err := s.ensureProfessor(ctx, req.ProfessorID); err != nil {
		return dto.SubjectResponse{}, err
	}

	subject := models.Subject{
		Name:         strings.TrimSpace(req.Name),
		Code:         code,
		Coefficient:  1,
		Description:  s.cleanText(req.Description),
		Color:        models.DefaultSubjectColor,
		ProfessorID:  req.ProfessorID,
		Semester:     models.DefaultSubjectSemester,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
	}
	if req.Coefficient != nil {
		subject.Coefficient = *req.Coefficient
	}
	if req.Color != "" {
		subject.Color = req.Color
	}
	if req.Semester != "" {
		subject.Semester = req.Semester
	}

	if err := s.subjects.Create(ctx, &subject); err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("failed to create subject")
		return dto.SubjectResponse{}, err
	}

	created, err := s.subjects.GetByID(ctx, subject.ID)
	if err != nil {
		return dto.SubjectResponse{}, err
	}

	s.record(ctx, actor, "subject.created", "subject", created.ID, map[string]interface{}{"code": created.Code})
	return dto.NewSubjectResponse(created), nil
}

func (s *subjectService) Update(ctx context.Context, id uint, req dto.SubjectUpdateRequest, actor ActivityActor) (dto.SubjectResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubjectResponse{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Code))
		if err := s.ensureCodeAvailable(ctx, code, id); err != nil {
			return dto.SubjectResponse{}, err
		}
		updates["code"] = code
	}
	if req.Coefficient != nil {
		updates["coefficient"] = *req.Coefficient
	}
	if req.Description != nil {
		updates["description"] = s.cleanText(*req.Description)
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.ProfessorID != nil {
		if err := s.ensureProfessor(ctx, req.ProfessorID); err != nil {
			return dto.SubjectResponse{}, err
		}
		updates["professor_id"] = *req.ProfessorID
	}
	if req.Semester != nil {
		updates["semester"] = *req.Semester
	}
	if req.AcademicYear != nil {
		updates["academic_year"] = strings.TrimSpace(*req.AcademicYear)
	}

	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	subject, err := s.subjects.Update(ctx, id, updates)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubjectResponse{}, ErrSubjectNotFound
		}
		return dto.SubjectResponse{}, err
	}

	s.record(ctx, actor, "subject.updated", "subject", subject.ID, map[string]interface{}{"fields": len(updates)})
	return dto.NewSubjectResponse(subject), nil
}

func (s *subjectService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	if err := s.subjects.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubjectNotFound
		}
		return err
	}

	s.record(ctx, actor, "subject.deleted", "subject", id, nil)
	return nil
}

func (s *subjectService) ListProfessors(ctx context.Context) ([]dto.ProfessorResponse, error) {
	professors, err := s.professors.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ProfessorResponse, 0, len(professors))
	for _, professor := range professors {
		responses = append(responses, dto.NewProfessorResponse(professor))
	}
	return responses, nil
}

func (s *subjectService) CreateProfessor(ctx context.Context, req dto.ProfessorCreateRequest, actor ActivityActor) (dto.ProfessorResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProfessorResponse{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	taken, err := s.professors.EmailExists(ctx, email)
	if err != nil {
		return dto.ProfessorResponse{}, err
	}
	if taken {
		return dto.ProfessorResponse{}, ErrProfessorEmailTaken
	}

	professor := models.Professor{
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		Email:      email,
		Department: strings.TrimSpace(req.Department),
		Title:      strings.TrimSpace(req.Title),
	}
	if err := s.professors.Create(ctx, &professor); err != nil {
		s.logger.Error().Err(err).Msg("failed to create professor")
		return dto.ProfessorResponse{}, err
	}

	s.record(ctx, actor, "professor.created", "professor", professor.ID, nil)
	return dto.NewProfessorResponse(professor), nil
}

func (s *subjectService) ensureCodeAvailable(ctx context.Context, code string, excludeID uint) error {
	taken, err := s.subjects.CodeExists(ctx, code, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrSubjectCodeTaken
	}
	return nil
}

func (s *subjectService) ensureProfessor(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}
	if _, err := s.professors.GetByID(ctx, *id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfessorNotFound
		}
		return err
	}
	return nil
}

func (s *subjectService) cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func (s *subjectService) record(ctx context.Context, actor ActivityActor, action, entityType string, entityID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}
