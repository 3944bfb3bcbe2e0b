package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/internal/utils"
)

// SubjectHandler exposes subjects, their evaluations and professors.
type SubjectHandler struct {
	subjects    service.SubjectService
	evaluations service.EvaluationService
	logger      zerolog.Logger
}

// NewSubjectHandler constructs the handler.
func NewSubjectHandler(subjects service.SubjectService, evaluations service.EvaluationService, logger zerolog.Logger) *SubjectHandler {
	return &SubjectHandler{
		subjects:    subjects,
		evaluations: evaluations,
		logger:      logger.With().Str("component", "subject_handler").Logger(),
	}
}

// RegisterSubjects attaches subject and per-subject evaluation routes.
func (h *SubjectHandler) RegisterSubjects(router fiber.Router) {
	router.Get("", h.listSubjects)
	router.Post("", h.createSubject)
	router.Get("/:id", h.getSubject)
	router.Put("/:id", h.updateSubject)
	router.Delete("/:id", h.deleteSubject)
	router.Get("/:id/evaluations", h.listEvaluations)
	router.Post("/:id/evaluations", h.createEvaluation)
}

// RegisterEvaluations attaches evaluation routes addressed by id.
func (h *SubjectHandler) RegisterEvaluations(router fiber.Router) {
	router.Delete("/:id", h.deleteEvaluation)
}

// RegisterProfessors attaches professor routes.
func (h *SubjectHandler) RegisterProfessors(router fiber.Router) {
	router.Get("", h.listProfessors)
	router.Post("", h.createProfessor)
}

func (h *SubjectHandler) listSubjects(c *fiber.Ctx) error {
	subjects, err := h.subjects.List(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subjects", subjects)
}

func (h *SubjectHandler) getSubject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject id")
	}

	subject, err := h.subjects.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subject", subject)
}

func (h *SubjectHandler) createSubject(c *fiber.Ctx) error {
	var payload dto.SubjectCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	subject, err := h.subjects.Create(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "subject created", subject)
}

func (h *SubjectHandler) updateSubject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject id")
	}
	var payload dto.SubjectUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	subject, err := h.subjects.Update(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subject updated", subject)
}

func (h *SubjectHandler) deleteSubject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject id")
	}

	if err := h.subjects.Delete(c.UserContext(), id, activityActorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subject deleted", nil)
}

func (h *SubjectHandler) listEvaluations(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject id")
	}

	evaluations, err := h.evaluations.List(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "evaluations", evaluations)
}

func (h *SubjectHandler) createEvaluation(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject id")
	}
	var payload dto.EvaluationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	evaluation, err := h.evaluations.Create(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation created", evaluation)
}

func (h *SubjectHandler) deleteEvaluation(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	if err := h.evaluations.Delete(c.UserContext(), id, activityActorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "evaluation deleted", nil)
}

func (h *SubjectHandler) listProfessors(c *fiber.Ctx) error {
	professors, err := h.subjects.ListProfessors(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "professors", professors)
}

func (h *SubjectHandler) createProfessor(c *fiber.Ctx) error {
	var payload dto.ProfessorCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	professor, err := h.subjects.CreateProfessor(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "professor created", professor)
}

func (h *SubjectHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSubjectNotFound),
		errors.Is(err, service.ErrEvaluationNotFound),
		errors.Is(err, service.ErrProfessorNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSubjectCodeTaken), errors.Is(err, service.ErrProfessorEmailTaken):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("subject request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
