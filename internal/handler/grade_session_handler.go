package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/gradeentry"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/internal/utils"
)

// GradeSessionHandler exposes grade entry sessions and their event stream.
type GradeSessionHandler struct {
	service service.GradeSessionService
	logger  zerolog.Logger
}

// NewGradeSessionHandler constructs the handler.
func NewGradeSessionHandler(service service.GradeSessionService, logger zerolog.Logger) *GradeSessionHandler {
	return &GradeSessionHandler{
		service: service,
		logger:  logger.With().Str("component", "grade_session_handler").Logger(),
	}
}

// Register attaches grade session routes to the router group.
func (h *GradeSessionHandler) Register(router fiber.Router) {
	router.Post("", h.open)
	router.Get("/:id/ws", h.upgrade, websocket.New(h.stream))
	router.Get("/:id", h.get)
	router.Delete("/:id", h.close)
	router.Put("/:id/filter", h.setFilter)
	router.Put("/:id/evaluation", h.switchEvaluation)
	router.Put("/:id/entries/:studentId/score", h.editScore)
	router.Put("/:id/entries/:studentId/comment", h.editComment)
	router.Post("/:id/entries/:studentId/quick-score", h.quickScore)
	router.Post("/:id/bulk-score", h.bulkScore)
	router.Post("/:id/keys", h.handleKey)
	router.Post("/:id/validate", h.validate)
	router.Post("/:id/save", h.save)
	router.Put("/:id/autosave", h.setAutoSave)
}

func (h *GradeSessionHandler) open(c *fiber.Ctx) error {
	var payload dto.GradeSessionOpenRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.Open(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "grade session opened", snapshot)
}

func (h *GradeSessionHandler) get(c *fiber.Ctx) error {
	snapshot, err := h.service.Get(c.Params("id"))
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "grade session", snapshot)
}

func (h *GradeSessionHandler) close(c *fiber.Ctx) error {
	if err := h.service.Close(c.Params("id")); err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "grade session closed", nil)
}

func (h *GradeSessionHandler) setFilter(c *fiber.Ctx) error {
	var payload dto.GradeSessionFilterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.SetFilter(c.Params("id"), payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "filter updated", snapshot)
}

func (h *GradeSessionHandler) switchEvaluation(c *fiber.Ctx) error {
	var payload dto.GradeSessionSwitchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.SwitchEvaluation(c.UserContext(), c.Params("id"), payload)
	if err != nil {
		return h.sendError(c, err, &snapshot)
	}
	return utils.SendSuccess(c, "evaluation switched", snapshot)
}

func (h *GradeSessionHandler) editScore(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}
	var payload dto.GradeScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.EditScore(c.Params("id"), studentID, payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "score updated", snapshot)
}

func (h *GradeSessionHandler) editComment(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}
	var payload dto.GradeCommentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.EditComment(c.Params("id"), studentID, payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "comment updated", snapshot)
}

func (h *GradeSessionHandler) quickScore(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}
	var payload dto.QuickScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.QuickScore(c.Params("id"), studentID, payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "quick score applied", response)
}

func (h *GradeSessionHandler) bulkScore(c *fiber.Ctx) error {
	var payload dto.BulkScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.BulkScore(c.Params("id"), payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "score applied to filtered students", response)
}

func (h *GradeSessionHandler) handleKey(c *fiber.Ctx) error {
	var payload dto.KeyEventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.HandleKey(c.Params("id"), payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "focus updated", response)
}

func (h *GradeSessionHandler) validate(c *fiber.Ctx) error {
	response, err := h.service.Validate(c.Params("id"))
	if err != nil {
		return h.sendError(c, err, nil)
	}
	if !response.Valid {
		return utils.SendValidationErrors(c, "grades are invalid", response.Errors, response)
	}
	return utils.SendSuccess(c, "grades are valid", response)
}

func (h *GradeSessionHandler) save(c *fiber.Ctx) error {
	id := c.Params("id")
	snapshot, err := h.service.Save(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, &snapshot)
	}

	requestLogger(h.logger, c).Info().Str("session_id", id).Int("entries", len(snapshot.Entries)).Msg("grades saved")
	return utils.SendSuccess(c, "grades saved", snapshot)
}

func (h *GradeSessionHandler) setAutoSave(c *fiber.Ctx) error {
	var payload dto.AutoSaveToggleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.SetAutoSave(c.Params("id"), payload)
	if err != nil {
		return h.sendError(c, err, nil)
	}
	return utils.SendSuccess(c, "autosave updated", snapshot)
}

// sessionStreamMessage is written to websocket subscribers. The first message
// carries the current snapshot, later ones carry an event and the snapshot
// that followed it.
type sessionStreamMessage struct {
	Type    string               `json:"type"`
	Event   *gradeentry.Event    `json:"event,omitempty"`
	Session *gradeentry.Snapshot `json:"session,omitempty"`
}

func (h *GradeSessionHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := h.service.Get(c.Params("id")); err != nil {
		return h.sendError(c, err, nil)
	}
	return c.Next()
}

func (h *GradeSessionHandler) stream(conn *websocket.Conn) {
	id := conn.Params("id")
	logger := h.logger.With().Str("session_id", id).Logger()

	events, cleanup, err := h.service.Subscribe(id)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}
	defer cleanup()

	snapshot, err := h.service.Get(id)
	if err != nil {
		return
	}
	if err := conn.WriteJSON(sessionStreamMessage{Type: "snapshot", Session: &snapshot}); err != nil {
		return
	}

	// drain client frames so a disconnect ends the subscription
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cleanup()
				return
			}
		}
	}()

	logger.Info().Msg("grade session stream connected")
	for event := range events {
		event := event
		message := sessionStreamMessage{Type: string(event.Type), Event: &event}
		if current, err := h.service.Get(id); err == nil {
			message.Session = &current
		}
		if err := conn.WriteJSON(message); err != nil {
			logger.Debug().Err(err).Msg("grade session stream write failed")
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
	logger.Info().Msg("grade session stream disconnected")
}

// sendError maps session errors onto HTTP statuses. The snapshot, when set,
// is returned alongside validation and conflict errors.
func (h *GradeSessionHandler) sendError(c *fiber.Ctx, err error, snapshot *gradeentry.Snapshot) error {
	var data interface{}
	if snapshot != nil && snapshot.ID != "" {
		data = snapshot
	}

	var failures gradeentry.ValidationErrors
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &failures):
		return utils.SendValidationErrors(c, "grades are invalid", failures.Messages(), data)
	case errors.Is(err, service.ErrGradeSessionNotFound),
		errors.Is(err, service.ErrSubjectNotFound),
		errors.Is(err, service.ErrEvaluationNotFound),
		errors.Is(err, gradeentry.ErrUnknownStudent),
		errors.Is(err, gradeentry.ErrSessionClosed):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, gradeentry.ErrSaveInProgress), errors.Is(err, gradeentry.ErrUnsavedChanges):
		return c.Status(fiber.StatusConflict).JSON(utils.APIResponse{Success: false, Message: err.Error(), Data: data})
	case errors.Is(err, gradeentry.ErrNotQuickScore),
		errors.Is(err, gradeentry.ErrScoreOutOfRange),
		errors.Is(err, gradeentry.ErrInvalidScoreFormat),
		errors.Is(err, gradeentry.ErrNothingToSave),
		errors.Is(err, gradeentry.ErrEvaluationMismatch):
		return utils.SendValidationErrors(c, err.Error(), []string{err.Error()}, data)
	case errors.Is(err, gradeentry.ErrSaveFailure):
		h.logger.Error().Err(err).Msg("grade save failed")
		var messages []string
		if snapshot != nil {
			messages = snapshot.Errors
		}
		return c.Status(fiber.StatusBadGateway).JSON(utils.APIResponse{Success: false, Message: gradeentry.ErrSaveFailure.Error(), Errors: messages, Data: data})
	case errors.Is(err, gradeentry.ErrLoadFailure):
		h.logger.Error().Err(err).Msg("grading data unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, gradeentry.ErrLoadFailure.Error())
	default:
		h.logger.Error().Err(err).Msg("grade session request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "grade session request failed")
	}
}
