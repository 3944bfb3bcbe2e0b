package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/internal/utils"
)

// ExportHandler exposes grade book exports.
type ExportHandler struct {
	service service.ExportService
	logger  zerolog.Logger
}

// NewExportHandler constructs the handler.
func NewExportHandler(service service.ExportService, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		logger:  logger.With().Str("component", "export_handler").Logger(),
	}
}

// Register attaches export routes.
func (h *ExportHandler) Register(router fiber.Router) {
	router.Post("", h.generate)
}

func (h *ExportHandler) generate(c *fiber.Ctx) error {
	var payload dto.ExportRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Generate(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrExportFormatUnsupported), errors.Is(err, service.ErrExportInvalidRange):
			return utils.SendValidationErrors(c, err.Error(), []string{err.Error()}, nil)
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("type", payload.Type).Msg("export failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "export failed")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "export generated", result)
}
