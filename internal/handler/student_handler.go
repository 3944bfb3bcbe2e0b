package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/internal/utils"
)

// StudentHandler exposes the roster listing and CSV import.
type StudentHandler struct {
	roster   service.RosterService
	importer service.StudentImportService
	logger   zerolog.Logger
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(roster service.RosterService, importer service.StudentImportService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		roster:   roster,
		importer: importer,
		logger:   logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches student routes. Extra handlers run before the import
// endpoint, typically a rate limiter.
func (h *StudentHandler) Register(router fiber.Router, importGuards ...fiber.Handler) {
	router.Get("", h.list)
	handlers := append(importGuards, h.importCSV)
	router.Post("/import", handlers...)
}

func (h *StudentHandler) list(c *fiber.Ctx) error {
	students, err := h.roster.ListStudents(c.UserContext(), dto.StudentListRequest{
		Search: c.Query("search"),
		Class:  c.Query("class"),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list students")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "failed to list students")
	}
	return utils.SendSuccess(c, "students", students)
}

func (h *StudentHandler) importCSV(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	dryRun := false
	if raw := strings.TrimSpace(c.Query("dry_run")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid dry_run flag")
		}
		dryRun = parsed
	}

	file, err := header.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer file.Close()

	result, err := h.importer.Import(c.UserContext(), header.Filename, file, dryRun, activityActorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImportTooLarge):
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrImportNotCSV),
			errors.Is(err, service.ErrImportEmpty),
			errors.Is(err, service.ErrImportMissingColumns):
			return utils.SendValidationErrors(c, "invalid import file", []string{err.Error()}, nil)
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("file", header.Filename).Msg("student import failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "student import failed")
		}
	}

	message := "students imported"
	if dryRun {
		message = "import preview"
	}
	return utils.SendSuccess(c, message, result)
}
