package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gradebook-api/internal/config"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler      *handler.StudentHandler
	SubjectHandler      *handler.SubjectHandler
	GradeSessionHandler *handler.GradeSessionHandler
	ExportHandler       *handler.ExportHandler
	DashboardHandler    *handler.DashboardHandler
	ActivityHandler     *handler.ActivityHandler
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	writeGuard := func(c *fiber.Ctx) error { return c.Next() }
	if deps.JWTMiddleware != nil {
		writeGuard = writeAccess(middleware.RequireRole("admin", "teacher"))
	}

	if deps.StudentHandler != nil {
		students := api.Group("/students", jwtMiddleware, writeGuard)
		deps.StudentHandler.Register(students, middleware.RateLimit("student_import", cfg.ImportRateLimit, time.Minute))
	}

	if deps.SubjectHandler != nil {
		deps.SubjectHandler.RegisterSubjects(api.Group("/subjects", jwtMiddleware, writeGuard))
		deps.SubjectHandler.RegisterEvaluations(api.Group("/evaluations", jwtMiddleware, writeGuard))
		deps.SubjectHandler.RegisterProfessors(api.Group("/professors", jwtMiddleware, writeGuard))
	}

	// Grading is staff-only, reads included.
	if deps.GradeSessionHandler != nil {
		sessions := api.Group("/grade-sessions", jwtMiddleware)
		if deps.JWTMiddleware != nil {
			sessions.Use(middleware.RequireRole("admin", "teacher"))
		}
		deps.GradeSessionHandler.Register(sessions)
	}

	if deps.ExportHandler != nil {
		deps.ExportHandler.Register(api.Group("/exports", jwtMiddleware, writeGuard))
	}

	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(api.Group("/dashboard", jwtMiddleware))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activities", jwtMiddleware))
	}
}

// writeAccess applies guard to mutating requests only.
func writeAccess(guard fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		default:
			return guard(c)
		}
	}
}
