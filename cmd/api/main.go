package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/config"
	"github.com/noah-isme/gradebook-api/internal/database"
	"github.com/noah-isme/gradebook-api/internal/gradeentry"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/router"
	"github.com/noah-isme/gradebook-api/internal/service"
	cloud "github.com/noah-isme/gradebook-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var publisher service.GradeEventPublisher
	if cfg.NATSURL != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		publisher = service.NewNATSGradePublisher(natsConn, cfg.NATSSubjectPrefix)
	} else {
		logger.Warn().Msg("nats url not configured, grade events will not be published")
	}

	var exportUploader service.ExportUploader
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		exportUploader = uploader
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	professorRepo := repository.NewProfessorRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	exportRepo := repository.NewExportRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	rosterService := service.NewRosterService(studentRepo, subjectRepo, evaluationRepo, logger)
	gradeService := service.NewGradeService(gradeRepo, activityService, publisher, redisClient, logger)
	sessionService := service.NewGradeSessionService(rosterService, gradeService, validate, service.GradeSessionConfig{
		AutoSaveInterval: cfg.AutoSaveInterval,
		SavedBannerTTL:   cfg.SavedBannerTTL,
		NewTicker:        gradeentry.NewTimeTicker,
	}, logger)
	subjectService := service.NewSubjectService(subjectRepo, professorRepo, validate, activityService, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, subjectRepo, validate, activityService, redisClient, cfg.RosterCacheTTL, logger)
	importService := service.NewStudentImportService(studentRepo, activityService, cfg.ImportMaxBytes, logger)
	exportService := service.NewExportService(gradeRepo, exportRepo, validate, exportUploader, activityService, logger)
	dashboardService := service.NewDashboardService(studentRepo, gradeRepo, exportRepo, activityService, redisClient, cfg.DashboardCacheTTL, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.ImportMaxBytes) + 64<<10,
	})

	deps := router.Dependencies{
		StudentHandler:      handler.NewStudentHandler(rosterService, importService, logger),
		SubjectHandler:      handler.NewSubjectHandler(subjectService, evaluationService, logger),
		GradeSessionHandler: handler.NewGradeSessionHandler(sessionService, logger),
		ExportHandler:       handler.NewExportHandler(exportService, logger),
		DashboardHandler:    handler.NewDashboardHandler(dashboardService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	}
	if cfg.AuthEnabled() {
		deps.JWTMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	} else {
		logger.Warn().Msg("jwt secret not configured, authentication disabled")
	}

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, deps)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, sessionService)
}

func waitForShutdown(app *fiber.App, sessions service.GradeSessionService) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessions.Shutdown()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
