package service

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func ptrUint(v uint) *uint {
	return &v
}

func ptrFloat(v float64) *float64 {
	return &v
}

func ptrBool(v bool) *bool {
	return &v
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Professor{},
		&models.Subject{},
		&models.Evaluation{},
		&models.Grade{},
		&models.ExportRecord{},
		&models.ActivityLog{},
	))
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mini, client
}

type catalog struct {
	math     models.Subject
	physics  models.Subject
	exam     models.Evaluation
	quiz     models.Evaluation
	lab      models.Evaluation
	students []models.Student
}

// seedCatalog inserts three students, two subjects and three evaluations.
func seedCatalog(t *testing.T, db *gorm.DB) catalog {
	t.Helper()

	students := []models.Student{
		{StudentNumber: "2024001", FirstName: "Marie", LastName: "Dupont", ClassName: "3A"},
		{StudentNumber: "2024002", FirstName: "Pierre", LastName: "Martin", ClassName: "3A"},
		{StudentNumber: "2024004", FirstName: "Lucas", LastName: "Petit", ClassName: "3B"},
	}
	require.NoError(t, db.Create(&students).Error)

	math := models.Subject{Name: "Mathématiques", Code: "MATH", Coefficient: 4, Color: "#2563eb", Semester: "S1"}
	physics := models.Subject{Name: "Physique", Code: "PHY", Coefficient: 2, Color: "#dc2626", Semester: "S1"}
	require.NoError(t, db.Create(&math).Error)
	require.NoError(t, db.Create(&physics).Error)

	exam := models.Evaluation{
		SubjectID: math.ID, Name: "Contrôle 1", Kind: models.EvaluationKindExam, SessionVariant: models.SessionVariantNormal,
		MaxScore: 20, Coefficient: 2, EvaluationDate: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	}
	quiz := models.Evaluation{
		SubjectID: math.ID, Name: "Interrogation", Kind: models.EvaluationKindQuiz, SessionVariant: models.SessionVariantNormal,
		MaxScore: 10, Coefficient: 1, EvaluationDate: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
	}
	lab := models.Evaluation{
		SubjectID: physics.ID, Name: "TP optique", Kind: models.EvaluationKindProject, SessionVariant: models.SessionVariantNormal,
		MaxScore: 20, Coefficient: 1, EvaluationDate: time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC),
	}
	for _, evaluation := range []*models.Evaluation{&exam, &quiz, &lab} {
		require.NoError(t, db.Omit("Subject").Create(evaluation).Error)
	}

	return catalog{math: math, physics: physics, exam: exam, quiz: quiz, lab: lab, students: students}
}
