package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type gradebookFixture struct {
	math     models.Subject
	physics  models.Subject
	exam     models.Evaluation
	quiz     models.Evaluation
	lab      models.Evaluation
	students []models.Student
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupHandlerDB(t *testing.T) *gorm.DB {
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

func seedGradebook(t *testing.T, db *gorm.DB) gradebookFixture {
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

	return gradebookFixture{math: math, physics: physics, exam: exam, quiz: quiz, lab: lab, students: students}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func decodeData(t *testing.T, payload envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}
