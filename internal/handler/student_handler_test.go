package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
)

const importCSV = "numero_etudiant,prenom,nom,classe,date_naissance\n" +
	"2024010,Alice,Bernard,3C,2010-02-14\n" +
	"2024011,,Roux,3C,\n" +
	"2024001,Marie,Dupont,3B,\n"

func newStudentApp(t *testing.T, guards ...fiber.Handler) (*fiber.App, repository.StudentRepository) {
	t.Helper()
	db := setupHandlerDB(t)
	seedGradebook(t, db)

	students := repository.NewStudentRepository(db)
	roster := service.NewRosterService(students, repository.NewSubjectRepository(db), repository.NewEvaluationRepository(db), testLogger())
	importer := service.NewStudentImportService(students, nil, 1<<20, testLogger())

	app := fiber.New()
	handler.NewStudentHandler(roster, importer, testLogger()).Register(app.Group("/api/v1/students"), guards...)
	return app, students
}

func multipartUpload(t *testing.T, path, fileName, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func sendUpload(t *testing.T, app *fiber.App, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestStudentHandlerListFiltersBySearch(t *testing.T) {
	app, _ := newStudentApp(t)

	status, payload := doJSON(t, app, http.MethodGet, "/api/v1/students?search=mar", nil)
	require.Equal(t, fiber.StatusOK, status)

	var students []dto.StudentResponse
	decodeData(t, payload, &students)
	require.Len(t, students, 2)
	require.Equal(t, "Dupont", students[0].LastName)
	require.Equal(t, "Martin", students[1].LastName)
}

func TestStudentHandlerImportPreviewAndCommit(t *testing.T) {
	app, students := newStudentApp(t)

	status, payload := sendUpload(t, app, multipartUpload(t, "/api/v1/students/import?dry_run=true", "eleves.csv", importCSV))
	require.Equal(t, fiber.StatusOK, status, payload.Message)
	require.Equal(t, "import preview", payload.Message)

	var preview dto.StudentImportResponse
	decodeData(t, payload, &preview)
	require.True(t, preview.DryRun)
	require.Equal(t, 3, preview.Total)
	require.Zero(t, preview.Imported)
	require.Len(t, preview.Students, 2)
	require.Len(t, preview.Errors, 1)
	require.Equal(t, 3, preview.Errors[0].Line)

	count, err := students.Count(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	status, payload = sendUpload(t, app, multipartUpload(t, "/api/v1/students/import", "eleves.csv", importCSV))
	require.Equal(t, fiber.StatusOK, status, payload.Message)

	var committed dto.StudentImportResponse
	decodeData(t, payload, &committed)
	require.Equal(t, 2, committed.Imported)

	count, err = students.Count(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(4), count)

	moved, err := students.List(t.Context(), repository.StudentFilter{Class: "3B"})
	require.NoError(t, err)
	numbers := []string{}
	for _, student := range moved {
		numbers = append(numbers, student.StudentNumber)
	}
	require.ElementsMatch(t, []string{"2024001", "2024004"}, numbers)

	require.Equal(t, "2024010", committed.Students[0].StudentNumber)
	require.NotNil(t, committed.Students[0].BirthDate)
	require.Equal(t, time.Date(2010, 2, 14, 0, 0, 0, 0, time.UTC), committed.Students[0].BirthDate.UTC())
}

func TestStudentHandlerImportRejectsFiles(t *testing.T) {
	app, _ := newStudentApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/students/import", map[string]string{})
	require.Equal(t, fiber.StatusBadRequest, status)

	status, payload := sendUpload(t, app, multipartUpload(t, "/api/v1/students/import", "eleves.xlsx", importCSV))
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Equal(t, []string{service.ErrImportNotCSV.Error()}, payload.Errors)

	status, payload = sendUpload(t, app, multipartUpload(t, "/api/v1/students/import", "eleves.csv", "prenom,nom\nJade,Moreau\n"))
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Contains(t, payload.Errors[0], "numero_etudiant")

	status, _ = sendUpload(t, app, multipartUpload(t, "/api/v1/students/import?dry_run=maybe", "eleves.csv", importCSV))
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestStudentHandlerImportIsRateLimited(t *testing.T) {
	app, _ := newStudentApp(t, middleware.RateLimit("student_import", 1, time.Minute))

	status, _ := sendUpload(t, app, multipartUpload(t, "/api/v1/students/import?dry_run=true", "eleves.csv", importCSV))
	require.Equal(t, fiber.StatusOK, status)

	req := multipartUpload(t, "/api/v1/students/import?dry_run=true", "eleves.csv", importCSV)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
