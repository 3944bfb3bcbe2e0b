package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/gradeentry"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
)

type idleTicker struct {
	ch chan time.Time
}

func (t *idleTicker) C() <-chan time.Time { return t.ch }
func (t *idleTicker) Stop()               {}

type recordingSink struct {
	mu      sync.Mutex
	batches []gradeentry.Batch
	err     error
}

func (s *recordingSink) SaveGrades(ctx context.Context, batch gradeentry.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type sessionTestEnv struct {
	app      *fiber.App
	sessions service.GradeSessionService
	sink     *recordingSink
	fixture  gradebookFixture
}

func newSessionTestEnv(t *testing.T) sessionTestEnv {
	t.Helper()
	db := setupHandlerDB(t)
	fixture := seedGradebook(t, db)

	roster := service.NewRosterService(
		repository.NewStudentRepository(db),
		repository.NewSubjectRepository(db),
		repository.NewEvaluationRepository(db),
		testLogger(),
	)
	sink := &recordingSink{}
	sessions := service.NewGradeSessionService(roster, sink, testValidator(), service.GradeSessionConfig{
		NewTicker: func(time.Duration) gradeentry.Ticker { return &idleTicker{ch: make(chan time.Time)} },
	}, testLogger())
	t.Cleanup(sessions.Shutdown)

	app := fiber.New()
	group := app.Group("/api/v1/grade-sessions", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(4))
		c.Locals("user_role", "teacher")
		return c.Next()
	})
	handler.NewGradeSessionHandler(sessions, testLogger()).Register(group)

	return sessionTestEnv{app: app, sessions: sessions, sink: sink, fixture: fixture}
}

func (e sessionTestEnv) open(t *testing.T) gradeentry.Snapshot {
	t.Helper()
	status, payload := doJSON(t, e.app, http.MethodPost, "/api/v1/grade-sessions", dto.GradeSessionOpenRequest{
		SubjectID:    e.fixture.math.ID,
		EvaluationID: e.fixture.exam.ID,
	})
	require.Equal(t, fiber.StatusCreated, status, payload.Message)

	var snapshot gradeentry.Snapshot
	decodeData(t, payload, &snapshot)
	return snapshot
}

func scorePath(sessionID string, studentID uint) string {
	return fmt.Sprintf("/api/v1/grade-sessions/%s/entries/%d/score", sessionID, studentID)
}

func TestGradeSessionHandlerEditAndSave(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)
	require.Len(t, snapshot.Students, 3)
	require.True(t, snapshot.AutoSave)

	status, payload := doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, env.fixture.students[0].ID), dto.GradeScoreRequest{Score: "15.5"})
	require.Equal(t, fiber.StatusOK, status, payload.Message)

	status, payload = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/save", nil)
	require.Equal(t, fiber.StatusOK, status, payload.Message)

	var saved gradeentry.Snapshot
	decodeData(t, payload, &saved)
	require.True(t, saved.Saved)
	require.False(t, saved.Dirty)
	require.Equal(t, 1, env.sink.count())
	require.Equal(t, uint(4), env.sink.batches[0].GradedBy)

	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/save", nil)
	require.Equal(t, fiber.StatusOK, status, "an unchanged buffer saves again")
}

func TestGradeSessionHandlerRejectsInvalidScores(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)

	status, _ := doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, env.fixture.students[0].ID), dto.GradeScoreRequest{Score: "25"})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, env.fixture.students[1].ID), dto.GradeScoreRequest{Score: "abc"})
	require.Equal(t, fiber.StatusOK, status)

	status, payload := doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/validate", nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Len(t, payload.Errors, 2)

	status, payload = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/save", nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Len(t, payload.Errors, 2)
	require.Contains(t, payload.Errors[0], "Dupont")

	var current gradeentry.Snapshot
	decodeData(t, payload, &current)
	require.Len(t, current.Errors, 2)
	require.Zero(t, env.sink.count())

	status, _ = doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, 999), dto.GradeScoreRequest{Score: "10"})
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestGradeSessionHandlerQuickScoreAndKeys(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)
	first, second := env.fixture.students[0].ID, env.fixture.students[1].ID

	status, payload := doJSON(t, env.app, http.MethodPost, fmt.Sprintf("/api/v1/grade-sessions/%s/entries/%d/quick-score", snapshot.ID, first), map[string]interface{}{"score": 15})
	require.Equal(t, fiber.StatusOK, status, payload.Message)
	var focus dto.FocusResponse
	decodeData(t, payload, &focus)
	require.Equal(t, second, focus.Focus.StudentID)

	status, _ = doJSON(t, env.app, http.MethodPost, fmt.Sprintf("/api/v1/grade-sessions/%s/entries/%d/quick-score", snapshot.ID, first), map[string]interface{}{"score": 13})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = doJSON(t, env.app, http.MethodPut, "/api/v1/grade-sessions/"+snapshot.ID+"/filter", dto.GradeSessionFilterRequest{Filter: "3A"})
	require.Equal(t, fiber.StatusOK, status)

	status, payload = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/bulk-score", map[string]interface{}{"score": 10})
	require.Equal(t, fiber.StatusOK, status, payload.Message)
	var bulk dto.BulkScoreResponse
	decodeData(t, payload, &bulk)
	require.Equal(t, 1, bulk.Updated, "only blank scores of the filtered roster")

	status, payload = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/bulk-score", map[string]interface{}{"score": 13.5})
	require.Equal(t, fiber.StatusOK, status, payload.Message)
	decodeData(t, payload, &bulk)
	require.Zero(t, bulk.Updated)

	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/bulk-score", map[string]interface{}{"score": -1})
	require.Equal(t, fiber.StatusBadRequest, status)

	status, payload = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/keys", dto.KeyEventRequest{StudentID: first, Field: "score", Key: "Enter"})
	require.Equal(t, fiber.StatusOK, status, payload.Message)
	decodeData(t, payload, &focus)
	require.Equal(t, second, focus.Focus.StudentID)

	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/keys", dto.KeyEventRequest{StudentID: first, Field: "grade", Key: "Enter"})
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestGradeSessionHandlerSwitchEvaluationRequiresDiscard(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)

	status, _ := doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, env.fixture.students[0].ID), dto.GradeScoreRequest{Score: "12"})
	require.Equal(t, fiber.StatusOK, status)

	path := "/api/v1/grade-sessions/" + snapshot.ID + "/evaluation"
	status, payload := doJSON(t, env.app, http.MethodPut, path, dto.GradeSessionSwitchRequest{EvaluationID: env.fixture.quiz.ID})
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, gradeentry.ErrUnsavedChanges.Error(), payload.Message)

	status, _ = doJSON(t, env.app, http.MethodPut, path, dto.GradeSessionSwitchRequest{EvaluationID: env.fixture.lab.ID, Discard: true})
	require.Equal(t, fiber.StatusUnprocessableEntity, status, "evaluation of another subject")

	status, payload = doJSON(t, env.app, http.MethodPut, path, dto.GradeSessionSwitchRequest{EvaluationID: env.fixture.quiz.ID, Discard: true})
	require.Equal(t, fiber.StatusOK, status, payload.Message)

	var switched gradeentry.Snapshot
	decodeData(t, payload, &switched)
	require.Equal(t, env.fixture.quiz.ID, switched.Evaluation.ID)
	require.Empty(t, switched.Entries)
}

func TestGradeSessionHandlerErrors(t *testing.T) {
	env := newSessionTestEnv(t)

	status, _ := doJSON(t, env.app, http.MethodGet, "/api/v1/grade-sessions/missing", nil)
	require.Equal(t, fiber.StatusNotFound, status)

	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions", map[string]interface{}{"subject_id": 0})
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions", dto.GradeSessionOpenRequest{SubjectID: 404, EvaluationID: env.fixture.exam.ID})
	require.Equal(t, fiber.StatusNotFound, status)

	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions", dto.GradeSessionOpenRequest{SubjectID: env.fixture.math.ID, EvaluationID: env.fixture.lab.ID})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)

	snapshot := env.open(t)
	status, _ = doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/save", nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status, "empty buffer")

	env.sink.err = errors.New("database unavailable")
	status, _ = doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, env.fixture.students[0].ID), dto.GradeScoreRequest{Score: "12"})
	require.Equal(t, fiber.StatusOK, status)

	status, payload := doJSON(t, env.app, http.MethodPost, "/api/v1/grade-sessions/"+snapshot.ID+"/save", nil)
	require.Equal(t, fiber.StatusBadGateway, status)
	require.Equal(t, gradeentry.ErrSaveFailure.Error(), payload.Message)
	require.Len(t, payload.Errors, 1)
	require.NotContains(t, payload.Errors[0], "database unavailable")

	var kept gradeentry.Snapshot
	decodeData(t, payload, &kept)
	require.Len(t, kept.Entries, 1)

	status, _ = doJSON(t, env.app, http.MethodDelete, "/api/v1/grade-sessions/"+snapshot.ID, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = doJSON(t, env.app, http.MethodGet, "/api/v1/grade-sessions/"+snapshot.ID, nil)
	require.Equal(t, fiber.StatusNotFound, status)
}

const snapshotSchema = `{
  "type": "object",
  "required": ["id", "subject", "evaluation", "filter", "students", "total_students", "entries", "errors", "saving", "saved", "autosave", "dirty", "progress", "closed"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "subject": {"type": "object", "required": ["id", "name", "code"]},
    "evaluation": {
      "type": "object",
      "required": ["id", "subject_id", "max_score", "evaluation_type", "session_type"],
      "properties": {"max_score": {"type": "number", "exclusiveMinimum": 0}}
    },
    "filter": {"type": "string"},
    "students": {
      "type": "array",
      "items": {"type": "object", "required": ["id", "student_number", "first_name", "last_name"]}
    },
    "total_students": {"type": "integer", "minimum": 0},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["student_id", "score", "comment"],
        "properties": {"score": {"type": "string"}, "comment": {"type": "string"}}
      }
    },
    "errors": {"type": ["array", "null"], "items": {"type": "string"}},
    "saving": {"type": "boolean"},
    "saved": {"type": "boolean"},
    "last_saved_at": {"type": ["string", "null"]},
    "autosave": {"type": "boolean"},
    "dirty": {"type": "boolean"},
    "focus": {
      "type": ["object", "null"],
      "properties": {"field": {"enum": ["score", "comment"]}}
    },
    "progress": {
      "type": "object",
      "required": ["graded", "total", "percent"],
      "properties": {"percent": {"type": "integer", "minimum": 0, "maximum": 100}}
    },
    "closed": {"type": "boolean"}
  }
}`

func TestGradeSessionSnapshotContract(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("snapshot.json", strings.NewReader(snapshotSchema)))
	schema, err := compiler.Compile("snapshot.json")
	require.NoError(t, err)

	status, _ := doJSON(t, env.app, http.MethodPut, scorePath(snapshot.ID, env.fixture.students[0].ID), dto.GradeScoreRequest{Score: "14"})
	require.Equal(t, fiber.StatusOK, status)

	status, payload := doJSON(t, env.app, http.MethodGet, "/api/v1/grade-sessions/"+snapshot.ID, nil)
	require.Equal(t, fiber.StatusOK, status)

	decoder := json.NewDecoder(bytes.NewReader(payload.Data))
	decoder.UseNumber()
	var document interface{}
	require.NoError(t, decoder.Decode(&document))
	require.NoError(t, schema.Validate(document))
}

type streamMessage struct {
	Type    string               `json:"type"`
	Event   *gradeentry.Event    `json:"event"`
	Session *gradeentry.Snapshot `json:"session"`
}

func TestGradeSessionHandlerStreamsEvents(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = env.app.Listener(listener) }()
	t.Cleanup(func() { _ = env.app.Shutdown() })

	url := fmt.Sprintf("ws://%s/api/v1/grade-sessions/%s/ws", listener.Addr().String(), snapshot.ID)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message streamMessage
	require.NoError(t, conn.ReadJSON(&message))
	require.Equal(t, "snapshot", message.Type)
	require.NotNil(t, message.Session)
	require.Equal(t, snapshot.ID, message.Session.ID)

	_, err = env.sessions.EditScore(snapshot.ID, env.fixture.students[0].ID, dto.GradeScoreRequest{Score: "17"})
	require.NoError(t, err)
	_, err = env.sessions.Save(context.Background(), snapshot.ID)
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&message))
	require.Equal(t, string(gradeentry.EventSaved), message.Type)
	require.NotNil(t, message.Event)
	require.Equal(t, 1, message.Event.Records)

	require.NoError(t, env.sessions.Close(snapshot.ID))
	require.NoError(t, conn.ReadJSON(&message))
	require.Equal(t, string(gradeentry.EventClosed), message.Type)

	_, _, err = conn.ReadMessage()
	require.True(t, gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure), "unexpected error: %v", err)
}

func TestGradeSessionHandlerStreamRequiresUpgrade(t *testing.T) {
	env := newSessionTestEnv(t)
	snapshot := env.open(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grade-sessions/"+snapshot.ID+"/ws", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
