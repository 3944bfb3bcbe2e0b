package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/gradeentry"
	"github.com/noah-isme/gradebook-api/internal/observability"
)

// ErrGradeSessionNotFound indicates the session id is unknown or already closed.
var ErrGradeSessionNotFound = errors.New("grade session not found")

const sessionEventBufferSize = 16

// GradeSessionConfig tunes the sessions opened by the manager.
type GradeSessionConfig struct {
	AutoSaveInterval time.Duration
	SavedBannerTTL   time.Duration
	NewTicker        func(time.Duration) gradeentry.Ticker
	Now              func() time.Time
}

// GradeSessionService owns the open grading sessions and exposes their operations.
type GradeSessionService interface {
	Open(ctx context.Context, req dto.GradeSessionOpenRequest, actor ActivityActor) (gradeentry.Snapshot, error)
	Get(id string) (gradeentry.Snapshot, error)
	Close(id string) error
	SetFilter(id string, req dto.GradeSessionFilterRequest) (gradeentry.Snapshot, error)
	EditScore(id string, studentID uint, req dto.GradeScoreRequest) (gradeentry.Snapshot, error)
	EditComment(id string, studentID uint, req dto.GradeCommentRequest) (gradeentry.Snapshot, error)
	QuickScore(id string, studentID uint, req dto.QuickScoreRequest) (dto.FocusResponse, error)
	BulkScore(id string, req dto.BulkScoreRequest) (dto.BulkScoreResponse, error)
	HandleKey(id string, req dto.KeyEventRequest) (dto.FocusResponse, error)
	Validate(id string) (dto.ValidationResponse, error)
	Save(ctx context.Context, id string) (gradeentry.Snapshot, error)
	SetAutoSave(id string, req dto.AutoSaveToggleRequest) (gradeentry.Snapshot, error)
	SwitchEvaluation(ctx context.Context, id string, req dto.GradeSessionSwitchRequest) (gradeentry.Snapshot, error)
	Subscribe(id string) (<-chan gradeentry.Event, func(), error)
	Shutdown()
}

type gradeSessionService struct {
	roster    RosterService
	sink      gradeentry.Sink
	validator *validator.Validate
	logger    zerolog.Logger
	config    GradeSessionConfig

	mu       sync.RWMutex
	sessions map[string]*gradeentry.Session
	broker   *sessionEventBroker

	ctx    context.Context
	cancel context.CancelFunc
}

type sessionEventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan gradeentry.Event]struct{}
}

// NewGradeSessionService constructs the session manager. Autosave timers run
// until Shutdown is called.
func NewGradeSessionService(roster RosterService, sink gradeentry.Sink, validate *validator.Validate, config GradeSessionConfig, logger zerolog.Logger) GradeSessionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &gradeSessionService{
		roster:    roster,
		sink:      sink,
		validator: validate,
		logger:    logger.With().Str("component", "grade_session_service").Logger(),
		config:    config,
		sessions:  make(map[string]*gradeentry.Session),
		broker: &sessionEventBroker{
			subscribers: make(map[string]map[chan gradeentry.Event]struct{}),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *gradeSessionService) Open(ctx context.Context, req dto.GradeSessionOpenRequest, actor ActivityActor) (gradeentry.Snapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return gradeentry.Snapshot{}, err
	}

	subject, err := s.roster.LoadSubject(ctx, req.SubjectID)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}
	evaluation, err := s.roster.LoadEvaluation(ctx, req.EvaluationID)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}
	if evaluation.SubjectID != subject.ID {
		return gradeentry.Snapshot{}, gradeentry.ErrEvaluationMismatch
	}
	students, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}

	autoSave := true
	if req.AutoSave != nil {
		autoSave = *req.AutoSave
	}

	id := uuid.NewString()
	session := gradeentry.NewSession(gradeentry.Options{
		ID:               id,
		Subject:          subject,
		Evaluation:       evaluation,
		Roster:           students,
		GradedBy:         actor.ID,
		Sink:             s.sink,
		AutoSave:         autoSave,
		AutoSaveInterval: s.config.AutoSaveInterval,
		SavedBannerTTL:   s.config.SavedBannerTTL,
		Logger:           s.logger,
		Now:              s.config.Now,
		NewTicker:        s.config.NewTicker,
		OnEvent:          s.broker.broadcast,
	})

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	session.Start(s.ctx)
	observability.GradeSessionsActive().Inc()

	s.logger.Info().
		Str("session_id", id).
		Uint("subject_id", subject.ID).
		Uint("evaluation_id", evaluation.ID).
		Int("students", len(students)).
		Bool("autosave", autoSave).
		Msg("grade session opened")

	return session.Snapshot(), nil
}

func (s *gradeSessionService) Get(id string) (gradeentry.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

func (s *gradeSessionService) Close(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrGradeSessionNotFound
	}

	s.closeSession(session)
	return nil
}

func (s *gradeSessionService) closeSession(session *gradeentry.Session) {
	session.Close()
	s.broker.closeAll(session.ID())
	observability.GradeSessionsActive().Dec()
	s.logger.Info().Str("session_id", session.ID()).Msg("grade session closed")
}

func (s *gradeSessionService) SetFilter(id string, req dto.GradeSessionFilterRequest) (gradeentry.Snapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return gradeentry.Snapshot{}, err
	}
	return s.mutate(id, func(session *gradeentry.Session) error {
		return session.SetFilter(req.Filter)
	})
}

func (s *gradeSessionService) EditScore(id string, studentID uint, req dto.GradeScoreRequest) (gradeentry.Snapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return gradeentry.Snapshot{}, err
	}
	return s.mutate(id, func(session *gradeentry.Session) error {
		return session.EditScore(studentID, req.Score)
	})
}

func (s *gradeSessionService) EditComment(id string, studentID uint, req dto.GradeCommentRequest) (gradeentry.Snapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return gradeentry.Snapshot{}, err
	}
	return s.mutate(id, func(session *gradeentry.Session) error {
		return session.EditComment(studentID, req.Comment)
	})
}

func (s *gradeSessionService) QuickScore(id string, studentID uint, req dto.QuickScoreRequest) (dto.FocusResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.FocusResponse{}, err
	}
	session, err := s.lookup(id)
	if err != nil {
		return dto.FocusResponse{}, err
	}

	focus, err := session.ApplyQuickScore(studentID, *req.Score)
	if err != nil {
		return dto.FocusResponse{}, err
	}
	return dto.FocusResponse{Focus: focus, Session: session.Snapshot()}, nil
}

func (s *gradeSessionService) BulkScore(id string, req dto.BulkScoreRequest) (dto.BulkScoreResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BulkScoreResponse{}, err
	}
	session, err := s.lookup(id)
	if err != nil {
		return dto.BulkScoreResponse{}, err
	}

	updated, err := session.BulkApplyScore(*req.Score)
	if err != nil {
		return dto.BulkScoreResponse{}, err
	}
	return dto.BulkScoreResponse{Updated: updated, Session: session.Snapshot()}, nil
}

func (s *gradeSessionService) HandleKey(id string, req dto.KeyEventRequest) (dto.FocusResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.FocusResponse{}, err
	}
	session, err := s.lookup(id)
	if err != nil {
		return dto.FocusResponse{}, err
	}

	focus, err := session.HandleKey(req.StudentID, gradeentry.Field(req.Field), gradeentry.Key{Name: req.Key, Ctrl: req.Ctrl})
	if err != nil {
		return dto.FocusResponse{}, err
	}
	return dto.FocusResponse{Focus: focus, Session: session.Snapshot()}, nil
}

func (s *gradeSessionService) Validate(id string) (dto.ValidationResponse, error) {
	session, err := s.lookup(id)
	if err != nil {
		return dto.ValidationResponse{}, err
	}

	failures := session.Validate()
	return dto.ValidationResponse{Valid: len(failures) == 0, Errors: failures.Messages()}, nil
}

// Save returns the snapshot alongside any save error so callers can render
// the surfaced validation messages.
func (s *gradeSessionService) Save(ctx context.Context, id string) (gradeentry.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}

	err = session.Save(ctx)
	return session.Snapshot(), err
}

func (s *gradeSessionService) SetAutoSave(id string, req dto.AutoSaveToggleRequest) (gradeentry.Snapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return gradeentry.Snapshot{}, err
	}
	return s.mutate(id, func(session *gradeentry.Session) error {
		return session.SetAutoSave(*req.Enabled)
	})
}

func (s *gradeSessionService) SwitchEvaluation(ctx context.Context, id string, req dto.GradeSessionSwitchRequest) (gradeentry.Snapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return gradeentry.Snapshot{}, err
	}
	session, err := s.lookup(id)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}

	evaluation, err := s.roster.LoadEvaluation(ctx, req.EvaluationID)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}
	if err := session.SwitchEvaluation(evaluation, req.Discard); err != nil {
		return session.Snapshot(), err
	}
	return session.Snapshot(), nil
}

// Subscribe streams the events of one session until the returned cleanup is
// called or the session closes.
func (s *gradeSessionService) Subscribe(id string) (<-chan gradeentry.Event, func(), error) {
	channel := make(chan gradeentry.Event, sessionEventBufferSize)

	// Close removes the session under the write lock before closing its
	// subscribers, so registering under the read lock cannot miss closeAll.
	s.mu.RLock()
	_, ok := s.sessions[id]
	if ok {
		s.broker.subscribe(id, channel)
	}
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrGradeSessionNotFound
	}

	cleanup := func() {
		s.broker.unsubscribe(id, channel)
	}
	return channel, cleanup, nil
}

// Shutdown stops autosave timers and closes every open session.
func (s *gradeSessionService) Shutdown() {
	s.cancel()

	s.mu.Lock()
	sessions := make([]*gradeentry.Session, 0, len(s.sessions))
	for id, session := range s.sessions {
		sessions = append(sessions, session)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		s.closeSession(session)
	}
}

func (s *gradeSessionService) lookup(id string) (*gradeentry.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrGradeSessionNotFound
	}
	return session, nil
}

func (s *gradeSessionService) mutate(id string, apply func(*gradeentry.Session) error) (gradeentry.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return gradeentry.Snapshot{}, err
	}
	if err := apply(session); err != nil {
		return gradeentry.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

func (b *sessionEventBroker) subscribe(sessionID string, ch chan gradeentry.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sessionID]; !exists {
		b.subscribers[sessionID] = make(map[chan gradeentry.Event]struct{})
	}
	b.subscribers[sessionID][ch] = struct{}{}
}

func (b *sessionEventBroker) unsubscribe(sessionID string, ch chan gradeentry.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[sessionID]; ok {
		if _, present := subscribers[ch]; !present {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
}

func (b *sessionEventBroker) closeAll(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers[sessionID] {
		close(ch)
	}
	delete(b.subscribers, sessionID)
}

func (b *sessionEventBroker) broadcast(event gradeentry.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}
