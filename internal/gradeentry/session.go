package gradeentry

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const (
	// DefaultAutoSaveInterval is the autosave period used when none is configured.
	DefaultAutoSaveInterval = 30 * time.Second
	// DefaultSavedBannerTTL is how long the "saved" confirmation stays visible.
	DefaultSavedBannerTTL = 3 * time.Second
)

// QuickScores lists the one-click score shortcuts offered to graders.
var QuickScores = []float64{0, 5, 10, 12, 15, 18, 20}

// IsQuickScore reports whether value belongs to QuickScores.
func IsQuickScore(value float64) bool {
	for _, candidate := range QuickScores {
		if candidate == value {
			return true
		}
	}
	return false
}

// Entry is the unsaved score and comment text of one student.
type Entry struct {
	StudentID uint   `json:"student_id"`
	Score     string `json:"score"`
	Comment   string `json:"comment"`
}

// Progress counts graded students of the filtered roster.
type Progress struct {
	Graded  int `json:"graded"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// Options configures a new session.
type Options struct {
	ID               string
	Subject          models.Subject
	Evaluation       models.Evaluation
	Roster           []models.Student
	GradedBy         uint
	Sink             Sink
	AutoSave         bool
	AutoSaveInterval time.Duration
	SavedBannerTTL   time.Duration
	Logger           zerolog.Logger
	Now              func() time.Time
	NewTicker        func(time.Duration) Ticker
	OnEvent          func(Event)
}

// Session holds the grading state of one (subject, evaluation) pair.
type Session struct {
	mu sync.Mutex

	id         string
	subject    models.Subject
	evaluation models.Evaluation
	roster     []models.Student
	index      map[uint]int
	gradedBy   uint

	filter   string
	filtered []models.Student

	buffer        map[uint]Entry
	revision      uint64
	savedRevision uint64

	errors    []string
	saving    bool
	saved     bool
	savedAt   time.Time
	lastSaved time.Time
	focus     *Focus
	closed    bool

	autoSave         bool
	autoSaveInterval time.Duration
	bannerTTL        time.Duration
	baseCtx          context.Context
	autoSaveCancel   context.CancelFunc
	autoSaveDone     chan struct{}

	sink      Sink
	logger    zerolog.Logger
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	onEvent   func(Event)
}

// NewSession builds a session over the given roster. Call Start to arm autosave.
func NewSession(opts Options) *Session {
	roster := append([]models.Student(nil), opts.Roster...)
	index := make(map[uint]int, len(roster))
	for idx, student := range roster {
		index[student.ID] = idx
	}

	s := &Session{
		id:               opts.ID,
		subject:          opts.Subject,
		evaluation:       opts.Evaluation,
		roster:           roster,
		index:            index,
		gradedBy:         opts.GradedBy,
		filtered:         roster,
		buffer:           make(map[uint]Entry),
		autoSave:         opts.AutoSave,
		autoSaveInterval: opts.AutoSaveInterval,
		bannerTTL:        opts.SavedBannerTTL,
		baseCtx:          context.Background(),
		sink:             opts.Sink,
		logger:           opts.Logger.With().Str("component", "grade_entry_session").Str("session_id", opts.ID).Logger(),
		now:              opts.Now,
		newTicker:        opts.NewTicker,
		onEvent:          opts.OnEvent,
	}

	if s.autoSaveInterval <= 0 {
		s.autoSaveInterval = DefaultAutoSaveInterval
	}
	if s.bannerTTL <= 0 {
		s.bannerTTL = DefaultSavedBannerTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newTicker == nil {
		s.newTicker = NewTimeTicker
	}

	return s
}

// SubjectID returns the subject the session is scoped to.
func (s *Session) SubjectID() uint {
	return s.subject.ID
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SetFilter recomputes the filtered roster. First name, last name and class
// match case-insensitively; the roll number matches as an exact substring.
func (s *Session) SetFilter(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.filter = text
	s.filtered = FilterStudents(s.roster, text)
	return nil
}

// FilterStudents returns the students matching text, preserving roster order.
func FilterStudents(roster []models.Student, text string) []models.Student {
	if strings.TrimSpace(text) == "" {
		return roster
	}

	needle := strings.ToLower(text)
	filtered := make([]models.Student, 0, len(roster))
	for _, student := range roster {
		if strings.Contains(strings.ToLower(student.FirstName), needle) ||
			strings.Contains(strings.ToLower(student.LastName), needle) ||
			strings.Contains(student.StudentNumber, text) ||
			strings.Contains(strings.ToLower(student.ClassName), needle) {
			filtered = append(filtered, student)
		}
	}
	return filtered
}

// EditScore sets the raw score text of a student, keeping the comment.
func (s *Session) EditScore(studentID uint, text string) error {
	return s.edit(studentID, func(entry *Entry) { entry.Score = text })
}

// EditComment sets the raw comment text of a student, keeping the score.
func (s *Session) EditComment(studentID uint, text string) error {
	return s.edit(studentID, func(entry *Entry) { entry.Comment = text })
}

func (s *Session) edit(studentID uint, apply func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.index[studentID]; !ok {
		return ErrUnknownStudent
	}

	s.editLocked(studentID, apply)
	return nil
}

func (s *Session) editLocked(studentID uint, apply func(*Entry)) {
	entry := s.buffer[studentID]
	entry.StudentID = studentID
	apply(&entry)
	s.buffer[studentID] = entry
	s.revision++
	s.saved = false
}

// ApplyQuickScore sets a quick score and moves focus to the next filtered row.
func (s *Session) ApplyQuickScore(studentID uint, value float64) (Focus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Focus{}, ErrSessionClosed
	}
	return s.applyQuickScoreLocked(studentID, value)
}

func (s *Session) applyQuickScoreLocked(studentID uint, value float64) (Focus, error) {
	if !IsQuickScore(value) {
		return Focus{}, ErrNotQuickScore
	}
	if _, ok := s.index[studentID]; !ok {
		return Focus{}, ErrUnknownStudent
	}

	text := formatScore(value)
	s.editLocked(studentID, func(entry *Entry) { entry.Score = text })

	next := advance(s.filteredIDsLocked(), Focus{StudentID: studentID, Field: FieldScore})
	s.focus = &next
	return next, nil
}

// BulkApplyScore fills every blank score of the filtered roster and returns how
// many were set. Values above the evaluation maximum are applied and reported
// by Validate like any typed score.
func (s *Session) BulkApplyScore(value float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrInvalidScoreFormat
	}
	if value < 0 {
		return 0, ErrScoreOutOfRange
	}

	text := formatScore(value)
	applied := 0
	for _, student := range s.filtered {
		if strings.TrimSpace(s.buffer[student.ID].Score) != "" {
			continue
		}
		s.editLocked(student.ID, func(entry *Entry) { entry.Score = text })
		applied++
	}
	return applied, nil
}

// HandleKey applies the keyboard policy for a key pressed on a cell and returns the new focus.
func (s *Session) HandleKey(studentID uint, field Field, key Key) (Focus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Focus{}, ErrSessionClosed
	}
	if _, ok := s.index[studentID]; !ok {
		return Focus{}, ErrUnknownStudent
	}

	if field == FieldScore {
		if value, ok := key.quickDigit(); ok {
			return s.applyQuickScoreLocked(studentID, value)
		}
	}

	next := Navigate(s.filteredIDsLocked(), Focus{StudentID: studentID, Field: field}, key.Name)
	s.focus = &next
	return next, nil
}

// Validate checks every non-blank score against the active evaluation.
func (s *Session) Validate() ValidationErrors {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.validateLocked()
}

func (s *Session) validateLocked() ValidationErrors {
	var failures ValidationErrors
	maxScore := s.evaluation.MaxScore
	for _, student := range s.roster {
		entry, ok := s.buffer[student.ID]
		if !ok {
			continue
		}
		text := strings.TrimSpace(entry.Score)
		if text == "" {
			continue
		}

		score, err := ParseScore(text)
		switch {
		case err != nil:
			failures = append(failures, ValidationError{
				StudentID: student.ID,
				Kind:      ErrInvalidScoreFormat,
				Message:   fmt.Sprintf("invalid score for %s", student.FullName()),
			})
		case score < 0 || score > maxScore:
			failures = append(failures, ValidationError{
				StudentID: student.ID,
				Kind:      ErrScoreOutOfRange,
				Message:   fmt.Sprintf("score out of range for %s (0-%s)", student.FullName(), formatScore(maxScore)),
			})
		}
	}
	return failures
}

// ParseScore parses a decimal score, rejecting NaN, infinities and hexadecimal forms.
func ParseScore(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if strings.ContainsAny(text, "xXpP_") {
		return 0, ErrInvalidScoreFormat
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrInvalidScoreFormat
	}
	return value, nil
}

// SetAutoSave toggles the autosave timer.
func (s *Session) SetAutoSave(enabled bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	s.autoSave = enabled
	var done <-chan struct{}
	if enabled {
		s.armLocked()
	} else {
		done = s.disarmLocked()
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// SwitchEvaluation moves the session onto another evaluation of the same subject.
// Edits not covered by a successful save block the switch unless discard is set.
func (s *Session) SwitchEvaluation(evaluation models.Evaluation, discard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if evaluation.SubjectID != s.subject.ID {
		return ErrEvaluationMismatch
	}
	if s.saving {
		return ErrSaveInProgress
	}
	if s.dirtyLocked() && !discard {
		return ErrUnsavedChanges
	}

	if s.dirtyLocked() {
		s.logger.Warn().Int("entries", len(s.buffer)).Uint("evaluation_id", s.evaluation.ID).Msg("discarding unsaved grades on evaluation switch")
	}

	s.evaluation = evaluation
	s.buffer = make(map[uint]Entry)
	s.revision = 0
	s.savedRevision = 0
	s.errors = nil
	s.saved = false
	s.savedAt = time.Time{}
	s.lastSaved = time.Time{}
	s.focus = nil
	return nil
}

// Close disarms autosave and rejects further operations.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	done := s.disarmLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.emit(Event{Type: EventClosed, SessionID: s.id, At: s.now()})
}

// Snapshot is a read-only view of the session state.
type Snapshot struct {
	ID            string            `json:"id"`
	Subject       models.Subject    `json:"subject"`
	Evaluation    models.Evaluation `json:"evaluation"`
	Filter        string            `json:"filter"`
	Students      []models.Student  `json:"students"`
	TotalStudents int               `json:"total_students"`
	Entries       []Entry           `json:"entries"`
	Errors        []string          `json:"errors"`
	Saving        bool              `json:"saving"`
	Saved         bool              `json:"saved"`
	LastSavedAt   *time.Time        `json:"last_saved_at"`
	AutoSave      bool              `json:"autosave"`
	Dirty         bool              `json:"dirty"`
	Focus         *Focus            `json:"focus"`
	Progress      Progress          `json:"progress"`
	Closed        bool              `json:"closed"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.buffer))
	for _, student := range s.roster {
		if entry, ok := s.buffer[student.ID]; ok {
			entries = append(entries, entry)
		}
	}

	snapshot := Snapshot{
		ID:            s.id,
		Subject:       s.subject,
		Evaluation:    s.evaluation,
		Filter:        s.filter,
		Students:      append([]models.Student(nil), s.filtered...),
		TotalStudents: len(s.roster),
		Entries:       entries,
		Errors:        append([]string(nil), s.errors...),
		Saving:        s.saving,
		Saved:         s.saved && s.now().Sub(s.savedAt) < s.bannerTTL,
		AutoSave:      s.autoSave,
		Dirty:         s.dirtyLocked(),
		Progress:      s.progressLocked(),
		Closed:        s.closed,
	}
	if !s.lastSaved.IsZero() {
		lastSaved := s.lastSaved
		snapshot.LastSavedAt = &lastSaved
	}
	if s.focus != nil {
		focus := *s.focus
		snapshot.Focus = &focus
	}
	return snapshot
}

func (s *Session) progressLocked() Progress {
	progress := Progress{Total: len(s.filtered)}
	for _, student := range s.filtered {
		if strings.TrimSpace(s.buffer[student.ID].Score) != "" {
			progress.Graded++
		}
	}
	if progress.Total > 0 {
		progress.Percent = int(math.Round(float64(progress.Graded) / float64(progress.Total) * 100))
	}
	return progress
}

func (s *Session) dirtyLocked() bool {
	return s.revision != s.savedRevision
}

func (s *Session) filteredIDsLocked() []uint {
	ids := make([]uint, 0, len(s.filtered))
	for _, student := range s.filtered {
		ids = append(ids, student.ID)
	}
	return ids
}

func (s *Session) emit(event Event) {
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

func formatScore(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
