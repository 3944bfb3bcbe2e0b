package gradeentry

import (
	"context"
	"time"
)

// Ticker is the periodic clock driving autosave.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(d)}
}

func (t *timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *timeTicker) Stop() {
	t.ticker.Stop()
}

// Start arms the autosave timer when autosave is enabled. The timer lives
// until ctx is cancelled, autosave is disabled or the session is closed.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if ctx != nil {
		s.baseCtx = ctx
	}
	if s.autoSave {
		s.armLocked()
	}
}

func (s *Session) armLocked() {
	if s.autoSaveCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	ticker := s.newTicker(s.autoSaveInterval)

	s.autoSaveCancel = cancel
	s.autoSaveDone = done

	go s.runAutoSave(ctx, ticker, done)
}

// disarmLocked stops the timer and returns a channel closed once the timer
// goroutine has exited. Wait on it only after releasing the lock.
func (s *Session) disarmLocked() <-chan struct{} {
	if s.autoSaveCancel == nil {
		return nil
	}

	s.autoSaveCancel()
	done := s.autoSaveDone
	s.autoSaveCancel = nil
	s.autoSaveDone = nil
	return done
}

func (s *Session) runAutoSave(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.autoSaveDue() {
				continue
			}
			if _, err := s.AutoSave(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("background autosave failed")
			}
		}
	}
}

func (s *Session) autoSaveDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.autoSave && !s.closed && len(s.buffer) > 0
}
