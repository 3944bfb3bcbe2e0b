package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// GradesSavedEvent is broadcast after a grade batch has been committed.
type GradesSavedEvent struct {
	SessionID    string    `json:"session_id"`
	SubjectID    uint      `json:"subject_id"`
	EvaluationID uint      `json:"evaluation_id"`
	Trigger      string    `json:"trigger"`
	Records      int       `json:"records"`
	GradedBy     uint      `json:"graded_by,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// GradeEventPublisher announces committed grade batches to other services.
type GradeEventPublisher interface {
	PublishGradesSaved(ctx context.Context, event GradesSavedEvent) error
}

type natsGradePublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSGradePublisher publishes grade events on <prefix>.grades.saved.
func NewNATSGradePublisher(conn *nats.Conn, prefix string) GradeEventPublisher {
	subject := "grades.saved"
	if prefix != "" {
		subject = prefix + "." + subject
	}
	return &natsGradePublisher{conn: conn, subject: subject}
}

func (p *natsGradePublisher) PublishGradesSaved(ctx context.Context, event GradesSavedEvent) error {
	if p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode grade event: %w", err)
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish grade event: %w", err)
	}
	return nil
}
