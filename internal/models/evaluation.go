package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EvaluationKind classifies the assessment format.
type EvaluationKind string

const (
	EvaluationKindExam     EvaluationKind = "exam"
	EvaluationKindHomework EvaluationKind = "homework"
	EvaluationKindQuiz     EvaluationKind = "quiz"
	EvaluationKindProject  EvaluationKind = "project"
)

// Valid reports whether the kind is one of the known values.
func (k EvaluationKind) Valid() bool {
	switch k {
	case EvaluationKindExam, EvaluationKindHomework, EvaluationKindQuiz, EvaluationKindProject:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown kinds.
func (k *EvaluationKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := EvaluationKind(raw)
	if !parsed.Valid() {
		return fmt.Errorf("unknown evaluation kind %q", raw)
	}
	*k = parsed
	return nil
}

// SessionVariant tells a normal sitting apart from the two remediation sittings.
type SessionVariant string

const (
	SessionVariantNormal     SessionVariant = "normal"
	SessionVariantRattrapage SessionVariant = "rattrapage"
	SessionVariantRepechage  SessionVariant = "repechage"
)

// Valid reports whether the variant is one of the known values.
func (v SessionVariant) Valid() bool {
	switch v {
	case SessionVariantNormal, SessionVariantRattrapage, SessionVariantRepechage:
		return true
	}
	return false
}

// IsMakeup reports whether the variant is a remediation sitting.
func (v SessionVariant) IsMakeup() bool {
	return v == SessionVariantRattrapage || v == SessionVariantRepechage
}

// UnmarshalJSON rejects unknown variants.
func (v *SessionVariant) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := SessionVariant(raw)
	if !parsed.Valid() {
		return fmt.Errorf("unknown session variant %q", raw)
	}
	*v = parsed
	return nil
}

// Evaluation is a gradeable assessment belonging to a subject.
type Evaluation struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SubjectID      uint           `gorm:"not null;index" json:"subject_id"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	Kind           EvaluationKind `gorm:"size:16;not null" json:"evaluation_type"`
	SessionVariant SessionVariant `gorm:"size:16;not null;default:normal" json:"session_type"`
	MaxScore       float64        `gorm:"not null;default:20" json:"max_score"`
	Coefficient    float64        `gorm:"not null;default:1" json:"coefficient"`
	EvaluationDate time.Time      `json:"evaluation_date"`
	IsMakeup       bool           `gorm:"not null;default:false" json:"is_makeup"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Subject        Subject        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
