package dto

import (
	"time"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// StudentListRequest filters the roster listing.
type StudentListRequest struct {
	Search string
	Class  string
}

// StudentResponse serializes a student.
type StudentResponse struct {
	ID            uint       `json:"id"`
	StudentNumber string     `json:"student_number"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	FullName      string     `json:"full_name"`
	ClassName     string     `json:"class_name"`
	Email         string     `json:"email,omitempty"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
}

// NewStudentResponse converts a student model into a DTO.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		ID:            student.ID,
		StudentNumber: student.StudentNumber,
		FirstName:     student.FirstName,
		LastName:      student.LastName,
		FullName:      student.FullName(),
		ClassName:     student.ClassName,
		Email:         student.Email,
		BirthDate:     student.BirthDate,
	}
}

// ProfessorCreateRequest captures professor creation payloads.
type ProfessorCreateRequest struct {
	FirstName  string `json:"first_name" validate:"required,min=1,max=128"`
	LastName   string `json:"last_name" validate:"required,min=1,max=128"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department" validate:"omitempty,max=128"`
	Title      string `json:"title" validate:"omitempty,max=64"`
}

// ProfessorResponse serializes a professor.
type ProfessorResponse struct {
	ID         uint   `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Title      string `json:"title"`
}

// NewProfessorResponse converts a professor model into a DTO.
func NewProfessorResponse(professor models.Professor) ProfessorResponse {
	return ProfessorResponse{
		ID:         professor.ID,
		FirstName:  professor.FirstName,
		LastName:   professor.LastName,
		Email:      professor.Email,
		Department: professor.Department,
		Title:      professor.Title,
	}
}

// SubjectCreateRequest captures subject creation payloads.
type SubjectCreateRequest struct {
	Name         string   `json:"name" validate:"required,min=2,max=255"`
	Code         string   `json:"code" validate:"required,min=2,max=32"`
	Coefficient  *float64 `json:"coefficient" validate:"omitempty,gt=0,lte=20"`
	Description  string   `json:"description" validate:"omitempty,max=2000"`
	Color        string   `json:"color" validate:"omitempty,hexcolor"`
	ProfessorID  *uint    `json:"professor_id" validate:"omitempty,gt=0"`
	Semester     string   `json:"semester" validate:"omitempty,oneof=S1 S2"`
	AcademicYear string   `json:"academic_year" validate:"omitempty,max=16"`
}

// SubjectUpdateRequest allows patching subject metadata.
type SubjectUpdateRequest struct {
	Name         *string  `json:"name" validate:"omitempty,min=2,max=255"`
	Code         *string  `json:"code" validate:"omitempty,min=2,max=32"`
	Coefficient  *float64 `json:"coefficient" validate:"omitempty,gt=0,lte=20"`
	Description  *string  `json:"description" validate:"omitempty,max=2000"`
	Color        *string  `json:"color" validate:"omitempty,hexcolor"`
	ProfessorID  *uint    `json:"professor_id" validate:"omitempty,gt=0"`
	Semester     *string  `json:"semester" validate:"omitempty,oneof=S1 S2"`
	AcademicYear *string  `json:"academic_year" validate:"omitempty,max=16"`
}

// SubjectResponse serializes a subject with its professor.
type SubjectResponse struct {
	ID           uint               `json:"id"`
	Name         string             `json:"name"`
	Code         string             `json:"code"`
	Coefficient  float64            `json:"coefficient"`
	Description  string             `json:"description"`
	Color        string             `json:"color"`
	Semester     string             `json:"semester"`
	AcademicYear string             `json:"academic_year"`
	Professor    *ProfessorResponse `json:"professor,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewSubjectResponse converts a subject model into a DTO.
func NewSubjectResponse(subject models.Subject) SubjectResponse {
	response := SubjectResponse{
		ID:           subject.ID,
		Name:         subject.Name,
		Code:         subject.Code,
		Coefficient:  subject.Coefficient,
		Description:  subject.Description,
		Color:        subject.Color,
		Semester:     subject.Semester,
		AcademicYear: subject.AcademicYear,
		CreatedAt:    subject.CreatedAt,
		UpdatedAt:    subject.UpdatedAt,
	}
	if subject.Professor != nil {
		professor := NewProfessorResponse(*subject.Professor)
		response.Professor = &professor
	}
	return response
}

// EvaluationCreateRequest captures evaluation creation payloads.
type EvaluationCreateRequest struct {
	Name           string                `json:"name" validate:"required,min=2,max=255"`
	Kind           models.EvaluationKind `json:"evaluation_type" validate:"required,oneof=exam homework quiz project"`
	SessionVariant models.SessionVariant `json:"session_type" validate:"omitempty,oneof=normal rattrapage repechage"`
	MaxScore       *float64              `json:"max_score" validate:"omitempty,gt=0,lte=100"`
	Coefficient    *float64              `json:"coefficient" validate:"omitempty,gt=0,lte=10"`
	EvaluationDate string                `json:"evaluation_date" validate:"required,datetime=2006-01-02"`
	IsMakeup       *bool                 `json:"is_makeup"`
}

// EvaluationResponse serializes an evaluation.
type EvaluationResponse struct {
	ID             uint                  `json:"id"`
	SubjectID      uint                  `json:"subject_id"`
	Name           string                `json:"name"`
	Kind           models.EvaluationKind `json:"evaluation_type"`
	SessionVariant models.SessionVariant `json:"session_type"`
	MaxScore       float64               `json:"max_score"`
	Coefficient    float64               `json:"coefficient"`
	EvaluationDate time.Time             `json:"evaluation_date"`
	IsMakeup       bool                  `json:"is_makeup"`
}

// NewEvaluationResponse converts an evaluation model into a DTO.
func NewEvaluationResponse(evaluation models.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:             evaluation.ID,
		SubjectID:      evaluation.SubjectID,
		Name:           evaluation.Name,
		Kind:           evaluation.Kind,
		SessionVariant: evaluation.SessionVariant,
		MaxScore:       evaluation.MaxScore,
		Coefficient:    evaluation.Coefficient,
		EvaluationDate: evaluation.EvaluationDate,
		IsMakeup:       evaluation.IsMakeup,
	}
}
