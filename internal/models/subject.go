package models

import "time"

const (
	// DefaultSubjectColor is applied when a subject is created without a color.
	DefaultSubjectColor = "#15803d"
	// DefaultSubjectSemester is applied when a subject is created without a semester.
	DefaultSubjectSemester = "S1"
)

// Subject is a taught course carrying a weighting coefficient.
type Subject struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	Code         string     `gorm:"size:32;uniqueIndex;not null" json:"code"`
	Coefficient  float64    `gorm:"not null;default:1" json:"coefficient"`
	Description  string     `gorm:"type:text" json:"description"`
	Color        string     `gorm:"size:16" json:"color"`
	ProfessorID  *uint      `gorm:"index" json:"professor_id"`
	Semester     string     `gorm:"size:16" json:"semester"`
	AcademicYear string     `gorm:"size:16" json:"academic_year"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Professor    *Professor `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"professor,omitempty"`
}

// Professor teaches one or more subjects.
type Professor struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FirstName  string    `gorm:"size:128;not null" json:"first_name"`
	LastName   string    `gorm:"size:128;not null" json:"last_name"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Department string    `gorm:"size:128" json:"department"`
	Title      string    `gorm:"size:64" json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
