package models

import "time"

// Student represents an enrolled learner that can be graded.
type Student struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	StudentNumber string     `gorm:"size:64;uniqueIndex;not null" json:"student_number"`
	FirstName     string     `gorm:"size:128;not null" json:"first_name"`
	LastName      string     `gorm:"size:128;not null" json:"last_name"`
	ClassName     string     `gorm:"size:64;index" json:"class_name"`
	Email         string     `gorm:"size:255" json:"email,omitempty"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FullName returns the display name used in messages and exports.
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}
