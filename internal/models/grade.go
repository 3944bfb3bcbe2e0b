package models

import "time"

// Grade is the persisted score of one student for one evaluation.
type Grade struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StudentID    uint       `gorm:"not null;uniqueIndex:idx_grade_student_evaluation" json:"student_id"`
	EvaluationID uint       `gorm:"not null;uniqueIndex:idx_grade_student_evaluation;index" json:"evaluation_id"`
	Score        *float64   `json:"score"`
	Comment      string     `gorm:"type:text" json:"comment"`
	GradedBy     *uint      `json:"graded_by"`
	GradedAt     time.Time  `json:"graded_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Student      Student    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Evaluation   Evaluation `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// NormalizedScore rescales the score onto a /20 scale.
func (g Grade) NormalizedScore(maxScore float64) (float64, bool) {
	if g.Score == nil || maxScore <= 0 {
		return 0, false
	}
	return *g.Score / maxScore * 20, true
}
